// Package quicfab is a `kfi` provider serving fabrics over QUIC.
//
// Every endpoint opened on a fabric owns a UDP socket, a QUIC transport
// and a listener. Flows are QUIC streams framed with `pkg/flow`. Peers
// are named after the common name of their certificate, so you should
// configure mutual TLS.
//
//	prov, err := quicfab.New(quicfab.WithTLSConfig(tlsConf))
//	if err != nil {
//		return err
//	}
//	kfi.MustRegister(prov)
package quicfab

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/kfi"
	"github.com/raskyld/kfi/pkg/flow"
)

const ProviderName = "quic"

// ProviderVersion is the version used for arbitration in a `kfi.Registry`.
var ProviderVersion = kfi.Version(1, 0)

var (
	_ kfi.Discoverer   = (*Provider)(nil)
	_ kfi.FabricOpener = (*Provider)(nil)
	_ kfi.Releaser     = (*Provider)(nil)
)

// Provider serves a single named fabric.
type Provider struct {
	config config
	logger *slog.Logger
	msink  metrics.MetricSink

	lk       sync.Mutex
	fabrics  map[uuid.UUID]*Fabric
	released bool
}

func New(opts ...Option) (*Provider, error) {
	prov := &Provider{
		config: config{
			fabricName:   DefaultFabricName,
			dialTimeout:  defaultDialTimeout,
			hintMaxFlows: defaultHintMaxFlows,
			bufferSize:   defaultUDPBufferSize,
			resolver:     CommonNameResolver,
		},
		fabrics: make(map[uuid.UUID]*Fabric),
	}

	for _, opt := range opts {
		if err := opt(&prov.config); err != nil {
			return nil, fmt.Errorf("%w: %w", kfi.ErrInvalidCfg, err)
		}
	}

	if prov.config.tlsConfig == nil {
		return nil, fmt.Errorf("%w: %w", kfi.ErrInvalidCfg, ErrNoTLSConfig)
	}

	if len(prov.config.listenOn) == 0 {
		prov.config.listenOn = []netip.AddrPort{
			netip.AddrPortFrom(netip.IPv4Unspecified(), DefaultPort),
		}
	}

	if prov.config.logHandler != nil {
		prov.logger = slog.New(prov.config.logHandler)
	} else {
		prov.logger = slog.Default()
	}
	prov.logger = prov.logger.With(kfi.LabelProvider.L(ProviderName))

	if prov.config.msink == nil {
		prov.msink = metrics.Default()
	} else {
		prov.msink = prov.config.msink
	}

	return prov, nil
}

func (prov *Provider) Name() string {
	return ProviderName
}

func (prov *Provider) Version() uint32 {
	return ProviderVersion
}

// FabricName is the name of the fabric served by the provider.
func (prov *Provider) FabricName() string {
	return prov.config.fabricName
}

// ListenOn returns the advertised addresses.
func (prov *Provider) ListenOn() []netip.AddrPort {
	return append([]netip.AddrPort(nil), prov.config.listenOn...)
}

// GetInfo describes one configuration per advertised address, filtered
// by hints.
func (prov *Provider) GetInfo(version uint32, hints *kfi.Info) (*kfi.Chain, error) {
	if kfi.MajorVersion(version) > kfi.MajorVersion(kfi.APIVersion) {
		return nil, fmt.Errorf(
			"%w: api version %d.%d is not supported",
			kfi.ErrNoData,
			kfi.MajorVersion(version),
			kfi.MinorVersion(version),
		)
	}

	chain := kfi.NewChain()
	for _, addr := range prov.config.listenOn {
		info := prov.describe(addr)
		if !info.Satisfies(hints) {
			continue
		}
		chain.Push(info)
	}

	if chain.Len() == 0 {
		return nil, kfi.ErrNoData
	}
	return chain, nil
}

func (prov *Provider) describe(addr netip.AddrPort) *kfi.Info {
	caps := kfi.CapMsg | kfi.CapSend | kfi.CapRecv
	info := kfi.AllocInfo()
	info.Caps = caps
	info.AddrFormat = kfi.AddrFormatOf(addr)
	info.SrcAddr = kfi.EncodeAddr(addr)

	info.TxAttr.Caps = caps
	info.TxAttr.Size = uint64(prov.config.hintMaxFlows)
	info.RxAttr.Caps = caps
	info.RxAttr.Size = uint64(prov.config.hintMaxFlows)

	info.EpAttr.Protocol = kfi.ProtoQUIC
	info.EpAttr.ProtocolVersion = 1
	info.EpAttr.MaxMsgSize = flow.MaxFrameSize

	info.DomainAttr.Name = addr.String()
	info.DomainAttr.Threading = kfi.ThreadSafe
	info.DomainAttr.ControlProgress = kfi.ProgressAuto
	info.DomainAttr.DataProgress = kfi.ProgressAuto
	info.DomainAttr.EPCnt = uint64(prov.config.hintMaxFlows)

	info.FabricAttr.Name = prov.config.fabricName
	return info
}

// OpenFabric returns a new handle on the fabric served by the provider.
// context is ignored.
func (prov *Provider) OpenFabric(attr *kfi.FabricAttr, _ any) (kfi.Fabric, error) {
	if attr.Name != prov.config.fabricName {
		return nil, fmt.Errorf("%w: this provider serves %q, not %q", kfi.ErrNoData, prov.config.fabricName, attr.Name)
	}

	prov.lk.Lock()
	defer prov.lk.Unlock()
	if prov.released {
		return nil, ErrProviderClosed
	}

	fab := newFabric(prov, uuid.New())
	prov.fabrics[fab.id] = fab
	prov.logger.Debug("fabric opened", kfi.LabelFabricName.L(fab.name), LabelFabricID.L(fab.id))
	return fab, nil
}

// Release closes every fabric still open when the registry lets the
// provider go. Returned chains are simply dropped.
func (prov *Provider) Release(chain *kfi.Chain) {
	if chain != nil {
		kfi.FreeInfo(chain)
		return
	}

	prov.lk.Lock()
	if prov.released {
		prov.lk.Unlock()
		return
	}
	prov.released = true
	fabrics := make([]*Fabric, 0, len(prov.fabrics))
	for _, fab := range prov.fabrics {
		fabrics = append(fabrics, fab)
	}
	prov.lk.Unlock()

	for _, fab := range fabrics {
		if err := fab.Close(); err != nil {
			prov.logger.Warn("failed to close fabric", LabelFabricID.L(fab.id), kfi.LabelError.L(err))
		}
	}
	prov.logger.Debug("provider released", kfi.LabelRecords.L(len(fabrics)))
}

func (prov *Provider) forget(fab *Fabric) {
	prov.lk.Lock()
	delete(prov.fabrics, fab.id)
	prov.lk.Unlock()
}

func (prov *Provider) labels(extra ...metrics.Label) []metrics.Label {
	labels := make([]metrics.Label, 0, len(prov.config.metricLabels)+len(extra))
	labels = append(labels, prov.config.metricLabels...)
	return append(labels, extra...)
}
