// Package gossipfab is a `kfi` provider exposing a gossip cluster, built
// on `hashicorp/memberlist`, as a fabric.
//
// Discovery returns one record per alive member of the cluster, so a
// node can find its peers through the registry like it would find any
// other fabric endpoint.
package gossipfab

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/memberlist"
	"github.com/raskyld/kfi"
)

const ProviderName = "gossip"

// ProviderVersion is the version used for arbitration in a `kfi.Registry`.
var ProviderVersion = kfi.Version(1, 0)

var (
	_ kfi.Discoverer   = (*Provider)(nil)
	_ kfi.FabricOpener = (*Provider)(nil)
	_ kfi.Releaser     = (*Provider)(nil)
)

// Provider owns one memberlist node.
type Provider struct {
	config config
	logger *slog.Logger
	msink  metrics.MetricSink
	ml     *memberlist.Memberlist

	lk       sync.Mutex
	fabrics  map[*Fabric]struct{}
	released bool
}

// Member is a node of the cluster.
type Member struct {
	Name  string         `json:"name" yaml:"name"`
	Addr  netip.AddrPort `json:"addr" yaml:"addr"`
	State string         `json:"state" yaml:"state"`
}

func New(opts ...Option) (*Provider, error) {
	prov := &Provider{
		config: config{
			mlCfg:        memberlist.DefaultLANConfig(),
			clusterName:  DefaultClusterName,
			leaveTimeout: defaultLeaveTimeout,
		},
		fabrics: make(map[*Fabric]struct{}),
	}
	prov.config.mlCfg.Name = "kfi-" + uuid.NewString()

	for _, opt := range opts {
		if err := opt(&prov.config); err != nil {
			return nil, fmt.Errorf("%w: %w", kfi.ErrInvalidCfg, err)
		}
	}

	// Logging implementations.
	if prov.config.logHandler != nil {
		prov.logger = slog.New(prov.config.logHandler)
	} else {
		prov.logger = slog.Default()
	}
	prov.logger = prov.logger.With(kfi.LabelProvider.L(ProviderName))
	prov.config.mlCfg.Logger = slog.NewLogLogger(prov.logger.Handler(), slog.LevelDebug)
	prov.config.mlCfg.LogOutput = nil

	// Metrics implementations.
	if prov.config.msink == nil {
		prov.msink = metrics.Default()
	} else {
		prov.msink = prov.config.msink
	}

	prov.config.mlCfg.Events = &events{
		logger:  prov.logger,
		msink:   prov.msink,
		mLabels: prov.labels(LabelCluster.M(prov.config.clusterName)),
	}

	ml, err := memberlist.Create(prov.config.mlCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kfi.ErrInvalidCfg, err)
	}
	prov.ml = ml

	if len(prov.config.neighbours) > 0 {
		if _, err := ml.Join(prov.config.neighbours); err != nil {
			_ = ml.Shutdown()
			return nil, fmt.Errorf("%w: %w", ErrJoinCluster, err)
		}
	}

	prov.logger.Info("gossip node started", LabelNode.L(ml.LocalNode().Name), LabelNodeAddr.L(ml.LocalNode().Address()))
	return prov, nil
}

func (prov *Provider) Name() string {
	return ProviderName
}

func (prov *Provider) Version() uint32 {
	return ProviderVersion
}

// LocalMember describes this node.
func (prov *Provider) LocalMember() Member {
	return toMember(prov.ml.LocalNode())
}

// ClusterName is the name of the fabric served by the provider.
func (prov *Provider) ClusterName() string {
	return prov.config.clusterName
}

// GetInfo describes one configuration per alive member, filtered by
// hints. The local node is included.
func (prov *Provider) GetInfo(version uint32, hints *kfi.Info) (*kfi.Chain, error) {
	if kfi.MajorVersion(version) > kfi.MajorVersion(kfi.APIVersion) {
		return nil, fmt.Errorf(
			"%w: api version %d.%d is not supported",
			kfi.ErrNoData,
			kfi.MajorVersion(version),
			kfi.MinorVersion(version),
		)
	}

	prov.lk.Lock()
	released := prov.released
	prov.lk.Unlock()
	if released {
		return nil, ErrProviderClosed
	}

	local := prov.LocalMember()
	chain := kfi.NewChain()
	for _, member := range prov.members() {
		info := prov.describe(local, member)
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

func (prov *Provider) describe(local, member Member) *kfi.Info {
	caps := kfi.CapMsg | kfi.CapSend | kfi.CapRecv
	info := kfi.AllocInfo()
	info.Caps = caps
	info.AddrFormat = kfi.AddrFormatOf(member.Addr)
	info.SrcAddr = kfi.EncodeAddr(local.Addr)
	info.DestAddr = kfi.EncodeAddr(member.Addr)

	info.TxAttr.Caps = caps
	info.RxAttr.Caps = caps

	info.EpAttr.Protocol = kfi.ProtoGossip
	info.EpAttr.ProtocolVersion = uint32(prov.config.mlCfg.ProtocolVersion)
	info.EpAttr.MaxMsgSize = uint64(prov.config.mlCfg.UDPBufferSize)

	info.DomainAttr.Name = member.Name
	info.DomainAttr.Threading = kfi.ThreadSafe
	info.DomainAttr.ControlProgress = kfi.ProgressAuto
	info.DomainAttr.DataProgress = kfi.ProgressAuto
	info.DomainAttr.AVType = kfi.AVMap

	info.FabricAttr.Name = prov.config.clusterName
	return info
}

// OpenFabric returns a handle on the cluster. context is ignored.
func (prov *Provider) OpenFabric(attr *kfi.FabricAttr, _ any) (kfi.Fabric, error) {
	if attr.Name != prov.config.clusterName {
		return nil, fmt.Errorf("%w: this provider serves %q, not %q", kfi.ErrNoData, prov.config.clusterName, attr.Name)
	}

	prov.lk.Lock()
	defer prov.lk.Unlock()
	if prov.released {
		return nil, ErrProviderClosed
	}
	fab := &Fabric{prov: prov}
	prov.fabrics[fab] = struct{}{}
	return fab, nil
}

// Release leaves the cluster and stops the memberlist node once the
// registry lets the provider go. Returned chains are simply dropped.
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
	for fab := range prov.fabrics {
		fab.markClosed()
	}
	clear(prov.fabrics)
	prov.lk.Unlock()

	if err := prov.ml.Leave(prov.config.leaveTimeout); err != nil {
		prov.logger.Warn("failed to leave cluster gracefully", kfi.LabelError.L(err))
	}
	if err := prov.ml.Shutdown(); err != nil {
		prov.logger.Warn("failed to shutdown gossip node", kfi.LabelError.L(err))
	}
	prov.logger.Info("gossip node stopped")
}

func (prov *Provider) members() []Member {
	nodes := prov.ml.Members()
	members := make([]Member, 0, len(nodes))
	for _, node := range nodes {
		if node.State != memberlist.StateAlive {
			continue
		}
		members = append(members, toMember(node))
	}
	return members
}

func (prov *Provider) forget(fab *Fabric) {
	prov.lk.Lock()
	delete(prov.fabrics, fab)
	prov.lk.Unlock()
}

func (prov *Provider) labels(extra ...metrics.Label) []metrics.Label {
	labels := make([]metrics.Label, 0, len(prov.config.metricLabels)+len(extra))
	labels = append(labels, prov.config.metricLabels...)
	return append(labels, extra...)
}

func toMember(node *memberlist.Node) Member {
	addr, _ := netip.AddrFromSlice(node.Addr)
	return Member{
		Name:  node.Name,
		Addr:  netip.AddrPortFrom(addr.Unmap(), node.Port),
		State: stateName(node.State),
	}
}

func stateName(state memberlist.NodeStateType) string {
	switch state {
	case memberlist.StateAlive:
		return "alive"
	case memberlist.StateSuspect:
		return "suspect"
	case memberlist.StateDead:
		return "dead"
	case memberlist.StateLeft:
		return "left"
	default:
		return "unknown"
	}
}
