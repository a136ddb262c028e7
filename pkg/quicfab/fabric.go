package quicfab

import (
	"errors"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/google/uuid"
	"github.com/raskyld/kfi"
)

var _ kfi.Fabric = (*Fabric)(nil)

// Fabric is a handle returned by `Provider.OpenFabric`. It owns the
// endpoints opened through it.
type Fabric struct {
	prov   *Provider
	id     uuid.UUID
	name   string
	logger *slog.Logger

	lk        sync.Mutex
	endpoints map[*Endpoint]struct{}
	closed    bool
}

func newFabric(prov *Provider, id uuid.UUID) *Fabric {
	return &Fabric{
		prov:      prov,
		id:        id,
		name:      prov.config.fabricName,
		logger:    prov.logger.With(kfi.LabelFabricName.L(prov.config.fabricName), LabelFabricID.L(id.String())),
		endpoints: make(map[*Endpoint]struct{}),
	}
}

func (fab *Fabric) Name() string {
	return fab.name
}

// ID uniquely identifies this handle.
func (fab *Fabric) ID() uuid.UUID {
	return fab.id
}

// Open binds an endpoint on addr. Use port 0 to let the kernel pick one,
// `Endpoint.Addr` then returns the actual address.
func (fab *Fabric) Open(addr netip.AddrPort) (*Endpoint, error) {
	fab.lk.Lock()
	defer fab.lk.Unlock()
	if fab.closed {
		return nil, ErrFabricClosed
	}

	ep, err := openEndpoint(fab, addr)
	if err != nil {
		return nil, err
	}
	fab.endpoints[ep] = struct{}{}
	return ep, nil
}

// Endpoints returns the endpoints currently open.
func (fab *Fabric) Endpoints() []*Endpoint {
	fab.lk.Lock()
	defer fab.lk.Unlock()
	eps := make([]*Endpoint, 0, len(fab.endpoints))
	for ep := range fab.endpoints {
		eps = append(eps, ep)
	}
	return eps
}

// Close closes every endpoint of the fabric.
func (fab *Fabric) Close() error {
	fab.lk.Lock()
	if fab.closed {
		fab.lk.Unlock()
		return nil
	}
	fab.closed = true
	eps := make([]*Endpoint, 0, len(fab.endpoints))
	for ep := range fab.endpoints {
		eps = append(eps, ep)
	}
	fab.lk.Unlock()

	var errs []error
	for _, ep := range eps {
		errs = append(errs, ep.Close())
	}
	fab.prov.forget(fab)
	fab.logger.Debug("fabric closed")
	return errors.Join(errs...)
}

func (fab *Fabric) forget(ep *Endpoint) {
	fab.lk.Lock()
	delete(fab.endpoints, ep)
	fab.lk.Unlock()
}
