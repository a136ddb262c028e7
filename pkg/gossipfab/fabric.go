package gossipfab

import (
	"fmt"
	"sync"

	"github.com/raskyld/kfi"
)

var _ kfi.Fabric = (*Fabric)(nil)

// Fabric is a handle on the cluster joined by the provider. Closing it
// does not leave the cluster, releasing the provider does.
type Fabric struct {
	prov *Provider

	lk     sync.Mutex
	closed bool
}

func (fab *Fabric) Name() string {
	return fab.prov.config.clusterName
}

// Members lists the alive members, the local node included.
func (fab *Fabric) Members() ([]Member, error) {
	if fab.isClosed() {
		return nil, ErrFabricClosed
	}
	return fab.prov.members(), nil
}

// Local describes this node.
func (fab *Fabric) Local() Member {
	return fab.prov.LocalMember()
}

// Join contacts the given nodes ("host:port") and returns how many
// answered.
func (fab *Fabric) Join(neighbours ...string) (int, error) {
	if fab.isClosed() {
		return 0, ErrFabricClosed
	}
	n, err := fab.prov.ml.Join(neighbours)
	if err != nil && n == 0 {
		return n, fmt.Errorf("%w: %w", ErrJoinCluster, err)
	}
	return n, nil
}

func (fab *Fabric) Close() error {
	if fab.markClosed() {
		fab.prov.forget(fab)
	}
	return nil
}

// markClosed reports whether the call closed the fabric.
func (fab *Fabric) markClosed() bool {
	fab.lk.Lock()
	defer fab.lk.Unlock()
	if fab.closed {
		return false
	}
	fab.closed = true
	return true
}

func (fab *Fabric) isClosed() bool {
	fab.lk.Lock()
	defer fab.lk.Unlock()
	return fab.closed
}
