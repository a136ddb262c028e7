package kfi

import "io"

// Provider is the identity every fabric provider exposes to the
// registry. Providers are keyed by `Name`; for a given name the highest
// `Version` wins.
//
// What a provider can do is expressed through the optional
// `Discoverer`, `FabricOpener` and `Releaser` interfaces. A provider
// implementing none of them can register but is never queried.
//
// The dynamic type of a Provider MUST be comparable (typically a
// pointer): `Deregister` matches descriptors by identity.
type Provider interface {
	Name() string
	Version() uint32
}

// Discoverer answers capability discovery queries.
//
// Implementations MUST return only complete records (see
// `Info.Validate`), or an error. A nil chain with a nil error means
// "nothing matches".
type Discoverer interface {
	GetInfo(version uint32, hints *Info) (*Chain, error)
}

// FabricOpener creates fabric handles from fully resolved attributes.
type FabricOpener interface {
	OpenFabric(attr *FabricAttr, context any) (Fabric, error)
}

// Releaser is the provider release hook.
//
// The registry calls `Release(nil)` once when it stops holding the
// provider (discarded, superseded, deregistered or torn down), and
// `Release(chain)` to hand back a discovery result it refused.
type Releaser interface {
	Release(chain *Chain)
}

// Fabric is an open fabric handle. Its concrete type is provider
// specific.
type Fabric interface {
	Name() string
	io.Closer
}

// ProviderInfo is a snapshot of a registry entry.
type ProviderInfo struct {
	Name        string `json:"name" yaml:"name"`
	Version     uint32 `json:"version" yaml:"version"`
	CanDiscover bool   `json:"discover" yaml:"discover"`
	CanOpen     bool   `json:"fabric" yaml:"fabric"`
}

func describe(p Provider) ProviderInfo {
	_, canDiscover := p.(Discoverer)
	_, canOpen := p.(FabricOpener)
	return ProviderInfo{
		Name:        p.Name(),
		Version:     p.Version(),
		CanDiscover: canDiscover,
		CanOpen:     canOpen,
	}
}

func releaseProvider(p Provider, chain *Chain) {
	if rel, ok := p.(Releaser); ok {
		rel.Release(chain)
	}
}
