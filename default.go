package kfi

import "sync"

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry used by the package level
// functions. It logs with `slog.Default()` and emits metrics through
// `metrics.Default()`.
func Default() *Registry {
	defaultOnce.Do(func() {
		// New cannot fail without options.
		defaultRegistry, _ = New()
	})
	return defaultRegistry
}

// Register adds p to the default registry.
// This is typically called from provider packages' init() functions.
func Register(p Provider) error {
	return Default().Register(p)
}

// MustRegister is like `Register` but panics on error.
func MustRegister(p Provider) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// Deregister removes p from the default registry.
func Deregister(p Provider) {
	Default().Deregister(p)
}

// GetInfo queries the default registry, see `Registry.GetInfo`.
func GetInfo(version uint32, hints *Info) (*Chain, error) {
	return Default().GetInfo(version, hints)
}

// OpenFabric dispatches through the default registry, see
// `Registry.OpenFabric`.
func OpenFabric(attr *FabricAttr, context any) (Fabric, error) {
	return Default().OpenFabric(attr, context)
}

// Shutdown releases every provider of the default registry. It is meant
// to be called once, when the process exits.
func Shutdown() error {
	return Default().Close()
}
