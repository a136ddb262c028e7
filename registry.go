package kfi

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/hashicorp/go-metrics"
)

// Registry maps provider names to the single active provider for that
// name. Entries keep their registration order, which is also the order
// in which `GetInfo` queries providers.
//
// A Registry is safe for concurrent use. Discovery and dispatch hold the
// read lock while they call into providers, so a provider is never
// released while one of its entry points runs; registrations wait for
// in-flight queries. Provider entry points MUST NOT call back into the
// registry they are registered in. Release hooks run after the lock is
// dropped.
type Registry struct {
	config config
	logger *slog.Logger
	msink  metrics.MetricSink

	lk      sync.RWMutex
	entries []*entry
	closed  bool
}

type entry struct {
	name     string
	version  uint32
	provider Provider
}

// New creates an empty registry.
func New(opts ...Option) (*Registry, error) {
	reg := &Registry{}
	for _, opt := range opts {
		if err := opt(&reg.config); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
		}
	}

	if reg.config.logHandler != nil {
		reg.logger = slog.New(reg.config.logHandler)
	} else {
		reg.logger = slog.Default()
	}

	if reg.config.msink == nil {
		reg.msink = metrics.Default()
	} else {
		reg.msink = reg.config.msink
	}

	return reg, nil
}

// Register makes p available under `p.Name()`.
//
// If a provider with the same name is already registered, the highest
// version wins and the loser is released. On equal versions the provider
// already registered is kept. Losing the arbitration is not an error:
// Register returns nil and p is released.
//
// When Register fails, p has been released as well.
func (reg *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("%w: nil provider", ErrInvalidArgument)
	}

	name := p.Name()
	if name == "" {
		releaseProvider(p, nil)
		return fmt.Errorf("%w: provider has no name", ErrInvalidArgument)
	}
	if !reflect.TypeOf(p).Comparable() {
		releaseProvider(p, nil)
		return fmt.Errorf("%w: provider %s is not comparable", ErrInvalidArgument, name)
	}
	version := p.Version()
	logger := reg.logger.With(LabelProvider.L(name), LabelProviderVersion.L(version))
	mLabels := reg.labels(LabelProvider.M(name))

	reg.lk.Lock()
	if reg.closed {
		reg.lk.Unlock()
		releaseProvider(p, nil)
		return ErrRegistryClosed
	}

	ent := reg.find(name)
	if ent == nil {
		reg.entries = append(reg.entries, &entry{name: name, version: version, provider: p})
		count := len(reg.entries)
		reg.lk.Unlock()

		logger.Debug("provider registered")
		reg.msink.IncrCounterWithLabels(MetricProviderRegisteredCount, 1.0, mLabels)
		reg.msink.SetGaugeWithLabels(MetricRegistryProviders, float32(count), reg.config.metricLabels)
		return nil
	}

	existing, existingVersion := ent.provider, ent.version
	if existingVersion >= version {
		reg.lk.Unlock()

		logger.Info(
			"a newer or identical provider was already loaded; ignoring this one",
			LabelPrevVersion.L(existingVersion),
		)
		releaseProvider(p, nil)
		reg.msink.IncrCounterWithLabels(MetricProviderDiscardedCount, 1.0, mLabels)
		return nil
	}

	ent.provider = p
	ent.version = version
	reg.lk.Unlock()

	logger.Info(
		"an older provider was already loaded; keeping this one and ignoring the older one",
		LabelPrevVersion.L(existingVersion),
	)
	releaseProvider(existing, nil)
	reg.msink.IncrCounterWithLabels(MetricProviderReplacedCount, 1.0, mLabels)
	return nil
}

// Deregister removes p if it is the provider currently registered under
// its name, and releases it. Anything else is a no-op.
func (reg *Registry) Deregister(p Provider) {
	if p == nil || !reflect.TypeOf(p).Comparable() {
		return
	}
	name := p.Name()

	reg.lk.Lock()
	idx := -1
	for i, ent := range reg.entries {
		if ent.name == name {
			if ent.provider == p {
				idx = i
			}
			break
		}
	}
	if idx < 0 {
		reg.lk.Unlock()
		return
	}
	reg.entries = append(reg.entries[:idx], reg.entries[idx+1:]...)
	count := len(reg.entries)
	reg.lk.Unlock()

	reg.logger.Debug("provider deregistered", LabelProvider.L(name))
	releaseProvider(p, nil)
	reg.msink.IncrCounterWithLabels(MetricProviderDeregisteredCount, 1.0, reg.labels(LabelProvider.M(name)))
	reg.msink.SetGaugeWithLabels(MetricRegistryProviders, float32(count), reg.config.metricLabels)
}

// Lookup returns the provider registered under name.
func (reg *Registry) Lookup(name string) (Provider, bool) {
	reg.lk.RLock()
	defer reg.lk.RUnlock()
	ent := reg.find(name)
	if ent == nil {
		return nil, false
	}
	return ent.provider, true
}

// Providers describes the registered providers in registration order.
func (reg *Registry) Providers() []ProviderInfo {
	reg.lk.RLock()
	defer reg.lk.RUnlock()
	infos := make([]ProviderInfo, 0, len(reg.entries))
	for _, ent := range reg.entries {
		info := describe(ent.provider)
		info.Version = ent.version
		infos = append(infos, info)
	}
	return infos
}

// Len returns the number of registered providers.
func (reg *Registry) Len() int {
	reg.lk.RLock()
	defer reg.lk.RUnlock()
	return len(reg.entries)
}

// Close releases every registered provider, in registration order, and
// empties the registry. Later registrations are refused. Calling Close
// more than once is a no-op.
func (reg *Registry) Close() error {
	reg.lk.Lock()
	if reg.closed {
		reg.lk.Unlock()
		return nil
	}
	reg.closed = true
	entries := reg.entries
	reg.entries = nil
	reg.lk.Unlock()

	reg.logger.Info("shutdown: releasing providers", LabelRecords.L(len(entries)))
	for _, ent := range entries {
		releaseProvider(ent.provider, nil)
	}
	reg.msink.SetGaugeWithLabels(MetricRegistryProviders, 0, reg.config.metricLabels)
	return nil
}

// not thread safe!
// must be called by an holder of the lock
func (reg *Registry) find(name string) *entry {
	for _, ent := range reg.entries {
		if ent.name == name {
			return ent
		}
	}
	return nil
}

func (reg *Registry) labels(extra ...metrics.Label) []metrics.Label {
	labels := make([]metrics.Label, 0, len(reg.config.metricLabels)+len(extra))
	labels = append(labels, reg.config.metricLabels...)
	return append(labels, extra...)
}
