package kfi

import (
	"time"

	"github.com/hashicorp/go-metrics"
)

// GetInfo asks every registered provider able to discover fabrics which
// configurations match hints, and concatenates their answers.
//
// Providers are queried in registration order and their records keep
// the order they were returned in. When `hints.FabricAttr.ProvName` is
// set, only that provider is queried. Every returned record has its
// `FabricAttr.ProvName` and `FabricAttr.ProvVersion` set to the provider
// that produced it.
//
// A failing provider is logged and skipped. GetInfo only fails when no
// record was found at all: it then returns the error of the last failing
// provider, or `ErrNoData`.
//
// The returned chain belongs to the caller, who releases it with
// `FreeInfo`.
func (reg *Registry) GetInfo(version uint32, hints *Info) (*Chain, error) {
	var provName string
	if hints != nil && hints.FabricAttr != nil {
		provName = hints.FabricAttr.ProvName
	}

	result := &Chain{}
	var lastErr error
	var rejected []rejectedChain

	reg.lk.RLock()
	if reg.closed {
		reg.lk.RUnlock()
		return nil, ErrRegistryClosed
	}
	for _, ent := range reg.entries {
		disc, ok := ent.provider.(Discoverer)
		if !ok {
			continue
		}
		if provName != "" && provName != ent.name {
			continue
		}

		mLabels := reg.labels(LabelProvider.M(ent.name))
		start := time.Now()
		chain, err := disc.GetInfo(version, hints)
		reg.msink.AddSampleWithLabels(
			MetricGetInfoProviderDuration,
			float32(time.Since(start).Seconds()*1e3),
			mLabels,
		)
		if err != nil {
			reg.logger.Warn(
				"provider failed to answer discovery",
				LabelProvider.L(ent.name),
				LabelError.L(err),
			)
			reg.countError(mLabels, "provider")
			lastErr = err
			continue
		}

		if err := validateChain(chain); err != nil {
			reg.logger.Error(
				"provider returned an incomplete info record, discarding its answer",
				LabelProvider.L(ent.name),
			)
			reg.countError(mLabels, "incomplete_info")
			rejected = append(rejected, rejectedChain{provider: ent.provider, chain: chain})
			lastErr = err
			continue
		}

		for _, info := range chain.All() {
			info.FabricAttr.ProvName = ent.name
			info.FabricAttr.ProvVersion = ent.version
		}
		result.Append(chain)
	}
	reg.lk.RUnlock()

	for _, rej := range rejected {
		releaseProvider(rej.provider, rej.chain)
	}

	reg.msink.IncrCounterWithLabels(MetricGetInfoCount, 1.0, reg.config.metricLabels)
	if result.Len() > 0 {
		reg.msink.IncrCounterWithLabels(MetricGetInfoRecords, float32(result.Len()), reg.config.metricLabels)
		return result, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoData
}

type rejectedChain struct {
	provider Provider
	chain    *Chain
}

func validateChain(chain *Chain) error {
	for _, info := range chain.All() {
		if err := info.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (reg *Registry) countError(base []metrics.Label, reason string) {
	reg.msink.IncrCounterWithLabels(
		MetricGetInfoErrorCount,
		1.0,
		append(base, LabelError.M(reason)),
	)
}
