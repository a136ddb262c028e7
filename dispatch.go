package kfi

import "fmt"

// OpenFabric opens the fabric described by attr with the provider named
// `attr.ProvName`. Both `attr.ProvName` and `attr.Name` are required.
//
// The provider's answer, fabric or error, is returned as is.
func (reg *Registry) OpenFabric(attr *FabricAttr, context any) (Fabric, error) {
	if attr == nil || attr.ProvName == "" || attr.Name == "" {
		return nil, fmt.Errorf("%w: fabric attributes need a name and a provider name", ErrInvalidArgument)
	}

	mLabels := reg.labels(LabelProvider.M(attr.ProvName))

	reg.lk.RLock()
	defer reg.lk.RUnlock()
	if reg.closed {
		return nil, ErrRegistryClosed
	}

	ent := reg.find(attr.ProvName)
	if ent == nil {
		reg.msink.IncrCounterWithLabels(MetricFabricOpenErrorCount, 1.0, append(mLabels, LabelError.M("not_found")))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, attr.ProvName)
	}
	opener, ok := ent.provider.(FabricOpener)
	if !ok {
		reg.msink.IncrCounterWithLabels(MetricFabricOpenErrorCount, 1.0, append(mLabels, LabelError.M("not_supported")))
		return nil, fmt.Errorf("%w: %s cannot open fabrics", ErrNotFound, attr.ProvName)
	}

	fabric, err := opener.OpenFabric(attr, context)
	if err != nil {
		reg.logger.Debug(
			"provider failed to open fabric",
			LabelProvider.L(attr.ProvName),
			LabelFabricName.L(attr.Name),
			LabelError.L(err),
		)
		reg.msink.IncrCounterWithLabels(MetricFabricOpenErrorCount, 1.0, append(mLabels, LabelError.M("provider")))
		return fabric, err
	}

	reg.msink.IncrCounterWithLabels(MetricFabricOpenCount, 1.0, mLabels)
	return fabric, nil
}
