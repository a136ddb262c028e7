package kfi

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricProviderRegisteredCount   = []string{"kfi", "provider", "registered", "count"}
	MetricProviderReplacedCount     = []string{"kfi", "provider", "replaced", "count"}
	MetricProviderDiscardedCount    = []string{"kfi", "provider", "discarded", "count"}
	MetricProviderDeregisteredCount = []string{"kfi", "provider", "deregistered", "count"}
	MetricRegistryProviders         = []string{"kfi", "registry", "providers"}
	MetricGetInfoCount              = []string{"kfi", "getinfo", "count"}
	MetricGetInfoRecords            = []string{"kfi", "getinfo", "records"}
	MetricGetInfoErrorCount         = []string{"kfi", "getinfo", "error", "count"}
	MetricGetInfoProviderDuration   = []string{"kfi", "getinfo", "provider", "duration"}
	MetricFabricOpenCount           = []string{"kfi", "fabric", "open", "count"}
	MetricFabricOpenErrorCount      = []string{"kfi", "fabric", "open", "error", "count"}
)

// TelemetryLabel is a key shared by structured logs and metric labels.
type TelemetryLabel string

var (
	LabelError           TelemetryLabel = "error"
	LabelProvider        TelemetryLabel = "provider"
	LabelProviderVersion TelemetryLabel = "provider_version"
	LabelPrevVersion     TelemetryLabel = "previous_version"
	LabelFabricName      TelemetryLabel = "fabric_name"
	LabelRecords         TelemetryLabel = "records"
	LabelDuration        TelemetryLabel = "duration"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
