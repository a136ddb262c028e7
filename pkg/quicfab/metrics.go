package quicfab

import "github.com/raskyld/kfi"

var (
	MetricEndpointOpenCount    = []string{"kfi", "quic", "endpoint", "open", "count"}
	MetricUDPBufferSizeBytes   = []string{"kfi", "quic", "udp", "buffer", "bytes"}
	MetricConnEstCount         = []string{"kfi", "quic", "conn", "est", "count"}
	MetricConnErrorCount       = []string{"kfi", "quic", "conn", "error", "count"}
	MetricFlowEstOutCount      = []string{"kfi", "quic", "flow", "est", "out", "count"}
	MetricFlowEstOutErrorCount = []string{"kfi", "quic", "flow", "est", "out", "error", "count"}
	MetricFlowEstInCount       = []string{"kfi", "quic", "flow", "est", "in", "count"}
)

var (
	LabelPeerAddr   kfi.TelemetryLabel = "peer_addr"
	LabelPeerName   kfi.TelemetryLabel = "peer_name"
	LabelLocalAddr  kfi.TelemetryLabel = "local_addr"
	LabelFabricID   kfi.TelemetryLabel = "fabric_id"
	LabelBufferSize kfi.TelemetryLabel = "bytes"
)
