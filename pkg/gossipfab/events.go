package gossipfab

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/memberlist"
	"github.com/raskyld/kfi"
)

var (
	MetricMemberJoinCount   = []string{"kfi", "gossip", "member", "join", "count"}
	MetricMemberLeaveCount  = []string{"kfi", "gossip", "member", "leave", "count"}
	MetricMemberUpdateCount = []string{"kfi", "gossip", "member", "update", "count"}
)

var (
	LabelNode     kfi.TelemetryLabel = "node"
	LabelNodeAddr kfi.TelemetryLabel = "node_addr"
	LabelCluster  kfi.TelemetryLabel = "cluster"
)

// events receives membership changes from memberlist.
type events struct {
	logger  *slog.Logger
	msink   metrics.MetricSink
	mLabels []metrics.Label
}

var _ memberlist.EventDelegate = (*events)(nil)

func (ev *events) NotifyJoin(node *memberlist.Node) {
	withLogNode(ev.logger, node).Info("peer joined cluster")
	ev.msink.IncrCounterWithLabels(MetricMemberJoinCount, 1.0, ev.mLabels)
}

func (ev *events) NotifyLeave(node *memberlist.Node) {
	withLogNode(ev.logger, node).Info("peer left cluster")
	ev.msink.IncrCounterWithLabels(MetricMemberLeaveCount, 1.0, ev.mLabels)
}

func (ev *events) NotifyUpdate(node *memberlist.Node) {
	withLogNode(ev.logger, node).Info("peer updated")
	ev.msink.IncrCounterWithLabels(MetricMemberUpdateCount, 1.0, ev.mLabels)
}

func withLogNode(logger *slog.Logger, node *memberlist.Node) *slog.Logger {
	return logger.With(
		LabelNode.L(node.Name),
		LabelNodeAddr.L(node.Address()),
	)
}
