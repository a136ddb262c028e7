package gossipfab

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	leg_metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/memberlist"
)

const (
	DefaultClusterName  = "gossip"
	defaultLeaveTimeout = 2 * time.Second
)

var (
	ErrJoinCluster    = errors.New("gossipfab: could not join cluster")
	ErrFabricClosed   = errors.New("gossipfab: fabric closed")
	ErrProviderClosed = errors.New("gossipfab: provider released")
	ErrInvalidAddr    = errors.New("gossipfab: the IP you provided is invalid")
)

type config struct {
	mlCfg        *memberlist.Config
	clusterName  string
	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
	neighbours   []string
	leaveTimeout time.Duration
}

// Option to pass to `New`.
type Option func(*config) error

// WithListenOn specifies which interface the gossip protocol listens on.
// Port 0 lets the kernel choose.
func WithListenOn(addr string, port int) Option {
	return func(c *config) error {
		if _, err := netip.ParseAddr(addr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAddr, err)
		}
		c.mlCfg.BindAddr = addr
		c.mlCfg.BindPort = port
		c.mlCfg.AdvertisePort = port
		return nil
	}
}

// WithNodeName specifies which name is exposed to other peers when
// joining the cluster. For a well-behaving cluster, the name MUST be
// unique.
func WithNodeName(name string) Option {
	return func(c *config) error {
		if name != "" {
			c.mlCfg.Name = name
		}
		return nil
	}
}

// WithClusterName sets the fabric name advertised in discovery.
func WithClusterName(name string) Option {
	return func(c *config) error {
		if name == "" {
			return fmt.Errorf("gossipfab: empty cluster name")
		}
		c.clusterName = name
		return nil
	}
}

// WithNeighbours controls which peers are tried initially to join the
// cluster.
func WithNeighbours(neighbours []string) Option {
	return func(c *config) error {
		c.neighbours = neighbours
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(c *config) error {
		c.logHandler = handler
		return nil
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted
// by the provider.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the
// provider and by memberlist.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels

		// memberlist still reports through armon/go-metrics.
		c.mlCfg.MetricLabels = make([]leg_metrics.Label, len(labels))
		for i, label := range labels {
			c.mlCfg.MetricLabels[i] = leg_metrics.Label{
				Name:  label.Name,
				Value: label.Value,
			}
		}
		return nil
	}
}

// WithLeaveTimeout controls how long `Release` waits for the leave
// message to propagate.
func WithLeaveTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			timeout = defaultLeaveTimeout
		}
		c.leaveTimeout = timeout
		return nil
	}
}

// WithLocalNetwork tunes the failure detector for a loopback or local
// network: faster probes and shorter timeouts than the LAN defaults.
func WithLocalNetwork() Option {
	return func(c *config) error {
		local := memberlist.DefaultLocalConfig()
		c.mlCfg.TCPTimeout = local.TCPTimeout
		c.mlCfg.IndirectChecks = local.IndirectChecks
		c.mlCfg.RetransmitMult = local.RetransmitMult
		c.mlCfg.SuspicionMult = local.SuspicionMult
		c.mlCfg.PushPullInterval = local.PushPullInterval
		c.mlCfg.ProbeTimeout = local.ProbeTimeout
		c.mlCfg.ProbeInterval = local.ProbeInterval
		c.mlCfg.GossipInterval = local.GossipInterval
		c.mlCfg.GossipToTheDeadTime = local.GossipToTheDeadTime
		return nil
	}
}
