package quicfab

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/hashicorp/go-metrics"
)

const (
	DefaultPort           = 6174
	DefaultFabricName     = "quic"
	defaultUDPBufferSize  = 1 << 21
	defaultHintMaxFlows   = 10000
	defaultDialTimeout    = 30 * time.Second
	defaultMaxIdleTimeout = time.Minute
	alpn                  = "kfi"
)

type config struct {
	listenOn          []netip.AddrPort
	tlsConfig         *tls.Config
	fabricName        string
	logHandler        slog.Handler
	msink             metrics.MetricSink
	metricLabels      []metrics.Label
	dialTimeout       time.Duration
	hintMaxFlows      int64
	bufferSize        int
	enforceBufferSize bool
	resolver          HostnameResolver
}

// Option to pass to `New`.
type Option func(*config) error

// WithListenOn adds an address the provider advertises during discovery.
// It can be repeated, one `kfi.Info` is produced per address.
func WithListenOn(addr string, port int) Option {
	return func(c *config) error {
		ip, err := netip.ParseAddr(addr)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAddr, err)
		}
		if port < 0 || port > 0xFFFF {
			return fmt.Errorf("%w: port %d", ErrInvalidAddr, port)
		}
		c.listenOn = append(c.listenOn, netip.AddrPortFrom(ip, uint16(port)))
		return nil
	}
}

// WithTLSConfig sets the `tls.Config` used by both ends of every
// connection. You should enable mTLS (`tls.RequireAndVerifyClientCert`)
// since peer names are resolved from certificates.
func WithTLSConfig(tlsConf *tls.Config) Option {
	return func(c *config) error {
		if tlsConf == nil {
			return ErrNoTLSConfig
		}
		c.tlsConfig = tlsConf.Clone()
		if len(c.tlsConfig.NextProtos) == 0 {
			c.tlsConfig.NextProtos = []string{alpn}
		}
		return nil
	}
}

// WithFabricName sets the name of the fabric served by the provider.
func WithFabricName(name string) Option {
	return func(c *config) error {
		if name == "" {
			return fmt.Errorf("quicfab: empty fabric name")
		}
		c.fabricName = name
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

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the provider.
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
// provider.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(c *config) error {
		c.metricLabels = labels
		return nil
	}
}

// WithDialTimeout controls how much time we are willing to wait for a
// remote node to answer.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout == 0 {
			timeout = defaultDialTimeout
		}
		c.dialTimeout = timeout
		return nil
	}
}

// WithHintMaxFlows gives an indication of the maximum number of flows you
// intend to open concurrently with any peer.
func WithHintMaxFlows(hint int64) Option {
	return func(c *config) error {
		if hint == 0 {
			hint = defaultHintMaxFlows
		}
		c.hintMaxFlows = hint
		return nil
	}
}

// WithBufferSize sets the requested UDP kernel buffer size. When enforce
// is false, the size is halved until the kernel accepts it.
func WithBufferSize(size int, enforce bool) Option {
	return func(c *config) error {
		if size <= 0 {
			size = defaultUDPBufferSize
		}
		c.bufferSize = size
		c.enforceBufferSize = enforce
		return nil
	}
}

// WithHostnameResolver overrides `CommonNameResolver`.
func WithHostnameResolver(resolver HostnameResolver) Option {
	return func(c *config) error {
		if resolver == nil {
			resolver = CommonNameResolver
		}
		c.resolver = resolver
		return nil
	}
}
