package cli

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/raskyld/kfi"
	"github.com/raskyld/kfi/pkg/gossipfab"
	"github.com/raskyld/kfi/pkg/quicfab"
)

var (
	ErrMissingTLS    = errors.New("kfi-info: quic provider needs --quic.cert and --quic.key")
	ErrBadCA         = errors.New("kfi-info: no certificate found in CA bundle")
	ErrUnknownOutput = errors.New("kfi-info: unknown output format")
	ErrBadListenAddr = errors.New("kfi-info: listen address must be ip:port")
)

// Config is what viper decodes from flags, `KFI_*` environment variables
// and the optional config file.
type Config struct {
	LogLevel string `mapstructure:"log-level"`
	Output   string `mapstructure:"output"`

	Provider string `mapstructure:"provider"`
	Fabric   string `mapstructure:"fabric"`
	Domain   string `mapstructure:"domain"`
	Caps     string `mapstructure:"caps"`

	QUIC   QUICConfig   `mapstructure:"quic"`
	Gossip GossipConfig `mapstructure:"gossip"`
}

type QUICConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Listen  []string `mapstructure:"listen"`
	Fabric  string   `mapstructure:"fabric"`
	Cert    string   `mapstructure:"cert"`
	Key     string   `mapstructure:"key"`
	CA      string   `mapstructure:"ca"`
}

type GossipConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Listen       string        `mapstructure:"listen"`
	Name         string        `mapstructure:"name"`
	Cluster      string        `mapstructure:"cluster"`
	Neighbours   []string      `mapstructure:"neighbours"`
	Local        bool          `mapstructure:"local"`
	LeaveTimeout time.Duration `mapstructure:"leave-timeout"`
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("kfi-info: log level: %w", err)
	}
	return level, nil
}

// hints turns the filter flags into discovery hints. No filter means nil
// hints.
func (cfg *Config) hints() (*kfi.Info, error) {
	caps, err := kfi.ParseCaps(cfg.Caps)
	if err != nil {
		return nil, err
	}
	if caps == 0 && cfg.Provider == "" && cfg.Fabric == "" && cfg.Domain == "" {
		return nil, nil
	}

	hints := &kfi.Info{Caps: caps}
	if cfg.Provider != "" || cfg.Fabric != "" {
		hints.FabricAttr = &kfi.FabricAttr{
			Name:     cfg.Fabric,
			ProvName: cfg.Provider,
		}
	}
	if cfg.Domain != "" {
		hints.DomainAttr = &kfi.DomainAttr{Name: cfg.Domain}
	}
	return hints, nil
}

// buildRegistry registers every enabled provider. The caller owns the
// returned registry and must `Close` it.
func (cfg *Config) buildRegistry(handler slog.Handler) (*kfi.Registry, error) {
	reg, err := kfi.New(kfi.WithLog(handler))
	if err != nil {
		return nil, err
	}

	if cfg.QUIC.Enabled {
		prov, err := cfg.QUIC.provider(handler)
		if err != nil {
			_ = reg.Close()
			return nil, err
		}
		if err := reg.Register(prov); err != nil {
			prov.Release(nil)
			_ = reg.Close()
			return nil, err
		}
	}

	if cfg.Gossip.Enabled {
		prov, err := cfg.Gossip.provider(handler)
		if err != nil {
			_ = reg.Close()
			return nil, err
		}
		if err := reg.Register(prov); err != nil {
			prov.Release(nil)
			_ = reg.Close()
			return nil, err
		}
	}

	return reg, nil
}

func (qc *QUICConfig) provider(handler slog.Handler) (*quicfab.Provider, error) {
	tlsConf, err := qc.tlsConfig()
	if err != nil {
		return nil, err
	}

	opts := []quicfab.Option{
		quicfab.WithTLSConfig(tlsConf),
		quicfab.WithLog(handler),
	}
	if qc.Fabric != "" {
		opts = append(opts, quicfab.WithFabricName(qc.Fabric))
	}
	for _, listen := range qc.Listen {
		ap, err := parseListen(listen)
		if err != nil {
			return nil, err
		}
		opts = append(opts, quicfab.WithListenOn(ap.Addr().String(), int(ap.Port())))
	}
	return quicfab.New(opts...)
}

func (qc *QUICConfig) tlsConfig() (*tls.Config, error) {
	if qc.Cert == "" || qc.Key == "" {
		return nil, ErrMissingTLS
	}
	cert, err := tls.LoadX509KeyPair(qc.Cert, qc.Key)
	if err != nil {
		return nil, fmt.Errorf("kfi-info: loading key pair: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if qc.CA != "" {
		pem, err := os.ReadFile(qc.CA)
		if err != nil {
			return nil, fmt.Errorf("kfi-info: reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, ErrBadCA
		}
		tlsConf.RootCAs = pool
		tlsConf.ClientCAs = pool
		tlsConf.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsConf, nil
}

func (gc *GossipConfig) provider(handler slog.Handler) (*gossipfab.Provider, error) {
	ap, err := parseListen(gc.Listen)
	if err != nil {
		return nil, err
	}

	opts := []gossipfab.Option{
		gossipfab.WithListenOn(ap.Addr().String(), int(ap.Port())),
		gossipfab.WithNodeName(gc.Name),
		gossipfab.WithNeighbours(gc.Neighbours),
		gossipfab.WithLeaveTimeout(gc.LeaveTimeout),
		gossipfab.WithLog(handler),
	}
	if gc.Cluster != "" {
		opts = append(opts, gossipfab.WithClusterName(gc.Cluster))
	}
	if gc.Local {
		opts = append(opts, gossipfab.WithLocalNetwork())
	}
	return gossipfab.New(opts...)
}

func parseListen(s string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(s))
	if err != nil {
		return ap, fmt.Errorf("%w: %w", ErrBadListenAddr, err)
	}
	return ap, nil
}
