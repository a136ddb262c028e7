// Package cli implements the `kfi-info` command: it builds a registry
// from the enabled providers, runs discovery and prints what it found.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raskyld/kfi"
	"github.com/raskyld/kfi/pkg/gossipfab"
	"github.com/raskyld/kfi/pkg/quicfab"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "KFI"

var version = "dev"

// app carries the state shared by the root command and its children.
type app struct {
	v       *viper.Viper
	cfg     Config
	handler slog.Handler
}

// NewRootCommand returns a fresh command tree. Every call gets its own
// viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "kfi-info",
		Short: "Discover the fabrics served by the registered providers",
		Long: `kfi-info registers the enabled providers in a fresh registry, runs
discovery and prints every matching configuration.

Every flag can also be set from the environment with the KFI_ prefix
(dots and dashes become underscores, e.g. KFI_GOSSIP_ENABLED=true) or
from a config file passed with --config.

Examples:
  # Describe the local gossip node
  kfi-info --gossip.enabled --gossip.listen 127.0.0.1:7946

  # Only QUIC configurations able to send messages, as JSON
  kfi-info --quic.enabled --quic.cert node.crt --quic.key node.key \
    --provider quic --caps "msg|send" -o json`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
		RunE:              a.runInfo,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.StringP("output", "o", "yaml", "output format: yaml or json")

	flags.String("quic.fabric", quicfab.DefaultFabricName, "fabric name served by the quic provider")
	flags.StringSlice("quic.listen", nil, "quic listen address, ip:port (repeatable)")
	flags.Bool("quic.enabled", false, "register the quic provider")
	flags.String("quic.cert", "", "PEM certificate of this node")
	flags.String("quic.key", "", "PEM private key of this node")
	flags.String("quic.ca", "", "PEM CA bundle, enables mutual TLS")

	flags.Bool("gossip.enabled", false, "register the gossip provider")
	flags.String("gossip.listen", "0.0.0.0:7946", "gossip listen address, ip:port")
	flags.String("gossip.name", "", "node name, unique in the cluster (default kfi-<uuid>)")
	flags.String("gossip.cluster", gossipfab.DefaultClusterName, "fabric name served by the gossip provider")
	flags.StringSlice("gossip.neighbours", nil, "nodes to join, host:port (repeatable)")
	flags.Bool("gossip.local", false, "tune failure detection for a local network")
	flags.Duration("gossip.leave-timeout", 0, "how long to wait for the leave message to propagate")

	infoFlags := rootCmd.Flags()
	infoFlags.String("provider", "", "only query this provider")
	infoFlags.String("fabric", "", "only keep configurations of this fabric")
	infoFlags.String("domain", "", "only keep configurations of this domain")
	infoFlags.String("caps", "", `required capabilities, e.g. "msg|send|recv"`)

	rootCmd.AddCommand(newProvidersCommand(a))
	return rootCmd
}

// load merges flags, environment and config file into `a.cfg`.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("kfi-info: reading config: %w", err)
			}
		}
	}

	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("kfi-info: decoding config: %w", err)
	}

	level, err := parseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.handler = slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return nil
}

func (a *app) runInfo(cmd *cobra.Command, _ []string) error {
	hints, err := a.cfg.hints()
	if err != nil {
		return err
	}

	reg, err := a.cfg.buildRegistry(a.handler)
	if err != nil {
		return err
	}
	defer reg.Close()

	chain, err := reg.GetInfo(kfi.APIVersion, hints)
	if err != nil {
		return err
	}
	defer kfi.FreeInfo(chain)

	return render(cmd.OutOrStdout(), a.cfg.Output, viewInfos(chain))
}

// Execute runs the command tree on the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}
