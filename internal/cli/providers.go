package cli

import (
	"github.com/spf13/cobra"
)

func newProvidersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the registered providers",
		Long: `List the providers registered from flags and config, in
registration order, with the version kept by the registry.

Examples:
  kfi-info providers --gossip.enabled --gossip.listen 127.0.0.1:0
  kfi-info providers -o json | jq '.[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.cfg.buildRegistry(a.handler)
			if err != nil {
				return err
			}
			defer reg.Close()

			return render(cmd.OutOrStdout(), a.cfg.Output, viewProviders(reg.Providers()))
		},
	}
}
