package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
	"github.com/lcrostarosa/legacyvault/internal/config"
)

func newInitCmd(st *rootState, b *runner.Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file holding every default. Existing files are
never overwritten. Use --config to choose the location.`,
		Example: `  legacyvault init
  legacyvault init --config /etc/legacyvault/config.yaml`,
		Args: cobra.NoArgs,
		RunE: b.Uninitialized().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			path := st.cfgFile
			if path == "" {
				path = filepath.Join(config.DefaultConfigDir(), "config.yaml")
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}

			out := newOutput(cmd)
			out.success("Configuration written to %s", path)
			out.info("")
			out.info("Next steps:")
			out.info("  1. Set app.base_url, server.api_key and the notify section")
			out.info("  2. legacyvault owner set <owner-ref> <email>")
			out.info("  3. legacyvault configure --owner <owner-ref> --nominee-email <email>")
			out.info("  4. legacyvault activate <switch-id>")
			out.info("  5. legacyvault serve")
			return nil
		}),
	}
}
