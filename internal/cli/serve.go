package cli

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
)

func newServeCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and scheduled scans",
		Long: `Start the HTTP API. Unless disabled in scan.enabled or with --no-scan,
inactivity scans run on scan.schedule while the server is up.`,
		Example: `  legacyvault serve
  legacyvault serve --addr :9000 --no-scan`,
		Args: cobra.NoArgs,
		RunE: b.Local().Wrap(runServe),
	}
	f := cmd.Flags()
	f.StringP("addr", "a", "", "Listen address (default: server.addr)")
	f.Bool("no-scan", false, "Do not run scheduled scans")
	return cmd
}

func runServe(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	addr := flags.String("addr")
	noScan := flags.Bool("no-scan")
	if err := flags.Err(); err != nil {
		return err
	}

	a, err := ctx.App()
	if err != nil {
		return err
	}
	if addr != "" {
		a.Config.Server.Addr = addr
	}
	if noScan {
		a.Config.Scan.Enabled = false
	}

	out := newOutput(cmd)
	out.header("🌐 LegacyVault Server")
	out.info("API:      %s", a.Config.Server.Addr)
	out.info("Links:    %s", a.Config.App.BaseURL)
	out.info("Store:    %s", a.Config.Store.Driver)
	out.info("Channel:  %s", a.Channel.Name())
	if a.Config.Scan.Enabled {
		out.info("Schedule: %s", a.Config.Scan.Schedule)
	} else {
		out.info("Schedule: disabled")
	}
	out.info("")
	out.info("Press Ctrl+C to stop")

	return a.Serve(cmd.Context())
}
