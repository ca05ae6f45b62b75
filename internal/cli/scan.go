package cli

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/api"
	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
)

func newScanCmd(b *runner.Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one inactivity scan now",
		Long: `Evaluate every active switch once: send due warnings and trigger
switches whose inactivity period has elapsed.`,
		Args: cobra.NoArgs,
		RunE: b.Config().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			backend, err := ctx.Backend()
			if err != nil {
				return err
			}
			report, err := backend.RunScan(cmd.Context())
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			return out.emit(report, func() { printScanReport(out, report) })
		}),
	}
}

func printScanReport(out *output, r *api.ScanReportView) {
	out.header("🔎 Scan Report")
	out.info("Checked:      %d", r.Checked)
	out.info("Warned:       %d", r.Warned)
	out.info("Final warned: %d", r.FinalWarned)
	out.info("Triggered:    %d", r.Triggered)
	out.info("Skipped:      %d", r.Skipped)
	out.info("Deduplicated: %d", r.Deduplicated)
	out.info("Duration:     %s", r.FinishedAt.Sub(r.StartedAt))
	if len(r.Errors) == 0 {
		return
	}
	out.info("")
	out.warning("%d switch(es) failed:", len(r.Errors))
	for _, e := range r.Errors {
		out.info("  • %s: %s", e.SwitchID, e.Error)
	}
}
