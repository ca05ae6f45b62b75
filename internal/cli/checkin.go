package cli

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/api"
	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
	"github.com/lcrostarosa/legacyvault/internal/deadman"
)

// addRefFlags adds the --switch and --owner selectors; exactly one is required.
func addRefFlags(cmd *cobra.Command) {
	cmd.Flags().String("switch", "", "Switch ID")
	cmd.Flags().String("owner", "", "Owner reference")
	cmd.MarkFlagsOneRequired("switch", "owner")
	cmd.MarkFlagsMutuallyExclusive("switch", "owner")
}

func refFromFlags(cmd *cobra.Command) (api.SwitchRef, error) {
	flags := runner.Flags(cmd)
	ref := api.SwitchRef{
		SwitchID: flags.String("switch"),
		OwnerRef: flags.String("owner"),
	}
	return ref, flags.Err()
}

// --- Check-in Command ---

func newCheckInCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record proof of life (resets the inactivity clock)",
		Long: `Record a check-in for the switch, resetting its inactivity clock. Checking
in on a triggered switch disarms it and revokes the nominee's access link.`,
		Example: `  legacyvault checkin --owner alice
  legacyvault checkin --switch 5f0c...`,
		Args: cobra.NoArgs,
		RunE: b.Config().Wrap(runCheckIn),
	}
	addRefFlags(cmd)
	return cmd
}

func runCheckIn(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	ref, err := refFromFlags(cmd)
	if err != nil {
		return err
	}
	backend, err := ctx.Backend()
	if err != nil {
		return err
	}
	res, err := backend.CheckIn(cmd.Context(), ref)
	if err != nil {
		return err
	}

	out := newOutput(cmd)
	return out.emit(res, func() {
		out.success("Check-in recorded")
		out.info("Switch:       %s", res.SwitchID)
		out.info("Last seen:    %s", formatTime(&res.LastCheckIn))
		out.info("Triggers at:  %s", formatTime(&res.NextTriggerAt))
	})
}

// --- Status Command ---

func newStatusCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a switch's inactivity status",
		Args:  cobra.NoArgs,
		RunE:  b.Config().Wrap(runStatus),
	}
	addRefFlags(cmd)
	return cmd
}

func runStatus(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	ref, err := refFromFlags(cmd)
	if err != nil {
		return err
	}
	backend, err := ctx.Backend()
	if err != nil {
		return err
	}
	st, err := backend.GetStatus(cmd.Context(), ref)
	if err != nil {
		return err
	}

	out := newOutput(cmd)
	return out.emit(st, func() { printStatus(out, st) })
}

func printStatus(out *output, st *deadman.Status) {
	if !st.Configured {
		out.info("No switch configured")
		out.info("")
		out.info("To get started:")
		out.info("  legacyvault configure --owner <owner-ref> --nominee-email <email>")
		return
	}

	out.header("📊 Switch Status")
	out.info("Switch:      %s", st.SwitchID)
	out.info("Active:      %t", st.IsActive)
	out.info("Nominee:     %s", nomineeLabel(deadman.Nominee{Email: st.NomineeEmail, Name: st.NomineeName}))
	out.info("Period:      %d days", st.InactivityPeriodDays)
	out.info("Last seen:   %s (%d days ago)", formatTime(st.LastCheckIn), st.DaysSinceCheckIn)
	if st.IsTriggered {
		out.divider()
		out.warning("TRIGGERED at %s; the nominee has been sent an access link", formatTime(st.TriggeredAt))
		return
	}
	out.info("Triggers in: %d days", st.DaysUntilTrigger)
}
