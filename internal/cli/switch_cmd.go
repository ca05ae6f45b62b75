package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/api"
	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

// --- Configure Command ---

func newConfigureCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Create or update an owner's switch",
		Long: `Create the owner's switch, or update its nominee, message and period.
A new switch starts inactive; enable it with 'legacyvault activate'.`,
		Example: `  legacyvault configure --owner alice --nominee-email bob@example.com \
    --nominee-name Bob --relation brother --days 90`,
		Args: cobra.NoArgs,
		RunE: b.Config().Wrap(runConfigure),
	}
	f := cmd.Flags()
	f.String("owner", "", "Owner reference (required)")
	f.String("nominee-email", "", "Nominee email address (required)")
	f.String("nominee-name", "", "Nominee display name")
	f.String("relation", "", "Nominee relation to the owner")
	f.String("message", "", "Personal message included in the access notice")
	f.Int("days", deadman.DefaultInactivityPeriodDays, "Inactivity period in days")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("nominee-email")
	return cmd
}

func runConfigure(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
	flags := runner.Flags(cmd)
	req := api.ConfigureSwitchRequest{
		OwnerRef:             flags.String("owner"),
		NomineeEmail:         flags.String("nominee-email"),
		NomineeName:          flags.String("nominee-name"),
		NomineeRelation:      flags.String("relation"),
		PersonalMessage:      flags.String("message"),
		InactivityPeriodDays: flags.Int("days"),
	}
	if err := flags.Err(); err != nil {
		return err
	}

	backend, err := ctx.Backend()
	if err != nil {
		return err
	}
	sw, err := backend.ConfigureSwitch(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := newOutput(cmd)
	return out.emit(sw, func() {
		out.success("Switch configured")
		printSwitch(out, sw)
		if !sw.IsActive {
			out.info("")
			out.info("Enable it with: legacyvault activate %s", sw.ID)
		}
	})
}

func printSwitch(out *output, sw *api.SwitchView) {
	out.info("ID:          %s", sw.ID)
	out.info("Owner:       %s", sw.OwnerRef)
	out.info("Nominee:     %s", nomineeLabel(sw.Nominee))
	out.info("Period:      %d days", sw.InactivityPeriodDays)
	out.info("Active:      %t", sw.IsActive)
	out.info("Triggered:   %t", sw.IsTriggered)
	out.info("Last seen:   %s", formatTime(sw.LastCheckIn))
}

func nomineeLabel(n deadman.Nominee) string {
	label := n.Email
	if n.Name != "" {
		label = fmt.Sprintf("%s <%s>", n.Name, n.Email)
	}
	if n.Relation != "" {
		label += " (" + n.Relation + ")"
	}
	return label
}

// --- Activate / Deactivate Commands ---

func newActivateCmd(b *runner.Builder, active bool) *cobra.Command {
	use, short := "activate <switch-id>", "Enable a switch and start its inactivity clock"
	if !active {
		use, short = "deactivate <switch-id>", "Disable a switch; scans skip it"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: b.Config().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			backend, err := ctx.Backend()
			if err != nil {
				return err
			}
			sw, err := backend.SetActive(cmd.Context(), args[0], active)
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			return out.emit(sw, func() {
				if sw.IsActive {
					out.success("Switch %s is active", sw.ID)
				} else {
					out.success("Switch %s is inactive", sw.ID)
				}
			})
		}),
	}
}

// --- Test Notification Command ---

func newTestNotifyCmd(b *runner.Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify <switch-id>",
		Short: "Send a test message to the switch nominee",
		Long: `Send a test message through the configured channel to the nominee of the
switch. The attempt is recorded in the switch history either way.`,
		Args: cobra.ExactArgs(1),
		RunE: b.Config().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			backend, err := ctx.Backend()
			if err != nil {
				return err
			}
			rec, err := backend.SendTestNotification(cmd.Context(), args[0])
			if err != nil && !errors.Is(err, apperrors.ErrDelivery) {
				return err
			}
			out := newOutput(cmd)
			if rec == nil {
				return err
			}
			if emitErr := out.emit(rec, func() {
				if rec.Status == deadman.StatusSent {
					out.success("Test message sent to %s", rec.Recipient)
				} else {
					out.warning("Test message to %s failed: %s", rec.Recipient, rec.Error)
				}
			}); emitErr != nil {
				return emitErr
			}
			return err
		}),
	}
}

// --- History Command ---

func newHistoryCmd(b *runner.Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "history <switch-id>",
		Short: "Show notifications and check-ins of a switch",
		Args:  cobra.ExactArgs(1),
		RunE: b.Config().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			backend, err := ctx.Backend()
			if err != nil {
				return err
			}
			h, err := backend.GetHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			return out.emit(h, func() { printHistory(out, h) })
		}),
	}
}

func printHistory(out *output, h *deadman.History) {
	out.header("📜 Notifications")
	if len(h.Notifications) == 0 {
		out.info("(none)")
	}
	for _, n := range h.Notifications {
		line := fmt.Sprintf("%s  %-13s %-6s %s", n.SentAt.Format("2006-01-02 15:04"), n.Kind, n.Status, n.Recipient)
		if n.Error != "" {
			line += "  " + n.Error
		}
		out.info("%s", line)
	}
	out.info("")
	out.header("🫀 Check-ins")
	if len(h.CheckIns) == 0 {
		out.info("(none)")
	}
	for _, c := range h.CheckIns {
		src := c.Origin.Source
		if c.Origin.IP != "" {
			src += " " + c.Origin.IP
		}
		out.info("%s  %s", c.At.Format("2006-01-02 15:04"), src)
	}
}
