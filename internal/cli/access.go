package cli

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
)

func newAccessCmd(b *runner.Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "access <token>",
		Short: "Validate a nominee access token",
		Long: `Check the token from a nominee's access link. On success the grant
shows whose material the nominee may retrieve and until when.`,
		Args: cobra.ExactArgs(1),
		RunE: b.Config().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			backend, err := ctx.Backend()
			if err != nil {
				return err
			}
			g, err := backend.ValidateAccessToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			return out.emit(g, func() {
				out.success("Access granted")
				out.info("Switch:     %s", g.SwitchID)
				out.info("Nominee:    %s", nomineeLabel(g.Nominee))
				out.info("Owner:      %s", g.OwnerEmail)
				out.info("Material:   %s", g.MaterialRef)
				out.info("Triggered:  %s", formatTime(&g.TriggeredAt))
				out.info("Expires:    %s", formatTime(&g.ExpiresAt))
				if g.PersonalMessage != "" {
					out.divider()
					out.info("%s", g.PersonalMessage)
				}
			})
		}),
	}
}
