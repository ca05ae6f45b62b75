package cli

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/cli/runner"
)

func newOwnerCmd(b *runner.Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage owner contact addresses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <owner-ref> <email>",
		Short: "Record the address warnings are sent to",
		Args:  cobra.ExactArgs(2),
		RunE: b.Config().Wrap(func(ctx *runner.CommandContext, cmd *cobra.Command, args []string) error {
			backend, err := ctx.Backend()
			if err != nil {
				return err
			}
			if err := backend.UpsertOwner(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			out := newOutput(cmd)
			return out.emit(map[string]string{"owner_ref": args[0], "email": args[1]}, func() {
				out.success("Owner %s reaches %s", args[0], args[1])
			})
		}),
	})
	return cmd
}
