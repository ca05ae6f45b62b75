package runner

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// Interceptor is a function that wraps command execution.
// It mirrors the Connect-RPC interceptor pattern for CLI commands.
type Interceptor func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error

// RequireConfig ensures the configuration is loaded before executing the command.
// Remote commands do not need a local configuration.
func RequireConfig() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		if ctx.IsRemote() {
			return next()
		}
		if ctx.ConfigErr != nil {
			return ctx.ConfigErr
		}
		if ctx.Config == nil {
			return ErrNotInitialized
		}
		return next()
	}
}

// RequireLocal rejects commands pointed at a remote server.
func RequireLocal() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		if ctx.IsRemote() {
			return ErrLocalOnly
		}
		return next()
	}
}

// ReleaseResources closes the local application once the command finishes.
func ReleaseResources() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		err := next()
		if cerr := ctx.Close(); cerr != nil {
			logging.Warn("Failed to release resources", logging.String("cmd", cmd.Name()), logging.Err(cerr))
			err = errors.Join(err, cerr)
		}
		return err
	}
}

// WithLogging logs command execution, mirroring the API loggingInterceptor.
func WithLogging() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		logging.Debug("CLI command",
			logging.String("cmd", cmd.Name()),
			logging.Bool("remote", ctx.IsRemote()))
		err := next()
		if err != nil {
			logging.Debug("CLI error", logging.String("cmd", cmd.Name()), logging.Err(err))
		}
		return err
	}
}

// AllowUninitialized marks that this command can run without initialization.
// This is a no-op interceptor that documents intent.
func AllowUninitialized() Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		return next()
	}
}
