package runner

import (
	"github.com/spf13/cobra"

	"github.com/lcrostarosa/legacyvault/internal/app"
	"github.com/lcrostarosa/legacyvault/internal/config"
)

// ConfigProvider is a function that returns the current config and any load error.
// This allows the runner to be decoupled from the global config state.
type ConfigProvider func() (*config.Config, error)

// RemoteProvider returns the remote server selected by flags, if any.
type RemoteProvider func() Remote

// CommandRunner chains interceptors for CLI command execution.
// It mirrors Connect-RPC's interceptor pattern.
type CommandRunner struct {
	interceptors   []Interceptor
	configProvider ConfigProvider
	remoteProvider RemoteProvider
	appOptions     []app.Option
}

// NewRunner creates a new CommandRunner with the given config provider.
func NewRunner(provider ConfigProvider) *CommandRunner {
	return &CommandRunner{
		configProvider: provider,
	}
}

// Use adds interceptors to the chain. Returns self for chaining.
func (r *CommandRunner) Use(interceptors ...Interceptor) *CommandRunner {
	r.interceptors = append(r.interceptors, interceptors...)
	return r
}

// WithRemote sets where the remote target comes from. Returns self for chaining.
func (r *CommandRunner) WithRemote(p RemoteProvider) *CommandRunner {
	r.remoteProvider = p
	return r
}

// WithAppOptions sets options for the lazily built app. Returns self for chaining.
func (r *CommandRunner) WithAppOptions(opts ...app.Option) *CommandRunner {
	r.appOptions = opts
	return r
}

// Clone creates a copy of this runner with its own interceptor chain.
// The providers are shared.
func (r *CommandRunner) Clone() *CommandRunner {
	cloned := &CommandRunner{
		interceptors:   make([]Interceptor, len(r.interceptors)),
		configProvider: r.configProvider,
		remoteProvider: r.remoteProvider,
		appOptions:     r.appOptions,
	}
	copy(cloned.interceptors, r.interceptors)
	return cloned
}

// CommandFunc is the signature for command handler functions.
type CommandFunc func(ctx *CommandContext, cmd *cobra.Command, args []string) error

// Wrap creates a cobra.RunE function with the interceptor chain applied.
func (r *CommandRunner) Wrap(fn CommandFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, cfgErr := r.configProvider()
		ctx := NewContext(cfg, cfgErr)
		if r.remoteProvider != nil {
			ctx.Remote = r.remoteProvider()
		}
		ctx.AppOptions = r.appOptions

		// Build the chain: interceptors wrap the handler
		chain := func() error { return fn(ctx, cmd, args) }

		// Wrap in reverse order so first interceptor runs first
		for i := len(r.interceptors) - 1; i >= 0; i-- {
			interceptor := r.interceptors[i]
			next := chain
			chain = func() error { return interceptor(ctx, cmd, args, next) }
		}

		return chain()
	}
}

// Builder helps construct runners with common interceptor patterns.
type Builder struct {
	provider   ConfigProvider
	remote     RemoteProvider
	appOptions []app.Option
}

// NewBuilder creates a new runner builder with the given providers.
// remote may be nil.
func NewBuilder(provider ConfigProvider, remote RemoteProvider, opts ...app.Option) *Builder {
	return &Builder{provider: provider, remote: remote, appOptions: opts}
}

func (b *Builder) runner() *CommandRunner {
	return NewRunner(b.provider).WithRemote(b.remote).WithAppOptions(b.appOptions...)
}

// Base creates a runner with just logging.
func (b *Builder) Base() *CommandRunner {
	return b.runner().Use(WithLogging())
}

// Config creates a runner for commands that reach the service, locally or
// remotely.
func (b *Builder) Config() *CommandRunner {
	return b.runner().Use(
		WithLogging(),
		RequireConfig(),
		ReleaseResources(),
	)
}

// Local creates a runner for commands that need the in-process app.
func (b *Builder) Local() *CommandRunner {
	return b.runner().Use(
		WithLogging(),
		RequireLocal(),
		RequireConfig(),
		ReleaseResources(),
	)
}

// Uninitialized creates a runner that can run without initialization.
func (b *Builder) Uninitialized() *CommandRunner {
	return b.runner().Use(
		WithLogging(),
		AllowUninitialized(),
	)
}
