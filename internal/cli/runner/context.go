package runner

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/api"
	"github.com/lcrostarosa/legacyvault/internal/app"
	"github.com/lcrostarosa/legacyvault/internal/config"
)

// Remote addresses a running legacyvault server. An empty URL means the
// command works on the local store.
type Remote struct {
	URL    string
	APIKey string
}

// CommandContext provides shared dependencies to command handlers.
// Dependencies are lazily initialized on first access to avoid unnecessary work.
type CommandContext struct {
	// Config is the loaded configuration (may be nil if loading failed)
	Config *config.Config

	// ConfigErr is the error from loading config, if any
	ConfigErr error

	// Remote is the server to talk to instead of the local store
	Remote Remote

	// AppOptions are passed to app.New when the local app is built
	AppOptions []app.Option

	app     *app.App
	appErr  error
	appOnce sync.Once
}

// NewContext creates a new CommandContext with the given config.
func NewContext(cfg *config.Config, cfgErr error) *CommandContext {
	return &CommandContext{
		Config:    cfg,
		ConfigErr: cfgErr,
	}
}

// HasConfig returns true if config is loaded successfully.
func (c *CommandContext) HasConfig() bool {
	return c.Config != nil && c.ConfigErr == nil
}

// IsRemote reports whether commands go to a remote server.
func (c *CommandContext) IsRemote() bool {
	return c.Remote.URL != ""
}

// App returns the lazily wired local application.
func (c *CommandContext) App() (*app.App, error) {
	c.appOnce.Do(func() {
		if !c.HasConfig() {
			c.appErr = errors.Join(ErrNotInitialized, c.ConfigErr)
			return
		}
		c.app, c.appErr = app.New(c.Config, c.AppOptions...)
	})
	return c.app, c.appErr
}

// Backend returns the remote client when a server is configured, otherwise
// the local service.
func (c *CommandContext) Backend() (api.Backend, error) {
	if c.IsRemote() {
		hc := &http.Client{Timeout: 30 * time.Second}
		return api.NewClient(hc, c.Remote.URL, c.Remote.APIKey), nil
	}
	a, err := c.App()
	if err != nil {
		return nil, err
	}
	return api.NewLocal(a.Service, "cli"), nil
}

// Close releases the local application if one was built.
func (c *CommandContext) Close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}
