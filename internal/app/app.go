// Package app wires configuration into a running legacyvault: store,
// delivery channel, owner directory, scan lock, metrics, service and
// scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/api"
	"github.com/lcrostarosa/legacyvault/internal/config"
	"github.com/lcrostarosa/legacyvault/internal/deadman"
	"github.com/lcrostarosa/legacyvault/internal/directory"
	"github.com/lcrostarosa/legacyvault/internal/lock"
	"github.com/lcrostarosa/legacyvault/internal/logging"
	"github.com/lcrostarosa/legacyvault/internal/metrics"
	"github.com/lcrostarosa/legacyvault/internal/middleware"
	"github.com/lcrostarosa/legacyvault/internal/notify"
	"github.com/lcrostarosa/legacyvault/internal/scheduler"
	"github.com/lcrostarosa/legacyvault/internal/server"
	"github.com/lcrostarosa/legacyvault/internal/store"
)

// App holds the wired components. Close releases them.
type App struct {
	Config    *config.Config
	Store     store.Store
	Channel   notify.Channel
	Directory *directory.Cached
	Metrics   *metrics.Metrics
	Service   *deadman.Service

	closers []func() error
}

// Option adjusts how New wires the app.
type Option func(*options)

type options struct {
	channel notify.Channel
	clock   deadman.Clock
}

// WithChannel replaces the configured delivery channel.
func WithChannel(c notify.Channel) Option {
	return func(o *options) { o.channel = c }
}

// WithClock replaces the system clock.
func WithClock(c deadman.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds an App from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	a.Channel = o.channel
	if a.Channel == nil {
		if a.Channel, err = NewChannel(cfg.Notify); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	renderer, err := notify.NewRenderer(cfg.App.Product)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	scanLock, closeLock, err := lock.New(lock.Config{
		Kind:          cfg.Lock.Kind,
		Path:          cfg.Lock.Path,
		RedisAddr:     cfg.Lock.RedisAddr,
		RedisPassword: cfg.Lock.RedisPassword,
		RedisDB:       cfg.Lock.RedisDB,
		TTL:           cfg.Lock.TTL,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeLock)

	if a.Metrics, err = metrics.New(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a.Directory = directory.NewCached(st, cfg.Directory.CacheTTL)

	a.Service, err = deadman.NewService(deadman.Deps{
		Switches:        st,
		Ledger:          st,
		CheckIns:        st,
		Owners:          st,
		Directory:       a.Directory,
		Channel:         a.Channel,
		Renderer:        renderer,
		Clock:           o.clock,
		Links:           deadman.Links{BaseURL: cfg.App.BaseURL},
		Observer:        a.Metrics,
		ScanLock:        scanLock,
		ScanConcurrency: cfg.Scan.Concurrency,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	logging.Info("Application wired",
		logging.String("store", cfg.Store.Driver),
		logging.String("channel", a.Channel.Name()),
		logging.String("lock", cfg.Lock.Kind),
	)
	return a, nil
}

// NewChannel builds the configured delivery channel. failover tries
// shoutrrr first and falls back to the webhook.
func NewChannel(cfg config.NotifyConfig) (notify.Channel, error) {
	switch cfg.Channel {
	case "", "log":
		return notify.LogChannel{}, nil
	case "shoutrrr":
		return newShoutrrr(cfg)
	case "webhook":
		return newWebhook(cfg)
	case "failover":
		primary, err := newShoutrrr(cfg)
		if err != nil {
			return nil, err
		}
		fallback, err := newWebhook(cfg)
		if err != nil {
			return nil, err
		}
		return notify.Multi{primary, fallback}, nil
	default:
		return nil, fmt.Errorf("unknown notify channel %q", cfg.Channel)
	}
}

func newShoutrrr(cfg config.NotifyConfig) (notify.Channel, error) {
	ch, err := notify.NewShoutrrrChannel(cfg.URLs, cfg.RecipientParam, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func newWebhook(cfg config.NotifyConfig) (notify.Channel, error) {
	ch, err := notify.NewWebhookChannel(cfg.WebhookURL, notify.WebhookOptions{
		Timeout:    cfg.Timeout,
		RetryCount: cfg.WebhookRetries,
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// NewScheduler builds the scan scheduler from the scan section.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	sched, err := scheduler.ParseSchedule(a.Config.Scan.Schedule)
	if err != nil {
		return nil, err
	}
	retry := scheduler.DefaultRetryStrategy()
	retry.MaxRetries = a.Config.Scan.MaxRetries

	return scheduler.New(sched, a.Service.RunScan,
		scheduler.WithRetry(retry),
		scheduler.WithCallbacks(scheduler.LoggingCallbacks(logging.Infof)),
	), nil
}

// NewAPIServer builds the HTTP API around the service. sched may be nil.
func (a *App) NewAPIServer(sched *scheduler.Scheduler) (*api.Server, error) {
	sc := a.Config.Server
	return api.NewServer(api.Options{
		Service:    a.Service,
		Auth:       api.AuthConfig{APIKey: sc.APIKey, DevMode: sc.DevMode},
		CORSOrigin: sc.CORSOrigin,
		AccessLimit: &middleware.RateLimitConfig{
			RequestsPerSecond: sc.AccessRatePerSecond,
			BurstSize:         sc.AccessBurst,
			TrustProxy:        sc.TrustProxy,
		},
		TrustProxy: sc.TrustProxy,
		Metrics:   a.Metrics,
		Scheduler: sched,
		Ping:      a.Store.Ping,
	})
}

// Serve runs the API, and the scheduler when scans are enabled, until ctx
// is done or the process is signalled.
func (a *App) Serve(ctx context.Context) error {
	if a.Config.Server.APIKey == "" && !a.Config.Server.DevMode {
		logging.Warn("No API key configured; switch procedures will reject every request")
	}

	var sched *scheduler.Scheduler
	if a.Config.Scan.Enabled {
		s, err := a.NewScheduler()
		if err != nil {
			return err
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		sched = s
	}

	if sched != nil {
		defer sched.Stop()
	}

	apiServer, err := a.NewAPIServer(sched)
	if err != nil {
		return err
	}
	defer apiServer.Close()

	httpServer := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	gs := server.NewGracefulServer(httpServer, &server.GracefulServerOptions{
		BeforeStop: func() {
			if sched != nil {
				sched.Stop()
			}
		},
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
	})
	return gs.ListenAndServe(ctx)
}

// Close releases every resource New acquired, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = logging.Sync()
	return errors.Join(errs...)
}
