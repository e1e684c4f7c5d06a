// Package daemon composes the connectivity core into the long-running
// mindpald process: the fx dependency graph, the HTTP server on the unix
// socket and the start/stop lifecycle.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/api"
	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/avatar"
	"github.com/Abhishek8642/MindPal-1.3/internal/backend"
	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
	"github.com/Abhishek8642/MindPal-1.3/internal/config"
	"github.com/Abhishek8642/MindPal-1.3/internal/dashboard"
	"github.com/Abhishek8642/MindPal-1.3/internal/lock"
	"github.com/Abhishek8642/MindPal-1.3/internal/logging"
	"github.com/Abhishek8642/MindPal-1.3/internal/media"
	"github.com/Abhishek8642/MindPal-1.3/internal/netmon"
	"github.com/Abhishek8642/MindPal-1.3/internal/paths"
	"github.com/Abhishek8642/MindPal-1.3/internal/retry"
	"github.com/Abhishek8642/MindPal-1.3/internal/settings"
	"github.com/Abhishek8642/MindPal-1.3/internal/store"
	"github.com/Abhishek8642/MindPal-1.3/internal/video"
)

// Params holds resolved daemon parameters.
type Params struct {
	SocketPath string // optional override for testing; empty = use default
	ConfigPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideAuth,
			provideBackend,
			providePlatform,
			provideMonitor,
			provideExecutor,
			providePolicy,
			provideSettings,
			provideAvatar,
			provideDevices,
			provideLifecycle,
			provideDashboard,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath()
	}
	cfg, err := config.Load(path, paths.EnvPath())
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func provideLogger() (*zap.Logger, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return logging.New(paths.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock")
	l, err := lock.Acquire(paths.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuth() *auth.Manager {
	return auth.NewManager(nil)
}

func provideBackend(cfg *config.Config, am *auth.Manager) *backend.Client {
	client := backend.New(cfg.Backend.URL, cfg.Backend.AnonKey, am, cfg.ProbeTimeout())
	// The client refreshes the manager's tokens when the backend reports an
	// expired JWT.
	am.SetRefresher(client)
	return client
}

func providePlatform(cfg *config.Config) *netmon.SystemPlatform {
	return netmon.NewSystemPlatform(cfg.ProbeInterval())
}

func provideMonitor(client *backend.Client, platform *netmon.SystemPlatform, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *netmon.Monitor {
	return netmon.New(client, platform, b, logger, cfg.ProbeInterval())
}

func provideExecutor(monitor *netmon.Monitor, logger *zap.Logger) *retry.Executor {
	return retry.NewExecutor(monitor, logger)
}

func providePolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.BaseDelay(),
		Multiplier:  cfg.Retry.Multiplier,
	}
}

func provideSettings(client *backend.Client, exec *retry.Executor, monitor *netmon.Monitor, am *auth.Manager, db *store.DB, b *bus.Bus, logger *zap.Logger, policy retry.Policy) *settings.Store {
	return settings.NewStore(client, exec, monitor, am, db, b, logger, policy)
}

func provideAvatar(cfg *config.Config) *avatar.Client {
	return avatar.New(cfg.Avatar.URL, cfg.Avatar.APIKey)
}

func provideDevices() *media.LocalDevices {
	return media.NewLocalDevices()
}

func provideLifecycle(devices *media.LocalDevices, provider *avatar.Client, client *backend.Client, exec *retry.Executor, monitor *netmon.Monitor, am *auth.Manager, db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger, policy retry.Policy) *video.Lifecycle {
	return video.NewLifecycle(video.Config{
		Devices:   devices,
		Provider:  provider,
		Persister: client,
		Exec:      exec,
		Status:    monitor,
		Auth:      am,
		DB:        db,
		Bus:       b,
		Logger:    logger,
		Policy:    policy,
		Cooldown:  cfg.FreeCooldown(),
	})
}

func provideDashboard(client *backend.Client, exec *retry.Executor, am *auth.Manager, logger *zap.Logger, policy retry.Policy) *dashboard.Service {
	return dashboard.NewService(client, exec, am, logger, policy)
}

func provideHandler(monitor *netmon.Monitor, st *settings.Store, lc *video.Lifecycle, dash *dashboard.Service, am *auth.Manager, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *api.Handler {
	return api.NewHandler(monitor, st, lc, dash, am, b, logger, cfg.Avatar.ReplicaID, api.Tiers{
		Free:       video.Tier{MaxSeconds: cfg.Tier.FreeMaxSeconds},
		Privileged: video.Tier{Privileged: true, MaxSeconds: cfg.Tier.PrivilegedMaxSeconds},
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, monitor *netmon.Monitor, platform *netmon.SystemPlatform, lifecycle *video.Lifecycle, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			monitor.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// End any in-flight session so media and the remote
			// conversation are released before shutdown.
			if err := lifecycle.EndSession(ctx); err != nil {
				logger.Warn("error ending session on shutdown", zap.Error(err))
			}
			srv.Stop(ctx)
			monitor.Stop()
			platform.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
