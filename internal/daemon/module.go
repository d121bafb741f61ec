package daemon

import (
	"context"
	"os"
	"path/filepath"

	"github.com/matheus3301/clinic/internal/bus"
	"github.com/matheus3301/clinic/internal/config"
	"github.com/matheus3301/clinic/internal/lock"
	"github.com/matheus3301/clinic/internal/logging"
	"github.com/matheus3301/clinic/internal/store"
	"github.com/matheus3301/clinic/internal/store/migrations"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideManager,
			NewServer,
			NewOpsServer,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

// StoreOptions translates the configuration into connection manager options.
func StoreOptions(cfg *config.Config) store.Options {
	opts := store.DefaultOptions(cfg.DBPath())
	opts.MigrationsDir = cfg.Database.MigrationsDir
	opts.Migrations = migrations.FS
	opts.BusyTimeout = cfg.Database.BusyTimeout.D()
	opts.MaxOpenConns = cfg.Database.MaxOpenConns
	opts.MaxRetries = cfg.Retry.MaxRetries
	opts.RetryBaseDelay = cfg.Retry.BaseDelay.D()
	opts.ConnectDelay = cfg.Retry.ConnectDelay.D()
	opts.ConnectMaxRetries = cfg.Retry.ConnectMaxRetries
	return opts
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), "clinicd", cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	dir := filepath.Dir(cfg.DBPath())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring database lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("database lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideManager(cfg *config.Config, logger *zap.Logger, b *bus.Bus) *store.Manager {
	return store.NewManager(StoreOptions(cfg), logger, b)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, ops *OpsServer, lk *lock.Lock, m *store.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The health service watches state changes, so it starts before the first open.
			if err := srv.Start(); err != nil {
				return err
			}
			if err := ops.Start(); err != nil {
				srv.Stop(ctx)
				return err
			}

			// Open eagerly so migrations run at startup instead of on the first query.
			if _, err := m.GetConnection(ctx); err != nil {
				ops.Stop(ctx)
				srv.Stop(ctx)
				return err
			}
			logger.Info("daemon started", zap.String("db", m.Path()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ops.Stop(ctx)
			srv.Stop(ctx)
			if err := m.Close(); err != nil {
				logger.Warn("error closing database", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
