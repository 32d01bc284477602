package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"wagate/internal/bus"
	"wagate/internal/config"
	"wagate/internal/dispatch"
	"wagate/internal/httpapi"
	"wagate/internal/lock"
	"wagate/internal/logging"
	"wagate/internal/session"
	"wagate/internal/state"
	"wagate/internal/store"
	"wagate/internal/supervisor"
	"wagate/internal/wa"
	"wagate/internal/ws"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideTracker,
			provideLock,
			provideStore,
			provideAdapter,
			provideDispatcher,
			provideSupervisor,
			provideHub,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *state.Tracker {
	return state.NewTracker(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ScheduleDBPath(p.SessionName)
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
	logger.Info("schedule journal opened", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, tracker *state.Tracker, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, tracker, b, logger)
}

func provideDispatcher(adapter *wa.Adapter, db *store.DB, b *bus.Bus, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(adapter, db, b, logger)
}

func provideSupervisor(cfg *config.Config, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *supervisor.Supervisor {
	backoff := time.Duration(cfg.ReconnectDelayMs) * time.Millisecond
	return supervisor.New(adapter, b, backoff, logger)
}

func provideHub(adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *ws.Hub {
	return ws.NewHub(adapter, b, logger)
}

func provideHandler(p Params, cfg *config.Config, d *dispatch.Dispatcher, tracker *state.Tracker, hub *ws.Hub, adapter *wa.Adapter, logger *zap.Logger) *httpapi.Handler {
	spacing := time.Duration(cfg.DefaultSpacingMs) * time.Millisecond
	return httpapi.NewHandler(d, tracker, hub, adapter, p.SessionName, spacing, session.UploadDir(p.SessionName), logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, adapter *wa.Adapter, d *dispatch.Dispatcher, sup *supervisor.Supervisor, hub *ws.Hub, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			hub.Start(context.Background())
			sup.Start(context.Background())

			// Batches journalled by a previous run fire again; past-due
			// ones fire immediately.
			if err := d.Rearm(); err != nil {
				return err
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Connecting can block on QR pairing, so it runs off the
			// startup path. The hub relays progress to subscribers.
			go func() {
				if err := adapter.Initialize(context.Background()); err != nil {
					logger.Error("session connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			sup.Stop()
			hub.Stop()
			adapter.Teardown()
			if err := db.Close(); err != nil {
				logger.Warn("error closing schedule journal", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
