package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/custody/internal/api"
	"github.com/vietddude/custody/internal/core/clock"
	"github.com/vietddude/custody/internal/core/config"
	"github.com/vietddude/custody/internal/core/emitter"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/core/guardian"
	"github.com/vietddude/custody/internal/core/ledger"
	"github.com/vietddude/custody/internal/core/recovery"
	"github.com/vietddude/custody/internal/core/wallet"
	"github.com/vietddude/custody/internal/core/worker"
	"github.com/vietddude/custody/internal/health"
	"github.com/vietddude/custody/internal/identity"
	redisclient "github.com/vietddude/custody/internal/infra/redis"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/infra/storage/memory"
	"github.com/vietddude/custody/internal/infra/storage/postgres"
)

const shutdownTimeout = 15 * time.Second

// App owns the custody services and their backends for one process.
type App struct {
	Services api.Services
	Monitor  *health.Monitor

	cfg      *config.AppConfig
	store    storage.Store
	db       *postgres.DB
	redis    *redisclient.Client
	events   emitter.Emitter
	registry identity.Registry
	relay    *worker.Relay
	server   *api.Server
}

// NewApp connects the configured backends and builds the services. Without
// a database URL state is kept in memory; without a Redis URL events are
// logged and settlements are relayed to the log.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	app := &App{cfg: cfg}
	checks, err := app.initBackends(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	clk, err := clock.NewEpoch(cfg.Clock.Genesis, cfg.Clock.Unit)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init clock: %w", err)
	}

	fees, err := fee.NewSettlement(app.store, cfg.Fees)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init fees: %w", err)
	}

	app.Services = api.Services{
		Wallets:    wallet.NewService(app.store, app.registry, fees, clk, app.events, cfg.Policy),
		Ledger:     ledger.NewLedger(app.store, app.registry, fees, clk, app.events, cfg.Policy),
		Guardians:  guardian.NewRegistry(app.store, clk, app.events, cfg.Policy),
		Recovery:   recovery.NewEngine(app.store, clk, app.events, cfg.Policy),
		Fees:       fees,
		Depositors: cfg.Server.Depositors,
	}
	app.Monitor = health.NewMonitor(checks...)
	app.server = api.NewServer(app.Services, app.Monitor, cfg.Server.Port)
	return app, nil
}

func (a *App) initBackends(ctx context.Context) ([]health.Check, error) {
	cfg := a.cfg

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		a.store = db
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		slog.Info("Using PostgreSQL storage")
	} else {
		a.store = memory.NewMemoryStorage()
		slog.Warn("Using Memory storage, state is lost on restart")
	}
	checks := []health.Check{{Name: "database", Critical: true, Probe: a.store.Health}}

	logEvents := emitter.NewLogEmitter(slog.Default())
	var (
		sink     worker.Sink          = worker.LogSink{}
		progress worker.ProgressStore = worker.NewMemoryProgress()
	)
	a.events = logEvents
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redis = client
		a.events = emitter.Multi{logEvents, redisclient.NewStreamEmitter(client, cfg.Redis.Stream)}
		sink = redisclient.NewSettlementSink(client, cfg.Redis.SettlementStream)
		progress = redisclient.NewProgressStore(client)
		checks = append(checks, health.Check{Name: "redis", Probe: client.Health})
		slog.Info("Publishing events to Redis", "stream", cfg.Redis.Stream, "settlements", cfg.Redis.SettlementStream)
	}
	a.relay = worker.NewRelay(cfg.Relay, a.store, sink, progress)

	if cfg.Identity.URL != "" {
		breaker := identity.NewBreakerRegistry(
			identity.NewHTTPRegistry(cfg.Identity.URL, cfg.Identity.Timeout),
			cfg.Identity.Breaker,
		)
		a.registry = breaker
		checks = append(checks, health.Check{Name: "identity", Probe: func(context.Context) error {
			if state := breaker.State(); state != "closed" {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return nil
		}})
		slog.Info("Using remote identity service", "url", cfg.Identity.URL)
	} else {
		a.registry = identity.NewMemoryRegistry(cfg.Identity.Credentials...)
		slog.Warn("Using static identity credentials", "count", len(cfg.Identity.Credentials))
	}
	return checks, nil
}

// Run serves the API and relays settlements until ctx is cancelled or a
// component fails, then shuts the server down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	g.Go(func() error {
		slog.Info("API server listening", "port", a.cfg.Server.Port)
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.relay.Start(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Store exposes the backing store for maintenance commands.
func (a *App) Store() storage.Store {
	return a.store
}

// Close releases backend connections.
func (a *App) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			slog.Warn("Failed to close emitters", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("Failed to close redis", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}
}
