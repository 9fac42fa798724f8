package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/botflow"
	"github.com/aretw0/botflow/internal/config"
	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/internal/validator"
	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/adapters/discord"
	httpAdapter "github.com/aretw0/botflow/pkg/adapters/http"
	"github.com/aretw0/botflow/pkg/adapters/memory"
	"github.com/aretw0/botflow/pkg/adapters/redis"
	"github.com/aretw0/botflow/pkg/adapters/sqlite"
	"github.com/aretw0/botflow/pkg/adapters/telegram"
	"github.com/aretw0/botflow/pkg/blueprint"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/events"
	"github.com/aretw0/botflow/pkg/ports"
	"github.com/aretw0/botflow/pkg/registry"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the fully wired botflow process: stores, senders, event dispatcher,
// scheduler hub, engine and HTTP surface.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Engine     *botflow.Engine
	Hub        *scheduler.Hub
	Events     *events.Dispatcher
	Streams    *httpAdapter.StreamManager
	Metrics    *prometheus.Registry
	Blueprints ports.BlueprintStore
	Registry   *registry.Registry

	closers []func() error
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, cfg.Log.Format), nil
}

// NewApp wires every component. Redis backs sessions, blueprints, locks and
// audiences when configured; SQLite backs the scheduler job table when
// configured. Everything else falls back to memory.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  prometheus.NewRegistry(),
		Registry: registry.NewRegistry(),
	}
	app.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 1. Stores
	var (
		sessions   ports.SessionStore
		members    ports.MembershipStore
		locker     ports.DistributedLocker
		eventSinks []events.Subscriber
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		store := redis.NewFromClient(client, redis.WithPrefix(cfg.Redis.Prefix), redis.WithTTL(cfg.Redis.SessionTTL))
		sessions = store
		app.Blueprints = redis.NewBlueprintStore(client, cfg.Redis.Prefix)
		members = redis.NewMembershipStore(client, cfg.Redis.Prefix)
		locker = redis.NewLocker(client, cfg.Redis.Prefix)
		eventSinks = append(eventSinks, redis.NewEventStream(client, cfg.Redis.Prefix, cfg.Redis.StreamMaxLen))
		app.closers = append(app.closers, store.Close)
		logger.Info("using redis stores", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	} else {
		sessions = memory.NewStore()
		app.Blueprints = memory.NewBlueprintStore()
		members = memory.NewMembershipStore()
		logger.Info("using in-memory stores")
	}

	var jobs ports.SchedulerStorage
	if cfg.SQLite.Path != "" {
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("open scheduler storage: %w", err)
		}
		jobs = db
		app.closers = append(app.closers, db.Close)
		logger.Info("using sqlite job table", "path", cfg.SQLite.Path)
	} else {
		jobs = memory.NewSchedulerStorage()
	}

	// 2. Senders
	senders := actions.Senders{
		telegram.Provider: telegram.NewSender(
			telegram.WithDefaultToken(cfg.Telegram.Token),
			telegram.WithTimeout(cfg.Telegram.Timeout),
			telegram.WithLogger(logger),
			withEndpoint(cfg.Telegram.Endpoint),
		),
		discord.Provider: discord.NewSender(
			discord.WithDefaultToken(cfg.Discord.Token),
			discord.WithTimeout(cfg.Discord.Timeout),
			discord.WithLogger(logger),
		),
	}

	// 3. Events
	app.Events = events.NewDispatcher(events.WithLogger(logger))
	app.Streams = httpAdapter.NewStreamManager(logger)
	app.Events.Subscribe("metrics", events.NewMetrics(app.Metrics))
	app.Events.Subscribe("membership", events.Membership(members), domain.EventUserInteraction)
	app.Events.Subscribe("log", events.Logger(logger))
	app.Events.Subscribe("sse", app.Streams)
	for i, sink := range eventSinks {
		app.Events.Subscribe(fmt.Sprintf("stream-%d", i), sink)
	}

	// 4. Scheduler
	app.Hub = scheduler.NewHub(jobs, senders,
		scheduler.WithLogger(logger),
		scheduler.WithLocation(loc),
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithMaxAttempts(cfg.Scheduler.MaxAttempts),
		scheduler.WithRetryBackoff(cfg.Scheduler.RetryBackoff),
		scheduler.WithSendTimeout(cfg.Scheduler.SendTimeout),
		scheduler.WithEvents(app.Events),
		scheduler.WithMembership(members),
	)

	// 5. Actions & Engine
	actions.New(senders,
		actions.WithLogger(logger),
		actions.WithScheduler(app.Hub),
	).Register(app.Registry)

	engineOpts := []botflow.Option{
		botflow.WithLogger(logger),
		botflow.WithEvents(app.Events),
		botflow.WithMaxSteps(cfg.Engine.MaxSteps),
		botflow.WithSuspendTTL(cfg.Engine.SuspendTTL),
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		engineOpts = append(engineOpts, botflow.WithLifecycleHooks(createDebugHooks(logger)))
	}
	if locker != nil {
		engineOpts = append(engineOpts, botflow.WithLocker(locker, cfg.Engine.LockTTL))
	}
	app.Engine, err = botflow.New(app.Blueprints, sessions, app.Registry, engineOpts...)
	if err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func withEndpoint(endpoint string) telegram.Option {
	return func(s *telegram.Sender) {
		if endpoint != "" {
			telegram.WithEndpoint(endpoint)(s)
		}
	}
}

// createDebugHooks logs every step boundary.
func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Enter Step", "tenant", e.TenantID, "blueprint_id", e.BlueprintID, "step_id", e.StepID, "action", e.Action)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Leave Step", "step_id", e.StepID, "success", e.Success, "duration", e.Duration)
		},
	}
}

// LoadBlueprints validates every blueprint under dir and stores the valid ones.
// It returns how many were stored; invalid files are reported in the error.
func (a *App) LoadBlueprints(ctx context.Context, dir, tenantID string) (int, error) {
	bps, loadErr := blueprint.LoadDir(dir, tenantID)
	errs := []error{loadErr}
	stored := 0
	for _, bp := range bps {
		res := validator.ValidateBlueprint(bp, a.Registry)
		for _, w := range res.Warnings {
			a.Logger.Warn("blueprint warning", "tenant", bp.TenantID, "blueprint_id", bp.ID, "warning", w)
		}
		if err := res.Err(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.Blueprints.Put(ctx, bp); err != nil {
			errs = append(errs, fmt.Errorf("store blueprint %q: %w", bp.ID, err))
			continue
		}
		stored++
	}
	a.Logger.Info("blueprints loaded", "dir", dir, "count", stored)
	return stored, errors.Join(errs...)
}

// Start restores scheduler actors and loads the configured blueprint directory.
func (a *App) Start(ctx context.Context) error {
	if dir := a.Config.Blueprints.Dir; dir != "" {
		if _, err := a.LoadBlueprints(ctx, dir, a.Config.Blueprints.Tenant); err != nil {
			return err
		}
	}
	return a.Hub.Start(ctx)
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	opts := []httpAdapter.Option{
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithScheduler(a.Hub),
		httpAdapter.WithMetrics(a.Metrics),
		httpAdapter.WithStreams(a.Streams),
	}
	if len(a.Config.Telegram.Bots) > 0 {
		opts = append(opts, httpAdapter.WithTelegramWebhook(a.Config.BotToken))
	}
	return httpAdapter.NewHandler(a.Engine, opts...)
}

// Close stops the scheduler, drains pending events and releases storage.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Hub.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Events.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
