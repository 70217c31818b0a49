package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"UCGInformation/internal/config"
	"UCGInformation/internal/domain"
	"UCGInformation/internal/infrastructure/discord"
	"UCGInformation/internal/infrastructure/httpclient"
	"UCGInformation/internal/infrastructure/metrics"
	"UCGInformation/internal/infrastructure/parser"
	"UCGInformation/internal/infrastructure/scheduler"
	"UCGInformation/internal/infrastructure/storage"
	"UCGInformation/internal/infrastructure/timeline"
	"UCGInformation/internal/logging"
	"UCGInformation/internal/usecase"
)

// Application owns the long-lived resource handles and the relay wiring built on them.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sql.DB
	http     *httpclient.Client
	metrics  *metrics.Metrics
	notifier *discord.Notifier
	relay    *usecase.Relay
	commands *usecase.Commands
}

// New acquires the database pool and HTTP session and wires every component.
// Failures here are the only fatal ones.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	db, err := storage.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	app, err := NewWithDB(ctx, cfg, db, baseLogger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// NewWithDB wires the application on an open pool. The Application takes ownership
// of db on success; on error the caller still owns it.
func NewWithDB(ctx context.Context, cfg config.Config, db *sql.DB, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo := storage.NewPostgresRepository(db, cfg.Service)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	hc := httpclient.New(httpclient.Options{
		Timeout: cfg.HTTP.Timeout,
		Pacing:  cfg.HTTP.Pacing,
		Retries: cfg.HTTP.Retries,
	})
	hc.Acquire()

	m := metrics.New()

	scanner := parser.NewNewsScanner(hc, repo, cfg.Scraper.ListingURL, baseLogger.With("component", "scanner.news"))
	official := timeline.NewClient(timelineConfig(cfg.Timeline, cfg.Timeline.Official), hc, repo,
		baseLogger.With("component", "timeline.official"))
	environment := timeline.NewClient(timelineConfig(cfg.Timeline, cfg.Timeline.Environment), hc, repo,
		baseLogger.With("component", "timeline.environment"))

	notifier := discord.NewNotifier(cfg.Discord.BotToken, cfg.Discord.APIBase, map[domain.Destination]string{
		domain.DestinationOfficialInfo: cfg.Discord.OfficialInfoChannel,
		domain.DestinationEnvironment:  cfg.Discord.EnvironmentChannel,
		domain.DestinationNewCard:      cfg.Discord.NewCardChannel,
	})

	relay := usecase.NewRelay(usecase.RelayDeps{
		Articles:    scanner,
		Official:    official,
		Environment: environment,
		Repository:  repo,
		Notifier:    notifier,
		Metrics:     m,
		Logger:      baseLogger.With("component", "relay"),
	}, usecase.RelayOptions{
		TimelineInterval: cfg.Timeline.Interval,
		MaxResults:       cfg.Timeline.MaxResults,
		TitleAttempts:    cfg.Scraper.TitleAttempts,
	})

	commands := usecase.NewCommands(cfg.Discord.CommandPrefix, []string{
		cfg.Discord.OfficialInfoChannel,
		cfg.Discord.EnvironmentChannel,
		cfg.Discord.NewCardChannel,
	}, notifier, baseLogger.With("component", "commands"))

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		http:     hc,
		metrics:  m,
		notifier: notifier,
		relay:    relay,
		commands: commands,
	}, nil
}

func timelineConfig(t config.TimelineConfig, acct config.AccountConfig) timeline.Config {
	return timeline.Config{
		BaseURL:       t.BaseURL,
		AccountID:     acct.AccountID,
		BearerToken:   acct.BearerToken,
		Attempts:      t.Attempts,
		RateLimitStep: t.RateLimitStep,
	}
}

// Run starts the relay loop, the command gateway and the optional metrics listener,
// and blocks until ctx is cancelled or a component fails.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	sched := usecase.NewScheduler(scheduler.NewLoopScheduler(a.cfg.Relay.TickDelay), a.relay,
		a.logger.With("component", "scheduler"))
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()
		return sched.Stop(context.Background())
	})

	gateway := &discord.Gateway{
		URL:   a.cfg.Discord.GatewayURL,
		Token: a.cfg.Discord.BotToken,
		OnMessage: func(ctx context.Context, msg discord.Message) {
			a.commands.Handle(ctx, msg.ChannelID, msg.Content, msg.FromBot)
		},
		Logger: a.logger.With("component", "gateway"),
	}
	g.Go(func() error {
		return ignoreCanceled(gateway.Run(gctx))
	})

	if a.cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return a.metrics.Serve(gctx, a.cfg.Metrics.Addr)
		})
	}

	a.logger.Info("bot is ready", "service", a.cfg.Service)
	return ignoreCanceled(g.Wait())
}

// RunOnce executes a single relay cycle.
func (a *Application) RunOnce(ctx context.Context) error {
	return usecase.NewScheduler(nil, a.relay, a.logger.With("component", "scheduler")).RunOnce(ctx)
}

// Close releases the HTTP session and the database pool.
func (a *Application) Close() error {
	a.http.Release()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
