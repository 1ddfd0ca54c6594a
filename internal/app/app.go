package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"shiftbot/internal/calendar"
	"shiftbot/internal/config"
	"shiftbot/internal/db"
	"shiftbot/internal/document"
	"shiftbot/internal/filestore"
	"shiftbot/internal/handler"
	"shiftbot/internal/mailbox"
	"shiftbot/internal/metrics"
	"shiftbot/internal/pipeline"
	"shiftbot/internal/repository"
	"shiftbot/internal/roster"
	"shiftbot/internal/router"
	"shiftbot/internal/runlock"
	"shiftbot/internal/runlog"
	"shiftbot/internal/scheduler"
	"shiftbot/internal/service/intake"
	"shiftbot/internal/service/parse"
	"shiftbot/internal/service/publish"
)

// App holds the wired components of one process
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Repo     *repository.Repository
	Pipeline *pipeline.Pipeline
	Registry *prometheus.Registry

	fetcher mailbox.Fetcher
	redis   *redis.Client
}

// Run initializes the application and either performs one pipeline run or,
// with the scheduler enabled, serves until interrupted.
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := ConfigureLogging(cfg.Log); err != nil {
		return err
	}

	logrus.Info("Starting shiftbot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.Scheduler.Enabled {
		return a.Pipeline.Run(ctx)
	}
	return a.Serve(ctx)
}

// ConfigureLogging applies the configured level and format to the standard
// logger
func ConfigureLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// New wires every component from configuration
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	fetcher, err := newFetcher(ctx, &cfg.Mail)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(ctx, &cfg.Calendar)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Roster.TimeLocation()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		DB:       dbConn,
		Repo:     repo,
		Registry: prometheus.NewRegistry(),
		fetcher:  fetcher,
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	locker, err := a.newLocker(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	in := intake.NewService(repo, filestore.New(cfg.Storage.Dir), fetcher, cfg.Intake)
	ps := parse.NewService(repo, document.NewPDFExtractor(),
		roster.NewParser(roster.DefaultLayout(), cfg.Roster.Person, loc),
		parse.Options{
			Timezone:     cfg.Roster.Timezone,
			Location:     cfg.Roster.Location,
			MaxDocuments: cfg.Roster.MaxDocumentsPerRun,
		})
	pub := publish.NewService(repo, transport, cfg.Calendar.Name)

	a.Pipeline = pipeline.New(locker, &runlog.Tracker{Store: repo}, metrics.NewMetrics(a.Registry),
		pipeline.Step{Name: "intake", Stage: in},
		pipeline.Step{Name: "parse", Stage: ps},
		pipeline.Step{Name: "publish", Stage: pub},
	)
	return a, nil
}

func newFetcher(ctx context.Context, cfg *config.MailConfig) (mailbox.Fetcher, error) {
	switch cfg.Provider {
	case "gmail":
		f, err := mailbox.NewGmailFetcher(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail API fetcher: %w", err)
		}
		logrus.Info("Using Gmail API for email fetching")
		return f, nil
	default:
		logrus.Info("Using IMAP for email fetching")
		return mailbox.NewIMAPFetcher(cfg), nil
	}
}

func newTransport(ctx context.Context, cfg *config.CalendarConfig) (calendar.Transport, error) {
	switch cfg.Provider {
	case "gcal":
		t, err := calendar.NewGoogle(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logrus.Info("Publishing to Google Calendar")
		return t, nil
	default:
		t, err := calendar.NewCalDAV(cfg, nil)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Publishing over CalDAV to %s", cfg.CalDAVURL)
		return t, nil
	}
}

// newLocker always guards the process and adds the Redis lock when a URL
// is configured
func (a *App) newLocker(cfg *config.RedisConfig) (runlock.Locker, error) {
	local := runlock.NewLocal()
	if cfg.URL == "" {
		return local, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	a.redis = redis.NewClient(opts)
	logrus.Infof("Using Redis run lock %s", cfg.LockKey)
	return runlock.Chain{local, runlock.NewRedis(a.redis, cfg.LockKey, cfg.LockTTL)}, nil
}

// Serve starts the scheduler and the HTTP server and blocks until ctx ends
func (a *App) Serve(ctx context.Context) error {
	sched := scheduler.New(&a.Config.Scheduler, a.Pipeline)

	h := handler.NewHandlers(a.Repo, sched, a.Pipeline, a.Registry)
	srv := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		err = fmt.Errorf("HTTP server error: %w", err)
	}

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return err
}

// Close releases transports and connections
func (a *App) Close() {
	if a.fetcher != nil {
		if err := a.fetcher.Close(); err != nil {
			logrus.Errorf("Failed to close fetcher: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logrus.Errorf("Failed to close Redis client: %v", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}
	}
}
