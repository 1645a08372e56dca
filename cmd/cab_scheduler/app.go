package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/catalog"
	"github.com/jonathan/cab-scheduler/internal/config"
	"github.com/jonathan/cab-scheduler/internal/db"
	"github.com/jonathan/cab-scheduler/internal/fetch"
	"github.com/jonathan/cab-scheduler/internal/metadata"
	"github.com/jonathan/cab-scheduler/internal/observability"
	"github.com/jonathan/cab-scheduler/internal/offerings"
	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/schedule"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	fetch  *fetch.Options
}

// loadApp reads and validates configuration and builds the logger.
func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backend != "" {
		cfg.MetadataBackend = backend
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	opts := fetch.DefaultOptions()
	opts.Timeout = timeout
	return &app{cfg: cfg, logger: logger, fetch: opts}, nil
}

// store opens the configured metadata backend. The returned func releases
// its resources.
func (a *app) store(ctx context.Context) (metadata.Store, func(), error) {
	switch a.cfg.MetadataBackend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		return metadata.NewPostgresStore(database), database.Close, nil
	case config.BackendMemory:
		a.logger.Warn("using in-memory metadata store; preferences are lost on exit")
		return metadata.NewMemoryStore(), func() {}, nil
	default:
		return metadata.NewClerkStore(a.cfg.ClerkAPIURL, a.cfg.ClerkSecretKey, a.fetch), func() {}, nil
	}
}

func (a *app) offerings() *offerings.Cache {
	return offerings.New(catalog.NewClient(a.cfg.CatalogURL, a.fetch), &offerings.Config{
		Terms:  a.cfg.Terms(),
		Logger: a.logger.Named("offerings"),
	})
}

func (a *app) scheduler() *schedule.Client {
	return schedule.NewClient(a.cfg.GeneratorURL, &schedule.Config{
		Term:    types.Term(a.cfg.GenerateTerm),
		Options: a.fetch,
		Logger:  a.logger.Named("schedule"),
	})
}

// preferenceOptions maps the write-back settings. A zero minimum interval
// in config disables the limit, which Options spells as negative.
func (a *app) preferenceOptions() (*preferences.Options, error) {
	debounce, err := a.cfg.Debounce()
	if err != nil {
		return nil, err
	}
	minInterval, err := a.cfg.MinInterval()
	if err != nil {
		return nil, err
	}
	if minInterval == 0 {
		minInterval = -1
	}
	return &preferences.Options{
		Debounce:    debounce,
		MinInterval: minInterval,
		Logger:      a.logger.Named("preferences"),
	}, nil
}

// loadManager returns a loaded preference manager for userID.
func (a *app) loadManager(ctx context.Context, store metadata.Store, userID string) (*preferences.Manager, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("--user must not be empty")
	}
	opts, err := a.preferenceOptions()
	if err != nil {
		return nil, err
	}
	m := preferences.NewManager(userID, store, opts)
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.Load(loadCtx); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}
