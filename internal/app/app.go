// Package app wires configuration into the store, identity provider,
// extractor and change hub shared by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"studyplan/internal/config"
	"studyplan/internal/db"
	"studyplan/internal/domain"
	"studyplan/internal/engine"
	"studyplan/internal/events"
	"studyplan/internal/extract"
	"studyplan/internal/identity"
	"studyplan/internal/store"
	"studyplan/internal/store/mongostore"
	"studyplan/internal/store/sqlstore"
)

type App struct {
	Config    *config.Config
	Workspace string
	Store     store.Store
	// Events is nil when the backend keeps no audit log.
	Events    store.EventLog
	Hub       *events.Hub
	Identity  identity.Provider
	Extractor extract.Extractor
	Logger    *log.Logger
	Now       func() time.Time

	closers []io.Closer
}

type Options struct {
	Workspace string
	// DBPath overrides the workspace SQLite location.
	DBPath string
	Logger *log.Logger
	Now    func() time.Time
	// Extractor replaces the configured extraction provider.
	Extractor extract.Extractor
}

// Open builds the application from cfg. The returned App owns the store.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &App{
		Config:    cfg,
		Workspace: opts.Workspace,
		Hub:       events.NewHub(),
		Logger:    opts.Logger,
		Now:       opts.Now,
	}
	if err := a.openStore(ctx, opts); err != nil {
		return nil, err
	}
	a.Identity = identity.Provider{
		Accounts: a.Store,
		Secret:   cfg.Auth.JWTSecret,
		TokenTTL: cfg.Auth.TokenTTL.Std(),
		Cost:     cfg.Auth.BcryptCost,
		Now:      opts.Now,
	}
	a.Extractor = opts.Extractor
	if a.Extractor == nil {
		a.Extractor = a.newExtractor()
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, opts Options) error {
	switch a.Config.Store.Backend {
	case "mongo":
		st, err := mongostore.Open(ctx, mongostore.Config{URI: a.Config.Store.MongoURI, Database: a.Config.Store.MongoDatabase})
		if err != nil {
			return fmt.Errorf("open mongo store: %w", err)
		}
		a.Store = st
	default:
		st, err := sqlstore.Open(ctx, db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		st.Now = opts.Now
		a.Store = st
		a.Events = st
	}
	return nil
}

func (a *App) newExtractor() extract.Extractor {
	x, err := extract.NewAnthropic(extract.Config{
		APIKey:     a.Config.Extract.APIKey,
		Model:      a.Config.Extract.Model,
		MaxTokens:  a.Config.Extract.MaxTokens,
		Timeout:    a.Config.Extract.Timeout.Std(),
		MaxRetries: 2,
		Logger:     a.Logger,
	})
	if errors.Is(err, domain.ErrNotConfigured) {
		return extract.Unconfigured{}
	}
	return x
}

// Strategy returns the configured refresh strategy, falling back to poll.
func (a *App) Strategy() engine.Strategy {
	s, err := engine.ParseStrategy(a.Config.Sync.Strategy)
	if err != nil {
		a.Logger.Printf("%v; using poll", err)
		return engine.StrategyPoll
	}
	return s
}

// NewPlanner builds a planner for session over the shared store and hub.
func (a *App) NewPlanner(session *identity.Session, prefetch bool) *engine.Planner {
	return engine.New(a.Store, session, engine.Options{
		Freshness: a.Config.Cache.Freshness.Std(),
		Timeout:   a.Config.Store.Timeout.Std(),
		Strategy:  a.Strategy(),
		Hub:       a.Hub,
		Logger:    a.Logger,
		Now:       a.Now,
		Prefetch:  prefetch,
	})
}

// AddCloser registers c to be closed with the app.
func (a *App) AddCloser(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *App) Close() error {
	a.Hub.Close()
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
