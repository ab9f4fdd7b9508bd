package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/MikeSquared-Agency/rehearse/internal/auth"
	"github.com/MikeSquared-Agency/rehearse/internal/backend"
	"github.com/MikeSquared-Agency/rehearse/internal/catalog"
	"github.com/MikeSquared-Agency/rehearse/internal/config"
	"github.com/MikeSquared-Agency/rehearse/internal/events"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/logger"
	"github.com/MikeSquared-Agency/rehearse/internal/state"
)

// app holds what every command shares.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	store   state.Store
	client  *backend.Client
	auth    *auth.Service
	results *interview.Results
	session *state.Namespace
	catalog *catalog.Catalog
}

func loadConfig() config.Config {
	cfg := config.Load()
	if flagBackend != "" {
		cfg.BackendURL = flagBackend
	}
	if flagStateDir != "" {
		cfg.StateDir = flagStateDir
	}
	if flagStore != "" {
		cfg.StoreBackend = flagStore
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg
}

func newApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	log := logger.New(cfg.LogLevel)

	store, err := state.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, log)
	session := state.Session(store, cfg.SessionTTL)
	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		client:  client,
		auth:    auth.NewService(client, store, cfg.SessionTTL, log),
		results: interview.NewResults(session),
		session: session,
		catalog: cat,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("close state store")
	}
}

// requireSession checks the login gate and attaches the token to backend
// calls.
func (a *app) requireSession(ctx context.Context) (*auth.Session, error) {
	sess, err := a.auth.Current(ctx)
	if err != nil {
		return nil, err
	}
	a.client.SetToken(sess.Token)
	return sess, nil
}

// publisher returns a NATS publisher when NATS_URL is set. The returned
// close func is always safe to call.
func (a *app) publisher() (events.Publisher, func()) {
	if a.cfg.NatsURL == "" {
		return events.Discard{}, func() {}
	}
	nc, err := events.NewNATSClient(a.cfg.NatsURL, a.cfg.NatsToken, a.log)
	if err != nil {
		a.log.WithError(err).Warn("NATS unavailable, progress stays local")
		return events.Discard{}, func() {}
	}
	return nc, nc.Close
}

// withApp builds the app for one command run.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// tokenGate checks the stored session for each companion request.
type tokenGate struct {
	app *app
}

func (g *tokenGate) Current(ctx context.Context) (*auth.Session, error) {
	return g.app.requireSession(ctx)
}
