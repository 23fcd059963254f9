// Package app wires configuration into the store, dispatcher and HTTP API.
package app

import (
	"context"
	"fmt"

	"enrollment-sync/internal/api"
	"enrollment-sync/internal/api/handler"
	"enrollment-sync/internal/config"
	"enrollment-sync/internal/pipeline"
	"enrollment-sync/internal/store"
	"enrollment-sync/internal/transport"
	"enrollment-sync/pkg/logging"
	"enrollment-sync/pkg/router"
)

// App holds the running components.
type App struct {
	Config     *config.Config
	Store      store.Store
	Dispatcher *pipeline.Dispatcher
}

// New opens the configured store and builds the dispatcher. The dispatcher
// workers are not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := transport.New(transport.Options{
		Timeout:   cfg.Fetch.Timeout,
		RateLimit: cfg.Fetch.RateLimit,
		Retry:     cfg.Retry,
	})
	reconciler := pipeline.NewReconciler(st, pipeline.NewNormalizer(cfg.Mapping), cfg.Ingest.ReconcileConfig)
	dispatcher := pipeline.NewDispatcher(pipeline.NewHTTPFetcher(client), st, reconciler, cfg.Ingest.Config)

	logging.FromContext(ctx).Debug().
		Str("backend", cfg.Store.Backend).
		Int("size_threshold", cfg.Ingest.SizeThreshold).
		Int("chunk_size", cfg.Ingest.ChunkSize).
		Msg("Application initialized")

	return &App{Config: cfg, Store: st, Dispatcher: dispatcher}, nil
}

// Router builds the HTTP router with every API route registered.
func (a *App) Router() *router.Router {
	r := router.New()
	r.Use(router.Recover, router.CORS(a.Config.Server.CORSOrigins...))
	api.RegisterRoutes(r, handler.New(a.Dispatcher, a.Store))
	return r
}

// Close stops the workers and closes the store.
func (a *App) Close() error {
	a.Dispatcher.Stop()
	return a.Store.Close()
}
