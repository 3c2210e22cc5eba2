package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"groupchat/api"
)

// Handler builds the HTTP API over the app's service.
func (a *App) Handler() http.Handler {
	h := api.NewHandler(a.Service, a.Engine, a.Store,
		api.WithLogger(a.Logger.With().Str("component", "api").Logger()),
	)
	return api.NewRouter(a.Logger, h, a.Config.Server.AllowedOrigins)
}

// Serve runs the HTTP API, and the generation worker when enabled, until ctx
// is cancelled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config.Server
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		// event streams stay open, so no write timeout
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", cfg.Addr).Str("env", a.Config.Env).Msg("starting groupchat server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("server forced to shutdown")
			return err
		}
		a.Logger.Info().Msg("server stopped")
		return nil
	})

	if a.Config.Worker.Enabled {
		g.Go(func() error {
			return a.Worker.Run(gctx)
		})
	}

	return g.Wait()
}
