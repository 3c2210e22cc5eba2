// Package app assembles the service graph from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"groupchat/chat"
	"groupchat/config"
	"groupchat/intervention"
	"groupchat/lifecycle"
	"groupchat/model"
	"groupchat/provider"
	"groupchat/ratelimit"
	"groupchat/storage"
	"groupchat/worker"
)

// App is the wired service graph shared by the serve, worker and mcp
// commands.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    storage.Store
	Limiter  ratelimit.Limiter
	Provider model.Provider
	Engine   *intervention.Engine
	Service  *chat.Service
	Worker   *worker.Worker

	closers []func() error
}

// New connects the configured store, rate limiter and backend and builds
// everything on top of them. A backend that cannot be constructed is
// logged and left nil; AI replies then fall back to canned text.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	limiter, err := a.newLimiter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Limiter = limiter

	a.Provider = a.newProvider()

	a.Engine = intervention.NewEngine(
		intervention.WithProactiveChance(cfg.Intervention.ProactiveChance),
		intervention.WithLogger(logger.With().Str("component", "intervention").Logger()),
	)

	controller := lifecycle.NewController(a.Engine, store, a.newGenerator(),
		lifecycle.WithTimeout(cfg.Generation.Timeout),
		lifecycle.WithLogger(logger.With().Str("component", "lifecycle").Logger()),
	)
	dispatcher := lifecycle.NewDispatcher(controller,
		lifecycle.WithStagger(cfg.Generation.Stagger),
		lifecycle.WithDispatchLogger(logger.With().Str("component", "dispatcher").Logger()),
	)

	a.Service = chat.NewService(store, dispatcher,
		chat.WithHistoryLimit(cfg.Generation.HistoryLimit),
		chat.WithDefaultParticipants(cfg.Intervention.Participants),
		chat.WithLogger(logger.With().Str("component", "chat").Logger()),
	)

	a.Worker = worker.New(store, a.Provider, limiter,
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithPollInterval(cfg.Worker.PollInterval),
		worker.WithLogger(logger.With().Str("component", "worker").Logger()),
	)

	if cfg.Generation.Mode == "queued" && !cfg.Worker.Enabled {
		logger.Warn().Msg("queued generation without an embedded worker; run `groupchat worker` separately")
	}
	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "memory":
		a.Logger.Info().Msg("using in-memory store")
		return storage.NewMemoryStore(), nil
	case "sqlite":
		path := a.Config.SQLiteFile()
		if err := config.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		s, err := storage.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		a.Logger.Info().Str("path", path).Msg("opened SQLite store")
		return s, nil
	case "redis":
		s, err := storage.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.Logger.Info().Msg("connected to Redis")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

func (a *App) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	cfg := a.Config.RateLimit
	if cfg.Backend != "redis" {
		return ratelimit.NewMemory(cfg.Requests, cfg.Window), nil
	}

	if rs, ok := a.Store.(*storage.RedisStore); ok {
		return ratelimit.NewRedis(rs.Client(), cfg.Requests, cfg.Window), nil
	}

	opts, err := redis.ParseURL(a.Config.Storage.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedis(client, cfg.Requests, cfg.Window), nil
}

func (a *App) newProvider() model.Provider {
	cfg := a.Config.Provider
	if cfg.Type == "" || strings.EqualFold(cfg.Type, "none") {
		a.Logger.Warn().Msg("no generation backend configured; AI participants will use fallback replies")
		return nil
	}

	p, err := provider.NewProvider(provider.Config{
		Type:    provider.MapProviderIDToType(cfg.Type),
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Str("provider", cfg.Type).Msg("generation backend unavailable; AI participants will use fallback replies")
		return nil
	}
	a.Logger.Info().Str("provider", cfg.Type).Str("model", p.GetModel()).Msg("generation backend ready")
	return p
}

func (a *App) newGenerator() model.Generator {
	gen := a.Config.Generation
	if gen.Mode == "queued" {
		return provider.NewQueuedGenerator(a.Store,
			provider.WithPolling(gen.PollInterval, gen.PollTicks),
			provider.WithQueueLogger(a.Logger.With().Str("component", "queue").Logger()),
		)
	}
	return provider.NewRoleGenerator(a.Provider, a.Limiter,
		provider.WithGeneratorLogger(a.Logger.With().Str("component", "generator").Logger()),
	)
}
