package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mediaforge/internal/adapter/repo"
	"mediaforge/internal/domain"
	"mediaforge/internal/http/handlers"
	"mediaforge/internal/http/httpapi"
	"mediaforge/internal/infra"
	"mediaforge/internal/infra/geoip"
	"mediaforge/internal/materialize"
	"mediaforge/internal/middleware"
	"mediaforge/internal/orchestrator"
	"mediaforge/internal/polling"
	"mediaforge/internal/provider/dashscope"
	"mediaforge/internal/querycache"
	"mediaforge/internal/quota"
	"mediaforge/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	limits := repo.NewLimitRepository(runner)
	artifacts := repo.NewArtifactRepository(runner)

	store, err := storage.NewFileStore(storage.Options{
		BasePath: cfg.StoragePath,
		BaseURL:  cfg.StorageBaseURL,
		Secret:   cfg.JWTSecret,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	provider, err := dashscope.NewClient(dashscope.Options{
		APIKey:     cfg.DashScopeAPIKey,
		BaseURL:    cfg.DashScopeBaseURL,
		ImageModel: cfg.ImageModel,
		VideoModel: cfg.VideoModel,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize provider client")
	}

	cache := querycache.New(cacheFetcher(artifacts), logger)
	guard := quota.NewGuard(limits, cfg.ImageQuota, cfg.VideoQuota, logger)

	orch := &orchestrator.Orchestrator{
		Quota:        guard,
		Provider:     provider,
		Poller:       polling.New(cfg.PollInterval, cfg.PollMaxAttempts, logger),
		Materializer: materialize.New(store, logger),
		Artifacts:    artifacts,
		Cache:        cache,
		Logger:       logger,
	}

	app := &handlers.App{
		Config:       cfg,
		Logger:       logger,
		SQL:          runner,
		Orchestrator: orch,
		Provider:     provider,
		Quota:        guard,
		Artifacts:    artifacts,
		Cache:        cache,
		Store:        store,
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// cacheFetcher routes cache refetches to the authoritative repository query
// for each scope kind. Scope kinds that only exist for invalidation resolve
// to an empty set.
func cacheFetcher(artifacts *repo.ArtifactRepositoryPG) querycache.Fetcher {
	return func(ctx context.Context, key querycache.Key) ([]domain.Artifact, error) {
		switch key.Kind {
		case querycache.KindEditedImages:
			return artifacts.ListProjectImages(ctx, key.Scope)
		case querycache.KindSourceEdits:
			return artifacts.ListSourceImages(ctx, key.Scope)
		case querycache.KindGeneratedVideos:
			return artifacts.ListProjectVideos(ctx, key.Scope)
		case querycache.KindTimeline:
			return artifacts.ListTimeline(ctx, key.Scope)
		}
		return nil, nil
	}
}
