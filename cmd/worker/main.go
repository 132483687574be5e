package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mediaforge/internal/adapter/repo"
	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/storage"
)

const (
	sweepInterval = 10 * time.Minute

	// Objects younger than this are left alone even when no row references
	// them: the materializer writes the object before the row exists.
	orphanGracePeriod = time.Hour

	staleVideoCutoffMinutes = 30
)

type sweeper struct {
	logger    infra.Logger
	artifacts *repo.ArtifactRepositoryPG
	store     *storage.FileStore
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	store, err := storage.NewFileStore(storage.Options{
		BasePath: cfg.StoragePath,
		BaseURL:  cfg.StorageBaseURL,
		Secret:   cfg.JWTSecret,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage init failed")
	}

	s := &sweeper{
		logger:    logger,
		artifacts: repo.NewArtifactRepository(runner),
		store:     store,
	}

	logger.Info().Dur("interval", sweepInterval).Msg("worker: sweeping")
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	if err := s.failStaleVideos(ctx); err != nil {
		s.logger.Error().Err(err).Msg("worker: stale video sweep failed")
	}
	if err := s.sweepOrphans(ctx); err != nil {
		s.logger.Error().Err(err).Msg("worker: orphan sweep failed")
	}
}

// failStaleVideos moves videos stuck in processing past the cutoff to failed
// so clients stop showing an indefinite spinner.
func (s *sweeper) failStaleVideos(ctx context.Context) error {
	ids, err := s.artifacts.ListStaleProcessingVideos(ctx, staleVideoCutoffMinutes)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.artifacts.UpdateVideoStatus(ctx, id, domain.ArtifactStatusFailed); err != nil {
			s.logger.Warn().Err(err).Str("video_id", id).Msg("worker: failing stale video")
			continue
		}
		s.logger.Info().Str("video_id", id).Msg("worker: stale processing video failed out")
	}
	return nil
}

// sweepOrphans deletes stored objects no artifact row references, skipping
// anything inside the grace period.
func (s *sweeper) sweepOrphans(ctx context.Context) error {
	referenced, err := s.artifacts.ListStorageKeys(ctx)
	if err != nil {
		return err
	}

	var orphans []string
	err = s.store.Walk(func(key string) error {
		if _, ok := referenced[key]; ok {
			return nil
		}
		info, err := os.Stat(filepath.Join(s.store.BasePath(), filepath.FromSlash(key)))
		if err != nil || time.Since(info.ModTime()) < orphanGracePeriod {
			return nil
		}
		orphans = append(orphans, key)
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range orphans {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("worker: orphan delete failed")
			continue
		}
		s.logger.Info().Str("key", key).Msg("worker: orphan object removed")
	}
	return nil
}
