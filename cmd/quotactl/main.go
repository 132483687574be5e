package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediaforge/internal/adapter/repo"
	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
)

func main() {
	var (
		userFlag   string
		imagesFlag int
		videosFlag int
		showFlag   bool
	)

	flag.StringVar(&userFlag, "user", "", "user ID to inspect or update (UUID)")
	flag.IntVar(&imagesFlag, "images", -1, "image credits to set (omit or <0 to keep current value)")
	flag.IntVar(&videosFlag, "videos", -1, "video credits to set (omit or <0 to keep current value)")
	flag.BoolVar(&showFlag, "show", false, "print the user's current limits and exit")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if !showFlag && imagesFlag < 0 && videosFlag < 0 {
		exitWithError(errors.New("nothing to do: pass -show, -images or -videos"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "quotactl").Logger()
	limits := repo.NewLimitRepository(infra.NewSQLRunner(pool, logger))

	current, err := limits.Get(ctx, userID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			current = &domain.GenerationLimit{UserID: userID}
		} else {
			exitWithError(fmt.Errorf("failed to load limits: %w", err))
		}
	}

	if showFlag && imagesFlag < 0 && videosFlag < 0 {
		printLimit(current)
		return
	}

	next := *current
	if imagesFlag >= 0 {
		next.ImagesRemaining = imagesFlag
		if next.ImagesLimit < imagesFlag {
			next.ImagesLimit = imagesFlag
		}
	}
	if videosFlag >= 0 {
		next.VideosRemaining = videosFlag
		if next.VideosLimit < videosFlag {
			next.VideosLimit = videosFlag
		}
	}

	updated, err := limits.Set(ctx, next)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update limits: %w", err))
	}
	printLimit(updated)
}

func printLimit(l *domain.GenerationLimit) {
	fmt.Printf("user %s\n", l.UserID)
	fmt.Printf("  images: %d/%d remaining\n", l.ImagesRemaining, l.ImagesLimit)
	fmt.Printf("  videos: %d/%d remaining\n", l.VideosRemaining, l.VideosLimit)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "quotactl: %v\n", err)
	os.Exit(1)
}
