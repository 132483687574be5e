package repo

import (
	"context"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/sqlinline"
)

// LimitRepositoryPG persists per-user generation limits in PostgreSQL.
type LimitRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewLimitRepository constructs a limit repository over the given executor.
func NewLimitRepository(sql infra.SQLExecutor) *LimitRepositoryPG {
	return &LimitRepositoryPG{sql: sql}
}

// Ensure provisions the user's limit row with defaults when absent.
func (r *LimitRepositoryPG) Ensure(ctx context.Context, userID string, imageQuota, videoQuota int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QEnsureGenerationLimit, userID, imageQuota, videoQuota)
	return err
}

// Decrement performs the atomic decrement-with-floor-at-zero for one resource
// type. ok=false means the counter was already at zero and nothing changed.
func (r *LimitRepositoryPG) Decrement(ctx context.Context, userID string, kind domain.ResourceType) (int, bool, error) {
	query := sqlinline.QReserveImage
	if kind == domain.ResourceVideo {
		query = sqlinline.QReserveVideo
	}
	var remaining int
	if err := r.sql.QueryRow(ctx, query, userID).Scan(&remaining); err != nil {
		if infra.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return remaining, true, nil
}

// Get loads the user's limit row.
func (r *LimitRepositoryPG) Get(ctx context.Context, userID string) (*domain.GenerationLimit, error) {
	var limit domain.GenerationLimit
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationLimit, userID)
	if err := row.Scan(&limit.UserID, &limit.ImagesRemaining, &limit.ImagesLimit, &limit.VideosRemaining, &limit.VideosLimit); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.NewError(domain.KindNotFound, "generation limit not found")
		}
		return nil, err
	}
	return &limit, nil
}

// Set overwrites the user's limits, creating the row when needed.
func (r *LimitRepositoryPG) Set(ctx context.Context, limit domain.GenerationLimit) (*domain.GenerationLimit, error) {
	var out domain.GenerationLimit
	row := r.sql.QueryRow(ctx, sqlinline.QSetGenerationLimit,
		limit.UserID, limit.ImagesRemaining, limit.ImagesLimit, limit.VideosRemaining, limit.VideosLimit)
	if err := row.Scan(&out.UserID, &out.ImagesRemaining, &out.ImagesLimit, &out.VideosRemaining, &out.VideosLimit); err != nil {
		return nil, err
	}
	return &out, nil
}
