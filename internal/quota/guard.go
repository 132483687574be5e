package quota

import (
	"context"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
)

// LimitStore is the persistence contract the guard needs: provision-on-miss
// and an atomic decrement with a floor at zero.
type LimitStore interface {
	Ensure(ctx context.Context, userID string, imageQuota, videoQuota int) error
	Decrement(ctx context.Context, userID string, kind domain.ResourceType) (remaining int, ok bool, err error)
	Get(ctx context.Context, userID string) (*domain.GenerationLimit, error)
}

// Reservation is the outcome of one reserve call.
type Reservation struct {
	Allowed   bool
	Remaining int // -1 when unknown (storage failure under the leniency policy)
}

// Guard enforces reserve-then-attempt: the counter is decremented before the
// provider is invoked, so concurrent requests cannot outrun the quota.
type Guard struct {
	store      LimitStore
	imageQuota int
	videoQuota int
	logger     zerolog.Logger
}

// NewGuard builds a guard with the default per-resource quotas used when a
// user's limit row is provisioned on first use.
func NewGuard(store LimitStore, imageQuota, videoQuota int, logger zerolog.Logger) *Guard {
	if imageQuota <= 0 {
		imageQuota = 10
	}
	if videoQuota <= 0 {
		videoQuota = 5
	}
	return &Guard{store: store, imageQuota: imageQuota, videoQuota: videoQuota, logger: logger}
}

// Reserve checks and decrements the user's counter for the resource type.
//
// Storage failures do not block generation: the decrement is logged and the
// request proceeds. That leniency favors availability over strict enforcement
// and is a deliberate policy, not an oversight.
func (g *Guard) Reserve(ctx context.Context, userID string, kind domain.ResourceType) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	if err := g.store.Ensure(ctx, userID, g.imageQuota, g.videoQuota); err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("quota: provisioning failed, allowing request")
		return Reservation{Allowed: true, Remaining: -1}, nil
	}

	remaining, ok, err := g.store.Decrement(ctx, userID, kind)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("quota: decrement failed, allowing request")
		return Reservation{Allowed: true, Remaining: -1}, nil
	}
	if !ok {
		// Counter already at zero; nothing was mutated.
		return Reservation{Allowed: false, Remaining: 0}, nil
	}
	return Reservation{Allowed: true, Remaining: remaining}, nil
}

// Peek returns the user's current limits without mutating them.
func (g *Guard) Peek(ctx context.Context, userID string) (*domain.GenerationLimit, error) {
	if err := g.store.Ensure(ctx, userID, g.imageQuota, g.videoQuota); err != nil {
		return nil, err
	}
	return g.store.Get(ctx, userID)
}
