package quota

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
)

// fakeLimitStore mimics the atomic decrement-with-floor semantics of the SQL
// layer, including its concurrency behavior.
type fakeLimitStore struct {
	mu     sync.Mutex
	limits map[string]*domain.GenerationLimit

	imageQuota int
	videoQuota int

	ensureErr    error
	decrementErr error
}

func newFakeLimitStore() *fakeLimitStore {
	return &fakeLimitStore{limits: map[string]*domain.GenerationLimit{}}
}

func (f *fakeLimitStore) Ensure(ctx context.Context, userID string, imageQuota, videoQuota int) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.limits[userID]; !ok {
		f.limits[userID] = &domain.GenerationLimit{
			UserID:          userID,
			ImagesRemaining: imageQuota,
			ImagesLimit:     imageQuota,
			VideosRemaining: videoQuota,
			VideosLimit:     videoQuota,
		}
	}
	return nil
}

func (f *fakeLimitStore) Decrement(ctx context.Context, userID string, kind domain.ResourceType) (int, bool, error) {
	if f.decrementErr != nil {
		return 0, false, f.decrementErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[userID]
	if !ok {
		return 0, false, nil
	}
	if kind == domain.ResourceVideo {
		if l.VideosRemaining <= 0 {
			return 0, false, nil
		}
		l.VideosRemaining--
		return l.VideosRemaining, true, nil
	}
	if l.ImagesRemaining <= 0 {
		return 0, false, nil
	}
	l.ImagesRemaining--
	return l.ImagesRemaining, true, nil
}

func (f *fakeLimitStore) Get(ctx context.Context, userID string) (*domain.GenerationLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[userID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "generation limit not found")
	}
	copied := *l
	return &copied, nil
}

func TestReserveProvisionsDefaultsOnFirstUse(t *testing.T) {
	store := newFakeLimitStore()
	guard := NewGuard(store, 10, 5, zerolog.Nop())

	res, err := guard.Reserve(context.Background(), "u-1", domain.ResourceImage)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("first reserve denied")
	}
	if res.Remaining != 9 {
		t.Fatalf("remaining = %d, want 9", res.Remaining)
	}
}

func TestReserveDeniesAtZeroWithoutMutation(t *testing.T) {
	store := newFakeLimitStore()
	guard := NewGuard(store, 1, 5, zerolog.Nop())
	ctx := context.Background()

	if res, _ := guard.Reserve(ctx, "u-1", domain.ResourceImage); !res.Allowed || res.Remaining != 0 {
		t.Fatalf("first reserve = %+v, want allowed with 0 remaining", res)
	}

	res, err := guard.Reserve(ctx, "u-1", domain.ResourceImage)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Allowed {
		t.Fatalf("reserve allowed past zero")
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}

	limit, err := guard.Peek(ctx, "u-1")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if limit.ImagesRemaining != 0 {
		t.Fatalf("denied reserve mutated the counter: %d", limit.ImagesRemaining)
	}
}

func TestReserveTracksResourceTypesIndependently(t *testing.T) {
	store := newFakeLimitStore()
	guard := NewGuard(store, 1, 5, zerolog.Nop())
	ctx := context.Background()

	if res, _ := guard.Reserve(ctx, "u-1", domain.ResourceImage); !res.Allowed {
		t.Fatalf("image reserve denied")
	}
	if res, _ := guard.Reserve(ctx, "u-1", domain.ResourceImage); res.Allowed {
		t.Fatalf("image reserve allowed past quota")
	}
	res, err := guard.Reserve(ctx, "u-1", domain.ResourceVideo)
	if err != nil {
		t.Fatalf("video reserve: %v", err)
	}
	if !res.Allowed || res.Remaining != 4 {
		t.Fatalf("video reserve = %+v, want allowed with 4 remaining", res)
	}
}

func TestReserveNeverOversellsUnderConcurrency(t *testing.T) {
	store := newFakeLimitStore()
	guard := NewGuard(store, 5, 5, zerolog.Nop())
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	allowed := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := guard.Reserve(ctx, "u-1", domain.ResourceImage)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			allowed <- res.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	var granted int
	for ok := range allowed {
		if ok {
			granted++
		}
	}
	if granted != 5 {
		t.Fatalf("granted = %d, want exactly 5", granted)
	}
}

func TestReserveAllowsWhenStoreFails(t *testing.T) {
	store := newFakeLimitStore()
	store.ensureErr = errors.New("connection refused")
	guard := NewGuard(store, 10, 5, zerolog.Nop())

	res, err := guard.Reserve(context.Background(), "u-1", domain.ResourceImage)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("storage failure blocked generation")
	}
	if res.Remaining != -1 {
		t.Fatalf("remaining = %d, want -1 for unknown", res.Remaining)
	}
}

func TestReserveAllowsWhenDecrementFails(t *testing.T) {
	store := newFakeLimitStore()
	store.decrementErr = errors.New("deadlock detected")
	guard := NewGuard(store, 10, 5, zerolog.Nop())

	res, err := guard.Reserve(context.Background(), "u-1", domain.ResourceImage)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !res.Allowed || res.Remaining != -1 {
		t.Fatalf("reserve = %+v, want lenient allow", res)
	}
}
