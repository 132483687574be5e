package querycache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
)

// Kind names a cached result-set family.
type Kind string

const (
	KindEditedImages    Kind = "edited-images"
	KindSourceEdits     Kind = "edited-images-source"
	KindGeneratedVideos Kind = "generated-videos"
	KindTimeline        Kind = "timeline"
	KindTimelines       Kind = "timelines"
)

// Key scopes one cache entry, e.g. (edited-images, projectID) or
// (timeline, lineageID).
type Key struct {
	Kind  Kind
	Scope string
}

// Fetcher loads the authoritative server result set for a key.
type Fetcher func(ctx context.Context, key Key) ([]domain.Artifact, error)

type entry struct {
	items         []domain.Artifact
	populated     bool
	stale         bool
	subscribers   int
	refetchGen    int
	cancelRefetch context.CancelFunc
}

// Store holds read-through projections of server result sets with a
// speculative write window. The server remains the source of truth: every
// mutation ends in invalidation, and subscribed scopes are refetched so the
// optimistic guess is replaced by the authoritative result (which also picks
// up server-derived fields such as a newly assigned lineage id).
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	fetch   Fetcher
	logger  zerolog.Logger
}

// New builds a store around the given fetcher.
func New(fetch Fetcher, logger zerolog.Logger) *Store {
	return &Store{
		entries: make(map[Key]*entry),
		fetch:   fetch,
		logger:  logger,
	}
}

// Get returns the cached result set for key, fetching from the server when
// the entry is missing or stale.
func (s *Store) Get(ctx context.Context, key Key) ([]domain.Artifact, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.populated && !e.stale {
		items := cloneItems(e.items)
		s.mu.Unlock()
		return items, nil
	}
	s.mu.Unlock()
	return s.refetch(ctx, key)
}

// Subscribe marks a consumer as mounted on key. Mounted scopes are refetched
// immediately when a mutation commits.
func (s *Store) Subscribe(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureEntry(key).subscribers++
}

// Unsubscribe unmounts a consumer from key.
func (s *Store) Unsubscribe(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.subscribers > 0 {
		e.subscribers--
	}
}

// Invalidate marks entries stale so the next Get refetches.
func (s *Store) Invalidate(keys ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			e.stale = true
		}
	}
}

// snapshot is the explicit previous-state value used for rollback. An absent
// entry is a valid snapshot: rolling it back removes whatever the mutation
// speculated into place.
type snapshot struct {
	items   []domain.Artifact
	existed bool
}

// Mutation is one optimistic cache mutation in flight: snapshot, speculative
// apply, then exactly one of Commit or Rollback.
type Mutation struct {
	store          *Store
	keys           []Key
	invalidateOnly []Key
	snapshots      map[Key]snapshot
	settled        bool
}

// Begin starts a mutation over the given scopes. Any in-flight background
// refetch for those scopes is canceled so it cannot clobber the speculative
// state, then each entry's current value is snapshotted for rollback.
func (s *Store) Begin(keys ...Key) *Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &Mutation{store: s, keys: keys, snapshots: make(map[Key]snapshot, len(keys))}
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			if e.cancelRefetch != nil {
				e.cancelRefetch()
				e.cancelRefetch = nil
			}
			m.snapshots[key] = snapshot{items: cloneItems(e.items), existed: e.populated}
		} else {
			m.snapshots[key] = snapshot{existed: false}
		}
	}
	return m
}

// ApplyCreate prepends the artifact to every touched scope so the UI reflects
// the create before the server round-trip completes.
func (m *Mutation) ApplyCreate(a domain.Artifact) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, key := range m.keys {
		e := m.store.ensureEntry(key)
		if containsID(e.items, a.ID) {
			continue
		}
		e.items = append([]domain.Artifact{a}, e.items...)
		e.populated = true
	}
}

// ApplyDelete filters the artifact out of every touched scope. A cold scope
// with nothing cached is a no-op, not an error.
func (m *Mutation) ApplyDelete(artifactID string) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, key := range m.keys {
		e, ok := m.store.entries[key]
		if !ok || !e.populated {
			continue
		}
		kept := e.items[:0:0]
		for _, item := range e.items {
			if item.ID != artifactID {
				kept = append(kept, item)
			}
		}
		e.items = kept
	}
}

// AlsoInvalidate adds scopes that Commit and Rollback invalidate without
// snapshotting or speculative writes. Used for server-derived scopes such as
// the lineage timeline, which is only known after the row is persisted.
func (m *Mutation) AlsoInvalidate(keys ...Key) {
	m.invalidateOnly = append(m.invalidateOnly, keys...)
}

// Commit invalidates every touched scope and immediately refetches the ones
// with mounted consumers, replacing the optimistic guess with the
// authoritative server result. Refetch failures are logged, never surfaced:
// the optimistic state stays usable until the next natural refetch.
func (m *Mutation) Commit(ctx context.Context) {
	if m.settled {
		return
	}
	m.settled = true

	all := append(append([]Key(nil), m.keys...), m.invalidateOnly...)
	var refetchNow []Key
	m.store.mu.Lock()
	for _, key := range all {
		e, ok := m.store.entries[key]
		if !ok {
			continue
		}
		e.stale = true
		if e.subscribers > 0 {
			refetchNow = append(refetchNow, key)
		}
	}
	m.store.mu.Unlock()

	for _, key := range refetchNow {
		if _, err := m.store.refetch(ctx, key); err != nil {
			m.store.logger.Warn().
				Err(domain.WrapError(domain.KindCacheReconciliation, "refetch after commit", err)).
				Str("kind", string(key.Kind)).
				Str("scope", key.Scope).
				Msg("cache: reconciliation failed")
		}
	}
}

// Rollback restores every touched scope to its pre-mutation snapshot, then
// still invalidates so a later natural refetch self-heals even if a snapshot
// was absent when the mutation began.
func (m *Mutation) Rollback() {
	if m.settled {
		return
	}
	m.settled = true

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, key := range m.keys {
		snap := m.snapshots[key]
		if !snap.existed {
			// Nothing to restore; drop whatever was speculated.
			if e, ok := m.store.entries[key]; ok {
				e.items = nil
				e.populated = false
				e.stale = true
			}
			continue
		}
		e := m.store.ensureEntry(key)
		e.items = cloneItems(snap.items)
		e.populated = true
		e.stale = true
	}
	for _, key := range m.invalidateOnly {
		if e, ok := m.store.entries[key]; ok {
			e.stale = true
		}
	}
}

// refetch loads the authoritative result set and installs it unless the
// refetch was canceled by a newer mutation in the meantime.
func (s *Store) refetch(ctx context.Context, key Key) ([]domain.Artifact, error) {
	if s.fetch == nil {
		return nil, domain.NewError(domain.KindCacheReconciliation, "no fetcher configured")
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	e := s.ensureEntry(key)
	if e.cancelRefetch != nil {
		e.cancelRefetch()
	}
	e.refetchGen++
	gen := e.refetchGen
	e.cancelRefetch = cancel
	s.mu.Unlock()

	items, err := s.fetch(fetchCtx, key)
	abandoned := fetchCtx.Err() != nil
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.refetchGen == gen {
		e.cancelRefetch = nil
	}
	if err != nil {
		return nil, err
	}
	if abandoned || e.refetchGen != gen {
		// Canceled or superseded by a newer mutation; its state wins.
		return cloneItems(e.items), nil
	}
	e.items = cloneItems(items)
	e.populated = true
	e.stale = false
	return items, nil
}

func (s *Store) ensureEntry(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func containsID(items []domain.Artifact, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func cloneItems(items []domain.Artifact) []domain.Artifact {
	if items == nil {
		return nil
	}
	out := make([]domain.Artifact, len(items))
	copy(out, items)
	return out
}
