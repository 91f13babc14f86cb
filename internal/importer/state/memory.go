package state

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
)

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps states in process. It is used when no redis address
// is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]memoryItem
	locks map[string]time.Time
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System()
	}
	return &MemoryStore{
		clock: c,
		items: map[string]memoryItem{},
		locks: map[string]time.Time{},
	}
}

func (s *MemoryStore) Save(ctx context.Context, state *domain.State, ttl time.Duration) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.ID] = memoryItem{data: data, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*domain.State, error) {
	s.mu.Lock()
	item, ok := s.items[id]
	if ok && !s.clock.Now().Before(item.expiresAt) {
		delete(s.items, id)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return decode(item.data)
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if until, held := s.locks[id]; held && now.Before(until) {
		return nil, domain.ErrStateLocked
	}
	s.locks[id] = now.Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, id)
			s.mu.Unlock()
		})
	}, nil
}

// Sweep drops expired states and stale locks. It returns the number of
// states removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, item := range s.items {
		if !now.Before(item.expiresAt) {
			delete(s.items, id)
			removed++
		}
	}
	for id, until := range s.locks {
		if !now.Before(until) {
			delete(s.locks, id)
		}
	}
	return removed, nil
}
