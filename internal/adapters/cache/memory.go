package cache

import (
	"context"
	"sync"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
)

// MemorySnapshotStore é usado quando nenhum Redis foi configurado (uma réplica só).
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
}

type memoryItem struct {
	snap      domain.SessionSnapshot
	expiresAt time.Time
}

func NewMemorySnapshotStore(ttl time.Duration) *MemorySnapshotStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemorySnapshotStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]memoryItem),
	}
}

func (s *MemorySnapshotStore) Save(_ context.Context, snap domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[snap.SessionID]; ok && cur.snap.Version > snap.Version {
		return nil
	}
	s.items[snap.SessionID] = memoryItem{snap: snap, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySnapshotStore) Get(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	s.mu.RLock()
	item, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok || s.now().After(item.expiresAt) {
		return nil, nil
	}
	snap := item.snap
	return &snap, nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.items, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemorySnapshotStore) Ping(context.Context) error { return nil }
