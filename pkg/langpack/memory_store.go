package langpack

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process development.
type MemoryStore struct {
	mu    sync.RWMutex
	packs map[string]*LangPack
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{packs: make(map[string]*LangPack)}
}

func (s *MemoryStore) Get(ctx context.Context, uuid string) (*LangPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lp, ok := s.packs[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return lp.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*LangPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var packs []*LangPack
	for _, lp := range s.packs {
		if filter.Locale != "" && lp.Locale != filter.Locale {
			continue
		}
		if filter.ActiveOnly && !lp.Active {
			continue
		}
		packs = append(packs, lp.Clone())
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].Locale < packs[j].Locale })
	return packs, nil
}

func (s *MemoryStore) Publish(ctx context.Context, pack *LangPack, expectedFileVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	current, exists := s.packs[pack.UUID]
	if exists {
		if current.FileVersion != expectedFileVersion {
			return ErrStale
		}
	} else if expectedFileVersion != 0 {
		return ErrStale
	}

	stored := pack.Clone()
	stored.ModifiedAt = now
	if exists {
		stored.CreatedAt = current.CreatedAt
		stored.Active = current.Active
	} else {
		stored.CreatedAt = now
	}
	s.packs[pack.UUID] = stored
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, uuid string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, ok := s.packs[uuid]
	if !ok {
		return ErrNotFound
	}
	lp.Active = active
	lp.ModifiedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packs[uuid]; !ok {
		return ErrNotFound
	}
	delete(s.packs, uuid)
	return nil
}
