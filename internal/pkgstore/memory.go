package pkgstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.RWMutex
	pkgs map[string]Package
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pkgs: map[string]Package{}, now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, p Package) (Package, error) {
	p, err := prepareNew(p, s.now())
	if err != nil {
		return Package{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pkgs[p.ID]; ok {
		return Package{}, ErrInvalid
	}
	s.pkgs[p.ID] = p
	return p, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pkgs[id]
	if !ok {
		return Package{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]Package, error) {
	limit, offset = normalizePage(limit, offset)
	s.mu.RLock()
	out := make([]Package, 0, len(s.pkgs))
	for _, p := range s.pkgs {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return []Package{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, p Package) (Package, error) {
	if err := check(p); err != nil {
		return Package{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.pkgs[p.ID]
	if !ok {
		return Package{}, ErrNotFound
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = s.now().UTC()
	s.pkgs[p.ID] = p
	return p, nil
}

func (s *MemoryStore) SetProgress(_ context.Context, id string, pr Progress) (Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pkgs[id]
	if !ok {
		return Package{}, ErrNotFound
	}
	p, err := applyProgress(p, pr)
	if err != nil {
		return Package{}, err
	}
	p.UpdatedAt = s.now().UTC()
	s.pkgs[id] = p
	return p, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pkgs[id]; !ok {
		return ErrNotFound
	}
	delete(s.pkgs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
