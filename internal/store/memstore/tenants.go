package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
)

type TenantStore struct {
	mu     sync.RWMutex
	byHash map[string]*domain.Tenant
}

func NewTenantStore() *TenantStore {
	return &TenantStore{byHash: make(map[string]*domain.Tenant)}
}

func (s *TenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[t.APIKeyHash]; exists {
		return store.ErrConflict
	}
	t.ID = uuid.New()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.byHash[t.APIKeyHash] = &cp
	return nil
}

func (s *TenantStore) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byHash[apiKeyHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}
