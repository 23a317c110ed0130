package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
)

type MemoryRecordStore struct {
	mu      sync.RWMutex
	records []domain.MemoryRecord
	index   map[uuid.UUID]int
	now     func() time.Time
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{index: make(map[uuid.UUID]int), now: time.Now}
}

func (s *MemoryRecordStore) Create(ctx context.Context, m *domain.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.index[m.ID] = len(s.records)
	s.records = append(s.records, *m)
	return nil
}

// ListRecentByBelief returns the newest records touching beliefID, newest first.
func (s *MemoryRecordStore) ListRecentByBelief(ctx context.Context, tenantID uuid.UUID, beliefID uuid.UUID, limit int) ([]domain.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MemoryRecord
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		r := s.records[i]
		if r.TenantID != tenantID {
			continue
		}
		for _, id := range r.BeliefIDs {
			if id == beliefID {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryRecordStore) UpdateRetention(ctx context.Context, weights map[uuid.UUID]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range weights {
		if _, ok := s.index[id]; !ok {
			return store.ErrNotFound
		}
	}
	for id, w := range weights {
		s.records[s.index[id]].RetentionWeight = w
	}
	return nil
}

func (s *MemoryRecordStore) Recall(ctx context.Context, tenantID uuid.UUID, embedding []float32, topK int) ([]domain.MemoryRecordWithScore, error) {
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MemoryRecordWithScore
	for _, r := range s.records {
		if r.TenantID != tenantID || len(r.Embedding) == 0 {
			continue
		}
		out = append(out, domain.MemoryRecordWithScore{MemoryRecord: r, Score: cosine(embedding, r.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *MemoryRecordStore) Prune(ctx context.Context, cutoff time.Time, minWeight float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) && r.RetentionWeight < minWeight {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	s.index = make(map[uuid.UUID]int, len(kept))
	for i, r := range kept {
		s.index[r.ID] = i
	}
	return removed, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
