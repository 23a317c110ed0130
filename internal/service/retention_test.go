package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionSweeper_Sweep(t *testing.T) {
	records := memstore.NewMemoryRecordStore()
	tenantID := uuid.New()
	beliefID := uuid.New()
	now := time.Now()

	add := func(age time.Duration, weight float64) uuid.UUID {
		rec := &domain.MemoryRecord{
			TenantID:        tenantID,
			BeliefIDs:       []uuid.UUID{beliefID},
			RetentionWeight: weight,
			CreatedAt:       now.Add(-age),
		}
		require.NoError(t, records.Create(context.Background(), rec))
		return rec.ID
	}
	oldFaint := add(48*time.Hour, 0.05)
	oldPeak := add(48*time.Hour, 0.9)
	recentFaint := add(time.Hour, 0.05)

	s := NewRetentionSweeper(records, RetentionConfig{MaxAge: 24 * time.Hour, MinWeight: 0.1}, testNopLogger())
	s.now = func() time.Time { return now }

	removed, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	left, err := records.ListRecentByBelief(context.Background(), tenantID, beliefID, 0)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, r := range left {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{oldPeak, recentFaint}, ids)
	assert.NotContains(t, ids, oldFaint)

	// Retention updates still find the surviving records after a prune.
	assert.NoError(t, records.UpdateRetention(context.Background(), map[uuid.UUID]float64{oldPeak: 0.8}))
}

func TestRetentionSweeper_StartStop(t *testing.T) {
	s := NewRetentionSweeper(memstore.NewMemoryRecordStore(), RetentionConfig{Interval: time.Millisecond}, testNopLogger())
	s.Start()
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	s.Stop()
}
