package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateQueue_PreservesSubmissionOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	b := f.addBelief(t, "k", orgScope("acme"), domain.CategoryCompetence, 0.9)

	// Success then failure ends at 0.85; the reverse order would end at 0.9.
	first, err := f.queue.Submit(ctx, f.event(b.ID, domain.SignalPositive, 1.0))
	require.NoError(t, err)
	second, err := f.queue.Submit(ctx, f.event(b.ID, domain.SignalNegative, 1.0))
	require.NoError(t, err)

	r1 := <-first
	r2 := <-second
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Equal(t, 1.0, r1.Result.Target().New)
	assert.InDelta(t, 0.85, f.strength(t, b.ID), 1e-9)
}

func TestUpdateQueue_SharedBeliefAcrossOrgsLosesNoUpdates(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	global := f.addBelief(t, "shared", domain.GlobalScope(), domain.CategoryCompetence, 0.0)

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := f.event(global.ID, domain.SignalPositive, 1.0)
			ev.Tenant.OrgID = fmt.Sprintf("org-%d", i)
			_, err := f.queue.Apply(ctx, ev)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.InDelta(t, 0.15*n, f.strength(t, global.ID), 1e-9)
}

func TestUpdateQueue_StopDrainsAndRejects(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	b := f.addBelief(t, "k", orgScope("acme"), domain.CategoryCompetence, 0.1)

	var replies []<-chan UpdateReply
	for i := 0; i < 5; i++ {
		ch, err := f.queue.Submit(ctx, f.event(b.ID, domain.SignalPositive, 1.0))
		require.NoError(t, err)
		replies = append(replies, ch)
	}
	f.queue.Stop()

	for _, ch := range replies {
		r := <-ch
		require.NoError(t, r.Err)
	}
	assert.InDelta(t, 0.85, f.strength(t, b.ID), 1e-9)

	_, err := f.queue.Submit(ctx, f.event(b.ID, domain.SignalPositive, 1.0))
	if !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
	f.queue.Stop()
}

func TestUpdateQueue_ReportsEngineErrors(t *testing.T) {
	f := newEngineFixture(t)
	b := f.addBelief(t, "k", orgScope("acme"), domain.CategoryCompetence, 0.1)

	_, err := f.queue.Apply(context.Background(), f.event(b.ID, domain.Signal(5), 1.0))
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestUpdateQueue_TenantPinnedToOneShard(t *testing.T) {
	q := NewUpdateQueue(nil, 8, 1, testNopLogger())
	tenantID := uuid.New()

	a := q.shardFor(tenantID)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a, q.shardFor(tenantID))
	}
}

func TestUpdateQueue_GlobalBeliefOrderedAcrossOrgs(t *testing.T) {
	for run := 0; run < 3; run++ {
		f := newEngineFixture(t)
		ctx := context.Background()
		global := f.addBelief(t, "shared", domain.GlobalScope(), domain.CategoryCompetence, 0.95)
		busy := f.addBelief(t, "busy", orgScope("acme"), domain.CategoryCompetence, 0.5)

		// Keep acme's traffic queued ahead of the two events under test.
		var filler []<-chan UpdateReply
		for i := 0; i < 200; i++ {
			ch, err := f.queue.Submit(ctx, f.event(busy.ID, domain.SignalPositive, 1.0))
			require.NoError(t, err)
			filler = append(filler, ch)
		}

		success := f.event(global.ID, domain.SignalPositive, 1.0)
		failure := f.event(global.ID, domain.SignalNegative, 1.0)
		failure.Tenant.OrgID = "globex"
		first, err := f.queue.Submit(ctx, success)
		require.NoError(t, err)
		second, err := f.queue.Submit(ctx, failure)
		require.NoError(t, err)

		r1, r2 := <-first, <-second
		require.NoError(t, r1.Err)
		require.NoError(t, r2.Err)
		for _, ch := range filler {
			<-ch
		}

		// Success first: 0.95 -> 1.0 -> 0.85. The reverse order ends at 0.95.
		assert.InDelta(t, 0.85, f.strength(t, global.ID), 1e-9)
		assert.InDelta(t, 1.0, r2.Result.Target().Old, 1e-9)
	}
}
