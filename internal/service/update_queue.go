package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultUpdateShards    = 8
	DefaultUpdateQueueSize = 256
	updateApplyTimeout     = 10 * time.Second
)

var ErrQueueStopped = errors.New("update queue is stopped")

// UpdateReply carries the result of one applied event.
type UpdateReply struct {
	Result *UpdateResult
	Err    error
}

type updateJob struct {
	event domain.BeliefUpdateEvent
	reply chan UpdateReply
}

// UpdateQueue serializes belief updates per tenant. A tenant's whole belief
// graph (every org, person, industry and global belief, plus the cascade
// edges between them) hashes to one shard with one worker, so events that
// touch the same belief apply in the order they were submitted no matter
// which org or person produced them. Tenants run in parallel across shards.
type UpdateQueue struct {
	engine *UpdateEngine
	shards []chan updateJob
	logger *zap.Logger

	mu      sync.RWMutex
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewUpdateQueue(engine *UpdateEngine, shards, size int, logger *zap.Logger) *UpdateQueue {
	if shards <= 0 {
		shards = DefaultUpdateShards
	}
	if size <= 0 {
		size = DefaultUpdateQueueSize
	}
	q := &UpdateQueue{
		engine: engine,
		shards: make([]chan updateJob, shards),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	for i := range q.shards {
		q.shards[i] = make(chan updateJob, size)
	}
	return q
}

// Start launches one worker per shard.
func (q *UpdateQueue) Start() {
	for i := range q.shards {
		q.wg.Add(1)
		go q.work(i)
	}
	q.logger.Info("belief update queue started", zap.Int("shards", len(q.shards)))
}

// Stop refuses new events, applies what is already queued and waits for
// the workers to exit.
func (q *UpdateQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("belief update queue stopped")
}

// Submit enqueues ev on its shard. The returned channel receives exactly
// one reply once the event has been applied.
func (q *UpdateQueue) Submit(ctx context.Context, ev domain.BeliefUpdateEvent) (<-chan UpdateReply, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return nil, ErrQueueStopped
	}

	job := updateJob{event: ev, reply: make(chan UpdateReply, 1)}
	select {
	case q.shards[q.shardFor(ev.Tenant.TenantID)] <- job:
		return job.reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Apply submits ev and waits for its reply.
func (q *UpdateQueue) Apply(ctx context.Context, ev domain.BeliefUpdateEvent) (*UpdateResult, error) {
	ch, err := q.Submit(ctx, ev)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Result, r.Err
	case <-ctx.Done():
		// The event stays queued and is still applied in full.
		return nil, ctx.Err()
	}
}

// shardFor keys on the tenant only. Org and person describe where an outcome
// came from, not which beliefs it moves: a global belief is reached from
// every org of the tenant.
func (q *UpdateQueue) shardFor(tenantID uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write(tenantID[:])
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *UpdateQueue) work(shard int) {
	defer q.wg.Done()
	ch := q.shards[shard]
	for {
		select {
		case job := <-ch:
			q.apply(job)
		case <-q.stopCh:
			for {
				select {
				case job := <-ch:
					q.apply(job)
				default:
					return
				}
			}
		}
	}
}

// apply runs detached from the submitter's context so a cancelled caller
// never interrupts an event midway.
func (q *UpdateQueue) apply(job updateJob) {
	ctx, cancel := context.WithTimeout(context.Background(), updateApplyTimeout)
	defer cancel()

	res, err := q.engine.Apply(ctx, job.event)
	if err != nil {
		q.logger.Error("belief update failed",
			zap.String("event_id", job.event.ID.String()),
			zap.String("belief_id", job.event.BeliefID.String()),
			zap.Error(err),
		)
	}
	job.reply <- UpdateReply{Result: res, Err: err}
}
