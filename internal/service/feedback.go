package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrOutcomeNotFinal = errors.New("outcome has not reached a terminal state")

const (
	DefaultPeakBonus  = 0.5
	DefaultEndBonus   = 0.5
	DefaultPeakWindow = 20

	maxDifficultyWeight = 2.0
)

// DifficultyWeight scales an outcome by task difficulty. Success on a hard
// task and failure on an easy task produce the largest swings; a failure
// uses the reciprocal weight, which stays within [0.5, 2.0].
func DifficultyWeight(d domain.Difficulty, signal domain.Signal) float64 {
	w := d.Weight()
	if signal < 0 {
		return 1 / w
	}
	return w
}

type PeakEndConfig struct {
	PeakBonus float64
	EndBonus  float64
	Window    int
}

func DefaultPeakEndConfig() PeakEndConfig {
	return PeakEndConfig{PeakBonus: DefaultPeakBonus, EndBonus: DefaultEndBonus, Window: DefaultPeakWindow}
}

// UpdateSubmitter accepts belief-update events for ordered application.
type UpdateSubmitter interface {
	Submit(ctx context.Context, ev domain.BeliefUpdateEvent) (<-chan UpdateReply, error)
}

type FeedbackResult struct {
	Events  []domain.BeliefUpdateEvent `json:"events"`
	Updates []*UpdateResult            `json:"updates"`
	Errors  []string                   `json:"errors,omitempty"`
	Record  *domain.MemoryRecord       `json:"memory_record"`
}

// FeedbackRecorder is the only producer of belief-update events. It never
// writes beliefs itself: every event goes through the update queue.
type FeedbackRecorder struct {
	records  domain.MemoryRecordStore
	updates  UpdateSubmitter
	embedder domain.EmbeddingClient
	cfg      PeakEndConfig
	logger   *zap.Logger
}

func NewFeedbackRecorder(records domain.MemoryRecordStore, updates UpdateSubmitter, embedder domain.EmbeddingClient, cfg PeakEndConfig, logger *zap.Logger) *FeedbackRecorder {
	if cfg.Window <= 0 {
		cfg.Window = DefaultPeakWindow
	}
	return &FeedbackRecorder{
		records:  records,
		updates:  updates,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Record turns a terminal outcome into one update event per affected belief,
// waits for the events to apply and stores a weighted memory record.
// Cancelled outcomes produce a memory record but no events.
func (r *FeedbackRecorder) Record(ctx context.Context, tenant domain.TenantKey, outcome *domain.ExecutionOutcome, beliefIDs []uuid.UUID) (*FeedbackResult, error) {
	if outcome == nil || !outcome.Final || !outcome.State.IsTerminal() {
		return nil, ErrOutcomeNotFinal
	}

	signal := domain.SignalForState(outcome.State)
	if outcome.Cancelled {
		signal = domain.SignalNeutral
	}
	weight := DifficultyWeight(outcome.Difficulty, signal)
	ids := dedupeIDs(beliefIDs)

	result := &FeedbackResult{Events: []domain.BeliefUpdateEvent{}, Updates: []*UpdateResult{}}
	if signal != domain.SignalNeutral {
		replies := make([]<-chan UpdateReply, 0, len(ids))
		for _, id := range ids {
			ev := domain.BeliefUpdateEvent{
				ID:               uuid.New(),
				Tenant:           tenant,
				BeliefID:         id,
				Signal:           signal,
				DifficultyWeight: weight,
				WorkUnitID:       outcome.WorkUnitID,
				CompletedAt:      outcome.CompletedAt,
			}
			ch, err := r.updates.Submit(ctx, ev)
			if err != nil {
				return result, fmt.Errorf("submit belief update: %w", err)
			}
			result.Events = append(result.Events, ev)
			replies = append(replies, ch)
		}

		for i, ch := range replies {
			select {
			case reply := <-ch:
				if reply.Err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", result.Events[i].BeliefID, reply.Err))
					continue
				}
				result.Updates = append(result.Updates, reply.Result)
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	rec, err := r.remember(ctx, tenant, outcome, ids, signal, weight)
	if err != nil {
		return result, err
	}
	result.Record = rec
	return result, nil
}

func (r *FeedbackRecorder) remember(ctx context.Context, tenant domain.TenantKey, o *domain.ExecutionOutcome, ids []uuid.UUID, signal domain.Signal, weight float64) (*domain.MemoryRecord, error) {
	intensity := 0.0
	if signal != domain.SignalNeutral {
		intensity = weight / maxDifficultyWeight
		if o.State == domain.StateEscalated && o.MaxSeverity() > intensity {
			intensity = o.MaxSeverity()
		}
	}

	rec := &domain.MemoryRecord{
		TenantID:        tenant.TenantID,
		WorkUnitID:      o.WorkUnitID,
		BeliefIDs:       ids,
		State:           o.State,
		Signal:          signal,
		Intensity:       intensity,
		RetentionWeight: intensity,
		Summary:         summarize(o),
		CreatedAt:       o.CompletedAt,
	}
	if r.embedder != nil {
		emb, err := r.embedder.Embed(ctx, rec.Summary)
		if err != nil {
			r.logger.Warn("failed to embed memory record", zap.Error(err))
		} else {
			rec.Embedding = emb
		}
	}
	if err := r.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create memory record: %w", err)
	}

	if err := r.reweigh(ctx, tenant.TenantID, ids); err != nil {
		r.logger.Warn("failed to update retention weights", zap.Error(err))
	}
	return rec, nil
}

// reweigh applies the peak-end bias over each belief's recent records: the
// most intense record and the newest record get a bonus on top of their
// intensity. A record shared by several beliefs keeps its largest weight.
func (r *FeedbackRecorder) reweigh(ctx context.Context, tenantID uuid.UUID, beliefIDs []uuid.UUID) error {
	weights := make(map[uuid.UUID]float64)
	for _, id := range beliefIDs {
		recent, err := r.records.ListRecentByBelief(ctx, tenantID, id, r.cfg.Window)
		if err != nil {
			return err
		}
		for recID, w := range PeakEndWeights(recent, r.cfg) {
			if w > weights[recID] {
				weights[recID] = w
			}
		}
	}
	if len(weights) == 0 {
		return nil
	}
	return r.records.UpdateRetention(ctx, weights)
}

// PeakEndWeights computes retention weights for records ordered newest
// first: intensity * (1 + peak bonus if most intense + end bonus if newest).
func PeakEndWeights(records []domain.MemoryRecord, cfg PeakEndConfig) map[uuid.UUID]float64 {
	out := make(map[uuid.UUID]float64, len(records))
	if len(records) == 0 {
		return out
	}
	peak := 0.0
	for _, rec := range records {
		if rec.Intensity > peak {
			peak = rec.Intensity
		}
	}
	for i, rec := range records {
		factor := 1.0
		if peak > 0 && rec.Intensity == peak {
			factor += cfg.PeakBonus
		}
		if i == 0 {
			factor += cfg.EndBonus
		}
		out[rec.ID] = rec.Intensity * factor
	}
	return out
}

// Recall returns memory records similar to query.
func (r *FeedbackRecorder) Recall(ctx context.Context, tenantID uuid.UUID, query string, topK int) ([]domain.MemoryRecordWithScore, error) {
	if r.embedder == nil {
		return nil, errors.New("embedding client not configured")
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.records.Recall(ctx, tenantID, emb, topK)
}

func summarize(o *domain.ExecutionOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "work unit %s %s (%s) after %d retries", o.WorkUnitID, o.State, o.Reason, o.AttemptCount)
	for _, f := range o.Failures() {
		fmt.Fprintf(&b, "; %s: %s", f.ValidatorName, f.Message)
	}
	return b.String()
}
