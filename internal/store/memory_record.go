package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type MemoryRecordStore struct {
	db *pgxpool.Pool
}

func NewMemoryRecordStore(db *pgxpool.Pool) *MemoryRecordStore {
	return &MemoryRecordStore{db: db}
}

const memoryRecordColumns = `id, tenant_id, work_unit_id, belief_ids, state, signal, intensity, retention_weight, summary, created_at`

func scanMemoryRecord(row pgx.Row, m *domain.MemoryRecord, extra ...any) error {
	dest := []any{&m.ID, &m.TenantID, &m.WorkUnitID, &m.BeliefIDs, &m.State, &m.Signal,
		&m.Intensity, &m.RetentionWeight, &m.Summary, &m.CreatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (s *MemoryRecordStore) Create(ctx context.Context, m *domain.MemoryRecord) error {
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}
	if m.BeliefIDs == nil {
		m.BeliefIDs = []uuid.UUID{}
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO memory_records (tenant_id, work_unit_id, belief_ids, state, signal, intensity, retention_weight, summary, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		m.TenantID, m.WorkUnitID, m.BeliefIDs, m.State, m.Signal, m.Intensity, m.RetentionWeight, m.Summary, embedding,
	).Scan(&m.ID, &m.CreatedAt)
}

func (s *MemoryRecordStore) ListRecentByBelief(ctx context.Context, tenantID uuid.UUID, beliefID uuid.UUID, limit int) ([]domain.MemoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryRecordColumns+` FROM memory_records
		 WHERE tenant_id = $1 AND $2 = ANY(belief_ids)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		tenantID, beliefID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MemoryRecord
	for rows.Next() {
		var m domain.MemoryRecord
		if err := scanMemoryRecord(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MemoryRecordStore) UpdateRetention(ctx context.Context, weights map[uuid.UUID]float64) error {
	if len(weights) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(weights))
	values := make([]float64, 0, len(weights))
	for id, w := range weights {
		ids = append(ids, id)
		values = append(values, w)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE memory_records m SET retention_weight = u.weight
		 FROM unnest($1::uuid[], $2::float8[]) AS u(id, weight)
		 WHERE m.id = u.id`,
		ids, values,
	)
	if err != nil {
		return fmt.Errorf("store: update retention: %w", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryRecordStore) Prune(ctx context.Context, cutoff time.Time, minWeight float64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM memory_records WHERE created_at < $1 AND retention_weight < $2`,
		cutoff, minWeight,
	)
	if err != nil {
		return 0, fmt.Errorf("store: prune memory records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *MemoryRecordStore) Recall(ctx context.Context, tenantID uuid.UUID, embedding []float32, topK int) ([]domain.MemoryRecordWithScore, error) {
	if topK <= 0 {
		topK = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryRecordColumns+`, 1 - (embedding <=> $2) AS score
		 FROM memory_records
		 WHERE tenant_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2, retention_weight DESC
		 LIMIT $3`,
		tenantID, pgvector.NewVector(embedding), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("recall query: %w", err)
	}
	defer rows.Close()

	var out []domain.MemoryRecordWithScore
	for rows.Next() {
		var ms domain.MemoryRecordWithScore
		if err := scanMemoryRecord(rows, &ms.MemoryRecord, &ms.Score); err != nil {
			return nil, fmt.Errorf("scan recall row: %w", err)
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}
