package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FactStore struct {
	db *pgxpool.Pool
}

func NewFactStore(db *pgxpool.Pool) *FactStore {
	return &FactStore{db: db}
}

const factColumns = `id, tenant_id, fact_key, scope_type, scope_id, statement, category, status,
	supersedes, superseded_by, confidence, valid_from, valid_until, created_at, updated_at`

func scanFact(row pgx.Row, f *domain.Fact) error {
	return row.Scan(&f.ID, &f.TenantID, &f.FactKey, &f.ScopeType, &f.ScopeID, &f.Statement,
		&f.Category, &f.Status, &f.Supersedes, &f.SupersededBy, &f.Confidence,
		&f.ValidFrom, &f.ValidUntil, &f.CreatedAt, &f.UpdatedAt)
}

func (s *FactStore) Create(ctx context.Context, f *domain.Fact) error {
	if f.FactKey == "" || !f.Scope().Valid() || f.Confidence < 0 || f.Confidence > 1 {
		return ErrInvalid
	}
	f.Status = domain.FactActive

	err := s.db.QueryRow(ctx,
		`INSERT INTO facts (tenant_id, fact_key, scope_type, scope_id, statement, category, status, confidence, valid_from, valid_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		f.TenantID, f.FactKey, f.ScopeType, f.ScopeID, f.Statement, f.Category, f.Status,
		f.Confidence, f.ValidFrom, f.ValidUntil,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *FactStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Fact, error) {
	f := &domain.Fact{}
	err := scanFact(s.db.QueryRow(ctx,
		`SELECT `+factColumns+` FROM facts WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	), f)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *FactStore) ListActiveByScopes(ctx context.Context, tenantID uuid.UUID, scopes []domain.Scope, keys []string) ([]domain.Fact, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	types, ids := splitScopes(scopes)
	if len(keys) == 0 {
		keys = nil
	}
	return s.query(ctx,
		`SELECT `+factColumns+` FROM facts
		 WHERE tenant_id = $1 AND status = 'active'
		   AND (scope_type, scope_id) IN (SELECT * FROM unnest($2::text[], $3::text[]))
		   AND ($4::text[] IS NULL OR fact_key = ANY($4))
		 ORDER BY fact_key`,
		tenantID, types, ids, keys,
	)
}

// Replace supersedes the active fact r.OldID with a new fact carrying
// r.NewStatement. The insert, the supersession and the correction entry
// commit together or not at all.
func (s *FactStore) Replace(ctx context.Context, tenantID uuid.UUID, r domain.Replacement) (uuid.UUID, error) {
	if r.CorrectionType == "" {
		r.CorrectionType = domain.CorrectionFix
	}
	var newID uuid.UUID
	err := withRetry(ctx, func() error {
		var err error
		newID, err = s.replace(ctx, tenantID, r)
		return err
	})
	return newID, err
}

func (s *FactStore) replace(ctx context.Context, tenantID uuid.UUID, r domain.Replacement) (uuid.UUID, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old := &domain.Fact{}
	err = scanFact(tx.QueryRow(ctx,
		`SELECT `+factColumns+` FROM facts WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		r.OldID, tenantID,
	), old)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	if old.Status != domain.FactActive {
		return uuid.Nil, fmt.Errorf("fact %s is %s: %w", r.OldID, old.Status, ErrNotActive)
	}

	// The partial unique index allows one active row, so the old row must
	// leave the active state before the new one is inserted.
	if _, err := tx.Exec(ctx,
		`UPDATE facts SET status = 'superseded', updated_at = NOW() WHERE id = $1`, old.ID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("store: supersede fact: %w", err)
	}

	var newID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO facts (tenant_id, fact_key, scope_type, scope_id, statement, category, status, supersedes, confidence, valid_from, valid_until)
		 VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $8, $9, $10)
		 RETURNING id`,
		tenantID, old.FactKey, old.ScopeType, old.ScopeID, r.NewStatement, old.Category,
		old.ID, old.Confidence, old.ValidFrom, old.ValidUntil,
	).Scan(&newID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert replacement fact: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE facts SET superseded_by = $1 WHERE id = $2`, newID, old.ID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("store: link supersession: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO fact_corrections (tenant_id, fact_id, new_fact_id, correction_type, reason, actor)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tenantID, old.ID, newID, r.CorrectionType, r.Reason, r.Actor,
	); err != nil {
		return uuid.Nil, fmt.Errorf("store: log correction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("store: commit replacement: %w", err)
	}
	return newID, nil
}

func (s *FactStore) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, reason, actor string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.FactStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM facts WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, tenantID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if status != domain.FactActive {
		return fmt.Errorf("fact %s is %s: %w", id, status, ErrNotActive)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE facts SET status = 'deleted', updated_at = NOW() WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("store: delete fact: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO fact_corrections (tenant_id, fact_id, correction_type, reason, actor)
		 VALUES ($1, $2, 'retraction', $3, $4)`,
		tenantID, id, reason, actor,
	); err != nil {
		return fmt.Errorf("store: log correction: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *FactStore) History(ctx context.Context, tenantID uuid.UUID, scope domain.Scope, key string) ([]domain.Fact, error) {
	facts, err := s.query(ctx,
		`SELECT `+factColumns+` FROM facts
		 WHERE tenant_id = $1 AND scope_type = $2 AND scope_id = $3 AND fact_key = $4
		 ORDER BY created_at DESC, id DESC`,
		tenantID, scope.Type, scope.ID, key,
	)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, ErrNotFound
	}
	return facts, nil
}

func (s *FactStore) Corrections(ctx context.Context, tenantID uuid.UUID, factID uuid.UUID) ([]domain.FactCorrection, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, fact_id, new_fact_id, correction_type, reason, actor, created_at
		 FROM fact_corrections
		 WHERE tenant_id = $1 AND (fact_id = $2 OR new_fact_id = $2)
		 ORDER BY created_at`,
		tenantID, factID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FactCorrection
	for rows.Next() {
		var c domain.FactCorrection
		if err := rows.Scan(&c.ID, &c.FactID, &c.NewFactID, &c.CorrectionType, &c.Reason, &c.Actor, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *FactStore) query(ctx context.Context, sql string, args ...any) ([]domain.Fact, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []domain.Fact
	for rows.Next() {
		var f domain.Fact
		if err := scanFact(rows, &f); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
