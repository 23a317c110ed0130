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

type BeliefStore struct {
	db *pgxpool.Pool
}

func NewBeliefStore(db *pgxpool.Pool) *BeliefStore {
	return &BeliefStore{db: db}
}

const beliefColumns = `id, tenant_id, key, statement, scope_type, scope_id, category, strength, immutable, created_at, updated_at`

func scanBelief(row pgx.Row, b *domain.Belief) error {
	return row.Scan(&b.ID, &b.TenantID, &b.Key, &b.Statement, &b.ScopeType, &b.ScopeID,
		&b.Category, &b.Strength, &b.Immutable, &b.CreatedAt, &b.UpdatedAt)
}

func (s *BeliefStore) Create(ctx context.Context, b *domain.Belief) error {
	if b.Key == "" || !b.Scope().Valid() || b.Strength < 0 || b.Strength > 1 {
		return ErrInvalid
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO beliefs (tenant_id, key, statement, scope_type, scope_id, category, strength, immutable)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		b.TenantID, b.Key, b.Statement, b.ScopeType, b.ScopeID, b.Category, b.Strength, b.Immutable,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}

	// A freshly inserted belief has no in-edges, so its out-edges cannot close a cycle.
	targets, err := supportTargets(b.ID, b.Supports)
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		var owned int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM beliefs WHERE tenant_id = $1 AND id = ANY($2)`,
			b.TenantID, targets,
		).Scan(&owned)
		if err != nil {
			return fmt.Errorf("store: check support targets: %w", err)
		}
		if owned != len(targets) {
			return fmt.Errorf("support target outside tenant: %w", ErrNotFound)
		}
	}
	for _, to := range targets {
		if err := insertSupport(ctx, tx, b.TenantID, b.ID, to); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *BeliefStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Belief, error) {
	b := &domain.Belief{}
	err := scanBelief(s.db.QueryRow(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	), b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	supports, err := s.loadSupports(ctx, []uuid.UUID{b.ID})
	if err != nil {
		return nil, err
	}
	b.Supports = supports[b.ID]
	return b, nil
}

func (s *BeliefStore) GetMany(ctx context.Context, ids []uuid.UUID, tenantID uuid.UUID) ([]domain.Belief, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, ids,
	)
}

func (s *BeliefStore) ListByScopes(ctx context.Context, tenantID uuid.UUID, scopes []domain.Scope, keys []string) ([]domain.Belief, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	types, ids := splitScopes(scopes)
	if len(keys) == 0 {
		keys = nil
	}
	return s.query(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE tenant_id = $1
		   AND (scope_type, scope_id) IN (SELECT * FROM unnest($2::text[], $3::text[]))
		   AND ($4::text[] IS NULL OR key = ANY($4))
		 ORDER BY key`,
		tenantID, types, ids, keys,
	)
}

func (s *BeliefStore) query(ctx context.Context, sql string, args ...any) ([]domain.Belief, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beliefs []domain.Belief
	var ids []uuid.UUID
	for rows.Next() {
		var b domain.Belief
		if err := scanBelief(rows, &b); err != nil {
			return nil, err
		}
		beliefs = append(beliefs, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	supports, err := s.loadSupports(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range beliefs {
		beliefs[i].Supports = supports[beliefs[i].ID]
	}
	return beliefs, nil
}

func (s *BeliefStore) loadSupports(ctx context.Context, from []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID)
	if len(from) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT from_id, to_id FROM belief_supports WHERE from_id = ANY($1) ORDER BY created_at`,
		from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f, t uuid.UUID
		if err := rows.Scan(&f, &t); err != nil {
			return nil, err
		}
		out[f] = append(out[f], t)
	}
	return out, rows.Err()
}

// AddSupport inserts from -> to after checking that to cannot already reach
// from. Edge insertion is serialized per tenant with an advisory lock so two
// concurrent inserts cannot jointly close a cycle.
func (s *BeliefStore) AddSupport(ctx context.Context, tenantID uuid.UUID, from, to uuid.UUID) error {
	if from == to {
		return ErrCycle
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, tenantID.String()); err != nil {
		return fmt.Errorf("store: lock support graph: %w", err)
	}

	var found int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM beliefs WHERE tenant_id = $1 AND id IN ($2, $3)`,
		tenantID, from, to,
	).Scan(&found)
	if err != nil {
		return err
	}
	if found != 2 {
		return ErrNotFound
	}

	var cyclic bool
	err = tx.QueryRow(ctx,
		`WITH RECURSIVE reach(id) AS (
			SELECT to_id FROM belief_supports WHERE from_id = $1
			UNION
			SELECT s.to_id FROM belief_supports s JOIN reach r ON s.from_id = r.id
		)
		SELECT EXISTS (SELECT 1 FROM reach WHERE id = $2)`,
		to, from,
	).Scan(&cyclic)
	if err != nil {
		return fmt.Errorf("store: cycle check: %w", err)
	}
	if cyclic {
		return ErrCycle
	}

	if err := insertSupport(ctx, tx, tenantID, from, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// supportTargets dedupes the out-edges of a new belief and rejects self-loops.
func supportTargets(self uuid.UUID, supports []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(supports))
	out := make([]uuid.UUID, 0, len(supports))
	for _, to := range supports {
		if to == self {
			return nil, ErrCycle
		}
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out, nil
}

func insertSupport(ctx context.Context, tx pgx.Tx, tenantID, from, to uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO belief_supports (tenant_id, from_id, to_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		tenantID, from, to,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("store: insert support: %w", err)
	}
	return nil
}

// ApplyStrengths locks every target row, validates the whole batch and writes
// it in one statement. Any invalid element aborts the batch.
func (s *BeliefStore) ApplyStrengths(ctx context.Context, tenantID uuid.UUID, updates []domain.StrengthUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return withRetry(ctx, func() error { return s.applyStrengths(ctx, tenantID, updates) })
}

func (s *BeliefStore) applyStrengths(ctx context.Context, tenantID uuid.UUID, updates []domain.StrengthUpdate) error {

	ids := make([]uuid.UUID, len(updates))
	strengths := make([]float64, len(updates))
	for i, u := range updates {
		if u.Strength < 0 || u.Strength > 1 {
			return ErrInvalid
		}
		ids[i] = u.BeliefID
		strengths[i] = u.Strength
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, strength, immutable, category FROM beliefs
		 WHERE tenant_id = $1 AND id = ANY($2)
		 ORDER BY id
		 FOR UPDATE`,
		tenantID, ids,
	)
	if err != nil {
		return err
	}
	current := make(map[uuid.UUID]domain.Belief, len(ids))
	for rows.Next() {
		var b domain.Belief
		if err := rows.Scan(&b.ID, &b.Strength, &b.Immutable, &b.Category); err != nil {
			rows.Close()
			return err
		}
		current[b.ID] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		b, ok := current[u.BeliefID]
		if !ok {
			return ErrNotFound
		}
		if b.Inert() && b.Strength != u.Strength {
			return ErrImmutable
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE beliefs b SET strength = u.strength, updated_at = NOW()
		 FROM unnest($2::uuid[], $3::float8[]) AS u(id, strength)
		 WHERE b.id = u.id AND b.tenant_id = $1`,
		tenantID, ids, strengths,
	)
	if err != nil {
		return fmt.Errorf("store: apply strengths: %w", err)
	}
	return tx.Commit(ctx)
}

func splitScopes(scopes []domain.Scope) ([]string, []string) {
	types := make([]string, len(scopes))
	ids := make([]string, len(scopes))
	for i, sc := range scopes {
		types[i] = string(sc.Type)
		ids[i] = sc.ID
	}
	return types, ids
}
