package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitadpal/voran/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

const resolutionCols = `id, market_id, market_hash, spec_hash, raw_hash, parsed_value, result,
	executed_at, signature, signer, extracted, raw_length, spec, created_at`

// Insert stores a resolution. Re-inserting an existing id is a no-op.
func (s *ResolutionStore) Insert(ctx context.Context, r domain.Resolution) error {
	specJSON, err := json.Marshal(r.Spec)
	if err != nil {
		return fmt.Errorf("postgres: marshal resolution spec: %w", err)
	}

	const query = `
		INSERT INTO resolutions (` + resolutionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	p := r.Payload
	if _, err := s.pool.Exec(ctx, query,
		r.ID, r.MarketID, p.MarketID, p.SpecHash, p.RawHash, p.ParsedValue, p.Result,
		p.ExecutedAt, p.Signature, r.Signer, r.Extracted, r.RawLength, specJSON, r.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert resolution %s: %w", r.ID, err)
	}
	return nil
}

func scanResolution(row pgx.Row) (domain.Resolution, error) {
	var r domain.Resolution
	var specJSON []byte
	err := row.Scan(
		&r.ID, &r.MarketID, &r.Payload.MarketID, &r.Payload.SpecHash, &r.Payload.RawHash,
		&r.Payload.ParsedValue, &r.Payload.Result, &r.Payload.ExecutedAt,
		&r.Payload.Signature, &r.Signer, &r.Extracted, &r.RawLength,
		&specJSON, &r.CreatedAt,
	)
	if err != nil {
		return domain.Resolution{}, err
	}
	if err := json.Unmarshal(specJSON, &r.Spec); err != nil {
		return domain.Resolution{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	return r, nil
}

// GetByID returns the resolution with the given id or domain.ErrNotFound.
func (s *ResolutionStore) GetByID(ctx context.Context, id string) (domain.Resolution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+resolutionCols+` FROM resolutions WHERE id = $1`, id)
	r, err := scanResolution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Resolution{}, domain.ErrNotFound
		}
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution %s: %w", id, err)
	}
	return r, nil
}

// ListByMarket returns the resolutions of one market, newest first.
func (s *ResolutionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Resolution, error) {
	query, args := listQuery(
		`SELECT `+resolutionCols+` FROM resolutions WHERE market_id = $1`,
		[]any{marketID}, opts,
	)
	return s.list(ctx, query, args)
}

// ListRecent returns resolutions across all markets, newest first.
func (s *ResolutionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Resolution, error) {
	query, args := listQuery(`SELECT `+resolutionCols+` FROM resolutions WHERE 1=1`, nil, opts)
	return s.list(ctx, query, args)
}

func (s *ResolutionStore) list(ctx context.Context, query string, args []any) ([]domain.Resolution, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.Resolution
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolution: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolutions rows: %w", err)
	}
	return out, nil
}

// Count returns the number of stored resolutions.
func (s *ResolutionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM resolutions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count resolutions: %w", err)
	}
	return n, nil
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)
