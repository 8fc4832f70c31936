package asset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates the requested asset is not part of the catalog.
var ErrNotFound = errors.New("asset not found")

// Repository exposes the asset catalog. Assets are immutable once created;
// Ensure exists for idempotent seeding only.
type Repository interface {
	Ensure(ctx context.Context, a Asset) error
	Get(ctx context.Context, id string) (Asset, error)
	List(ctx context.Context) ([]Asset, error)
}

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores the asset catalog in PostgreSQL.
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ensure inserts the asset if it does not already exist.
func (r *PostgresRepository) Ensure(ctx context.Context, a Asset) error {
	_, err := r.db.Exec(ctx, `INSERT INTO assets (id, name, scale, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO NOTHING`, a.ID, a.Name, a.Scale, time.Now().UTC())
	return err
}

// Get fetches one asset by code.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Asset, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, scale, created_at FROM assets WHERE id = $1`, id)
	var a Asset
	if err := row.Scan(&a.ID, &a.Name, &a.Scale, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	return a, nil
}

// List returns the full catalog ordered by code.
func (r *PostgresRepository) List(ctx context.Context) ([]Asset, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, scale, created_at FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.Scale, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
