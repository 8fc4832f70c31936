package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the same directory serves pool reads and in-transaction locked reads.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory resolves wallets stored in PostgreSQL.
type PostgresDirectory struct {
	db Querier
}

// NewPostgresDirectory builds a directory over the given querier.
func NewPostgresDirectory(db Querier) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const walletColumns = `id, user_id, asset_id, kind, created_at`

// FindUserWallet resolves the USER wallet for a (user, asset) pair without locking.
func (d *PostgresDirectory) FindUserWallet(ctx context.Context, userID, assetID string) (Wallet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := d.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 AND asset_id = $2 AND kind = 'USER'`, uid, assetID)
	return scanWallet(row)
}

// LockUserWallet resolves the USER wallet and acquires an exclusive row lock.
// Only meaningful inside a unit of work; the lock is released at commit or
// rollback.
func (d *PostgresDirectory) LockUserWallet(ctx context.Context, userID, assetID string) (Wallet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := d.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 AND asset_id = $2 AND kind = 'USER' FOR UPDATE`, uid, assetID)
	return scanWallet(row)
}

// FindOrCreateUserWallet returns the locked USER wallet for the pair, creating
// it first when absent. Concurrent creators race on the partial unique index
// over (user_id, asset_id); the loser's insert is a no-op and the follow-up
// locked select returns the winner's row.
func (d *PostgresDirectory) FindOrCreateUserWallet(ctx context.Context, userID, assetID string) (Wallet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}

	_, err = d.db.Exec(ctx, `INSERT INTO wallets (id, user_id, asset_id, kind, created_at)
        VALUES ($1, $2, $3, 'USER', $4)
        ON CONFLICT (user_id, asset_id) WHERE user_id IS NOT NULL DO NOTHING`,
		uuid.New(), uid, assetID, time.Now().UTC())
	if err != nil {
		return Wallet{}, err
	}

	return d.LockUserWallet(ctx, userID, assetID)
}

// FindSystemWallet resolves the SYSTEM wallet for an asset. Deliberately not
// locked.
func (d *PostgresDirectory) FindSystemWallet(ctx context.Context, assetID string) (Wallet, error) {
	row := d.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE asset_id = $1 AND kind = 'SYSTEM'`, assetID)
	w, err := scanWallet(row)
	if errors.Is(err, ErrNotFound) {
		return Wallet{}, ErrSystemWalletMissing
	}
	return w, err
}

// EnsureSystemWallet provisions the SYSTEM wallet for an asset if absent.
// Used by seeding only.
func (d *PostgresDirectory) EnsureSystemWallet(ctx context.Context, assetID string) (Wallet, error) {
	_, err := d.db.Exec(ctx, `INSERT INTO wallets (id, user_id, asset_id, kind, created_at)
        VALUES ($1, NULL, $2, 'SYSTEM', $3)
        ON CONFLICT (asset_id) WHERE kind = 'SYSTEM' DO NOTHING`,
		uuid.New(), assetID, time.Now().UTC())
	if err != nil {
		return Wallet{}, err
	}
	return d.FindSystemWallet(ctx, assetID)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		id        uuid.UUID
		userID    *uuid.UUID
		createdAt time.Time
		w         Wallet
	)
	if err := row.Scan(&id, &userID, &w.AssetID, &w.Kind, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	if userID != nil {
		w.UserID = userID.String()
	}
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
