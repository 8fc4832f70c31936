package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vault-pay/vault_pay/internal/ledger"
	"github.com/vault-pay/vault_pay/internal/wallet"
)

// UnitOfWork exposes wallet and ledger access bound to one atomic, isolated
// group of reads and writes. Everything performed through it commits or rolls
// back as a whole; row locks taken through it are held until then.
type UnitOfWork interface {
	Wallets() wallet.Directory
	Ledger() ledger.Store
}

// Runner opens units of work. Run invokes fn inside a fresh unit; a nil
// return commits, any error rolls back every write made through the unit.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// PgRunner runs units of work as PostgreSQL transactions.
type PgRunner struct {
	pool *pgxpool.Pool
}

// NewPgRunner builds a runner over a connection pool.
func NewPgRunner(pool *pgxpool.Pool) *PgRunner {
	return &PgRunner{pool: pool}
}

type pgUnitOfWork struct {
	dir   *wallet.PostgresDirectory
	store *ledger.PostgresStore
}

func (u pgUnitOfWork) Wallets() wallet.Directory { return u.dir }
func (u pgUnitOfWork) Ledger() ledger.Store      { return u.store }

// Run executes fn inside one database transaction.
func (r *PgRunner) Run(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	uow := pgUnitOfWork{
		dir:   wallet.NewPostgresDirectory(tx),
		store: ledger.NewPostgresStore(tx),
	}
	if err := fn(ctx, uow); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
