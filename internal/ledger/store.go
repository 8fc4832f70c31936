package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrTransactionNotFound indicates no transaction matches the given
// idempotency key.
var ErrTransactionNotFound = errors.New("transaction not found")

// Store persists transactions and their ledger entries. Entries are
// append-only: they are never updated or deleted, and a wallet's balance is
// always the sum of its entries.
//
// When used inside a unit of work the store observes that unit's isolation:
// BalanceOf called after the caller locked the wallet row is guaranteed fresh
// relative to any concurrent unit of work.
type Store interface {
	// BalanceOf sums all entry amounts for the wallet; zero when none exist.
	BalanceOf(ctx context.Context, walletID string) (decimal.Decimal, error)

	// EntriesFor returns the wallet's entries newest first, each carrying its
	// parent transaction.
	EntriesFor(ctx context.Context, walletID string) ([]Entry, error)

	// FindTransactionByKey looks up a completed transaction by idempotency
	// key; ErrTransactionNotFound when absent.
	FindTransactionByKey(ctx context.Context, idempotencyKey string) (Transaction, error)

	// CreateTransaction inserts the record unless its idempotency key is
	// already taken, in which case it reports inserted=false without error.
	// The authoritative at-most-once guarantee is the unique constraint on
	// the key, not any prior lookup.
	CreateTransaction(ctx context.Context, tx Transaction) (inserted bool, err error)

	// AppendEntries writes a transaction's entry pair.
	AppendEntries(ctx context.Context, entries []Entry) error
}
