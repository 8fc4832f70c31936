package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeTopup = "TOPUP"
	TypeBonus = "BONUS"
	TypeSpend = "SPEND"
)

// Transaction statuses. Transactions are written COMPLETED in the same unit
// of work that writes their entries; PENDING and FAILED exist for callers
// that stage work outside the executor.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Entry type tags. The tag is denormalized from the amount's sign for query
// convenience: CREDIT entries carry positive amounts, DEBIT entries negative.
const (
	EntryCredit = "CREDIT"
	EntryDebit  = "DEBIT"
)

// Transaction is the immutable record of one applied wallet operation. At
// most one transaction exists per idempotency key.
type Transaction struct {
	ID             string
	IdempotencyKey string
	Type           string
	Status         string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Entry is one half of a transaction's double-entry pair: an immutable signed
// amount posted against a single wallet. BalanceAfter is a best-effort
// debugging snapshot for user wallets only; system entries store zero because
// the treasury balance is never authoritative.
type Entry struct {
	ID            string
	TransactionID string
	WalletID      string
	Amount        decimal.Decimal
	BalanceAfter  decimal.NullDecimal
	Type          string
	CreatedAt     time.Time

	// Transaction is populated on history reads.
	Transaction *Transaction
}
