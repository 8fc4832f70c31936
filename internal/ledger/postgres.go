package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists transactions and ledger entries in PostgreSQL.
// Amounts travel as text on the wire so NUMERIC columns round-trip exactly
// into decimals.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore builds a Postgres-backed ledger store.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// BalanceOf returns the summed entry amounts for the wallet.
func (s *PostgresStore) BalanceOf(ctx context.Context, walletID string) (decimal.Decimal, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid wallet id: %w", err)
	}
	var raw string
	err = s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries WHERE wallet_id = $1`, wid).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// EntriesFor returns the wallet's entries newest first with their parent
// transactions attached.
func (s *PostgresStore) EntriesFor(ctx context.Context, walletID string) ([]Entry, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet id: %w", err)
	}
	rows, err := s.db.Query(ctx, `
        SELECT e.id, e.transaction_id, e.wallet_id, e.amount::text, e.balance_after::text, e.type, e.created_at,
               t.idempotency_key, t.type, t.status, t.metadata, t.created_at
        FROM ledger_entries e
        INNER JOIN transactions t ON t.id = e.transaction_id
        WHERE e.wallet_id = $1
        ORDER BY e.created_at DESC, e.id DESC`, wid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entryID      uuid.UUID
			txID         uuid.UUID
			entryWallet  uuid.UUID
			rawAmount    string
			rawAfter     *string
			entryCreated time.Time
			key          *string
			txCreated    time.Time
			metadata     []byte
			e            Entry
			t            Transaction
		)
		if err := rows.Scan(&entryID, &txID, &entryWallet, &rawAmount, &rawAfter, &e.Type, &entryCreated,
			&key, &t.Type, &t.Status, &metadata, &txCreated); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, err
		}
		e.ID = entryID.String()
		e.TransactionID = txID.String()
		e.WalletID = entryWallet.String()
		e.Amount = amount
		e.CreatedAt = entryCreated.UTC()
		if rawAfter != nil {
			after, err := decimal.NewFromString(*rawAfter)
			if err != nil {
				return nil, err
			}
			e.BalanceAfter = decimal.NewNullDecimal(after)
		}

		t.ID = txID.String()
		if key != nil {
			t.IdempotencyKey = *key
		}
		t.CreatedAt = txCreated.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("decode transaction metadata: %w", err)
			}
		}
		e.Transaction = &t

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindTransactionByKey looks a transaction up by its idempotency key.
func (s *PostgresStore) FindTransactionByKey(ctx context.Context, idempotencyKey string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT id, idempotency_key, type, status, metadata, created_at
        FROM transactions WHERE idempotency_key = $1`, idempotencyKey)

	var (
		id        uuid.UUID
		key       *string
		metadata  []byte
		createdAt time.Time
		t         Transaction
	)
	if err := row.Scan(&id, &key, &t.Type, &t.Status, &metadata, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	t.ID = id.String()
	if key != nil {
		t.IdempotencyKey = *key
	}
	t.CreatedAt = createdAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return t, nil
}

// CreateTransaction inserts the record; a taken idempotency key is reported
// as inserted=false rather than an error so the caller can discard its unit
// of work and return the original transaction.
func (s *PostgresStore) CreateTransaction(ctx context.Context, tx Transaction) (bool, error) {
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return false, fmt.Errorf("invalid transaction id: %w", err)
	}
	var metadata []byte
	if tx.Metadata != nil {
		metadata, err = json.Marshal(tx.Metadata)
		if err != nil {
			return false, fmt.Errorf("encode transaction metadata: %w", err)
		}
	}
	cmd, err := s.db.Exec(ctx, `INSERT INTO transactions (id, idempotency_key, type, status, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (idempotency_key) DO NOTHING`,
		txID, tx.IdempotencyKey, tx.Type, tx.Status, metadata, tx.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// AppendEntries writes the transaction's entry pair. Entries are never
// mutated after this point.
func (s *PostgresStore) AppendEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		entryID, err := uuid.Parse(e.ID)
		if err != nil {
			return fmt.Errorf("invalid entry id: %w", err)
		}
		txID, err := uuid.Parse(e.TransactionID)
		if err != nil {
			return fmt.Errorf("invalid entry transaction id: %w", err)
		}
		wid, err := uuid.Parse(e.WalletID)
		if err != nil {
			return fmt.Errorf("invalid entry wallet id: %w", err)
		}
		var after *string
		if e.BalanceAfter.Valid {
			v := e.BalanceAfter.Decimal.String()
			after = &v
		}
		if _, err := s.db.Exec(ctx, `INSERT INTO ledger_entries (id, transaction_id, wallet_id, amount, balance_after, type, created_at)
            VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)`,
			entryID, txID, wid, e.Amount.String(), after, e.Type, e.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	return nil
}
