package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vault-pay/vault_pay/internal/asset"
	"github.com/vault-pay/vault_pay/internal/ledger"
	"github.com/vault-pay/vault_pay/internal/notification"
	"github.com/vault-pay/vault_pay/internal/storage"
	"github.com/vault-pay/vault_pay/internal/wallet"
)

var (
	// ErrInvalidAmount occurs when a request carries a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrWalletNotFound occurs when a SPEND targets a user wallet that was
	// never materialized. Wallets are created lazily by TOPUP and BONUS only.
	ErrWalletNotFound = errors.New("user wallet not found")

	// ErrSystemWalletMissing indicates the asset has no treasury wallet.
	// This is a configuration error an operator must fix; retries will not
	// help.
	ErrSystemWalletMissing = errors.New("system wallet missing for asset")

	// ErrInsufficientFunds occurs when a SPEND exceeds the wallet's derived
	// balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// errIdempotentReplay aborts a unit of work whose transaction insert lost the
// race on the idempotency key. Never surfaced to callers.
var errIdempotentReplay = errors.New("idempotency key already applied")

// Request describes one wallet operation to execute.
type Request struct {
	UserID         string
	AssetID        string
	Amount         decimal.Decimal
	Type           string
	IdempotencyKey string
	Metadata       map[string]any
}

// Service executes wallet transactions and serves balance and history
// queries. Dependencies are passed explicitly; the runner supplies the atomic
// unit of work every execution runs inside.
type Service struct {
	wallets  wallet.Directory
	store    ledger.Store
	runner   storage.Runner
	assets   asset.Repository
	notifier notification.Notifier
}

// NewService builds a transaction service instance.
func NewService(wallets wallet.Directory, store ledger.Store, runner storage.Runner, assets asset.Repository, notifier notification.Notifier) *Service {
	return &Service{wallets: wallets, store: store, runner: runner, assets: assets, notifier: notifier}
}

// Execute applies one TOPUP, BONUS or SPEND at most once per idempotency key.
//
// The user wallet row is locked before the balance is read, so two concurrent
// executions against the same wallet serialize: whichever acquires the lock
// second observes the first one's committed entries. The system wallet is
// never locked or balance-checked; it is an unlimited source and locking it
// would funnel every transaction for the asset through one row.
func (s *Service) Execute(ctx context.Context, req Request) (ledger.Transaction, error) {
	switch req.Type {
	case ledger.TypeTopup, ledger.TypeBonus, ledger.TypeSpend:
	default:
		return ledger.Transaction{}, fmt.Errorf("unsupported transaction type %q", req.Type)
	}
	if !req.Amount.IsPositive() {
		return ledger.Transaction{}, ErrInvalidAmount
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	// Fast path. Authoritative deduplication is the unique constraint on the
	// key; this only skips the unit of work for obvious replays.
	if existing, err := s.store.FindTransactionByKey(ctx, req.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, ledger.ErrTransactionNotFound) {
		return ledger.Transaction{}, err
	}

	var created ledger.Transaction
	err := s.runner.Run(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		dir, store := uow.Wallets(), uow.Ledger()

		userWallet, err := s.resolveUserWallet(ctx, dir, req)
		if err != nil {
			return err
		}

		systemWallet, err := dir.FindSystemWallet(ctx, req.AssetID)
		if err != nil {
			if errors.Is(err, wallet.ErrSystemWalletMissing) {
				return ErrSystemWalletMissing
			}
			return err
		}

		// Fresh under the lock taken by resolveUserWallet: no other unit of
		// work can append entries for this wallet until we finish.
		currentBalance, err := store.BalanceOf(ctx, userWallet.ID)
		if err != nil {
			return err
		}

		isSpend := req.Type == ledger.TypeSpend
		if isSpend && currentBalance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}

		now := time.Now().UTC()
		tx := ledger.Transaction{
			ID:             uuid.New().String(),
			IdempotencyKey: req.IdempotencyKey,
			Type:           req.Type,
			Status:         ledger.StatusCompleted,
			Metadata:       req.Metadata,
			CreatedAt:      now,
		}
		inserted, err := store.CreateTransaction(ctx, tx)
		if err != nil {
			return err
		}
		if !inserted {
			// Another request with the same key committed first. Discard
			// this unit of work and return its transaction instead.
			return errIdempotentReplay
		}

		userAmount := req.Amount
		userType := ledger.EntryCredit
		userAfter := currentBalance.Add(req.Amount)
		if isSpend {
			userAmount = req.Amount.Neg()
			userType = ledger.EntryDebit
			userAfter = currentBalance.Sub(req.Amount)
		}
		systemType := ledger.EntryDebit
		if isSpend {
			systemType = ledger.EntryCredit
		}

		entries := []ledger.Entry{
			{
				ID:            uuid.New().String(),
				TransactionID: tx.ID,
				WalletID:      userWallet.ID,
				Amount:        userAmount,
				BalanceAfter:  decimal.NewNullDecimal(userAfter),
				Type:          userType,
				CreatedAt:     now,
			},
			{
				ID:            uuid.New().String(),
				TransactionID: tx.ID,
				WalletID:      systemWallet.ID,
				// Exact negation of the user entry keeps the pair summing to
				// zero. The snapshot is a zero sentinel: treasury balance is
				// not tracked.
				Amount:       userAmount.Neg(),
				BalanceAfter: decimal.NewNullDecimal(decimal.Zero),
				Type:         systemType,
				CreatedAt:    now,
			},
		}
		if err := store.AppendEntries(ctx, entries); err != nil {
			return err
		}

		created = tx
		return nil
	})
	if errors.Is(err, errIdempotentReplay) {
		return s.store.FindTransactionByKey(ctx, req.IdempotencyKey)
	}
	if err != nil {
		return ledger.Transaction{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.TransactionCompleted(ctx, notification.Event{
			TransactionID: created.ID,
			UserID:        req.UserID,
			AssetID:       req.AssetID,
			Type:          req.Type,
			Amount:        req.Amount,
		})
	}

	return created, nil
}

func (s *Service) resolveUserWallet(ctx context.Context, dir wallet.Directory, req Request) (wallet.Wallet, error) {
	if req.Type == ledger.TypeSpend {
		w, err := dir.LockUserWallet(ctx, req.UserID, req.AssetID)
		if errors.Is(err, wallet.ErrNotFound) {
			return wallet.Wallet{}, ErrWalletNotFound
		}
		return w, err
	}
	// TOPUP and BONUS materialize the wallet on first use.
	return dir.FindOrCreateUserWallet(ctx, req.UserID, req.AssetID)
}

// GetBalance returns the derived balance for a (user, asset) pair. A missing
// wallet is zero, not an error: wallets materialize lazily on first credit.
func (s *Service) GetBalance(ctx context.Context, userID, assetID string) (decimal.Decimal, error) {
	w, err := s.wallets.FindUserWallet(ctx, userID, assetID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return s.store.BalanceOf(ctx, w.ID)
}

// Balances returns the user's balance for every catalogued asset.
func (s *Service) Balances(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	assets, err := s.assets.List(ctx)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		balance, err := s.GetBalance(ctx, userID, a.ID)
		if err != nil {
			return nil, err
		}
		balances[a.ID] = balance
	}
	return balances, nil
}

// GetLedger returns the wallet's entries newest first, each with its parent
// transaction. A missing wallet yields an empty history.
func (s *Service) GetLedger(ctx context.Context, userID, assetID string) ([]ledger.Entry, error) {
	w, err := s.wallets.FindUserWallet(ctx, userID, assetID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.store.EntriesFor(ctx, w.ID)
}
