package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vault-pay/vault_pay/internal/ledger"
	"github.com/vault-pay/vault_pay/internal/wallet"
)

// Memory is a concurrency-safe in-memory wallet directory, ledger store and
// unit-of-work runner sharing one state. A unit of work holds the state mutex
// for its whole duration, which serializes balance-check-then-write sequences
// the same way the row lock does in PostgreSQL; on error the pre-unit
// snapshot is restored so no partial writes survive. Used by unit tests and
// as the development fallback when no database is configured.
type Memory struct {
	mu            sync.Mutex
	wallets       map[string]wallet.Wallet
	userWallets   map[string]string // userID|assetID -> walletID
	systemWallets map[string]string // assetID -> walletID
	transactions  map[string]ledger.Transaction
	txByKey       map[string]string // idempotencyKey -> txID
	entries       []ledger.Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		wallets:       make(map[string]wallet.Wallet),
		userWallets:   make(map[string]string),
		systemWallets: make(map[string]string),
		transactions:  make(map[string]ledger.Transaction),
		txByKey:       make(map[string]string),
	}
}

type memSnapshot struct {
	wallets       map[string]wallet.Wallet
	userWallets   map[string]string
	systemWallets map[string]string
	transactions  map[string]ledger.Transaction
	txByKey       map[string]string
	entryCount    int
}

func (m *Memory) snapshot() memSnapshot {
	return memSnapshot{
		wallets:       copyMap(m.wallets),
		userWallets:   copyMap(m.userWallets),
		systemWallets: copyMap(m.systemWallets),
		transactions:  copyMap(m.transactions),
		txByKey:       copyMap(m.txByKey),
		entryCount:    len(m.entries),
	}
}

func (m *Memory) restore(s memSnapshot) {
	m.wallets = s.wallets
	m.userWallets = s.userWallets
	m.systemWallets = s.systemWallets
	m.transactions = s.transactions
	m.txByKey = s.txByKey
	m.entries = m.entries[:s.entryCount]
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// memView gives a unit of work lock-free access to the state; the runner
// already holds the mutex.
type memView struct{ m *Memory }

func (v memView) Wallets() wallet.Directory { return v }
func (v memView) Ledger() ledger.Store      { return v }

// Run executes fn against a single serialized view of the store.
func (m *Memory) Run(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, memView{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Directory methods on Memory lock and delegate so the same instance can
// serve fast-path lookups and read queries outside any unit of work.

func (m *Memory) FindUserWallet(ctx context.Context, userID, assetID string) (wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.FindUserWallet(ctx, userID, assetID)
}

func (m *Memory) LockUserWallet(ctx context.Context, userID, assetID string) (wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.LockUserWallet(ctx, userID, assetID)
}

func (m *Memory) FindOrCreateUserWallet(ctx context.Context, userID, assetID string) (wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.FindOrCreateUserWallet(ctx, userID, assetID)
}

func (m *Memory) FindSystemWallet(ctx context.Context, assetID string) (wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.FindSystemWallet(ctx, assetID)
}

func (m *Memory) EnsureSystemWallet(ctx context.Context, assetID string) (wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.EnsureSystemWallet(ctx, assetID)
}

func (m *Memory) BalanceOf(ctx context.Context, walletID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.BalanceOf(ctx, walletID)
}

func (m *Memory) EntriesFor(ctx context.Context, walletID string) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.EntriesFor(ctx, walletID)
}

func (m *Memory) FindTransactionByKey(ctx context.Context, key string) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.FindTransactionByKey(ctx, key)
}

func (m *Memory) CreateTransaction(ctx context.Context, tx ledger.Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.CreateTransaction(ctx, tx)
}

func (m *Memory) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.AppendEntries(ctx, entries)
}

func (v memView) FindUserWallet(_ context.Context, userID, assetID string) (wallet.Wallet, error) {
	id, ok := v.m.userWallets[userID+"|"+assetID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return v.m.wallets[id], nil
}

// LockUserWallet is equivalent to FindUserWallet here: the runner's mutex
// already serializes the whole unit of work.
func (v memView) LockUserWallet(ctx context.Context, userID, assetID string) (wallet.Wallet, error) {
	return v.FindUserWallet(ctx, userID, assetID)
}

func (v memView) FindOrCreateUserWallet(ctx context.Context, userID, assetID string) (wallet.Wallet, error) {
	if w, err := v.FindUserWallet(ctx, userID, assetID); err == nil {
		return w, nil
	}
	w := wallet.Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		AssetID:   assetID,
		Kind:      wallet.KindUser,
		CreatedAt: time.Now().UTC(),
	}
	v.m.wallets[w.ID] = w
	v.m.userWallets[userID+"|"+assetID] = w.ID
	return w, nil
}

func (v memView) FindSystemWallet(_ context.Context, assetID string) (wallet.Wallet, error) {
	id, ok := v.m.systemWallets[assetID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrSystemWalletMissing
	}
	return v.m.wallets[id], nil
}

func (v memView) EnsureSystemWallet(ctx context.Context, assetID string) (wallet.Wallet, error) {
	if w, err := v.FindSystemWallet(ctx, assetID); err == nil {
		return w, nil
	}
	w := wallet.Wallet{
		ID:        uuid.New().String(),
		AssetID:   assetID,
		Kind:      wallet.KindSystem,
		CreatedAt: time.Now().UTC(),
	}
	v.m.wallets[w.ID] = w
	v.m.systemWallets[assetID] = w.ID
	return w, nil
}

func (v memView) BalanceOf(_ context.Context, walletID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range v.m.entries {
		if e.WalletID == walletID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (v memView) EntriesFor(_ context.Context, walletID string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for i := len(v.m.entries) - 1; i >= 0; i-- {
		e := v.m.entries[i]
		if e.WalletID != walletID {
			continue
		}
		if tx, ok := v.m.transactions[e.TransactionID]; ok {
			e.Transaction = &tx
		}
		out = append(out, e)
	}
	return out, nil
}

func (v memView) FindTransactionByKey(_ context.Context, key string) (ledger.Transaction, error) {
	id, ok := v.m.txByKey[key]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return v.m.transactions[id], nil
}

func (v memView) CreateTransaction(_ context.Context, tx ledger.Transaction) (bool, error) {
	if _, taken := v.m.txByKey[tx.IdempotencyKey]; taken {
		return false, nil
	}
	v.m.transactions[tx.ID] = tx
	v.m.txByKey[tx.IdempotencyKey] = tx.ID
	return true, nil
}

func (v memView) AppendEntries(_ context.Context, entries []ledger.Entry) error {
	v.m.entries = append(v.m.entries, entries...)
	return nil
}
