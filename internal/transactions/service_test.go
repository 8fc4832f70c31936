package transactions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vault-pay/vault_pay/internal/asset"
	"github.com/vault-pay/vault_pay/internal/ledger"
	"github.com/vault-pay/vault_pay/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	ctx := context.Background()

	mem := storage.NewMemory()
	assets := asset.NewMemoryRepository()
	for _, a := range []asset.Asset{
		{ID: "GOLD", Name: "Gold Coins", Scale: 2},
		{ID: "DIAMOND", Name: "Diamonds", Scale: 2},
	} {
		if err := assets.Ensure(ctx, a); err != nil {
			t.Fatalf("ensure asset %s: %v", a.ID, err)
		}
		if _, err := mem.EnsureSystemWallet(ctx, a.ID); err != nil {
			t.Fatalf("ensure system wallet %s: %v", a.ID, err)
		}
	}

	return NewService(mem, mem, mem, assets, nil), mem
}

func mustExecute(t *testing.T, svc *Service, req Request) ledger.Transaction {
	t.Helper()
	tx, err := svc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute %s %s: %v", req.Type, req.Amount, err)
	}
	return tx
}

func balance(t *testing.T, svc *Service, userID, assetID string) decimal.Decimal {
	t.Helper()
	b, err := svc.GetBalance(context.Background(), userID, assetID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b
}

func TestExecuteTopupThenSpend(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.NewString()

	mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(100), Type: ledger.TypeTopup,
		IdempotencyKey: "topup-1",
	})
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100 after topup, got %s", got)
	}

	mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(30), Type: ledger.TypeSpend,
		IdempotencyKey: "spend-1",
	})
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected balance 70 after spend, got %s", got)
	}

	_, err := svc.Execute(context.Background(), Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(1000), Type: ledger.TypeSpend,
		IdempotencyKey: "spend-2",
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("balance changed by failed spend: %s", got)
	}
}

func TestExecuteWritesBalancedEntryPair(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(100), Type: ledger.TypeTopup,
		IdempotencyKey: "topup-1",
	})
	mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(30), Type: ledger.TypeSpend,
		IdempotencyKey: "spend-1",
	})

	entries, err := svc.GetLedger(ctx, userID, "GOLD")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 user entries, got %d", len(entries))
	}
	// Newest first: the spend debit leads.
	if !entries[0].Amount.Equal(decimal.NewFromInt(-30)) || entries[0].Type != ledger.EntryDebit {
		t.Fatalf("unexpected newest entry: %s %s", entries[0].Amount, entries[0].Type)
	}
	if !entries[0].BalanceAfter.Valid || !entries[0].BalanceAfter.Decimal.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected balanceAfter 70, got %+v", entries[0].BalanceAfter)
	}
	if entries[0].Transaction == nil || entries[0].Transaction.Type != ledger.TypeSpend {
		t.Fatalf("expected parent spend transaction attached, got %+v", entries[0].Transaction)
	}

	// Each transaction's pair sums to zero, so user and system balances cancel.
	system, err := mem.FindSystemWallet(ctx, "GOLD")
	if err != nil {
		t.Fatalf("find system wallet: %v", err)
	}
	systemBalance, err := mem.BalanceOf(ctx, system.ID)
	if err != nil {
		t.Fatalf("system balance: %v", err)
	}
	userBalance := balance(t, svc, userID, "GOLD")
	if !userBalance.Add(systemBalance).IsZero() {
		t.Fatalf("value not conserved: user=%s system=%s", userBalance, systemBalance)
	}

	systemEntries, err := mem.EntriesFor(ctx, system.ID)
	if err != nil {
		t.Fatalf("system entries: %v", err)
	}
	for _, e := range systemEntries {
		if !e.BalanceAfter.Valid || !e.BalanceAfter.Decimal.IsZero() {
			t.Fatalf("system entry should carry zero balanceAfter sentinel, got %+v", e.BalanceAfter)
		}
	}
}

func TestExecuteIdempotentReplay(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	first := mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(100), Type: ledger.TypeTopup,
		IdempotencyKey: "dup",
	})
	// Replay with a different amount still returns the original record.
	second := mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(999), Type: ledger.TypeTopup,
		IdempotencyKey: "dup",
	})

	if first.ID != second.ID {
		t.Fatalf("expected same transaction id, got %s and %s", first.ID, second.ID)
	}
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("replay applied effects twice: balance %s", got)
	}

	entries, err := svc.GetLedger(ctx, userID, "GOLD")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	system, _ := mem.FindSystemWallet(ctx, "GOLD")
	systemEntries, _ := mem.EntriesFor(ctx, system.ID)
	if total := len(entries) + len(systemEntries); total != 2 {
		t.Fatalf("expected exactly 2 entries total, got %d", total)
	}
}

func TestExecuteConcurrentSpends(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.NewString()

	mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(20), Type: ledger.TypeTopup,
		IdempotencyKey: "fund",
	})

	const workers = 10
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Execute(context.Background(), Request{
				UserID: userID, AssetID: "GOLD",
				Amount: decimal.NewFromInt(5), Type: ledger.TypeSpend,
				IdempotencyKey: fmt.Sprintf("spend-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("spend %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 4 || insufficient != 6 {
		t.Fatalf("expected 4 successes and 6 insufficient, got %d and %d", succeeded, insufficient)
	}
	if got := balance(t, svc, userID, "GOLD"); !got.IsZero() {
		t.Fatalf("expected final balance 0, got %s", got)
	}
}

func TestExecuteConcurrentSameKey(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.NewString()

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := svc.Execute(context.Background(), Request{
				UserID: userID, AssetID: "GOLD",
				Amount: decimal.NewFromInt(10), Type: ledger.TypeTopup,
				IdempotencyKey: "same-key",
			})
			if err != nil {
				t.Errorf("execute %d: %v", i, err)
				return
			}
			ids[i] = tx.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("expected every caller to get transaction %s, caller %d got %s", ids[0], i, ids[i])
		}
	}
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("same key applied more than once: balance %s", got)
	}
}

func TestExecuteConcurrentWalletCreation(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	const workers = 6
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Execute(ctx, Request{
				UserID: userID, AssetID: "GOLD",
				Amount: decimal.NewFromInt(1), Type: ledger.TypeTopup,
				IdempotencyKey: fmt.Sprintf("topup-%d", i),
			})
			if err != nil {
				t.Errorf("topup %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := mem.FindUserWallet(ctx, userID, "GOLD"); err != nil {
		t.Fatalf("wallet not created: %v", err)
	}
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(decimal.NewFromInt(workers)) {
		t.Fatalf("expected balance %d, got %s", workers, got)
	}
}

func TestExecuteSpendWithoutWallet(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Execute(context.Background(), Request{
		UserID: uuid.NewString(), AssetID: "GOLD",
		Amount: decimal.NewFromInt(10), Type: ledger.TypeSpend,
		IdempotencyKey: "spend",
	})
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestExecuteSystemWalletMissing(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Execute(context.Background(), Request{
		UserID: uuid.NewString(), AssetID: "SILVER",
		Amount: decimal.NewFromInt(10), Type: ledger.TypeTopup,
		IdempotencyKey: "topup",
	})
	if !errors.Is(err, ErrSystemWalletMissing) {
		t.Fatalf("expected ErrSystemWalletMissing, got %v", err)
	}
}

func TestExecuteRejectsNonPositiveAmounts(t *testing.T) {
	svc, _ := newTestService(t)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := svc.Execute(context.Background(), Request{
			UserID: uuid.NewString(), AssetID: "GOLD",
			Amount: amount, Type: ledger.TypeTopup,
			IdempotencyKey: "bad-" + amount.String(),
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestGetBalanceUnknownWallet(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.NewString()

	if got := balance(t, svc, userID, "GOLD"); !got.IsZero() {
		t.Fatalf("expected zero balance for unknown wallet, got %s", got)
	}

	entries, err := svc.GetLedger(context.Background(), userID, "GOLD")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger for unknown wallet, got %d entries", len(entries))
	}
}

func TestBalancesCoverCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.NewString()

	mustExecute(t, svc, Request{
		UserID: userID, AssetID: "GOLD",
		Amount: decimal.NewFromInt(25), Type: ledger.TypeBonus,
		IdempotencyKey: "bonus",
	})

	balances, err := svc.Balances(context.Background(), userID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if got := balances["GOLD"]; !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected GOLD 25, got %s", got)
	}
	if got, ok := balances["DIAMOND"]; !ok || !got.IsZero() {
		t.Fatalf("expected DIAMOND 0, got %s (present=%v)", got, ok)
	}
}

func TestGetBalanceMatchesLedgerSum(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	ops := []Request{
		{UserID: userID, AssetID: "GOLD", Amount: decimal.NewFromInt(100), Type: ledger.TypeTopup, IdempotencyKey: "a"},
		{UserID: userID, AssetID: "GOLD", Amount: decimal.RequireFromString("10.50"), Type: ledger.TypeBonus, IdempotencyKey: "b"},
		{UserID: userID, AssetID: "GOLD", Amount: decimal.RequireFromString("0.25"), Type: ledger.TypeSpend, IdempotencyKey: "c"},
	}
	for _, op := range ops {
		mustExecute(t, svc, op)
	}

	entries, err := svc.GetLedger(ctx, userID, "GOLD")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	if got := balance(t, svc, userID, "GOLD"); !got.Equal(sum) {
		t.Fatalf("balance %s diverges from ledger sum %s", got, sum)
	}
}
