package seed

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vault-pay/vault_pay/internal/asset"
	"github.com/vault-pay/vault_pay/internal/identity"
	"github.com/vault-pay/vault_pay/internal/storage"
	"github.com/vault-pay/vault_pay/internal/transactions"
)

func newDeps(t *testing.T) Deps {
	t.Helper()
	mem := storage.NewMemory()
	assets := asset.NewMemoryRepository()
	identitySvc := identity.NewService(identity.NewMemoryRepository())
	txSvc := transactions.NewService(mem, mem, mem, assets, nil)
	return Deps{
		Assets:       assets,
		Identity:     identitySvc,
		Wallets:      mem,
		Transactions: txSvc,
	}
}

func TestRunSeedsBalances(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()

	if err := Run(ctx, deps); err != nil {
		t.Fatalf("seed: %v", err)
	}

	assets, err := deps.Assets.List(ctx)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	for _, a := range assets {
		if _, err := deps.Wallets.FindSystemWallet(ctx, a.ID); err != nil {
			t.Fatalf("system wallet for %s: %v", a.ID, err)
		}
	}

	alice, err := deps.Identity.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup alice: %v", err)
	}
	got, err := deps.Transactions.GetBalance(ctx, alice.ID, "GOLD")
	if err != nil {
		t.Fatalf("alice balance: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected alice to hold 100 GOLD, got %s", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	deps := newDeps(t)
	ctx := context.Background()

	if err := Run(ctx, deps); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Run(ctx, deps); err != nil {
		t.Fatalf("second run: %v", err)
	}

	bob, err := deps.Identity.GetByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("lookup bob: %v", err)
	}
	got, err := deps.Transactions.GetBalance(ctx, bob.ID, "GOLD")
	if err != nil {
		t.Fatalf("bob balance: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected bob to hold 50 GOLD after reruns, got %s", got)
	}
}
