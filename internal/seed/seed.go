package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vault-pay/vault_pay/internal/asset"
	"github.com/vault-pay/vault_pay/internal/identity"
	"github.com/vault-pay/vault_pay/internal/ledger"
	"github.com/vault-pay/vault_pay/internal/transactions"
	"github.com/vault-pay/vault_pay/internal/wallet"
)

// Deps lists the services seeding writes through. Going through the regular
// services keeps every seeded balance a proper double-entry transaction.
type Deps struct {
	Assets       asset.Repository
	Identity     *identity.Service
	Wallets      wallet.Directory
	Transactions *transactions.Service
	Logger       *slog.Logger
}

type seedGrant struct {
	username string
	assetID  string
	amount   decimal.Decimal
}

// Run provisions the asset catalog, one system wallet per asset and a couple
// of demo users with welcome bonuses. Every step is idempotent (catalog and
// wallets via ON CONFLICT-style ensures, bonuses via fixed idempotency keys),
// so restarts are safe.
func Run(ctx context.Context, d Deps) error {
	assets := []asset.Asset{
		{ID: "GOLD", Name: "Gold Coins", Scale: 2},
		{ID: "DIAMOND", Name: "Diamonds", Scale: 2},
	}
	for _, a := range assets {
		if err := d.Assets.Ensure(ctx, a); err != nil {
			return fmt.Errorf("ensure asset %s: %w", a.ID, err)
		}
		if _, err := d.Wallets.EnsureSystemWallet(ctx, a.ID); err != nil {
			return fmt.Errorf("ensure system wallet %s: %w", a.ID, err)
		}
	}

	for _, username := range []string{"alice", "bob"} {
		if _, err := d.Identity.Register(ctx, username); err != nil && !errors.Is(err, identity.ErrUsernameTaken) {
			return fmt.Errorf("register %s: %w", username, err)
		}
	}

	grants := []seedGrant{
		{username: "alice", assetID: "GOLD", amount: decimal.NewFromInt(100)},
		{username: "bob", assetID: "GOLD", amount: decimal.NewFromInt(50)},
	}
	for _, g := range grants {
		user, err := d.Identity.GetByUsername(ctx, g.username)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", g.username, err)
		}
		_, err = d.Transactions.Execute(ctx, transactions.Request{
			UserID:         user.ID,
			AssetID:        g.assetID,
			Amount:         g.amount,
			Type:           ledger.TypeBonus,
			IdempotencyKey: fmt.Sprintf("seed:bonus:%s:%s", g.username, g.assetID),
			Metadata:       map[string]any{"reason": "seed"},
		})
		if err != nil {
			return fmt.Errorf("grant bonus to %s: %w", g.username, err)
		}
	}

	if d.Logger != nil {
		d.Logger.Info("seed complete", "assets", len(assets), "grants", len(grants))
	}
	return nil
}
