package wallet

import "time"

// Wallet kinds. A user wallet belongs to one (user, asset) pair; a system
// wallet is the per-asset treasury counter-party.
const (
	KindUser   = "USER"
	KindSystem = "SYSTEM"
)

// Wallet is an account scoped to one (owner, asset) pair. It never stores a
// balance; balances are derived by summing ledger entries.
type Wallet struct {
	ID        string
	UserID    string // empty for system wallets
	AssetID   string
	Kind      string
	CreatedAt time.Time
}

// IsSystem reports whether the wallet is an asset treasury wallet.
func (w Wallet) IsSystem() bool {
	return w.Kind == KindSystem
}
