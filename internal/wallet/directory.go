package wallet

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no wallet exists for the requested pair.
	ErrNotFound = errors.New("wallet not found")
	// ErrSystemWalletMissing indicates the asset has no provisioned system
	// wallet. System wallets are seeded out of band; their absence is a
	// configuration error, never repaired on demand.
	ErrSystemWalletMissing = errors.New("system wallet missing")
)

// Directory resolves (user, asset) pairs to wallet identities.
//
// LockUserWallet and FindOrCreateUserWallet acquire an exclusive row lock on
// the returned wallet when called inside a unit of work; the lock is held
// until the unit of work commits or rolls back. FindSystemWallet never locks:
// the system wallet is an effectively unlimited source and locking it would
// serialize every transaction for the asset.
type Directory interface {
	FindUserWallet(ctx context.Context, userID, assetID string) (Wallet, error)
	LockUserWallet(ctx context.Context, userID, assetID string) (Wallet, error)
	FindOrCreateUserWallet(ctx context.Context, userID, assetID string) (Wallet, error)
	FindSystemWallet(ctx context.Context, assetID string) (Wallet, error)
	EnsureSystemWallet(ctx context.Context, assetID string) (Wallet, error)
}
