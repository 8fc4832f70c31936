package identity

import "time"

// User represents a registered wallet owner. Users carry no balance of their
// own; funds live in per-asset wallets keyed by the user id.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}
