package asset

import "time"

// Asset describes a virtual currency tracked by the ledger. The identifier is
// a short code such as "GOLD". Scale is the number of fractional digits used
// for display; arithmetic always runs on exact decimals.
type Asset struct {
	ID        string
	Name      string
	Scale     int
	CreatedAt time.Time
}
