// Package settlement reconciles gateway settlement files against stored
// purchase records. Rows never create purchases; anything that does not
// match cleanly is reported, not written.
package settlement

import (
	"time"

	"github.com/rickysdata/dataplug/internal/purchase"
)

// Row is one line of a gateway settlement file.
type Row struct {
	Reference        string
	GatewayReference string
	Amount           int64 // minor units
	Status           string
	SettledAt        time.Time
}

// Conflict is a row that matched a purchase but disagreed with it.
type Conflict struct {
	Row      Row
	Existing purchase.Purchase
	Reason   string
}

// Result summarizes one import run.
type Result struct {
	Settled   []string
	Conflicts []Conflict
	Unmatched []Row
}
