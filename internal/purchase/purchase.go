package purchase

import (
	"errors"
	"time"
)

// Purchase is the immutable record a successful data-bundle payment
// leaves behind. It shares the originating transaction's reference so a
// retried write lands on the same row, and downstream fulfillment tooling
// drains records with Exported=false.
type Purchase struct {
	Reference        string
	GatewayReference string
	Amount           int64 // minor units
	PayerMSISDN      string
	RecipientMSISDN  string
	ServiceID        string
	ServiceName      string
	Exported         bool
	SettledAt        *time.Time
	CreatedAt        time.Time
}

var ErrNotFound = errors.New("purchase not found")

type ListFilter struct {
	Exported *bool
	Limit    int
}
