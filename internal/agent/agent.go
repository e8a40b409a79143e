package agent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status of a reseller account. Accounts are provisioned only after the
// signup payment is approved, so they are born active.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
)

// Agent is a reseller account created as the side effect of an approved
// agent_signup transaction.
type Agent struct {
	ID                   uuid.UUID
	FullName             string
	Phone                string
	MomoNumber           string
	Email                string
	Username             string
	PasswordHash         string
	Status               Status
	TransactionReference string
	CreatedAt            time.Time
}

var (
	ErrNotFound = errors.New("agent not found")

	// ErrConflict means the email or username is already taken. When this
	// happens after the charge was captured it needs manual reconciliation;
	// the engine never retries it.
	ErrConflict = errors.New("agent credentials already in use")
)
