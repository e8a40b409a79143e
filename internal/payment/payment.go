package payment

import (
	"errors"
	"time"
)

// State is the lifecycle state of a payment transaction. It only ever
// moves pending -> approved or pending -> declined; terminal states are
// final.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateDeclined State = "declined"
)

func (s State) Terminal() bool {
	return s == StateApproved || s == StateDeclined
}

// Kind determines which side effect fires when a transaction is approved.
type Kind string

const (
	KindDataBundle  Kind = "data_bundle"
	KindAgentSignup Kind = "agent_signup"
)

// Metadata carries the opaque payload the side effect needs: bundle
// descriptor fields for a data purchase, pending-account fields for an
// agent signup. Immutable once the transaction is created.
type Metadata map[string]string

// Metadata keys used by the side-effect executor.
const (
	MetaServiceID  = "service_id"
	MetaProvider   = "provider"
	MetaBundleGB   = "gb"
	MetaFullName   = "full_name"
	MetaPhone      = "phone"
	MetaMomoNumber = "momo_number"
	MetaEmail      = "email"
	MetaUsername   = "username"
	MetaPassword   = "password"

	// MetaPasswordHash replaces MetaPassword during request validation;
	// only the bcrypt hash is ever written to the transaction record.
	MetaPasswordHash = "password_hash"
)

var (
	// ErrNotFound means no transaction exists for the given reference.
	// Webhook and poll callers have nothing to reconcile against.
	ErrNotFound = errors.New("transaction not found")

	// ErrInvalid rejects malformed purchase intents before any record is
	// created or any gateway call is made.
	ErrInvalid = errors.New("invalid payment request")
)

// Transaction is one purchase or signup attempt, keyed by its idempotency
// reference. Everything except state, gateway_reference, reason_code and
// side_effect_applied is immutable after creation.
type Transaction struct {
	Reference         string
	Kind              Kind
	Amount            int64 // minor units (pesewas)
	PayerMSISDN       string
	RecipientMSISDN   string
	Metadata          Metadata
	State             State
	GatewayReference  string
	CheckoutURL       string
	ReasonCode        string
	SideEffectApplied bool
	CreatedAt         time.Time
	TerminalAt        *time.Time
}

// TerminalFields travels with a pending -> terminal transition attempt.
type TerminalFields struct {
	GatewayReference string
	ReasonCode       string
	TerminalAt       time.Time
}

// ListFilter narrows List queries.
type ListFilter struct {
	State  *State
	Limit  int
	Offset int
}
