// Package gateway defines the capability interface the reconciliation
// engine uses to talk to a mobile-money processor. Two variants implement
// it: teller (the processor answers terminally in the initiation response)
// and moolre (checkout link now, webhook later).
package gateway

import (
	"context"
	"errors"
)

// Outcome is the processor's verdict on a charge.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
)

func (o Outcome) Terminal() bool {
	return o == OutcomeApproved || o == OutcomeDeclined
}

// ErrUnavailable marks initiation failures that never reached a verdict:
// network errors, timeouts, gateway 5xx. The transaction stays pending and
// the caller may retry with the same reference.
var ErrUnavailable = errors.New("gateway unavailable")

// ChargeRequest is a gateway-neutral charge instruction. Amount is in
// minor units (pesewas); MSISDNs are normalized 233-prefixed numbers.
type ChargeRequest struct {
	Reference   string
	Amount      int64
	PayerMSISDN string
	Network     string // payer's mobile-money network, e.g. MTN
	Description string
	Email       string
	Metadata    map[string]string
}

// Observation is a single report of a charge's status, from whichever
// channel delivered it (sync response, webhook, status poll).
type Observation struct {
	Outcome          Outcome
	GatewayReference string
	ReasonCode       string
	Reason           string
}

// InitiateResult is what a gateway returns from the initiation call.
// Final is non-nil for the synchronous variant: the verdict arrived in-band
// and must be reconciled immediately. Otherwise CheckoutURL points the
// payer at the gateway's hosted flow and the verdict arrives later.
type InitiateResult struct {
	Final            *Observation
	GatewayReference string
	CheckoutURL      string
}

type Client interface {
	// Name identifies the variant in logs and metrics.
	Name() string
	Initiate(ctx context.Context, req ChargeRequest) (InitiateResult, error)
}

// StatusQuerier is implemented by gateways that expose a pull-style status
// API. The engine type-asserts for it on the poll path.
type StatusQuerier interface {
	Status(ctx context.Context, reference string) (Observation, error)
}
