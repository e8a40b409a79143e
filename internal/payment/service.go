package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rickysdata/dataplug/internal/gateway"
	"github.com/rickysdata/dataplug/internal/metrics"
	"github.com/rickysdata/dataplug/internal/msisdn"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=payment

// Store is the durable transaction record store. CreateIfAbsent and
// TryTransition must be atomic in the underlying store; TryTransition is
// the only path by which State and SideEffectApplied change.
type Store interface {
	// CreateIfAbsent inserts tx unless a record for tx.Reference already
	// exists, in which case the stored record is returned unchanged. The
	// bool reports whether this call inserted.
	CreateIfAbsent(ctx context.Context, tx Transaction) (Transaction, bool, error)

	// Get returns ErrNotFound when no record exists for reference.
	Get(ctx context.Context, reference string) (Transaction, error)

	// TryTransition is a compare-and-swap on State. When the current state
	// is not from, it reports applied=false and returns the stored record
	// unchanged. A transition into StateApproved flips SideEffectApplied
	// in the same write.
	TryTransition(ctx context.Context, reference string, from, to State, terminal TerminalFields) (Transaction, bool, error)

	// SetGatewayReference records the gateway's identifiers after an
	// asynchronous initiation. It never touches State.
	SetGatewayReference(ctx context.Context, reference, gatewayRef, checkoutURL string) error

	List(ctx context.Context, filter ListFilter) ([]Transaction, error)
}

// Effects applies the business side effect of an approved transaction.
// The engine calls it at most once per reference, from whichever entry
// point wins the transition into StateApproved.
type Effects interface {
	Apply(ctx context.Context, tx Transaction) error
}

// storeWriteTimeout bounds store writes that have been detached from the
// inbound request context.
const storeWriteTimeout = 30 * time.Second

// Service is the reconciliation engine. Synchronous gateway responses,
// webhook deliveries and client polls all funnel into Reconcile, which
// owns the pending -> terminal transitions.
type Service struct {
	store   Store
	gateway gateway.Client
	effects Effects
}

func NewService(store Store, gw gateway.Client, effects Effects) *Service {
	return &Service{store: store, gateway: gw, effects: effects}
}

type InitiateParams struct {
	Reference       string // optional; generated when empty
	Kind            Kind
	Amount          int64
	PayerMSISDN     string
	RecipientMSISDN string
	Network         string
	Email           string
	Metadata        Metadata
}

type InitiateResult struct {
	Reference   string
	State       State
	ReasonCode  string
	CheckoutURL string
}

// Result is what webhook and poll callers get back: the authoritative
// stored state for a reference.
type Result struct {
	Reference  string
	State      State
	ReasonCode string
}

func resultOf(tx Transaction) Result {
	return Result{Reference: tx.Reference, State: tx.State, ReasonCode: tx.ReasonCode}
}

// writeCtx detaches store writes from the caller's cancellation so a
// dropped client connection cannot abort a half-applied transition.
func writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
}

func stateFor(o gateway.Outcome) (State, bool) {
	switch o {
	case gateway.OutcomeApproved:
		return StateApproved, true
	case gateway.OutcomeDeclined:
		return StateDeclined, true
	}

	return StatePending, false
}

// Initiate validates a purchase intent, creates the pending transaction
// record and asks the gateway to charge. A synchronous gateway verdict is
// reconciled before returning; an asynchronous one leaves the record
// pending with a checkout URL for the payer.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (InitiateResult, error) {
	params, err := normalizeParams(params)
	if err != nil {
		return InitiateResult{}, err
	}

	reference := params.Reference
	if reference == "" {
		reference = uuid.NewString()
	}

	wctx, cancel := writeCtx(ctx)
	defer cancel()

	tx, inserted, err := s.store.CreateIfAbsent(wctx, Transaction{
		Reference:       reference,
		Kind:            params.Kind,
		Amount:          params.Amount,
		PayerMSISDN:     params.PayerMSISDN,
		RecipientMSISDN: params.RecipientMSISDN,
		Metadata:        params.Metadata,
		State:           StatePending,
	})
	if err != nil {
		return InitiateResult{}, fmt.Errorf("creating transaction %s: %w", reference, err)
	}

	// A replayed reference returns the stored record. The gateway is only
	// re-contacted when the previous attempt never got an initiation
	// through (still pending, no gateway identifiers).
	if !inserted && (tx.State.Terminal() || tx.GatewayReference != "" || tx.CheckoutURL != "") {
		slog.Info("initiate replayed", "reference", reference, "state", tx.State)
		return InitiateResult{
			Reference:   reference,
			State:       tx.State,
			ReasonCode:  tx.ReasonCode,
			CheckoutURL: tx.CheckoutURL,
		}, nil
	}

	res, err := s.gateway.Initiate(ctx, gateway.ChargeRequest{
		Reference:   reference,
		Amount:      tx.Amount,
		PayerMSISDN: tx.PayerMSISDN,
		Network:     params.Network,
		Description: chargeDescription(tx),
		Email:       params.Email,
		Metadata:    tx.Metadata,
	})
	if err != nil {
		// The record stays pending: an initiation failure is not a
		// decline, and the same reference may be retried.
		metrics.GatewayInitiateFailures.WithLabelValues(s.gateway.Name()).Inc()
		slog.Error("gateway initiate failed", "reference", reference, "gateway", s.gateway.Name(), "error", err)

		return InitiateResult{}, fmt.Errorf("initiating charge %s: %w", reference, err)
	}

	if res.Final != nil {
		rec, err := s.Reconcile(ctx, reference, *res.Final)
		if err != nil {
			return InitiateResult{}, err
		}

		return InitiateResult{Reference: reference, State: rec.State, ReasonCode: rec.ReasonCode}, nil
	}

	if err := s.store.SetGatewayReference(wctx, reference, res.GatewayReference, res.CheckoutURL); err != nil {
		return InitiateResult{}, fmt.Errorf("recording gateway reference for %s: %w", reference, err)
	}

	slog.Info("checkout link generated",
		"reference", reference, "gateway_reference", res.GatewayReference)

	return InitiateResult{Reference: reference, State: StatePending, CheckoutURL: res.CheckoutURL}, nil
}

// Reconcile applies an observed outcome to the stored transaction. It is
// idempotent: replays and race losers get the stored terminal state back,
// and the side effect fires only on the single winning transition into
// StateApproved.
func (s *Service) Reconcile(ctx context.Context, reference string, obs gateway.Observation) (Result, error) {
	to, terminal := stateFor(obs.Outcome)

	tx, err := s.store.Get(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unsolicited notification. Nothing to reconcile against and
			// nothing is created from it.
			slog.Warn("notification for unknown reference", "reference", reference, "outcome", obs.Outcome)
		}

		return Result{}, err
	}

	if !terminal {
		return resultOf(tx), nil
	}

	if tx.State.Terminal() {
		metrics.DuplicateNotifications.Inc()
		return resultOf(tx), nil
	}

	wctx, cancel := writeCtx(ctx)
	defer cancel()

	tx, applied, err := s.store.TryTransition(wctx, reference, StatePending, to, TerminalFields{
		GatewayReference: obs.GatewayReference,
		ReasonCode:       obs.ReasonCode,
		TerminalAt:       time.Now().UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("transitioning %s: %w", reference, err)
	}

	if !applied {
		// A concurrent delivery won the compare-and-swap; its outcome is
		// authoritative and this one is discarded.
		metrics.DuplicateNotifications.Inc()
		return resultOf(tx), nil
	}

	metrics.TransactionsTotal.WithLabelValues(string(to)).Inc()
	slog.Info("transaction settled",
		"reference", reference, "state", to,
		"gateway_reference", obs.GatewayReference, "reason_code", obs.ReasonCode)

	if to == StateApproved {
		// Guarded by the same compare-and-swap that flipped
		// SideEffectApplied, so this runs once per reference. The money
		// has moved; a failure here keeps the transaction approved and is
		// surfaced for manual reconciliation.
		if err := s.effects.Apply(wctx, tx); err != nil {
			slog.Error("side effect failed, manual reconciliation required",
				"reference", reference,
				"gateway_reference", tx.GatewayReference,
				"amount", tx.Amount,
				"kind", tx.Kind,
				"error", err)
		}
	}

	return resultOf(tx), nil
}

// Poll answers a client-driven status check. Stored terminal states are
// returned without touching the gateway; otherwise the gateway's status
// API is consulted when the variant has one, and a terminal answer is
// reconciled through the same path a webhook would take.
func (s *Service) Poll(ctx context.Context, reference string) (Result, error) {
	tx, err := s.store.Get(ctx, reference)
	if err != nil {
		return Result{}, err
	}

	if tx.State.Terminal() {
		return resultOf(tx), nil
	}

	querier, ok := s.gateway.(gateway.StatusQuerier)
	if !ok {
		return resultOf(tx), nil
	}

	obs, err := querier.Status(ctx, reference)
	if err != nil {
		// Status checks are cheap and the client retries; a gateway
		// hiccup is reported as still-pending, never as a decline.
		slog.Warn("status query failed", "reference", reference, "error", err)
		return resultOf(tx), nil
	}

	if !obs.Outcome.Terminal() {
		return resultOf(tx), nil
	}

	return s.Reconcile(ctx, reference, obs)
}

func (s *Service) Get(ctx context.Context, reference string) (Transaction, error) {
	return s.store.Get(ctx, reference)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	return s.store.List(ctx, filter)
}

func chargeDescription(tx Transaction) string {
	if tx.Kind == KindAgentSignup {
		return "Agent signup for " + tx.Metadata[MetaFullName]
	}

	if gb := tx.Metadata[MetaBundleGB]; gb != "" {
		return fmt.Sprintf("%sGB %s data bundle", gb, tx.Metadata[MetaProvider])
	}

	return "Data bundle purchase"
}

func normalizeParams(p InitiateParams) (InitiateParams, error) {
	if p.Amount <= 0 {
		return p, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}

	switch p.Kind {
	case KindDataBundle, KindAgentSignup:
	default:
		return p, fmt.Errorf("%w: unknown kind %q", ErrInvalid, p.Kind)
	}

	payer, err := msisdn.Normalize(p.PayerMSISDN)
	if err != nil {
		return p, fmt.Errorf("%w: payer msisdn: %v", ErrInvalid, err)
	}

	p.PayerMSISDN = payer

	if p.RecipientMSISDN == "" {
		p.RecipientMSISDN = payer
	} else {
		recipient, err := msisdn.Normalize(p.RecipientMSISDN)
		if err != nil {
			return p, fmt.Errorf("%w: recipient msisdn: %v", ErrInvalid, err)
		}

		p.RecipientMSISDN = recipient
	}

	if p.Metadata == nil {
		p.Metadata = Metadata{}
	}

	if p.Kind == KindAgentSignup {
		for _, key := range []string{MetaFullName, MetaPhone, MetaMomoNumber, MetaEmail, MetaUsername, MetaPassword} {
			if p.Metadata[key] == "" {
				return p, fmt.Errorf("%w: agent signup metadata missing %s", ErrInvalid, key)
			}
		}

		// The signup payload must be provisionable before any money moves.
		for _, key := range []string{MetaPhone, MetaMomoNumber} {
			normalized, err := msisdn.Normalize(p.Metadata[key])
			if err != nil {
				return p, fmt.Errorf("%w: agent %s: %v", ErrInvalid, key, err)
			}

			p.Metadata[key] = normalized
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(p.Metadata[MetaPassword]), bcrypt.DefaultCost)
		if err != nil {
			return p, fmt.Errorf("hashing credential: %w", err)
		}

		p.Metadata[MetaPasswordHash] = string(hash)
		delete(p.Metadata, MetaPassword)
	}

	if p.Kind == KindDataBundle && p.Metadata[MetaServiceID] == "" {
		gb, provider := p.Metadata[MetaBundleGB], p.Metadata[MetaProvider]
		if gb == "" || provider == "" {
			return p, fmt.Errorf("%w: data bundle metadata needs %s or %s+%s",
				ErrInvalid, MetaServiceID, MetaBundleGB, MetaProvider)
		}

		p.Metadata[MetaServiceID] = "D" + gb
	}

	return p, nil
}
