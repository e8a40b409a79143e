package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rickysdata/dataplug/internal/payment"
)

// Store persists payment transactions in Postgres. The idempotency
// guarantees live in the SQL: creation is INSERT ... ON CONFLICT DO
// NOTHING and state transitions are a single conditional UPDATE, so no
// read-then-write window exists in the application.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `
	reference, kind, amount, payer_msisdn, recipient_msisdn, metadata,
	state, gateway_reference, checkout_url, reason_code,
	side_effect_applied, created_at, terminal_at
`

func scanTransaction(s scanner) (payment.Transaction, error) {
	var (
		tx       payment.Transaction
		meta     []byte
		gwRef    sql.NullString
		checkout sql.NullString
		reason   sql.NullString
		terminal sql.NullTime
	)

	if err := s.Scan(
		&tx.Reference, &tx.Kind, &tx.Amount, &tx.PayerMSISDN, &tx.RecipientMSISDN, &meta,
		&tx.State, &gwRef, &checkout, &reason,
		&tx.SideEffectApplied, &tx.CreatedAt, &terminal,
	); err != nil {
		return payment.Transaction{}, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
			return payment.Transaction{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	tx.GatewayReference = gwRef.String
	tx.CheckoutURL = checkout.String
	tx.ReasonCode = reason.String

	if terminal.Valid {
		t := terminal.Time
		tx.TerminalAt = &t
	}

	return tx, nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, tx payment.Transaction) (payment.Transaction, bool, error) {
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return payment.Transaction{}, false, fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO payment_transactions
			(reference, kind, amount, payer_msisdn, recipient_msisdn, metadata, state)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (reference) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		tx.Reference, tx.Kind, tx.Amount, tx.PayerMSISDN, tx.RecipientMSISDN, meta)
	if err != nil {
		return payment.Transaction{}, false, fmt.Errorf("creating transaction: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return payment.Transaction{}, false, fmt.Errorf("reading insert result: %w", err)
	}

	stored, err := s.Get(ctx, tx.Reference)
	if err != nil {
		return payment.Transaction{}, false, err
	}

	return stored, inserted == 1, nil
}

func (s *Store) Get(ctx context.Context, reference string) (payment.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_transactions WHERE reference = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return payment.Transaction{}, payment.ErrNotFound
		}

		return payment.Transaction{}, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

// TryTransition performs the compare-and-swap in one UPDATE. The flip of
// side_effect_applied rides on the same statement as the transition into
// approved, which is what makes the side effect exactly-once under
// concurrent webhook and poll delivery.
func (s *Store) TryTransition(ctx context.Context, reference string, from, to payment.State, terminal payment.TerminalFields) (payment.Transaction, bool, error) {
	query := `
		UPDATE payment_transactions
		SET state = $3,
			side_effect_applied = side_effect_applied OR $3 = 'approved',
			gateway_reference = COALESCE(NULLIF($4, ''), gateway_reference),
			reason_code = $5,
			terminal_at = $6
		WHERE reference = $1 AND state = $2
		RETURNING ` + selectColumns

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query,
		reference, from, to, terminal.GatewayReference, terminal.ReasonCode, terminal.TerminalAt))
	if err == nil {
		return tx, true, nil
	}

	if err != sql.ErrNoRows {
		return payment.Transaction{}, false, fmt.Errorf("transitioning transaction: %w", err)
	}

	// Lost the swap (or the reference is unknown): report the current row.
	stored, err := s.Get(ctx, reference)
	if err != nil {
		return payment.Transaction{}, false, err
	}

	return stored, false, nil
}

func (s *Store) SetGatewayReference(ctx context.Context, reference, gatewayRef, checkoutURL string) error {
	query := `
		UPDATE payment_transactions
		SET gateway_reference = $2, checkout_url = $3
		WHERE reference = $1 AND state = 'pending'
	`

	if _, err := s.db.ExecContext(ctx, query, reference, gatewayRef, checkoutURL); err != nil {
		return fmt.Errorf("recording gateway reference: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context, filter payment.ListFilter) ([]payment.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_transactions`

	var args []any

	if filter.State != nil {
		args = append(args, *filter.State)
		query += fmt.Sprintf(" WHERE state = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []payment.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	return txs, rows.Err()
}
