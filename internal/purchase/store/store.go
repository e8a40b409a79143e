package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rickysdata/dataplug/internal/purchase"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `
	reference, gateway_reference, amount, payer_msisdn, recipient_msisdn,
	service_id, service_name, exported, settled_at, created_at
`

func scanPurchase(s scanner) (purchase.Purchase, error) {
	var (
		p       purchase.Purchase
		gwRef   sql.NullString
		settled sql.NullTime
	)

	if err := s.Scan(
		&p.Reference, &gwRef, &p.Amount, &p.PayerMSISDN, &p.RecipientMSISDN,
		&p.ServiceID, &p.ServiceName, &p.Exported, &settled, &p.CreatedAt,
	); err != nil {
		return purchase.Purchase{}, err
	}

	p.GatewayReference = gwRef.String

	if settled.Valid {
		t := settled.Time
		p.SettledAt = &t
	}

	return p, nil
}

func (s *Store) Upsert(ctx context.Context, p purchase.Purchase) error {
	query := `
		INSERT INTO purchases
			(reference, gateway_reference, amount, payer_msisdn, recipient_msisdn, service_id, service_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reference) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		p.Reference, nullable(p.GatewayReference), p.Amount,
		p.PayerMSISDN, p.RecipientMSISDN, p.ServiceID, p.ServiceName)
	if err != nil {
		return fmt.Errorf("upserting purchase: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, reference string) (purchase.Purchase, error) {
	query := `SELECT ` + selectColumns + ` FROM purchases WHERE reference = $1`

	p, err := scanPurchase(s.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return purchase.Purchase{}, purchase.ErrNotFound
		}

		return purchase.Purchase{}, fmt.Errorf("getting purchase: %w", err)
	}

	return p, nil
}

func (s *Store) List(ctx context.Context, filter purchase.ListFilter) ([]purchase.Purchase, error) {
	query := `SELECT ` + selectColumns + ` FROM purchases`

	var args []any

	if filter.Exported != nil {
		args = append(args, *filter.Exported)
		query += fmt.Sprintf(" WHERE exported = $%d", len(args))
	}

	query += " ORDER BY created_at ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	defer rows.Close()

	var out []purchase.Purchase

	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning purchase: %w", err)
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

func (s *Store) MarkExported(ctx context.Context, references []string) (int64, error) {
	query := `UPDATE purchases SET exported = true WHERE reference = ANY($1)`

	res, err := s.db.ExecContext(ctx, query, references)
	if err != nil {
		return 0, fmt.Errorf("marking exported: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading update result: %w", err)
	}

	return n, nil
}

func (s *Store) MarkSettled(ctx context.Context, reference string, settledAt time.Time) error {
	query := `UPDATE purchases SET exported = true, settled_at = $2 WHERE reference = $1`

	res, err := s.db.ExecContext(ctx, query, reference, settledAt)
	if err != nil {
		return fmt.Errorf("marking settled: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading update result: %w", err)
	}

	if n == 0 {
		return purchase.ErrNotFound
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
