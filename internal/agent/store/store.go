package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickysdata/dataplug/internal/agent"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

const selectColumns = `
	id, full_name, phone, momo_number, email, username, password_hash,
	status, transaction_reference, created_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(s scanner) (agent.Agent, error) {
	var a agent.Agent

	if err := s.Scan(
		&a.ID, &a.FullName, &a.Phone, &a.MomoNumber, &a.Email, &a.Username,
		&a.PasswordHash, &a.Status, &a.TransactionReference, &a.CreatedAt,
	); err != nil {
		return agent.Agent{}, err
	}

	return a, nil
}

func (s *Store) Create(ctx context.Context, a *agent.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO agents
			(id, full_name, phone, momo_number, email, username, password_hash, status, transaction_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		a.ID, a.FullName, a.Phone, a.MomoNumber, a.Email, a.Username,
		a.PasswordHash, a.Status, a.TransactionReference,
	).Scan(&a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return agent.ErrConflict
		}

		return fmt.Errorf("creating agent: %w", err)
	}

	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (agent.Agent, error) {
	query := `SELECT ` + selectColumns + ` FROM agents WHERE email = $1`

	a, err := scanAgent(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return agent.Agent{}, agent.ErrNotFound
		}

		return agent.Agent{}, fmt.Errorf("getting agent by email: %w", err)
	}

	return a, nil
}

func (s *Store) GetByReference(ctx context.Context, reference string) (agent.Agent, error) {
	query := `SELECT ` + selectColumns + ` FROM agents WHERE transaction_reference = $1`

	a, err := scanAgent(s.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return agent.Agent{}, agent.ErrNotFound
		}

		return agent.Agent{}, fmt.Errorf("getting agent by reference: %w", err)
	}

	return a, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]agent.Agent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + selectColumns + ` FROM agents ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var out []agent.Agent

	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}

		out = append(out, a)
	}

	return out, rows.Err()
}
