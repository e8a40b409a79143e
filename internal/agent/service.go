package agent

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rickysdata/dataplug/internal/msisdn"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=agent
type Repository interface {
	Create(ctx context.Context, a *Agent) error
	GetByEmail(ctx context.Context, email string) (Agent, error)
	GetByReference(ctx context.Context, reference string) (Agent, error)
	List(ctx context.Context, limit int) ([]Agent, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ProvisionParams struct {
	FullName             string
	Phone                string
	MomoNumber           string
	Email                string
	Username             string
	PasswordHash         string
	TransactionReference string
}

// Provision creates an active reseller account linked to the approved
// signup transaction. The credential arrives already bcrypt-hashed from
// payment initiation, so no plaintext ever reaches this package.
func (s *Service) Provision(ctx context.Context, params ProvisionParams) (*Agent, error) {
	phone, err := msisdn.Normalize(params.Phone)
	if err != nil {
		return nil, fmt.Errorf("agent phone: %w", err)
	}

	momo, err := msisdn.Normalize(params.MomoNumber)
	if err != nil {
		return nil, fmt.Errorf("agent momo number: %w", err)
	}

	a := &Agent{
		FullName:             params.FullName,
		Phone:                phone,
		MomoNumber:           momo,
		Email:                params.Email,
		Username:             params.Username,
		PasswordHash:         params.PasswordHash,
		Status:               StatusActive,
		TransactionReference: params.TransactionReference,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("provisioning agent for %s: %w", params.TransactionReference, err)
	}

	return a, nil
}

// VerifyCredential checks a login attempt against the stored hash.
func (s *Service) VerifyCredential(ctx context.Context, email, password string) (Agent, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return Agent{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return Agent{}, fmt.Errorf("verifying credential: %w", err)
	}

	return a, nil
}

func (s *Service) ByReference(ctx context.Context, reference string) (Agent, error) {
	return s.repo.GetByReference(ctx, reference)
}

func (s *Service) List(ctx context.Context, limit int) ([]Agent, error) {
	return s.repo.List(ctx, limit)
}
