package purchase

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=purchase
type Repository interface {
	// Upsert writes the purchase keyed by its reference. Re-writing the
	// same reference is a no-op on the stored values, which makes retried
	// side-effect writes idempotent.
	Upsert(ctx context.Context, p Purchase) error
	Get(ctx context.Context, reference string) (Purchase, error)
	List(ctx context.Context, filter ListFilter) ([]Purchase, error)
	MarkExported(ctx context.Context, references []string) (int64, error)
	MarkSettled(ctx context.Context, reference string, settledAt time.Time) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Record(ctx context.Context, p Purchase) error {
	if err := s.repo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("recording purchase %s: %w", p.Reference, err)
	}

	return nil
}

func (s *Service) Get(ctx context.Context, reference string) (Purchase, error) {
	return s.repo.Get(ctx, reference)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Purchase, error) {
	return s.repo.List(ctx, filter)
}

// PendingExport returns purchases the fulfillment tooling has not picked
// up yet.
func (s *Service) PendingExport(ctx context.Context, limit int) ([]Purchase, error) {
	notExported := false
	return s.repo.List(ctx, ListFilter{Exported: &notExported, Limit: limit})
}

func (s *Service) MarkExported(ctx context.Context, references []string) (int64, error) {
	if len(references) == 0 {
		return 0, nil
	}

	return s.repo.MarkExported(ctx, references)
}

func (s *Service) MarkSettled(ctx context.Context, reference string, settledAt time.Time) error {
	return s.repo.MarkSettled(ctx, reference, settledAt)
}
