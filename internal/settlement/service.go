package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rickysdata/dataplug/internal/purchase"
)

type Service struct {
	purchases *purchase.Service
	logger    *slog.Logger
}

func NewService(purchases *purchase.Service, logger *slog.Logger) *Service {
	return &Service{purchases: purchases, logger: logger}
}

// Import parses a settlement file and marks matching purchases settled.
// Rows that reference no stored purchase are reported as unmatched, and
// rows whose amount or status disagrees with the stored purchase become
// conflicts. Neither creates or modifies anything.
func (s *Service) Import(ctx context.Context, r io.Reader) (Result, error) {
	rows, err := Parse(r)
	if err != nil {
		return Result{}, fmt.Errorf("parsing settlement file: %w", err)
	}

	var result Result

	for _, row := range rows {
		existing, err := s.purchases.Get(ctx, row.Reference)
		if errors.Is(err, purchase.ErrNotFound) {
			result.Unmatched = append(result.Unmatched, row)
			continue
		}

		if err != nil {
			return Result{}, fmt.Errorf("looking up purchase %s: %w", row.Reference, err)
		}

		if reason, ok := disagreement(row, existing); ok {
			result.Conflicts = append(result.Conflicts, Conflict{Row: row, Existing: existing, Reason: reason})
			continue
		}

		if existing.SettledAt != nil {
			result.Settled = append(result.Settled, row.Reference)
			continue
		}

		if err := s.purchases.MarkSettled(ctx, row.Reference, row.SettledAt); err != nil {
			return Result{}, fmt.Errorf("settling purchase %s: %w", row.Reference, err)
		}

		result.Settled = append(result.Settled, row.Reference)
	}

	s.logger.Info("settlement import finished",
		"settled", len(result.Settled),
		"conflicts", len(result.Conflicts),
		"unmatched", len(result.Unmatched))

	return result, nil
}

func disagreement(row Row, existing purchase.Purchase) (string, bool) {
	if row.Amount != existing.Amount {
		return fmt.Sprintf("amount mismatch: file has %d, purchase has %d", row.Amount, existing.Amount), true
	}

	if row.Status != "" && !settledStatus(row.Status) {
		return fmt.Sprintf("non-settled status %q for recorded purchase", row.Status), true
	}

	return "", false
}

func settledStatus(status string) bool {
	switch status {
	case "settled", "success", "successful", "approved", "paid", "1":
		return true
	}

	return false
}
