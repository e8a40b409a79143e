// Package fulfillment applies the side effects of approved transactions:
// writing purchase records for data bundles and provisioning reseller
// accounts for agent signups.
package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickysdata/dataplug/internal/agent"
	"github.com/rickysdata/dataplug/internal/metrics"
	"github.com/rickysdata/dataplug/internal/payment"
	"github.com/rickysdata/dataplug/internal/purchase"
	"github.com/rickysdata/dataplug/internal/worker"
)

// Executor implements payment.Effects. The reconciliation engine calls
// Apply at most once per reference; everything here must tolerate its own
// internal retries because the charge behind it is irreversible.
type Executor struct {
	purchases  *purchase.Service
	agents     *agent.Service
	pool       *worker.Pool
	maxRetries int
}

var _ payment.Effects = (*Executor)(nil)

func NewExecutor(purchases *purchase.Service, agents *agent.Service, pool *worker.Pool, maxRetries int) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Executor{purchases: purchases, agents: agents, pool: pool, maxRetries: maxRetries}
}

func (e *Executor) Apply(ctx context.Context, tx payment.Transaction) error {
	switch tx.Kind {
	case payment.KindDataBundle:
		return e.recordPurchase(ctx, tx)
	case payment.KindAgentSignup:
		return e.provisionAgent(ctx, tx)
	}

	return fmt.Errorf("no side effect for kind %q", tx.Kind)
}

func (e *Executor) recordPurchase(ctx context.Context, tx payment.Transaction) error {
	p := purchaseFrom(tx)

	err := e.purchases.Record(ctx, p)
	if err == nil {
		slog.Info("purchase recorded", "reference", p.Reference, "service_id", p.ServiceID)
		return nil
	}

	metrics.SideEffectFailures.WithLabelValues(string(tx.Kind)).Inc()

	// The write is keyed by reference, so retrying cannot double-credit.
	if e.pool != nil && e.maxRetries > 0 {
		e.retryPurchase(p, e.maxRetries)
	}

	return fmt.Errorf("recording purchase: %w", err)
}

// retryPurchase runs all attempts inside a single pool job so a retry
// chain never has to re-enter Submit while the pool is draining.
func (e *Executor) retryPurchase(p purchase.Purchase, attempts int) {
	ok := e.pool.Submit(func() {
		for attempt := 1; attempt <= attempts; attempt++ {
			time.Sleep(2 * time.Second)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := e.purchases.Record(ctx, p)
			cancel()

			if err == nil {
				slog.Info("purchase recorded on retry", "reference", p.Reference)
				return
			}

			slog.Error("purchase retry failed",
				"reference", p.Reference, "attempts_left", attempts-attempt, "error", err)
		}

		metrics.SideEffectFailures.WithLabelValues(string(payment.KindDataBundle)).Inc()
	})
	if !ok {
		slog.Warn("worker pool stopped, purchase retry abandoned", "reference", p.Reference)
	}
}

// provisionAgent never retries: the charge is captured, and a blind retry
// against a credential conflict could activate a half-investigated
// account. Failures are surfaced for manual reconciliation.
func (e *Executor) provisionAgent(ctx context.Context, tx payment.Transaction) error {
	_, err := e.agents.Provision(ctx, agent.ProvisionParams{
		FullName:             tx.Metadata[payment.MetaFullName],
		Phone:                tx.Metadata[payment.MetaPhone],
		MomoNumber:           tx.Metadata[payment.MetaMomoNumber],
		Email:                tx.Metadata[payment.MetaEmail],
		Username:             tx.Metadata[payment.MetaUsername],
		PasswordHash:         tx.Metadata[payment.MetaPasswordHash],
		TransactionReference: tx.Reference,
	})
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues(string(tx.Kind)).Inc()
		return fmt.Errorf("provisioning agent: %w", err)
	}

	slog.Info("agent provisioned",
		"reference", tx.Reference, "email", tx.Metadata[payment.MetaEmail])

	return nil
}

func purchaseFrom(tx payment.Transaction) purchase.Purchase {
	serviceName := tx.Metadata[payment.MetaServiceID]
	if gb := tx.Metadata[payment.MetaBundleGB]; gb != "" {
		serviceName = fmt.Sprintf("%s %sGB Plan", tx.Metadata[payment.MetaProvider], gb)
	}

	return purchase.Purchase{
		Reference:        tx.Reference,
		GatewayReference: tx.GatewayReference,
		Amount:           tx.Amount,
		PayerMSISDN:      tx.PayerMSISDN,
		RecipientMSISDN:  tx.RecipientMSISDN,
		ServiceID:        tx.Metadata[payment.MetaServiceID],
		ServiceName:      serviceName,
	}
}
