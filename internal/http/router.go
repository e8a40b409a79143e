package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rickysdata/dataplug/internal/auth"
	"github.com/rickysdata/dataplug/internal/http/agent"
	"github.com/rickysdata/dataplug/internal/http/payment"
	"github.com/rickysdata/dataplug/internal/http/purchase"
	"github.com/rickysdata/dataplug/internal/http/settlement"
	"github.com/rickysdata/dataplug/internal/http/webhook"
	"github.com/rickysdata/dataplug/internal/metrics"
)

func New(
	paymentsV1 *payment.Handler,
	webhooks *webhook.Handler,
	purchasesV1 *purchase.Handler,
	settlementsV1 *settlement.Handler,
	agentsV1 *agent.Handler,
	tokens *auth.TokenManager,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(recordLatency)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/webhooks", webhooks.Routes)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			paymentsV1.Routes(r)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			agentsV1.Routes(r)
		})

		// Operator surface: listings, fulfillment export and settlement
		// import all require a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(requireToken(tokens))

			r.Route("/transactions", paymentsV1.AdminRoutes)
			r.Route("/purchases", purchasesV1.Routes)
			r.Route("/settlements", settlementsV1.Routes)
			r.Route("/accounts", agentsV1.AdminRoutes)
		})
	})

	return router
}
