package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickysdata/dataplug/internal/agent"
	agentStore "github.com/rickysdata/dataplug/internal/agent/store"
	"github.com/rickysdata/dataplug/internal/auth"
	"github.com/rickysdata/dataplug/internal/config"
	"github.com/rickysdata/dataplug/internal/database"
	"github.com/rickysdata/dataplug/internal/fulfillment"
	"github.com/rickysdata/dataplug/internal/gateway"
	"github.com/rickysdata/dataplug/internal/gateway/moolre"
	"github.com/rickysdata/dataplug/internal/gateway/teller"
	dataplugHttp "github.com/rickysdata/dataplug/internal/http"
	agentHandler "github.com/rickysdata/dataplug/internal/http/agent"
	paymentHandler "github.com/rickysdata/dataplug/internal/http/payment"
	purchaseHandler "github.com/rickysdata/dataplug/internal/http/purchase"
	settlementHandler "github.com/rickysdata/dataplug/internal/http/settlement"
	webhookHandler "github.com/rickysdata/dataplug/internal/http/webhook"
	"github.com/rickysdata/dataplug/internal/metrics"
	"github.com/rickysdata/dataplug/internal/payment"
	paymentStore "github.com/rickysdata/dataplug/internal/payment/store"
	"github.com/rickysdata/dataplug/internal/purchase"
	purchaseStore "github.com/rickysdata/dataplug/internal/purchase/store"
	"github.com/rickysdata/dataplug/internal/settlement"
	"github.com/rickysdata/dataplug/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.ConnectionString(), cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, cfg.DB.ConnMaxLifetime)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	pool := worker.NewPool(cfg.Worker.Count)
	defer pool.Stop()

	gw := newGateway(cfg)
	slog.Info("payment gateway selected", "gateway", gw.Name())

	var (
		purchaseService = purchase.NewService(purchaseStore.New(db))
		agentService    = agent.NewService(agentStore.New(db))
		executor        = fulfillment.NewExecutor(purchaseService, agentService, pool, cfg.Worker.MaxRetries)
		paymentService  = payment.NewService(paymentStore.New(db), gw, executor)
		settlementSvc   = settlement.NewService(purchaseService, slog.Default())
		tokens          = auth.NewTokenManager(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.TokenTTL)
	)

	router := dataplugHttp.New(
		paymentHandler.NewHandler(paymentService),
		webhookHandler.NewHandler(paymentService),
		purchaseHandler.NewHandler(purchaseService),
		settlementHandler.NewHandler(settlementSvc),
		agentHandler.NewHandler(agentService, tokens),
		tokens,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	go func() {
		slog.Info("starting server", "port", cfg.App.Port, "env", cfg.App.Env)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newGateway(cfg *config.Config) gateway.Client {
	if cfg.Gateway.Provider == "teller" {
		return teller.New(teller.Config{
			BaseURL:    cfg.Teller.BaseURL,
			MerchantID: cfg.Teller.MerchantID,
			APIKey:     cfg.Teller.APIKey,
			Timeout:    cfg.Gateway.Timeout,
		})
	}

	return moolre.New(moolre.Config{
		BaseURL:       cfg.Moolre.BaseURL,
		Username:      cfg.Moolre.Username,
		PublicKey:     cfg.Moolre.PublicKey,
		AccountNumber: cfg.Moolre.AccountNumber,
		CallbackURL:   cfg.Moolre.CallbackURL,
		RedirectURL:   cfg.Moolre.RedirectURL,
		Timeout:       cfg.Gateway.Timeout,
	})
}
