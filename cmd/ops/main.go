package main

import (
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/rickysdata/dataplug/cmd/ops/internal/view"
	"github.com/rickysdata/dataplug/internal/agent"
	agentStore "github.com/rickysdata/dataplug/internal/agent/store"
	"github.com/rickysdata/dataplug/internal/config"
	"github.com/rickysdata/dataplug/internal/database"
	"github.com/rickysdata/dataplug/internal/fulfillment"
	"github.com/rickysdata/dataplug/internal/gateway"
	"github.com/rickysdata/dataplug/internal/gateway/moolre"
	"github.com/rickysdata/dataplug/internal/gateway/teller"
	"github.com/rickysdata/dataplug/internal/payment"
	paymentStore "github.com/rickysdata/dataplug/internal/payment/store"
	"github.com/rickysdata/dataplug/internal/purchase"
	purchaseStore "github.com/rickysdata/dataplug/internal/purchase/store"
	"github.com/rickysdata/dataplug/internal/settlement"
)

type model struct {
	paymentService  *payment.Service
	purchaseService *purchase.Service
	settlementSvc   *settlement.Service

	currentView View

	transactionsView view.TransactionsModel
	queueView        view.QueueModel
	settleView       view.SettleModel
}

type View int

const (
	ViewMenu         View = 0
	ViewTransactions View = 1
	ViewQueue        View = 2
	ViewSettle       View = 3
)

func initialModel() model {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString(), cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, cfg.DB.ConnMaxLifetime)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	purchaseSvc := purchase.NewService(purchaseStore.New(db))
	agentSvc := agent.NewService(agentStore.New(db))
	executor := fulfillment.NewExecutor(purchaseSvc, agentSvc, nil, 0)
	paymentSvc := payment.NewService(paymentStore.New(db), newGateway(cfg), executor)
	settlementSvc := settlement.NewService(purchaseSvc, slog.Default())

	return model{
		paymentService:   paymentSvc,
		purchaseService:  purchaseSvc,
		settlementSvc:    settlementSvc,
		currentView:      ViewMenu,
		transactionsView: view.NewTransactionsModel(paymentSvc),
		queueView:        view.NewQueueModel(purchaseSvc),
		settleView:       view.NewSettleModel(settlementSvc),
	}
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

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewTransactions
				m.transactionsView = view.NewTransactionsModel(m.paymentService)

				return m, m.transactionsView.Init()
			case "2":
				m.currentView = ViewQueue
				m.queueView = view.NewQueueModel(m.purchaseService)

				return m, m.queueView.Init()
			case "3":
				m.currentView = ViewSettle
				m.settleView = view.NewSettleModel(m.settlementSvc)

				return m, m.settleView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewTransactions:
		var newModel tea.Model
		newModel, cmd = m.transactionsView.Update(msg)
		m.transactionsView = newModel.(view.TransactionsModel)
	case ViewQueue:
		var newModel tea.Model
		newModel, cmd = m.queueView.Update(msg)
		m.queueView = newModel.(view.QueueModel)
	case ViewSettle:
		var newModel tea.Model
		newModel, cmd = m.settleView.Update(msg)
		m.settleView = newModel.(view.SettleModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Dataplug Ops\n\n" +
				"1. Transactions\n" +
				"2. Fulfillment Queue\n" +
				"3. Settlement Import\n\n" +
				"q. Quit",
		)
	case ViewTransactions:
		return m.transactionsView.View()
	case ViewQueue:
		return m.queueView.View()
	case ViewSettle:
		return m.settleView.View()
	}

	return "Unknown View"
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
