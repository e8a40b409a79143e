package view

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rickysdata/dataplug/internal/payment"
)

// txItem wraps a transaction to implement list.Item.
type txItem struct {
	tx payment.Transaction
}

func (i txItem) Title() string {
	state := lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("[%s]", i.tx.State))

	return fmt.Sprintf("%s  %s  %s  %s", i.tx.Reference, FormatAmount(i.tx.Amount), state, i.tx.PayerMSISDN)
}

func (i txItem) Description() string {
	desc := fmt.Sprintf("%s  created %s", i.tx.Kind, FormatTime(i.tx.CreatedAt))
	if i.tx.GatewayReference != "" {
		desc += "  gw:" + i.tx.GatewayReference
	}

	return desc
}

func (i txItem) FilterValue() string {
	return i.tx.Reference + " " + i.tx.PayerMSISDN
}

type loadTxsMsg struct {
	txs []payment.Transaction
	err error
}

type pollResultMsg struct {
	result payment.Result
	err    error
}

type TransactionsModel struct {
	CommonModel
	svc *payment.Service

	list   list.Model
	filter *payment.State
	status string
}

func NewTransactionsModel(svc *payment.Service) TransactionsModel {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Transactions"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)

	return TransactionsModel{svc: svc, list: l}
}

func (m TransactionsModel) Title() string { return "Transactions" }

func (m TransactionsModel) ShortHelp() string {
	return "Esc: back | Enter: poll gateway | a/p/d/l: approved/pending/declined/all"
}

func (m TransactionsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m TransactionsModel) loadCmd() tea.Cmd {
	filter := payment.ListFilter{State: m.filter, Limit: 200}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.svc.List(ctx, filter)

		return loadTxsMsg{txs: txs, err: err}
	}
}

func (m TransactionsModel) pollCmd(reference string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		res, err := m.svc.Poll(ctx, reference)

		return pollResultMsg{result: res, err: err}
	}
}

func (m TransactionsModel) setFilter(s *payment.State) (TransactionsModel, tea.Cmd) {
	m.filter = s
	m.status = "Loading..."

	return m, m.loadCmd()
}

func (m TransactionsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)

		return m, nil

	case loadTxsMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		items := make([]list.Item, len(msg.txs))
		for i, tx := range msg.txs {
			items[i] = txItem{tx: tx}
		}

		m.status = fmt.Sprintf("%d transactions", len(msg.txs))

		return m, m.list.SetItems(items)

	case pollResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Poll error: %v", msg.err)
			return m, nil
		}

		m.status = fmt.Sprintf("%s is %s", msg.result.Reference, msg.result.State)

		return m, m.loadCmd()

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "esc":
			return m, Back
		case "enter":
			if item, ok := m.list.SelectedItem().(txItem); ok {
				m.status = "Polling " + item.tx.Reference + "..."
				return m, m.pollCmd(item.tx.Reference)
			}
		case "a":
			s := payment.StateApproved
			return m.setFilter(&s)
		case "p":
			s := payment.StatePending
			return m.setFilter(&s)
		case "d":
			s := payment.StateDeclined
			return m.setFilter(&s)
		case "l":
			return m.setFilter(nil)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m TransactionsModel) View() string {
	return lipgloss.NewStyle().Padding(1).Render(
		m.list.View() + "\n\n" + m.status + "\n" + m.ShortHelp(),
	)
}
