package view

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rickysdata/dataplug/internal/purchase"
)

// queueItem wraps a purchase awaiting fulfillment export.
type queueItem struct {
	p purchase.Purchase
}

func (i queueItem) Title() string {
	return fmt.Sprintf("%s  %s  %s", i.p.Reference, FormatAmount(i.p.Amount), i.p.ServiceName)
}

func (i queueItem) Description() string {
	return fmt.Sprintf("recipient %s  created %s", i.p.RecipientMSISDN, FormatTime(i.p.CreatedAt))
}

func (i queueItem) FilterValue() string {
	return i.p.Reference + " " + i.p.RecipientMSISDN
}

type loadQueueMsg struct {
	purchases []purchase.Purchase
	err       error
}

type exportedMsg struct {
	count int64
	err   error
}

// QueueModel shows the purchases the fulfillment tooling has not drained
// yet and lets the operator mark the batch exported.
type QueueModel struct {
	CommonModel
	svc *purchase.Service

	list   list.Model
	status string
}

func NewQueueModel(svc *purchase.Service) QueueModel {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Fulfillment Queue"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)

	return QueueModel{svc: svc, list: l}
}

func (m QueueModel) Title() string { return "Fulfillment Queue" }

func (m QueueModel) ShortHelp() string {
	return "Esc: back | e: export batch | r: reload"
}

func (m QueueModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m QueueModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		purchases, err := m.svc.PendingExport(ctx, 0)

		return loadQueueMsg{purchases: purchases, err: err}
	}
}

func (m QueueModel) exportCmd() tea.Cmd {
	references := make([]string, 0, len(m.list.Items()))
	for _, item := range m.list.Items() {
		references = append(references, item.(queueItem).p.Reference)
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		count, err := m.svc.MarkExported(ctx, references)

		return exportedMsg{count: count, err: err}
	}
}

func (m QueueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)

		return m, nil

	case loadQueueMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		items := make([]list.Item, len(msg.purchases))
		for i, p := range msg.purchases {
			items[i] = queueItem{p: p}
		}

		m.status = fmt.Sprintf("%d purchases awaiting export", len(msg.purchases))

		return m, m.list.SetItems(items)

	case exportedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Export error: %v", msg.err)
			return m, nil
		}

		m.status = fmt.Sprintf("Exported %d purchases", msg.count)

		return m, m.loadCmd()

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "esc":
			return m, Back
		case "e":
			if len(m.list.Items()) == 0 {
				m.status = "Nothing to export"
				return m, nil
			}

			m.status = "Exporting..."

			return m, m.exportCmd()
		case "r":
			m.status = "Loading..."
			return m, m.loadCmd()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m QueueModel) View() string {
	return lipgloss.NewStyle().Padding(1).Render(
		m.list.View() + "\n\n" + m.status + "\n" + m.ShortHelp(),
	)
}
