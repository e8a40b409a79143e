package view

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/rickysdata/dataplug/internal/settlement"
)

type settleState int

const (
	settleStateForm settleState = iota
	settleStateRunning
	settleStateDone
)

type importResultMsg struct {
	result settlement.Result
	err    error
}

// SettleModel drives a settlement file import from a local path.
type SettleModel struct {
	CommonModel
	svc *settlement.Service

	state  settleState
	form   *huh.Form
	path   *string
	result settlement.Result
	err    error
}

func NewSettleModel(svc *settlement.Service) SettleModel {
	// The form keeps writing through this pointer while the model value
	// is copied around by bubbletea.
	path := new(string)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Settlement file").
				Description("Path to the gateway settlement CSV").
				Value(path),
		),
	)

	return SettleModel{svc: svc, form: form, path: path}
}

func (m SettleModel) Title() string { return "Settlement Import" }

func (m SettleModel) ShortHelp() string { return "Esc: back | Enter: import" }

func (m SettleModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m SettleModel) importCmd(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return importResultMsg{err: err}
		}
		defer f.Close()

		ctx, cancel := DbCtx()
		defer cancel()

		result, err := m.svc.Import(ctx, f)

		return importResultMsg{result: result, err: err}
	}
}

func (m SettleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		return m, Back
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		return m, nil

	case importResultMsg:
		m.state = settleStateDone
		m.result = msg.result
		m.err = msg.err

		return m, nil
	}

	if m.state == settleStateForm {
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}

		if m.form.State == huh.StateCompleted {
			m.state = settleStateRunning
			return m, m.importCmd(strings.TrimSpace(*m.path))
		}

		return m, cmd
	}

	return m, nil
}

func (m SettleModel) View() string {
	style := lipgloss.NewStyle().Padding(1)

	switch m.state {
	case settleStateForm:
		return style.Render(m.form.View() + "\n" + m.ShortHelp())
	case settleStateRunning:
		return style.Render("Importing " + *m.path + "...")
	}

	if m.err != nil {
		return style.Render(fmt.Sprintf("Import failed: %v\n\nEsc: back", m.err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Settled: %d\n", len(m.result.Settled))
	fmt.Fprintf(&b, "Conflicts: %d\n", len(m.result.Conflicts))
	fmt.Fprintf(&b, "Unmatched: %d\n\n", len(m.result.Unmatched))

	for _, c := range m.result.Conflicts {
		fmt.Fprintf(&b, "  %s: %s\n", c.Row.Reference, c.Reason)
	}

	for _, row := range m.result.Unmatched {
		fmt.Fprintf(&b, "  %s: no matching purchase\n", row.Reference)
	}

	b.WriteString("\nEsc: back")

	return style.Render(b.String())
}
