package view

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const dbTimeout = 10 * time.Second

type CommonModel struct {
	Width  int
	Height int
}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

// DbCtx returns a context with a standard timeout for service calls made
// from the TUI.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// FormatAmount renders pesewas as cedis with two decimals.
func FormatAmount(pesewas int64) string {
	return fmt.Sprintf("GHS %.2f", float64(pesewas)/100.0)
}

func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}
