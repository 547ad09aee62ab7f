package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type actionMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	action  func(context.Context) ([]string, error)
	done    bool
	details []string
	err     error
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		details, err := m.action(context.Background())
		return actionMsg{details: details, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case actionMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	if !m.done {
		b.WriteString(dimStyle.Render("Running..."))
		b.WriteString("\n")
		return b.String()
	}

	if m.err != nil {
		b.WriteString(failStyle.Render("FAILED: " + m.err.Error()))
	} else {
		b.WriteString(okStyle.Render("OK"))
	}
	b.WriteString("\n")
	for _, d := range m.details {
		b.WriteString(dimStyle.Render("  " + d))
		b.WriteString("\n")
	}
	return b.String()
}

// Run executes action behind a minimal TUI and returns its outcome.
func Run(title string, action func(context.Context) ([]string, error)) ([]string, error) {
	final, err := tea.NewProgram(model{title: title, action: action}).Run()
	if err != nil {
		return nil, fmt.Errorf("run ui: %w", err)
	}
	m, ok := final.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected final model %T", final)
	}
	return m.details, m.err
}
