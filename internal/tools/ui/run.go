package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Action func(context.Context) ([]string, error)

type actionMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	action  Action
	timeout time.Duration
	done    bool
	details []string
	err     error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("250"))
)

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		timeout := m.timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		details, err := m.action(ctx)
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
		if msg.String() == "ctrl+c" || msg.String() == "q" {
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
		b.WriteString("Running...\n")
		return b.String()
	}
	for _, d := range m.details {
		b.WriteString(detailStyle.Render("- " + d))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(failStyle.Render(fmt.Sprintf("FAILED: %v", m.err)))
	} else {
		b.WriteString(okStyle.Render("OK"))
	}
	b.WriteString("\n")
	return b.String()
}

// Run executes action behind a small terminal status view and returns its
// result once the view exits.
func Run(title string, timeout time.Duration, action Action) ([]string, error) {
	final, err := tea.NewProgram(model{title: title, action: action, timeout: timeout}).Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected ui model %T", final)
	}
	if !m.done {
		return m.details, context.Canceled
	}
	return m.details, m.err
}
