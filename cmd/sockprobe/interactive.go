package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	Next key.Binding
	All  key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.All, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Next: key.NewBinding(key.WithKeys("enter", " ", "n"), key.WithHelp("enter", "next call")),
	All:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "run the rest")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type interactiveModel struct {
	ctx     context.Context
	probe   *probe
	results []stepResult
	failed  bool
	busy    bool
	help    help.Model
}

type stepMsg struct {
	result stepResult
	more   bool
}

func newInteractiveModel(ctx context.Context, p *probe) *interactiveModel {
	return &interactiveModel{ctx: ctx, probe: p, help: help.New()}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

// runStep executes one call off the UI goroutine.
func (m *interactiveModel) runStep(more bool) tea.Cmd {
	return func() tea.Msg {
		return stepMsg{result: m.probe.step(m.ctx), more: more}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case m.busy || m.failed || m.probe.done():
			return m, nil
		case key.Matches(msg, keys.Next):
			m.busy = true
			return m, m.runStep(false)
		case key.Matches(msg, keys.All):
			m.busy = true
			return m, m.runStep(true)
		}

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case stepMsg:
		m.results = append(m.results, msg.result)
		m.busy = false
		if msg.result.err != nil {
			m.failed = true
			return m, nil
		}
		if msg.more && !m.probe.done() {
			m.busy = true
			return m, m.runStep(true)
		}
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sockprobe"))
	b.WriteString(fmt.Sprintf(" %d/%d calls\n\n", len(m.results), len(m.probe.steps)))

	for i, r := range m.results {
		b.WriteString(renderResult(i+1, r))
		b.WriteString("\n")
	}

	switch {
	case m.failed:
		b.WriteString("\n" + errorStyle.Render("Probe stopped at the failed call."))
	case m.probe.done():
		b.WriteString("\n" + okStyle.Render("All calls completed."))
	default:
		b.WriteString("\nNext: " + funcStyle.Render(m.probe.steps[m.probe.next].name))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))
	return b.String()
}

func runInteractive(ctx context.Context, p *probe) error {
	prog := tea.NewProgram(newInteractiveModel(ctx, p), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := prog.Run()
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(final.(*interactiveModel).results))
	return nil
}
