package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/script-bridge/bridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxTranscript bounds the number of entries kept on screen.
const maxTranscript = 200

type replEntry struct {
	input  string
	output string
	failed bool
}

type modelState int

const (
	stateRepl modelState = iota
	stateExports
)

type interactiveModel struct {
	ctx        context.Context
	b          *bridge.Bridge
	input      textinput.Model
	transcript []replEntry
	history    []string
	histIdx    int
	exports    []bridge.Export
	exportErr  error
	state      modelState
	busy       bool
	height     int
}

type evalMsg struct {
	input  string
	output string
	err    error
}

type exportsMsg struct {
	exports []bridge.Export
	err     error
}

func newInteractiveModel(ctx context.Context, b *bridge.Bridge) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("lua> ")
	ti.Placeholder = "expression or statement"
	ti.Width = 72
	ti.Focus()
	return &interactiveModel{ctx: ctx, b: b, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.describe)
}

func (m *interactiveModel) describe() tea.Msg {
	exports, err := m.b.Describe(m.ctx)
	return exportsMsg{exports: exports, err: err}
}

func (m *interactiveModel) evaluate(src string) tea.Cmd {
	return func() tea.Msg {
		vals, err := m.b.Eval(m.ctx, src)
		if err != nil {
			return evalMsg{input: src, err: err}
		}
		return evalMsg{input: src, output: formatValues(vals)}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "tab":
			if m.state == stateRepl {
				m.state = stateExports
			} else {
				m.state = stateRepl
			}
			return m, nil

		case "esc":
			if m.state == stateExports {
				m.state = stateRepl
				return m, nil
			}
			return m, tea.Quit

		case "up":
			if m.state == stateRepl && m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.state == stateRepl && m.histIdx < len(m.history) {
				m.histIdx++
				if m.histIdx == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.histIdx])
				}
				m.input.CursorEnd()
			}
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if m.state != stateRepl || m.busy || src == "" {
				return m, nil
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			m.busy = true
			return m, m.evaluate(src)
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = max(msg.Width-8, 20)

	case exportsMsg:
		m.exports = msg.exports
		m.exportErr = msg.err
		return m, nil

	case evalMsg:
		m.busy = false
		e := replEntry{input: msg.input, output: msg.output}
		if msg.err != nil {
			e.output = msg.err.Error()
			e.failed = true
		}
		m.transcript = append(m.transcript, e)
		if len(m.transcript) > maxTranscript {
			m.transcript = m.transcript[len(m.transcript)-maxTranscript:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Script Bridge"))
	b.WriteString("\n\n")

	switch m.state {
	case stateRepl:
		for _, e := range m.visible() {
			b.WriteString(helpStyle.Render("lua> "))
			b.WriteString(e.input)
			b.WriteString("\n")
			switch {
			case e.failed:
				b.WriteString(errorStyle.Render(e.output))
				b.WriteString("\n")
			case e.output != "":
				b.WriteString(resultStyle.Render(e.output))
				b.WriteString("\n")
			}
		}
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter eval • ↑/↓ history • tab bindings • esc quit"))

	case stateExports:
		module := ""
		for _, e := range m.exports {
			if e.Module != module {
				module = e.Module
				b.WriteString(fmt.Sprintf("\nmodule %s\n", promptStyle.Render(module)))
			}
			b.WriteString("  " + e.Name + ": " + typeStyle.Render(e.Signature))
			if e.Virtual {
				b.WriteString(helpStyle.Render("  virtual"))
			}
			b.WriteString("\n")
		}
		if m.exportErr != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(m.exportErr.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab repl • esc back"))
	}

	return b.String()
}

// visible returns the transcript tail that fits the window.
func (m *interactiveModel) visible() []replEntry {
	if m.height <= 0 {
		return m.transcript
	}
	room := max((m.height-6)/2, 1)
	if len(m.transcript) <= room {
		return m.transcript
	}
	return m.transcript[len(m.transcript)-room:]
}

func runInteractive(ctx context.Context, b *bridge.Bridge) error {
	p := tea.NewProgram(newInteractiveModel(ctx, b), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
