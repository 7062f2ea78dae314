package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/wat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F87AF")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F87AF"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	eng      *engine.Engine
	cfg      *engine.Config
	inst     *engine.Instance
	filename string
	result   string
	funcs    []engine.FuncSig
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err   error
	eng   *engine.Engine
	inst  *engine.Instance
	funcs []engine.FuncSig
}

type callResultMsg struct {
	err    error
	result string
}

func runInteractive(filename string, cfg *engine.Config) error {
	m := &interactiveModel{filename: filename, cfg: cfg, state: stateSelectFunc}
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	source, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	bin, err := wat.Compile(string(source))
	if err != nil {
		return loadedMsg{err: err}
	}

	eng, err := engine.New(ctx, m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	inst, err := eng.Instantiate(ctx, bin, "main")
	if err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{eng: eng, inst: inst, funcs: inst.ExportedFunctions()}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break // let 'q' reach the text input
			}
			if m.eng != nil {
				m.eng.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.inst = msg.inst
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	sig := m.funcs[m.selected]
	m.inputs = nil
	m.focusIdx = 0
	for i, p := range sig.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.CharLimit = 32
		ti.Width = 24
		if i == 0 {
			ti.Focus()
		}
		m.inputs = append(m.inputs, ti)
	}
}

func (m *interactiveModel) callFunction() tea.Msg {
	sig := m.funcs[m.selected]
	raw := make([]string, len(m.inputs))
	for i, ti := range m.inputs {
		raw[i] = ti.Value()
	}
	args, err := parseArgs(sig.Params, raw)
	if err != nil {
		return callResultMsg{err: err}
	}
	result, err := m.eng.Invoke(context.Background(), m.inst, sig.Name, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatValue(result)}
}

func (m *interactiveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("watrun · " + m.filename))
	b.WriteString("\n\n")

	if m.err != nil && m.state != stateShowResult {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q: quit"))
		return b.String()
	}

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("no exported functions\n")
		}
		for i, sig := range m.funcs {
			line := "  " + formatSig(sig)
			if i == m.selected {
				line = selectedStyle.Render("> " + formatSig(sig))
			} else {
				line = funcStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("up/down: select · enter: invoke · q: quit"))

	case stateInputArgs:
		sig := m.funcs[m.selected]
		b.WriteString(funcStyle.Render(formatSig(sig)))
		b.WriteString("\n\n")
		for i, ti := range m.inputs {
			b.WriteString(typeStyle.Render(fmt.Sprintf("  arg%d (%s): ", i, sig.Params[i])))
			b.WriteString(ti.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab: next field · enter: call · esc: back"))

	case stateShowResult:
		sig := m.funcs[m.selected]
		b.WriteString(funcStyle.Render(sig.Name))
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
		} else {
			b.WriteString(resultStyle.Render("=> " + m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter/esc: back · q: quit"))
	}

	return b.String()
}

func formatSig(sig engine.FuncSig) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.String()
	}
	s := fmt.Sprintf("%s(%s)", sig.Name, strings.Join(params, ", "))
	if len(sig.Results) > 0 {
		s += " -> " + sig.Results[0].String()
	}
	return s
}

func formatValue(v engine.Value) string {
	switch v.Type {
	case ast.ValTypeI32:
		return fmt.Sprintf("%d : i32", int32(uint32(v.Bits)))
	case ast.ValTypeI64:
		return fmt.Sprintf("%d : i64", int64(v.Bits))
	case ast.ValTypeF32:
		return fmt.Sprintf("%g : f32", math.Float32frombits(uint32(v.Bits)))
	case ast.ValTypeF64:
		return fmt.Sprintf("%g : f64", math.Float64frombits(v.Bits))
	}
	return "(no result)"
}

func parseArgs(params []ast.ValType, raw []string) ([]engine.Value, error) {
	if len(raw) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(raw))
	}
	args := make([]engine.Value, len(params))
	for i, p := range params {
		s := strings.TrimSpace(raw[i])
		switch p {
		case ast.ValTypeI32:
			v, err := strconv.ParseInt(s, 0, 32)
			if err != nil {
				u, uerr := strconv.ParseUint(s, 0, 32)
				if uerr != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				v = int64(int32(u))
			}
			args[i] = engine.Value{Type: p, Bits: uint64(uint32(int32(v)))}
		case ast.ValTypeI64:
			v, err := strconv.ParseInt(s, 0, 64)
			if err != nil {
				u, uerr := strconv.ParseUint(s, 0, 64)
				if uerr != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				v = int64(u)
			}
			args[i] = engine.Value{Type: p, Bits: uint64(v)}
		case ast.ValTypeF32:
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = engine.Value{Type: p, Bits: uint64(math.Float32bits(float32(v)))}
		case ast.ValTypeF64:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = engine.Value{Type: p, Bits: math.Float64bits(v)}
		default:
			return nil, fmt.Errorf("argument %d: unsupported type", i)
		}
	}
	return args, nil
}
