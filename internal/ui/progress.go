package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lance13c/qarun/internal/events"
)

// EventMsg carries a run event into the progress model.
type EventMsg events.Event

type testLine struct {
	name    string
	steps   int
	lastErr string
	done    bool
	pass    bool
}

// ProgressModel renders live run progress: one line per started test case.
type ProgressModel struct {
	spinner spinner.Model
	styles  *Styles
	title   string
	tests   []*testLine
	byName  map[string]*testLine
	done    bool
	passed  int
	failed  int
}

// NewProgressModel creates the model for a run titled title.
func NewProgressModel(title string) *ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return &ProgressModel{
		spinner: s,
		styles:  NewStyles(),
		title:   title,
		byName:  make(map[string]*testLine),
	}
}

// Init implements tea.Model
func (m *ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		m.apply(events.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *ProgressModel) line(name string) *testLine {
	l, ok := m.byName[name]
	if !ok {
		l = &testLine{name: name}
		m.byName[name] = l
		m.tests = append(m.tests, l)
	}
	return l
}

func (m *ProgressModel) apply(evt events.Event) {
	switch evt.Type {
	case events.TestStarted:
		m.line(evt.Test)
	case events.StepFinished:
		l := m.line(evt.Test)
		l.steps = evt.Step
		if evt.Error != "" {
			l.lastErr = evt.Error
		}
	case events.TestFinished:
		l := m.line(evt.Test)
		l.done = true
		l.pass = evt.Pass
		if evt.Error != "" {
			l.lastErr = evt.Error
		}
		if evt.Pass {
			m.passed++
		} else {
			m.failed++
		}
	case events.RunFinished:
		m.done = true
	}
}

// View implements tea.Model
func (m *ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render(m.title))
	b.WriteString("\n")

	for _, l := range m.tests {
		var status string
		if l.done {
			status = m.styles.Status(l.pass)
		} else {
			status = m.spinner.View() + m.styles.Pending.Render("RUN ")
		}
		fmt.Fprintf(&b, "%s %s %s\n", status, l.name, m.styles.Muted.Render(fmt.Sprintf("(%d steps)", l.steps)))
		if l.done && !l.pass && l.lastErr != "" {
			b.WriteString(m.styles.Muted.Render("    "+firstLine(l.lastErr)) + "\n")
		}
	}

	b.WriteString(m.styles.Footer.Render(fmt.Sprintf("%d passed, %d failed", m.passed, m.failed)))
	b.WriteString("\n")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Progress drives a ProgressModel from run events. It implements events.Sink.
type Progress struct {
	program *tea.Program
	done    chan struct{}
}

// StartProgress starts rendering to out. It does not read from the terminal;
// interrupts are left to the caller's signal handling.
func StartProgress(title string, out io.Writer) *Progress {
	p := &Progress{
		program: tea.NewProgram(NewProgressModel(title), tea.WithOutput(out), tea.WithInput(nil)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	return p
}

// Publish implements events.Sink
func (p *Progress) Publish(_ context.Context, evt events.Event) error {
	p.program.Send(EventMsg(evt))
	return nil
}

// Wait blocks until the progress display has exited.
func (p *Progress) Wait() {
	<-p.done
}

// Stop ends the display early.
func (p *Progress) Stop() {
	p.program.Quit()
	p.Wait()
}
