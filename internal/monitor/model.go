package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/voltlabs/volt/internal/diagnostics"
)

// DefaultMaxRows bounds how many records the table keeps.
const DefaultMaxRows = 200

type recordMsg struct {
	source int
	rec    diagnostics.CallRecord
}

type sourceClosedMsg struct {
	source int
}

type keyMap struct {
	Pause key.Binding
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Clear, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Clear},
		{k.Help, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p/space", "pause"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Model is the bubbletea model of the monitor. Records from every source
// are kept newest first; a completed record replaces its pending form.
type Model struct {
	subs    []*diagnostics.Subscription
	open    int
	rows    []diagnostics.CallRecord
	maxRows int

	paused  bool
	skipped int
	total   int

	Width  int
	Height int

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel subscribes to each hub. The subscriptions are released when the
// program quits or through Close.
func NewModel(hubs ...*diagnostics.Hub) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	width, height := TerminalSize()
	m := Model{
		maxRows: DefaultMaxRows,
		Width:   width,
		Height:  height,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
	for _, hub := range hubs {
		m.subs = append(m.subs, hub.Subscribe())
	}
	m.open = len(m.subs)
	return m
}

// Close releases every hub subscription.
func (m Model) Close() {
	for _, sub := range m.subs {
		sub.Close()
	}
}

// Rows returns the records currently shown, newest first.
func (m Model) Rows() []diagnostics.CallRecord {
	return m.rows
}

// Paused reports whether incoming records are being discarded.
func (m Model) Paused() bool {
	return m.paused
}

func waitForRecord(source int, sub *diagnostics.Subscription) tea.Cmd {
	return func() tea.Msg {
		rec, ok := <-sub.C
		if !ok {
			return sourceClosedMsg{source: source}
		}
		return recordMsg{source: source, rec: rec}
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	for i, sub := range m.subs {
		cmds = append(cmds, waitForRecord(i, sub))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = clampSize(msg.Width, msg.Height)
		m.help.Width = m.Width - 6
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Clear):
			m.rows = nil
			m.skipped = 0
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case recordMsg:
		if m.paused {
			m.skipped++
		} else if m.insert(msg.rec) {
			m.total++
		}
		if msg.source < 0 || msg.source >= len(m.subs) {
			return m, nil
		}
		return m, waitForRecord(msg.source, m.subs[msg.source])

	case sourceClosedMsg:
		m.open--
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// insert adds rec or replaces its earlier form. It reports whether rec
// started a new row.
func (m *Model) insert(rec diagnostics.CallRecord) bool {
	for i := range m.rows {
		if m.rows[i].Equal(rec, true) && m.rows[i].Connection == rec.Connection {
			m.rows[i] = rec
			return false
		}
	}
	m.rows = append([]diagnostics.CallRecord{rec}, m.rows...)
	if len(m.rows) > m.maxRows {
		m.rows = m.rows[:m.maxRows]
	}
	return true
}

// View implements tea.Model
func (m Model) View() string {
	summary := fmt.Sprintf("%d calls", m.total)
	if m.paused {
		summary += "  " + PausedStyle.Render(fmt.Sprintf("PAUSED (%d skipped)", m.skipped))
	}
	if m.open == 0 && len(m.subs) > 0 {
		summary += "  sources closed"
	}

	return renderContainer(buildHeader(summary), m.renderTable(), m.help.View(m.keys), m.Width, m.Height)
}

const rowFormat = "%-7s %-10s %-7s %-32s %-16s %6s %9s"

func (m Model) renderTable() string {
	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf(rowFormat,
		"ID", "KIND", "METHOD", "URL", "CLIENT", "STATUS", "LATENCY")))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString("\n  " + m.spinner.View() + " waiting for requests...")
		return b.String()
	}

	// header, two borders, two section rules and the help line
	visible := max(m.Height-8, 1)
	if m.help.ShowAll {
		visible = max(visible-1, 1)
	}
	for i, rec := range m.rows {
		if i >= visible {
			break
		}
		b.WriteString(formatRow(rec))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRow(rec diagnostics.CallRecord) string {
	status := "..."
	latency := ""
	if rec.ResponseCode != nil {
		status = fmt.Sprintf("%d", *rec.ResponseCode)
		latency = rec.Latency().Round(10 * time.Microsecond).String()
	}
	line := fmt.Sprintf(rowFormat,
		fmt.Sprintf("%d", rec.ID),
		string(rec.Connection),
		truncate(rec.RequestType, 7),
		truncate(rec.RequestURL, 32),
		truncate(rec.RequestIP, 16),
		status,
		latency,
	)
	return statusStyle(rec.ResponseCode).Render(line)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "~"
}

// Run shows the monitor on the terminal until the user quits or ctx is
// cancelled. Cancellation is not reported as an error.
func Run(ctx context.Context, hubs ...*diagnostics.Hub) error {
	m := NewModel(hubs...)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
