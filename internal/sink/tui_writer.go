package sink

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"watchtower-sim/internal/classifier"
	"watchtower-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// verdictMsg carries one classified event.
type verdictMsg struct {
	ev      telemetry.Event
	verdict classifier.Verdict
}

// statusMsg replaces the status line, e.g. with a run summary.
type statusMsg struct{ line string }

const maxBreachLines = 500

var (
	breachStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	secureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// TUIWriter renders verdicts in a bubbletea dashboard: one table row per
// soldier and a scrolling breach log.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the program interrupts the process so a running simulation stops too.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteVerdict implements VerdictWriter.
func (w *TUIWriter) WriteVerdict(ev telemetry.Event, v classifier.Verdict) error {
	w.program.Send(verdictMsg{ev: ev, verdict: v})
	return nil
}

// SetStatus shows line in the status bar.
func (w *TUIWriter) SetStatus(line string) {
	w.program.Send(statusMsg{line: line})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type soldierRow struct {
	ev      telemetry.Event
	verdict classifier.Verdict
	breach  int
}

type tuiModel struct {
	title      string
	table      table.Model
	vp         viewport.Model
	soldiers   map[int64]*soldierRow
	breaches   []string
	status     string
	events     int
	breachN    int
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "Soldier", Width: 8},
		{Title: "HR", Width: 6},
		{Title: "Stamina", Width: 8},
		{Title: "Score", Width: 6},
		{Title: "Status", Width: 8},
		{Title: "Breaches", Width: 9},
	}
	return tuiModel{
		title:      title,
		table:      table.New(table.WithColumns(cols), table.WithHeight(10)),
		vp:         viewport.New(0, 0),
		soldiers:   make(map[int64]*soldierRow),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.resize()
		m.refreshBreaches()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshBreaches()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case verdictMsg:
		m.events++
		row, ok := m.soldiers[msg.ev.SoldierID]
		if !ok {
			row = &soldierRow{}
			m.soldiers[msg.ev.SoldierID] = row
		}
		row.ev = msg.ev
		row.verdict = msg.verdict
		if msg.verdict.Status == classifier.StatusBreach {
			row.breach++
			m.breachN++
			m.breaches = append(m.breaches, breachLine(msg.ev, msg.verdict))
			if len(m.breaches) > maxBreachLines {
				m.breaches = m.breaches[len(m.breaches)-maxBreachLines:]
			}
			m.refreshBreaches()
		}
		m.table.SetRows(m.rows())
	case statusMsg:
		m.status = msg.line
	}
	return m, nil
}

func breachLine(ev telemetry.Event, v classifier.Verdict) string {
	return fmt.Sprintf("[%.3f] soldier=%d hr=%.0f stamina=%.0f score=%.2f %s",
		ev.Timestamp, ev.SoldierID, ev.HeartRate, ev.Stamina, v.AnomalyScore,
		breachStyle.Render(string(v.Status)+" "+v.Rule))
}

func (m tuiModel) rows() []table.Row {
	ids := make([]int64, 0, len(m.soldiers))
	for id := range m.soldiers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		s := m.soldiers[id]
		rows = append(rows, table.Row{
			strconv.FormatInt(id, 10),
			fmt.Sprintf("%.0f", s.ev.HeartRate),
			fmt.Sprintf("%.0f", s.ev.Stamina),
			fmt.Sprintf("%.2f", s.verdict.AnomalyScore),
			string(s.verdict.Status),
			strconv.Itoa(s.breach),
		})
	}
	return rows
}

// resize splits the screen between the soldier table and the breach log.
func (m *tuiModel) resize() {
	avail := m.height - 6
	if avail < 2 {
		avail = 2
	}
	tableHeight := avail / 2
	m.table.SetHeight(tableHeight)
	m.vp.Height = avail - tableHeight
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshBreaches() {
	content := mutedStyle.Render("no breaches")
	if len(m.breaches) > 0 {
		lines := m.breaches
		if m.wrap && m.vp.Width > 0 {
			lines = make([]string, len(m.breaches))
			for i, l := range m.breaches {
				lines[i] = wordwrap.String(l, m.vp.Width)
			}
		}
		content = strings.Join(lines, "\n")
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.width)
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(m.title),
		mutedStyle.Render(" │ "),
		fmt.Sprintf("events=%d ", m.events),
		breachStyle.Render(fmt.Sprintf("breaches=%d", m.breachN)),
		mutedStyle.Render(" │ "),
		secureStyle.Render(fmt.Sprintf("soldiers=%d", len(m.soldiers))),
	)
	sections := []string{
		header,
		divider,
		m.table.View(),
		divider,
		"Breaches:",
		m.vp.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderBottom() string {
	indicator := func(on bool) string {
		if on {
			return lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	}
	line := fmt.Sprintf("Wrap %s | Scroll %s | q quit", indicator(m.wrap), indicator(m.autoscroll))
	if m.status != "" {
		line = m.status + " | " + line
	}
	return line
}
