package sink

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestTUIWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}
	ev, v := breach()
	if err := w.WriteVerdict(ev, v); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := p.msgs[0].(verdictMsg); !ok {
		t.Fatalf("expected verdictMsg, got %T", p.msgs[0])
	}
	w.SetStatus("done")
	if _, ok := p.msgs[1].(statusMsg); !ok {
		t.Fatalf("expected statusMsg, got %T", p.msgs[1])
	}
}

func TestTUIModelTracksSoldiers(t *testing.T) {
	m := newTUIModel("watchtower")
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = mi.(tuiModel)

	ev, v := breach()
	mi, _ = m.Update(verdictMsg{ev: ev, verdict: v})
	m = mi.(tuiModel)
	ev, v = secure()
	mi, _ = m.Update(verdictMsg{ev: ev, verdict: v})
	m = mi.(tuiModel)
	ev, v = breach()
	mi, _ = m.Update(verdictMsg{ev: ev, verdict: v})
	m = mi.(tuiModel)

	if m.events != 3 || m.breachN != 2 {
		t.Fatalf("unexpected counters events=%d breaches=%d", m.events, m.breachN)
	}
	rows := m.rows()
	if len(rows) != 2 {
		t.Fatalf("expected one row per soldier, got %d", len(rows))
	}
	if rows[0][0] != "3" || rows[1][0] != "7" {
		t.Errorf("rows should be sorted by soldier id: %v", rows)
	}
	if rows[1][5] != "2" {
		t.Errorf("expected 2 breaches for soldier 7, got %s", rows[1][5])
	}
	if !strings.Contains(m.View(), "breaches=2") {
		t.Errorf("header should show breach count")
	}
}

func TestTUIWrapToggle(t *testing.T) {
	m := newTUIModel("w")
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 30, Height: 40})
	m = mi.(tuiModel)
	ev, v := breach()
	mi, _ = m.Update(verdictMsg{ev: ev, verdict: v})
	m = mi.(tuiModel)

	unwrapped := strings.Count(m.vp.View(), "soldier=")
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	m = mi.(tuiModel)
	if !m.wrap {
		t.Fatal("wrap not toggled")
	}
	if unwrapped != 1 || !strings.Contains(m.vp.View(), "soldier=7") {
		t.Errorf("breach line missing from log view")
	}
}

func TestTUIScrollToggleAndQuit(t *testing.T) {
	m := newTUIModel("w")
	mi, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = mi.(tuiModel)
	if m.autoscroll {
		t.Fatal("autoscroll should be off")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected QuitMsg")
	}
}
