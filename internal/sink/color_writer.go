// ColorWriter prints human-friendly, colorized verdicts.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"watchtower-sim/internal/classifier"
	"watchtower-sim/internal/telemetry"
)

var (
	secureColor = color.New(color.FgGreen)
	breachColor = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	valueColor  = color.New(color.FgCyan)
)

// ColorWriter prints one colored line per verdict. With breachesOnly set,
// SECURE verdicts are skipped.
type ColorWriter struct {
	mu           sync.Mutex
	out          io.Writer
	breachesOnly bool
}

// NewColorStdoutWriter creates a ColorWriter writing to os.Stdout.
func NewColorStdoutWriter(breachesOnly bool) *ColorWriter {
	return NewColorWriter(color.Output, breachesOnly)
}

// NewColorWriter creates a ColorWriter writing to out.
func NewColorWriter(out io.Writer, breachesOnly bool) *ColorWriter {
	if out == nil {
		out = os.Stdout
	}
	return &ColorWriter{out: out, breachesOnly: breachesOnly}
}

// WriteVerdict prints the verdict.
func (w *ColorWriter) WriteVerdict(ev telemetry.Event, v classifier.Verdict) error {
	if w.breachesOnly && v.Status != classifier.StatusBreach {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	status := secureColor.Sprint(v.Status)
	if v.Status == classifier.StatusBreach {
		status = breachColor.Sprintf("%s %s", v.Status, v.Rule)
	}
	_, err := fmt.Fprintf(w.out, "%s soldier=%s hr=%s stamina=%s score=%.2f %s\n",
		dimColor.Sprintf("[%.3f]", ev.Timestamp),
		valueColor.Sprint(ev.SoldierID),
		valueColor.Sprintf("%.0f", ev.HeartRate),
		valueColor.Sprintf("%.0f", ev.Stamina),
		v.AnomalyScore,
		status,
	)
	return err
}
