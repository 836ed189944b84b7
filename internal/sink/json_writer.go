package sink

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"watchtower-sim/internal/classifier"
	"watchtower-sim/internal/telemetry"
)

// JSONWriter prints one JSON record per verdict.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONStdoutWriter creates a JSONWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONWriter {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter creates a JSONWriter writing to out.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(out)}
}

// WriteVerdict outputs the record in JSON format.
func (w *JSONWriter) WriteVerdict(ev telemetry.Event, v classifier.Verdict) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(NewRecord(ev, v))
}
