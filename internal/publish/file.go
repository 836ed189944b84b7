package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileTransport appends each message value to a JSONL file, one event per
// line. The resulting log can be fed back through ReplayLogFile.
type FileTransport struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileTransport creates (or truncates) the log at path.
func NewFileTransport(path string) (*FileTransport, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileTransport{f: f, enc: json.NewEncoder(f)}, nil
}

// Publish writes the message value as one line.
func (t *FileTransport) Publish(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return ErrClosed
	}
	if err := t.enc.Encode(json.RawMessage(msg.Value)); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
