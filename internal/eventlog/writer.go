// Package eventlog appends execution events to a JSONL file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Writer appends one JSON object per line. It is safe for concurrent use and
// a nil *Writer discards everything.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	now  func() time.Time
}

// New returns a writer appending to path, or nil when path is blank.
func New(path string) *Writer {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Writer{path: path, now: time.Now}
}

func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

func (w *Writer) openLocked() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Record stamps ev with the current time when unset and appends it. Each
// record is flushed so tailers see it immediately.
func (w *Writer) Record(ev Event) error {
	if w == nil {
		return nil
	}
	if ev.Event == "" {
		return fmt.Errorf("eventlog: event name is required")
	}
	if ev.TsMs == 0 {
		ev.TsMs = w.now().UnixMilli()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(); err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.w != nil {
		firstErr = w.w.Flush()
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.w = nil
	w.file = nil

	if errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
