package main

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// maxPending caps how much log output is held before the file is opened.
const maxPending = 1 << 20

// lateFileWriter is a zerolog writer whose file only becomes known after
// logging has started. Output written before Open is buffered and flushed
// into the file when it is opened.
type lateFileWriter struct {
	mu      sync.Mutex
	pending bytes.Buffer
	file    *os.File
}

func newLateFileWriter() *lateFileWriter {
	return &lateFileWriter{}
}

// Open creates or appends to path and flushes buffered output into it.
// Opening an already open writer switches to the new file.
func (w *lateFileWriter) Open(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = f
	if w.pending.Len() > 0 {
		if _, err := w.pending.WriteTo(f); err != nil {
			return fmt.Errorf("failed to flush log file: %w", err)
		}
	}
	return nil
}

func (w *lateFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Write(p)
	}
	if w.pending.Len()+len(p) <= maxPending {
		w.pending.Write(p)
	}
	return len(p), nil
}

func (w *lateFileWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return w.Write(p)
}

// Close closes the file if one was opened and drops anything still buffered.
func (w *lateFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending.Reset()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
