package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// AppendLog buffers JSONL-encoded events and appends them to a file when
// the buffer crosses a size threshold or the flush timer fires.
type AppendLog struct {
	mu         sync.Mutex
	path       string
	buf        bytes.Buffer
	flushBytes int
	cancel     context.CancelFunc
}

// NewAppendLog creates the backend and starts its flush timer.
func NewAppendLog(path string, flushBytes int, flushInterval time.Duration) *AppendLog {
	if flushBytes <= 0 {
		flushBytes = 64 * 1024
	}
	a := &AppendLog{path: path, flushBytes: flushBytes}

	if flushInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		go a.flushLoop(ctx, flushInterval)
	}
	return a
}

// Name implements Backend.
func (a *AppendLog) Name() string { return "appendlog" }

// Record implements Backend.
func (a *AppendLog) Record(event domain.TelemetryEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Write(line)
	a.buf.WriteByte('\n')
	if a.buf.Len() >= a.flushBytes {
		return a.flushLocked()
	}
	return nil
}

// Flush implements Backend.
func (a *AppendLog) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

// Close stops the flush timer and drains the buffer.
func (a *AppendLog) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.Flush()
}

func (a *AppendLog) flushLocked() error {
	if a.buf.Len() == 0 {
		return nil
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open telemetry log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(a.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write telemetry log: %w", err)
	}
	a.buf.Reset()
	return nil
}

func (a *AppendLog) flushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.Flush()
		}
	}
}
