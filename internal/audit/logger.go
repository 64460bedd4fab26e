// internal/audit/logger.go
// Append-only journal of shared object lifecycle events
//
// LEARN: When two processes share a semaphore, the interesting bugs are
// ordering bugs: who attached first, who destroyed, who resurrected. A
// journal per process, one JSON object per line, lets you merge both
// sides by timestamp after the fact.
//
// Key properties:
// - Append-only
// - Structured (machine parseable)
// - Timestamped (UTC)

package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/khaaliswooden-max/xproc/pkg/types"
)

// Logger is a structured audit logger.
//
// LEARN: The mutex keeps entries from interleaving when goroutines
// record concurrently. A nil *Logger records nothing.
type Logger struct {
	mu      sync.Mutex
	writer  io.Writer
	closer  io.Closer
	encoder sonic.Encoder
	pid     int
}

// Config holds logger configuration.
type Config struct {
	Output io.Writer // Where to write entries (default: os.Stdout)
}

// New creates a new audit logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	return &Logger{
		writer:  cfg.Output,
		encoder: sonic.ConfigDefault.NewEncoder(cfg.Output),
		pid:     os.Getpid(),
	}
}

// NewFile opens (or creates) path for appending and journals to it.
func NewFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l := New(Config{Output: f})
	l.closer = f
	return l, nil
}

// Log writes an audit entry, filling in timestamp, event id, and pid.
func (l *Logger) Log(entry types.AuditEntry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.EventID == "" {
		entry.EventID = uuid.NewString()
	}
	if entry.PID == 0 {
		entry.PID = l.pid
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(entry)
}

// Record is a shorthand for the common case.
func (l *Logger) Record(action types.Action, object, name string, refCount int32, size int, errorCode string) {
	_ = l.Log(types.AuditEntry{
		Action:    action,
		Object:    object,
		Name:      name,
		RefCount:  refCount,
		Size:      size,
		Success:   errorCode == "",
		ErrorCode: errorCode,
	})
}

// Close closes the underlying file, if the logger owns one.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}
