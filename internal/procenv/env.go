// internal/procenv/env.go
// Process-wide environment for the shared memory layer
//
// LEARN: Singletons hidden behind function-local lazy init make their
// lifetime implicit. Here the lifetime is explicit:
//
//	env, err := procenv.Start(cfg) // once, early in main
//	defer procenv.Shutdown()       // flushes logs, closes the journal
//
// Library code calls procenv.Current(). Before Start (or after Shutdown)
// it gets a quiet fallback environment: no-op logger, no metrics, no
// journal, but resource accounting still works.

package procenv

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/audit"
	"github.com/khaaliswooden-max/xproc/internal/logging"
	"github.com/khaaliswooden-max/xproc/internal/metrics"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

// ErrAlreadyStarted is returned by Start when an environment is installed.
var ErrAlreadyStarted = errors.New("procenv: already started")

// Config selects the collaborators of an Env. Zero values mean "off".
type Config struct {
	Logger      *zap.Logger           // nil: no-op logger
	Registerer  prometheus.Registerer // nil: metrics disabled
	AuditOutput io.Writer             // nil: journal disabled
	AuditFile   string                // opened for append; wins over AuditOutput
}

// Env bundles the logger, metrics, journal, and resource counters shared
// by every handle, mapping, and semaphore created in this process.
type Env struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Audit   *audit.Logger

	handles  atomic.Int64
	mappings atomic.Int64
}

// Resources is a point-in-time view of the OS resources an Env owns.
type Resources struct {
	Handles  int64
	Mappings int64
}

// New builds an environment without installing it.
func New(cfg Config) (*Env, error) {
	env := &Env{Logger: cfg.Logger}
	if env.Logger == nil {
		env.Logger = logging.NewNop()
	}
	if cfg.Registerer != nil {
		env.Metrics = metrics.New(cfg.Registerer)
	}

	switch {
	case cfg.AuditFile != "":
		l, err := audit.NewFile(cfg.AuditFile)
		if err != nil {
			return nil, err
		}
		env.Audit = l
	case cfg.AuditOutput != nil:
		env.Audit = audit.New(audit.Config{Output: cfg.AuditOutput})
	}
	return env, nil
}

var (
	mu       sync.Mutex
	current  atomic.Pointer[Env]
	fallback = &Env{Logger: logging.NewNop()}
)

// Start builds an environment and installs it as the process default.
func Start(cfg Config) (*Env, error) {
	mu.Lock()
	defer mu.Unlock()

	if current.Load() != nil {
		return nil, ErrAlreadyStarted
	}
	env, err := New(cfg)
	if err != nil {
		return nil, err
	}
	current.Store(env)
	return env, nil
}

// Current returns the installed environment or the quiet fallback.
func Current() *Env {
	if env := current.Load(); env != nil {
		return env
	}
	return fallback
}

// Shutdown uninstalls the environment, syncs the logger, and closes the
// journal. Objects created under it keep their *Env and stay usable.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	env := current.Swap(nil)
	if env == nil {
		return nil
	}
	_ = env.Logger.Sync()
	return env.Audit.Close()
}

// Or returns env, or Current() when env is nil.
func Or(env *Env) *Env {
	if env != nil {
		return env
	}
	return Current()
}

// === Resource Accounting ===

// HandleOpened records one more owned OS handle.
func (e *Env) HandleOpened() {
	n := e.handles.Add(1)
	e.Metrics.SetResources(n, e.mappings.Load())
}

// HandleClosed records one fewer owned OS handle.
func (e *Env) HandleClosed() {
	n := e.handles.Add(-1)
	e.Metrics.SetResources(n, e.mappings.Load())
}

// MappingAdded records a new live mapping.
func (e *Env) MappingAdded() {
	n := e.mappings.Add(1)
	e.Metrics.SetResources(e.handles.Load(), n)
}

// MappingRemoved records an unmapped mapping.
func (e *Env) MappingRemoved() {
	n := e.mappings.Add(-1)
	e.Metrics.SetResources(e.handles.Load(), n)
}

// Resources returns the current counts.
func (e *Env) Resources() Resources {
	return Resources{Handles: e.handles.Load(), Mappings: e.mappings.Load()}
}

// Record writes a journal entry if a journal is configured.
func (e *Env) Record(action types.Action, object, name string, refCount int32, size int, errorCode string) {
	e.Audit.Record(action, object, name, refCount, size, errorCode)
}
