// pkg/shm/handle.go
// Transferable handles to anonymous shared memory objects
//
// LEARN: A Handle is a capability, not memory. It names an OS object
// (a memfd on Linux, a paging-file section on Windows) whose size is fixed
// at creation. Mapping it produces memory; duplicating it produces a second,
// independent capability that can outlive the first and be sent to another
// process. The OS reference-counts the object, so the last Close (in any
// process) frees it.
//
// Key concepts:
// 1. Ownership: exactly one *Handle owns each descriptor
// 2. Clone duplicates at the OS level, the original is untouched
// 3. Release hands the raw descriptor to someone else (os.NewFile, IPC)

package shm

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

// Rights selects how a handle is mapped.
type Rights int

const (
	ReadOnly Rights = iota
	ReadWrite
)

func (r Rights) String() string {
	switch r {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Rights(%d)", int(r))
	}
}

// Option configures constructors in this package.
type Option func(*options)

type options struct {
	env *procenv.Env
}

// WithEnv attributes the object to env instead of procenv.Current().
func WithEnv(env *procenv.Env) Option {
	return func(o *options) { o.env = env }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.env = procenv.Or(o.env)
	return o
}

// Platform hooks. Tests swap these to inject failures.
var (
	createObject    = platformCreate
	duplicateObject = platformDuplicate
	closeObject     = platformClose
)

// Handle owns one OS descriptor naming a shared memory object.
//
// A Handle is safe for concurrent use. The zero value is not valid; use
// Create, NewHandle, or Clone.
type Handle struct {
	mu   sync.Mutex
	raw  osHandle
	size int
	env  *procenv.Env
}

func newHandle(raw osHandle, size int, env *procenv.Env) *Handle {
	env.HandleOpened()
	return &Handle{raw: raw, size: size, env: env}
}

// Create requests a new shared memory object of exactly size bytes.
//
// LEARN: Allocation failure is an ordinary, recoverable error (the OS is
// out of memory or descriptors). It is returned as ErrAllocation wrapping
// the OS error, and nothing is left open.
func Create(size int, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	if size <= 0 {
		return nil, errors.Wrap(fmt.Sprintf("shm create %d bytes", size), errors.ErrInvalidSize, nil)
	}

	raw, err := createObject(size)
	if err != nil {
		err = errors.Wrap("shm create", errors.ErrAllocation, err)
		o.env.Metrics.Failure("allocation")
		o.env.Logger.Warn("shared memory allocation failed", zap.Int("size", size), zap.Error(err))
		o.env.Record(types.ActionCreate, types.ObjectHandle, "", 0, size, errors.ErrorCode(err))
		return nil, err
	}

	o.env.Metrics.RegionCreated()
	o.env.Record(types.ActionCreate, types.ObjectHandle, "", 0, size, "")
	o.env.Logger.Debug("shared memory created", zap.Int("size", size))
	return newHandle(raw, size, o.env), nil
}

// NewHandle adopts a raw descriptor received from another process.
//
// On unix a size of 0 means "ask the OS" (fstat). Windows sections cannot
// be sized from the handle, so the size must be supplied there.
// On error the descriptor is not closed; it still belongs to the caller.
func NewHandle(raw uintptr, size int, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	h := osHandle(raw)
	if !validRaw(h) {
		return nil, errors.Wrap("shm adopt", errors.ErrInvalidHandle, nil)
	}
	if size <= 0 {
		n, err := platformSize(h)
		if err != nil {
			return nil, errors.Wrap("shm adopt", errors.ErrInvalidHandle, err)
		}
		size = n
	}
	if size <= 0 {
		return nil, errors.Wrap("shm adopt", errors.ErrInvalidSize, nil)
	}

	o.env.Metrics.HandleReceived()
	o.env.Record(types.ActionReceive, types.ObjectHandle, "", 0, size, "")
	return newHandle(h, size, o.env), nil
}

// IsValid reports whether the handle still owns a descriptor.
func (h *Handle) IsValid() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return validRaw(h.raw)
}

// Size returns the size of the object, fixed at creation.
func (h *Handle) Size() int {
	return h.size
}

// Raw returns the descriptor without giving up ownership.
func (h *Handle) Raw() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uintptr(h.raw)
}

// Clone duplicates the handle. The duplicate is an independent capability:
// closing either one does not affect the other.
func (h *Handle) Clone() (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !validRaw(h.raw) {
		return nil, errors.Wrap("shm clone", errors.ErrInvalidHandle, nil)
	}
	dup, err := duplicateObject(h.raw)
	if err != nil {
		h.env.Metrics.Failure("clone")
		return nil, errors.Wrap("shm clone", errors.ErrAllocation, err)
	}

	h.env.Metrics.HandleCloned()
	h.env.Record(types.ActionClone, types.ObjectHandle, "", 0, h.size, "")
	return newHandle(dup, h.size, h.env), nil
}

// Release gives up ownership and returns the raw descriptor. The caller
// becomes responsible for closing it. The handle is invalid afterwards.
func (h *Handle) Release() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	raw := h.raw
	if validRaw(raw) {
		h.raw = invalidHandle
		h.env.HandleClosed()
	}
	return uintptr(raw)
}

// Close closes the descriptor. It is safe to call more than once.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if !validRaw(h.raw) {
		return nil
	}
	err := closeObject(h.raw)
	h.raw = invalidHandle
	h.env.HandleClosed()
	return err
}
