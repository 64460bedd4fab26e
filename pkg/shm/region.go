// pkg/shm/region.go
// Region: one handle plus at most one mapping of it
//
// LEARN: Most callers want "a block of shared memory I can read and write".
// Region packages the two-step create/map dance with the bookkeeping that
// goes with it: which handle it owns, what rights it was opened with, and
// whether a mapping is live. The handle and the mapping are independent;
// TakeHandle can hand the handle off while the mapping stays usable.

package shm

import (
	"sync"
	"unsafe"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
)

// Region owns an optional handle and an optional mapping of it.
type Region struct {
	mu      sync.Mutex
	handle  *Handle
	rights  Rights
	size    int
	mapping *Mapping
	env     *procenv.Env
}

// NewRegion returns an empty region.
func NewRegion(opts ...Option) *Region {
	o := buildOptions(opts)
	return &Region{env: o.env}
}

// Create allocates a new read-write object of size bytes.
func (r *Region) Create(size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle != nil {
		return errors.Wrap("region create", errors.ErrHandleInUse, nil)
	}
	h, err := Create(size, WithEnv(r.env))
	if err != nil {
		return err
	}
	r.handle = h
	r.rights = ReadWrite
	r.size = size
	return nil
}

// Map maps n bytes of the owned handle. n == 0 maps the whole object.
func (r *Region) Map(n int, hint uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return errors.Wrap("region map", errors.ErrNoHandle, nil)
	}
	if r.mapping != nil {
		return errors.Wrap("region map", errors.ErrAlreadyMapped, nil)
	}
	m, err := MapAt(r.handle, n, r.rights, hint)
	if err != nil {
		return err
	}
	r.mapping = m
	return nil
}

// Unmap drops the mapping. The handle is kept.
func (r *Region) Unmap() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mapping == nil {
		return errors.Wrap("region unmap", errors.ErrNotMapped, nil)
	}
	err := r.mapping.Unmap()
	r.mapping = nil
	return err
}

// CloneHandle duplicates the owned handle. The region keeps its own.
func (r *Region) CloneHandle() (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return nil, errors.Wrap("region clone", errors.ErrNoHandle, nil)
	}
	return r.handle.Clone()
}

// TakeHandle transfers the owned handle to the caller. It returns nil if
// the region owns none. A live mapping is unaffected.
func (r *Region) TakeHandle() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.handle
	r.handle = nil
	return h
}

// SetHandle makes the region own h, opened with rights. A previously owned
// handle is closed.
func (r *Region) SetHandle(h *Handle, rights Rights) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.handle != nil && r.handle != h {
		err = r.handle.Close()
	}
	r.handle = h
	r.rights = rights
	if h != nil {
		r.size = h.Size()
	}
	return err
}

// HasHandle reports whether the region currently owns a handle.
func (r *Region) HasHandle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}

// Bytes returns the mapped memory, or nil when unmapped.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping == nil {
		return nil
	}
	return r.mapping.Bytes()
}

// Pointer returns the mapping base, or nil when unmapped.
func (r *Region) Pointer() unsafe.Pointer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping == nil {
		return nil
	}
	return r.mapping.Pointer()
}

// Size returns the size of the last created or adopted object.
func (r *Region) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *Region) Rights() Rights {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rights
}

// Close unmaps and closes whatever the region owns. Safe to call twice.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.mapping != nil {
		errs = append(errs, r.mapping.Unmap())
		r.mapping = nil
	}
	if r.handle != nil {
		errs = append(errs, r.handle.Close())
		r.handle = nil
	}
	return errors.Join(errs...)
}
