// pkg/shm/mapping.go
// Views of a shared memory object in this process's address space
//
// LEARN: A mapping does not depend on the handle it came from. Once mmap
// (or MapViewOfFile) returns, the kernel holds its own reference to the
// object, so the handle can be closed, cloned, or sent away while the
// memory stays readable. Unmapping is the only way to give it back.

package shm

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

var (
	mapObject   = platformMap
	unmapObject = platformUnmap
)

// Mapping is a live view of a shared memory object.
type Mapping struct {
	mu     sync.RWMutex
	data   []byte
	rights Rights
	env    *procenv.Env
}

// Map maps size bytes of the object named by h. A size of 0 maps the
// whole object.
func Map(h *Handle, size int, rights Rights) (*Mapping, error) {
	return MapAt(h, size, rights, 0)
}

// MapAt is Map with an address hint. The OS may ignore the hint; check
// Addr() if placement matters.
func MapAt(h *Handle, size int, rights Rights, hint uintptr) (*Mapping, error) {
	if h == nil {
		return nil, errors.Wrap("shm map", errors.ErrInvalidHandle, nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !validRaw(h.raw) {
		return nil, errors.Wrap("shm map", errors.ErrInvalidHandle, nil)
	}
	if size == 0 {
		size = h.size
	}
	if size < 0 || size > h.size {
		return nil, errors.Wrap("shm map", errors.ErrSizeMismatch, nil)
	}

	data, err := mapObject(h.raw, size, rights, hint)
	if err != nil {
		err = errors.Wrap("shm map", errors.ErrMap, err)
		h.env.Metrics.Failure("map")
		h.env.Logger.Warn("shared memory mapping failed",
			zap.Int("size", size),
			zap.Stringer("rights", rights),
			zap.Error(err),
		)
		h.env.Record(types.ActionMap, types.ObjectRegion, "", 0, size, errors.ErrorCode(err))
		return nil, err
	}

	h.env.MappingAdded()
	h.env.Record(types.ActionMap, types.ObjectRegion, "", 0, size, "")
	return &Mapping{data: data, rights: rights, env: h.env}, nil
}

// Bytes returns the mapped memory, or nil after Unmap.
//
// WARNING: the slice must not be used after Unmap. Doing so faults.
func (m *Mapping) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Len returns the mapped length, or 0 after Unmap.
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Mapping) Rights() Rights {
	return m.rights
}

// Pointer returns the base address as an unsafe.Pointer, or nil.
func (m *Mapping) Pointer() unsafe.Pointer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.data) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(m.data))
}

// Addr returns the base address, or 0.
func (m *Mapping) Addr() uintptr {
	return uintptr(m.Pointer())
}

// Unmap releases the view. It is safe to call more than once.
func (m *Mapping) Unmap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil
	}
	size := len(m.data)
	err := unmapObject(m.data)
	m.data = nil
	m.env.MappingRemoved()
	m.env.Record(types.ActionUnmap, types.ObjectRegion, "", 0, size, errors.ErrorCode(err))
	if err != nil {
		return errors.Wrap("shm unmap", errors.ErrMap, err)
	}
	return nil
}
