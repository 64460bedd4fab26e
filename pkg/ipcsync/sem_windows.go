// pkg/ipcsync/sem_windows.go
// Named kernel semaphores
//
// LEARN: Windows has no semaphore that can live inside a section, so the
// block stores a key instead, and every process opens the kernel object
// the key names. Each wrapper owns its own HANDLE. The kernel frees the
// object when the last HANDLE closes, which lines up with the shared ref
// count reaching zero. x/sys/windows does not wrap the semaphore calls,
// so they are loaded lazily from kernel32.

package ipcsync

import (
	"errors"
	"math"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"
)

// SemValueMax is the largest count a semaphore can hold.
const SemValueMax = math.MaxInt32

const (
	semaphoreAllAccess = 0x1F0003
	waitObject0        = 0x00000000
	waitTimeout        = 0x00000102
	errTooManyPosts    = windows.Errno(298)
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procCreateSemaphoreW = kernel32.NewProc("CreateSemaphoreW")
	procOpenSemaphoreW   = kernel32.NewProc("OpenSemaphoreW")
	procReleaseSemaphore = kernel32.NewProc("ReleaseSemaphore")
)

var errDestroyed = errors.New("semaphore destroyed")

// osSemaphore holds the key of the kernel object. All zero means none.
type osSemaphore struct {
	key [16]byte
}

type localSem = windows.Handle

func semName(key [16]byte) (*uint16, error) {
	return windows.UTF16PtrFromString(`Local\xproc-sem-` + uuid.UUID(key).String())
}

func platformInit(s *osSemaphore, initial uint32) (localSem, error) {
	if initial > SemValueMax {
		return 0, errOverflow
	}
	key := uuid.New()
	name, err := semName(key)
	if err != nil {
		return 0, err
	}
	r, _, callErr := procCreateSemaphoreW.Call(0, uintptr(initial), uintptr(SemValueMax), uintptr(unsafe.Pointer(name)))
	if r == 0 {
		return 0, callErr
	}
	s.key = key
	return windows.Handle(r), nil
}

func platformOpen(s *osSemaphore) (localSem, error) {
	if s.key == [16]byte{} {
		return 0, errDestroyed
	}
	name, err := semName(s.key)
	if err != nil {
		return 0, err
	}
	r, _, callErr := procOpenSemaphoreW.Call(semaphoreAllAccess, 0, uintptr(unsafe.Pointer(name)))
	if r == 0 {
		return 0, callErr
	}
	return windows.Handle(r), nil
}

func platformDestroy(s *osSemaphore) {
	s.key = [16]byte{}
}

func platformCloseLocal(l localSem) {
	if l != 0 {
		_ = windows.CloseHandle(l)
	}
}

func platformTryWait(_ *osSemaphore, l localSem) bool {
	ev, _ := windows.WaitForSingleObject(l, 0)
	return ev == waitObject0
}

func platformWait(_ *osSemaphore, l localSem, deadline time.Time) (bool, error) {
	ms := uint32(windows.INFINITE)
	if !deadline.IsZero() {
		ms = waitMillis(time.Until(deadline))
	}

	ev, err := windows.WaitForSingleObject(l, ms)
	switch ev {
	case waitObject0:
		return true, nil
	case waitTimeout:
		return false, nil
	default:
		return false, err
	}
}

// waitMillis converts a relative timeout for WaitForSingleObject. It rounds
// up so a timed wait never returns before the deadline, and saturates below
// INFINITE so a very long wait stays finite.
func waitMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	if ms >= windows.INFINITE {
		return windows.INFINITE - 1
	}
	return uint32(ms)
}

func platformPost(_ *osSemaphore, l localSem) error {
	r, _, callErr := procReleaseSemaphore.Call(uintptr(l), 1, 0)
	if r == 0 {
		if callErr == errTooManyPosts {
			return errOverflow
		}
		return callErr
	}
	return nil
}
