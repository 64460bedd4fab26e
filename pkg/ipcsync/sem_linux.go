// pkg/ipcsync/sem_linux.go
// Futex-backed counting semaphore embedded in shared memory
//
// LEARN: A POSIX unnamed semaphore with pshared=1 is, on Linux, three words
// and a futex. We do the same thing directly. The count lives in the
// mapping, so every process sees it; a futex wait on that word parks the
// caller in the kernel until someone posts. The futex ops below omit
// FUTEX_PRIVATE_FLAG: private futexes are keyed by (mm, address) and would
// never wake a waiter in another process. Shared ones are keyed by the
// backing page.
//
// Key concepts:
// 1. Fast path: compare-and-swap on the count, no syscall
// 2. Slow path: FUTEX_WAIT only if the count is still 0 when the kernel looks
// 3. Timeouts are absolute wall-clock deadlines (the sem_timedwait contract)

package ipcsync

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SemValueMax is the largest count a semaphore can hold.
const SemValueMax = math.MaxInt32

const (
	futexWait           = 0
	futexWake           = 1
	futexWaitBitset     = 9
	futexClockRealtime  = 256
	futexBitsetMatchAny = 0xffffffff
)

const (
	stateUninit uint32 = iota
	stateLive
	stateDestroyed
)

var errDestroyed = errors.New("semaphore destroyed")

// osSemaphore must stay plain words: it is read and written by other
// processes through their own mappings.
type osSemaphore struct {
	value   uint32
	waiters uint32
	state   uint32
	_       uint32
}

// localSem is per-wrapper state. Futexes need none.
type localSem struct{}

func futex(addr *uint32, op int, val uint32, ts *unix.Timespec, val3 uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(op),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0,
		uintptr(val3),
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func platformInit(s *osSemaphore, initial uint32) (localSem, error) {
	if initial > SemValueMax {
		return localSem{}, errOverflow
	}
	atomic.StoreUint32(&s.value, initial)
	atomic.StoreUint32(&s.waiters, 0)
	atomic.StoreUint32(&s.state, stateLive)
	return localSem{}, nil
}

func platformOpen(s *osSemaphore) (localSem, error) {
	if atomic.LoadUint32(&s.state) != stateLive {
		return localSem{}, errDestroyed
	}
	return localSem{}, nil
}

// platformDestroy wakes anyone still parked so they observe the state
// change instead of sleeping forever.
func platformDestroy(s *osSemaphore) {
	atomic.StoreUint32(&s.state, stateDestroyed)
	_ = futex(&s.value, futexWake, math.MaxInt32, nil, 0)
}

func platformCloseLocal(localSem) {}

func platformTryWait(s *osSemaphore, _ localSem) bool {
	for {
		v := atomic.LoadUint32(&s.value)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.value, v, v-1) {
			return true
		}
	}
}

// platformWait blocks until the count can be decremented or the deadline
// passes. A zero deadline waits forever.
func platformWait(s *osSemaphore, l localSem, deadline time.Time) (bool, error) {
	var ts *unix.Timespec
	if !deadline.IsZero() {
		abs := unix.NsecToTimespec(deadline.UnixNano())
		ts = &abs
	}

	for {
		if platformTryWait(s, l) {
			return true, nil
		}
		if atomic.LoadUint32(&s.state) != stateLive {
			return false, errDestroyed
		}

		atomic.AddUint32(&s.waiters, 1)
		var err error
		if ts == nil {
			err = futex(&s.value, futexWait, 0, nil, 0)
		} else {
			err = futex(&s.value, futexWaitBitset|futexClockRealtime, 0, ts, futexBitsetMatchAny)
		}
		atomic.AddUint32(&s.waiters, ^uint32(0))

		switch err {
		case nil, unix.EAGAIN, unix.EINTR:
			// Woken, raced with a post, or interrupted: look again. The
			// deadline is absolute, so retrying never extends it.
		case unix.ETIMEDOUT:
			return platformTryWait(s, l), nil
		default:
			return false, err
		}
	}
}

func platformPost(s *osSemaphore, _ localSem) error {
	for {
		v := atomic.LoadUint32(&s.value)
		if v >= SemValueMax {
			return errOverflow
		}
		if atomic.CompareAndSwapUint32(&s.value, v, v+1) {
			break
		}
	}
	if atomic.LoadUint32(&s.waiters) > 0 {
		return futex(&s.value, futexWake, 1, nil, 0)
	}
	return nil
}
