// pkg/ipcsync/block.go
// The block shared between every process using one semaphore

package ipcsync

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/khaaliswooden-max/xproc/pkg/errors"
	"github.com/khaaliswooden-max/xproc/pkg/systems"
)

// semaphoreData is the shared memory layout. Field order is part of the
// cross-process contract; the layout fingerprint guards it.
type semaphoreData struct {
	sem          osSemaphore
	refCount     int32
	initialValue uint32
	status       uint32
	layout       uint64
}

const blockSize = int(unsafe.Sizeof(semaphoreData{}))

var (
	blockLayout      = systems.AnalyzeStruct(semaphoreData{})
	blockFingerprint = blockLayout.Fingerprint()
)

// BlockLayout describes the shared block for diagnostics.
func BlockLayout() systems.StructLayout {
	return blockLayout
}

// === Epoch Status ===

// Values of semaphoreData.status. The attacher that moves the count off
// zero owns the transition out of statusDrained; everyone else only reads.
const (
	statusDrained      uint32 = iota // no OS semaphore; next attacher resurrects
	statusInitializing               // resurrection in progress
	statusLive
	statusFailed // resurrection rolled back while others had joined
)

var (
	errResurrectFailed  = errors.New("resurrection by another attacher failed")
	errResurrectStalled = errors.New("resurrection by another attacher did not finish")
)

// resurrectWait bounds how long a joining attacher waits for someone
// else's resurrection. Only a resurrector that died mid-way exceeds it.
var resurrectWait = 5 * time.Second

// awaitLive blocks until the epoch this attacher joined is usable.
//
// LEARN: An attacher that saw a non-zero count did not resurrect, but the
// one that did may still be inside semInit. Initialization is short, so we
// yield first and only fall back to sleeping if it drags on.
func awaitLive(status *uint32) error {
	deadline := time.Now().Add(resurrectWait)
	for spins := 0; ; spins++ {
		switch atomic.LoadUint32(status) {
		case statusLive:
			return nil
		case statusFailed:
			return errResurrectFailed
		}
		if time.Now().After(deadline) {
			return errResurrectStalled
		}
		if spins < 100 {
			runtime.Gosched()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// drain runs after the count reached zero. It destroys the OS semaphore if
// the epoch was live and reports whether it did.
func drain(d *semaphoreData) bool {
	if atomic.CompareAndSwapUint32(&d.status, statusLive, statusDrained) {
		destroySemaphore(&d.sem)
		return true
	}
	atomic.CompareAndSwapUint32(&d.status, statusFailed, statusDrained)
	return false
}
