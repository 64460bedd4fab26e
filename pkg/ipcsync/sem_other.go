//go:build !linux && !windows

// pkg/ipcsync/sem_other.go
// Platforms without a process-shared semaphore implementation

package ipcsync

import (
	"math"
	"time"

	"github.com/khaaliswooden-max/xproc/pkg/errors"
)

const SemValueMax = math.MaxInt32

// Same size as the Linux block so fingerprints stay comparable in tools.
type osSemaphore struct {
	_ [16]byte
}

type localSem struct{}

func platformInit(*osSemaphore, uint32) (localSem, error) {
	return localSem{}, errors.ErrUnsupported
}

func platformOpen(*osSemaphore) (localSem, error) {
	return localSem{}, errors.ErrUnsupported
}

func platformDestroy(*osSemaphore) {}
func platformCloseLocal(localSem) {}
func platformTryWait(*osSemaphore, localSem) bool { return false }
func platformPost(*osSemaphore, localSem) error { return errors.ErrUnsupported }
func platformWait(*osSemaphore, localSem, time.Time) (bool, error) {
	return false, errors.ErrUnsupported
}
