//go:build xproc_debug

package ipcsync

import "go.uber.org/zap"

// overflow is a programmer error: more posts than the semaphore can count.
func overflow(_ *zap.Logger, name string) {
	panic("ipcsync: semaphore " + name + " overflowed")
}
