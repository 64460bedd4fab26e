//go:build !xproc_debug

package ipcsync

import "go.uber.org/zap"

func overflow(log *zap.Logger, name string) {
	log.Error("semaphore overflowed, signal dropped", zap.String("semaphore", name))
}
