//go:build unix && !linux

// pkg/shm/object_unix.go
// Anonymous shared memory on other unix systems: create, unlink, keep fd

package shm

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// platformCreate opens an exclusive temp file and unlinks it immediately.
// Only the descriptor keeps the object alive, which matches memfd
// semantics closely enough for sharing via descriptor passing.
func platformCreate(size int) (osHandle, error) {
	path := filepath.Join(os.TempDir(), "xproc-"+uuid.NewString())
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return invalidHandle, err
	}
	if err := unix.Unlink(path); err != nil {
		unix.Close(fd)
		return invalidHandle, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return invalidHandle, err
	}
	return fd, nil
}
