//go:build unix && !linux

// pkg/shm/mapping_unix.go
// Portable unix mapping. The address hint is not honored here.

package shm

import (
	"golang.org/x/sys/unix"
)

func platformMap(h osHandle, size int, rights Rights, _ uintptr) ([]byte, error) {
	prot := unix.PROT_READ
	if rights == ReadWrite {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(h, 0, size, prot, unix.MAP_SHARED)
}

func platformUnmap(b []byte) error {
	return unix.Munmap(b)
}
