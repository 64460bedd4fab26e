//go:build unix

// pkg/shm/address_unix.go

package shm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// FindFreeAddressSpace returns an address where size bytes were free a
// moment ago, for use as a MapAt hint.
//
// LEARN: Reserve with PROT_NONE, note the address, release. Another thread
// can take the range before the hint is used, which is why it stays a hint.
func FindFreeAddressSpace(size int) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, err
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if err := unix.Munmap(b); err != nil {
		return 0, err
	}
	return addr, nil
}
