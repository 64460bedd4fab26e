// pkg/shm/address_windows.go

package shm

import (
	"golang.org/x/sys/windows"
)

// FindFreeAddressSpace reserves and releases size bytes and returns the
// address that was reserved.
func FindFreeAddressSpace(size int) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, err
	}
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return 0, err
	}
	return addr, nil
}
