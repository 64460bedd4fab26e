// pkg/shm/mapping_windows.go
// Windows views of a section
//
// LEARN: MapViewOfFileEx would honor an address hint, but it fails outright
// instead of falling back when the range is taken, so the hint is ignored
// here and the system picks the address.

package shm

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func platformMap(h osHandle, size int, rights Rights, _ uintptr) ([]byte, error) {
	access := uint32(windows.FILE_MAP_READ)
	if rights == ReadWrite {
		access = windows.FILE_MAP_WRITE
	}

	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func platformUnmap(b []byte) error {
	return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}
