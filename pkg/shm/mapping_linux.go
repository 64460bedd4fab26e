// pkg/shm/mapping_linux.go
// Linux mapping with address hints

package shm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// platformMap uses MmapPtr so a placement hint can be passed through.
// Without MAP_FIXED the kernel treats the hint as a suggestion and never
// clobbers an existing mapping.
func platformMap(h osHandle, size int, rights Rights, hint uintptr) ([]byte, error) {
	prot := unix.PROT_READ
	if rights == ReadWrite {
		prot |= unix.PROT_WRITE
	}

	p, err := unix.MmapPtr(h, 0, unsafe.Pointer(hint), uintptr(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), size), nil
}

func platformUnmap(b []byte) error {
	return unix.MunmapPtr(unsafe.Pointer(unsafe.SliceData(b)), uintptr(len(b)))
}
