// pkg/shm/handle_windows.go
// Windows sections backed by the paging file
//
// LEARN: CreateFileMapping with INVALID_HANDLE_VALUE creates an anonymous
// section. Duplicating the section handle (into this process, or into a
// peer via a broker) is the Windows equivalent of dup(2).

package shm

import (
	"golang.org/x/sys/windows"

	"github.com/khaaliswooden-max/xproc/pkg/errors"
)

type osHandle = windows.Handle

const invalidHandle osHandle = 0

func validRaw(h osHandle) bool {
	return h != 0 && h != windows.InvalidHandle
}

func platformCreate(size int) (osHandle, error) {
	s := uint64(size)
	h, err := windows.CreateFileMapping(
		windows.InvalidHandle,  // paging file
		nil,                    // default security
		windows.PAGE_READWRITE, // protection
		uint32(s>>32),          // size high
		uint32(s),              // size low
		nil,                    // anonymous
	)
	if err != nil {
		return invalidHandle, err
	}
	return h, nil
}

func platformDuplicate(h osHandle) (osHandle, error) {
	var dup windows.Handle
	proc := windows.CurrentProcess()
	err := windows.DuplicateHandle(proc, h, proc, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return invalidHandle, err
	}
	return dup, nil
}

func platformClose(h osHandle) error {
	return windows.CloseHandle(h)
}

func platformSize(osHandle) (int, error) {
	return 0, errors.ErrUnsupported
}
