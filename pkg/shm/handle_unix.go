//go:build unix

// pkg/shm/handle_unix.go
// Unix descriptors: duplication with F_DUPFD_CLOEXEC, sizing with fstat

package shm

import (
	"golang.org/x/sys/unix"
)

type osHandle = int

const invalidHandle osHandle = -1

func validRaw(h osHandle) bool {
	return h >= 0
}

// platformDuplicate returns a new descriptor for the same open file
// description. CLOEXEC keeps it from leaking into unrelated children; pass
// it explicitly (exec.Cmd.ExtraFiles, SCM_RIGHTS) when a child needs it.
func platformDuplicate(h osHandle) (osHandle, error) {
	return unix.FcntlInt(uintptr(h), unix.F_DUPFD_CLOEXEC, 0)
}

func platformClose(h osHandle) error {
	return unix.Close(h)
}

func platformSize(h osHandle) (int, error) {
	var st unix.Stat_t
	if err := unix.Fstat(h, &st); err != nil {
		return 0, err
	}
	return int(st.Size), nil
}
