//go:build unix

// pkg/handoff/handoff.go
// Passing shared memory handles between processes over unix sockets
//
// LEARN: A descriptor number means nothing outside the process that owns
// it. To give another process access to the same object, the kernel has to
// install a new descriptor in the receiver, and SCM_RIGHTS ancillary data
// on a unix domain socket asks it to do exactly that. The sender keeps its
// own descriptor; the receiver gets a fresh one pointing at the same open
// file description.
//
// Wire format, one message per handle:
//
//	data:    8 bytes, little endian object size
//	control: SCM_RIGHTS carrying exactly one descriptor

package handoff

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
	"github.com/khaaliswooden-max/xproc/pkg/shm"
	"github.com/khaaliswooden-max/xproc/pkg/types"
)

const headerSize = 8

// maxRights bounds the control buffer. A peer that sends more descriptors
// than this has the extras dropped by the kernel (MSG_CTRUNC).
const maxRights = 4

// Send writes h to conn. h stays valid and owned by the caller.
func Send(conn *net.UnixConn, h *shm.Handle) error {
	env := procenv.Current()
	if !h.IsValid() {
		return errors.Wrap("handoff send", errors.ErrInvalidHandle, nil)
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(h.Size()))
	oob := unix.UnixRights(int(h.Raw()))

	n, oobn, err := conn.WriteMsgUnix(hdr[:], oob, nil)
	if err != nil {
		env.Record(types.ActionSend, types.ObjectHandle, "", 0, h.Size(), errors.CodeTransfer)
		return errors.Wrap("handoff send", errors.ErrTransfer, err)
	}
	if n != headerSize || oobn != len(oob) {
		return errors.Wrap(fmt.Sprintf("handoff send: short write %d+%d", n, oobn), errors.ErrTransfer, nil)
	}

	env.Record(types.ActionSend, types.ObjectHandle, "", 0, h.Size(), "")
	env.Logger.Debug("handle sent", zap.Int("size", h.Size()))
	return nil
}

// Receive reads one handle from conn. Anything other than a well formed
// message is ErrTransfer, and every descriptor that arrived with it is
// closed.
func Receive(conn *net.UnixConn, opts ...shm.Option) (*shm.Handle, error) {
	var hdr [headerSize]byte
	oob := make([]byte, unix.CmsgSpace(4*maxRights))

	n, oobn, flags, _, err := conn.ReadMsgUnix(hdr[:], oob)
	if err != nil {
		return nil, errors.Wrap("handoff receive", errors.ErrTransfer, err)
	}

	fds, err := parseRights(oob[:oobn])
	if err != nil {
		closeAll(fds)
		return nil, errors.Wrap("handoff receive", errors.ErrTransfer, err)
	}

	switch {
	case flags&unix.MSG_CTRUNC != 0:
		err = fmt.Errorf("control message truncated")
	case n != headerSize:
		err = fmt.Errorf("header is %d bytes, want %d", n, headerSize)
	case len(fds) != 1:
		err = fmt.Errorf("got %d descriptors, want 1", len(fds))
	}
	if err != nil {
		closeAll(fds)
		return nil, errors.Wrap("handoff receive", errors.ErrTransfer, err)
	}

	h, err := shm.NewHandle(uintptr(fds[0]), 0, opts...)
	if err != nil {
		unix.Close(fds[0])
		return nil, errors.Wrap("handoff receive", errors.ErrTransfer, err)
	}

	// The size on the wire must agree with what the kernel says.
	if want := binary.LittleEndian.Uint64(hdr[:]); uint64(h.Size()) != want {
		h.Close()
		return nil, errors.Wrap(fmt.Sprintf("handoff receive: size %d, header says %d", h.Size(), want),
			errors.ErrTransfer, nil)
	}
	return h, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}

	var fds []int
	for i := range msgs {
		got, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			// Not SCM_RIGHTS; keep looking.
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

// === Socket pairs ===

// Pair returns two connected unix stream sockets as files, for handing one
// end to a child process through exec.Cmd.ExtraFiles.
func Pair() (*os.File, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, errors.Wrap("handoff socketpair", errors.ErrTransfer, err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return os.NewFile(uintptr(fds[0]), "handoff-a"), os.NewFile(uintptr(fds[1]), "handoff-b"), nil
}

// Conn turns a socket file into a *net.UnixConn. The file is closed; the
// connection owns a duplicate of its descriptor.
func Conn(f *os.File) (*net.UnixConn, error) {
	defer f.Close()

	c, err := net.FileConn(f)
	if err != nil {
		return nil, errors.Wrap("handoff conn", errors.ErrTransfer, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, errors.Wrap(fmt.Sprintf("handoff conn: %T is not a unix socket", c), errors.ErrTransfer, nil)
	}
	return uc, nil
}
