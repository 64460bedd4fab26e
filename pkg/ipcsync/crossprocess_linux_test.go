package ipcsync

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaaliswooden-max/xproc/pkg/shm"
)

const helperEnv = "XPROC_IPCSYNC_HELPER"

// TestHelperProcess is not a real test. It is the child side of
// TestCrossProcess, started by re-executing the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	os.Exit(runHelper(os.Stdin, os.Stdout))
}

// runHelper attaches to the semaphore passed as fd 3, reports, waits for
// a signal, then detaches when told to.
func runHelper(in io.Reader, out io.Writer) int {
	h, err := shm.NewHandle(3, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "adopt:", err)
		return 2
	}
	sem, err := Attach(h, WithName("child"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "attach:", err)
		return 2
	}

	fmt.Fprintln(out, "attached")
	if !sem.WaitTimeout(5 * time.Second) {
		fmt.Fprintln(os.Stderr, "wait timed out")
		return 3
	}
	fmt.Fprintln(out, "signaled")

	line, _ := bufio.NewReader(in).ReadString('\n')
	if line != "close\n" {
		return 4
	}
	if err := sem.Close(); err != nil {
		return 5
	}
	return 0
}

func TestCrossProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a child process")
	}
	env := newTestEnv(t)
	counts := countHooks(t)

	parent, err := Create("xproc", 0, WithEnv(env))
	require.NoError(t, err)
	block := peek(t, parent)

	h, err := parent.CloneHandle()
	require.NoError(t, err)
	f := os.NewFile(h.Release(), "semaphore")

	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	cmd.ExtraFiles = []*os.File{f}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)

	require.NoError(t, cmd.Start())
	f.Close()
	lines := bufio.NewScanner(stdout)

	require.True(t, lines.Scan(), "child output: %s", stderr.String())
	require.Equal(t, "attached", lines.Text())
	assert.Equal(t, int32(2), refsOf(block), "child attach is visible here")

	parent.Signal()
	require.True(t, lines.Scan(), "child output: %s", stderr.String())
	require.Equal(t, "signaled", lines.Text())

	require.NoError(t, parent.Close())
	assert.Equal(t, int32(1), refsOf(block))
	assert.Zero(t, counts.destroys.Load(), "the child still holds a reference")

	_, err = io.WriteString(stdin, "close\n")
	require.NoError(t, err)
	require.NoError(t, cmd.Wait(), "child output: %s", stderr.String())

	assert.Equal(t, int32(0), refsOf(block), "the child destroyed it")
	assert.Equal(t, uint32(stateDestroyed), block.sem.state)
}
