// cmd/xprocsem/demo_linux.go
// Two-process demo: the parent creates, the child attaches through a
// handle passed over a unix socket, the parent signals, both detach.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/khaaliswooden-max/xproc/internal/config"
	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/handoff"
	"github.com/khaaliswooden-max/xproc/pkg/ipcsync"
)

// childFD is where the child finds its end of the socket pair
// (ExtraFiles[0] is always descriptor 3).
const childFD = 3

func runDemo(ctx context.Context, cfg *config.Config, env *procenv.Env) error {
	log := env.Logger.Named("demo")

	sem, err := ipcsync.Create("demo", cfg.Demo.Initial)
	if err != nil {
		return err
	}
	defer sem.Close()

	parentEnd, childEnd, err := handoff.Pair()
	if err != nil {
		return err
	}
	conn, err := handoff.Conn(parentEnd)
	if err != nil {
		childEnd.Close()
		return err
	}
	defer conn.Close()

	cmd := exec.CommandContext(ctx, os.Args[0], "-timeout", cfg.Demo.Timeout.String(), "child")
	cmd.ExtraFiles = []*os.File{childEnd}
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		childEnd.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		childEnd.Close()
		return fmt.Errorf("start child: %w", err)
	}
	childEnd.Close()

	h, err := sem.CloneHandle()
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}
	err = handoff.Send(conn, h)
	h.Close()
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}
	log.Info("handle sent to child", zap.Int("pid", cmd.Process.Pid))

	lines := bufio.NewScanner(stdout)
	if !lines.Scan() {
		return fmt.Errorf("child exited before attaching: %w", cmd.Wait())
	}
	fmt.Printf("child: %s\n", lines.Text())
	fmt.Printf("parent: refs=%d, signaling\n", sem.RefCount())
	sem.Signal()

	for lines.Scan() {
		fmt.Printf("child: %s\n", lines.Text())
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("child: %w", err)
	}
	fmt.Printf("parent: child detached, refs=%d\n", sem.RefCount())
	return nil
}

func runChild(ctx context.Context, cfg *config.Config, env *procenv.Env) error {
	conn, err := handoff.Conn(os.NewFile(childFD, "handoff"))
	if err != nil {
		return err
	}
	defer conn.Close()

	h, err := handoff.Receive(conn)
	if err != nil {
		return err
	}
	sem, err := ipcsync.Attach(h, ipcsync.WithName("demo"))
	if err != nil {
		return err
	}
	defer sem.Close()

	fmt.Printf("attached pid=%d refs=%d\n", os.Getpid(), sem.RefCount())
	if !sem.WaitTimeout(cfg.Demo.Timeout) {
		return fmt.Errorf("no signal within %s", cfg.Demo.Timeout)
	}
	fmt.Println("signaled, detaching")
	return ctx.Err()
}
