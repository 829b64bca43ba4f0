package launcher

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// ExitStatus describes how a session process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was signaled or never ran.
	Code int
	// Signal is the termination signal name when the process was signaled.
	Signal string
	// Err is the underlying spawn or wait error, if any.
	Err error
}

// String implements fmt.Stringer.
func (s ExitStatus) String() string {
	switch {
	case s.Signal != "":
		return fmt.Sprintf("signal:%s", s.Signal)
	case s.Err != nil && s.Code == -1:
		return fmt.Sprintf("error:%v", s.Err)
	default:
		return fmt.Sprintf("code:%d", s.Code)
	}
}

// Handle is an asynchronous view of a launched session process.
// Accessors other than ExitStatus are safe at any time; ExitStatus is valid
// once Done is closed.
type Handle interface {
	// Stdin is the child's stdin pipe, owned by the protocol client.
	Stdin() io.WriteCloser
	// Stdout is the child's stdout pipe, owned by the protocol client.
	Stdout() io.ReadCloser
	// Stderr is the child's stderr pipe, streamed to the diagnostic log.
	Stderr() io.ReadCloser
	// PID returns the child's process id, or 0 when the spawn failed.
	PID() int
	// Done is closed once the process has exited and its status is recorded.
	Done() <-chan struct{}
	// ExitStatus reports how the process ended.
	ExitStatus() ExitStatus
	// Terminate asks the child to exit, escalating to a kill when the context
	// ends first. It returns once the process has exited.
	Terminate(ctx context.Context) error
	// TerminationRequested reports whether Terminate has been called, which
	// distinguishes a requested stop from an unexpected exit.
	TerminationRequested() bool
}

type procHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	done   chan struct{}
	status ExitStatus

	mu        sync.Mutex
	requested bool
}

func newHandle(cmd *exec.Cmd) *procHandle {
	return &procHandle{
		cmd:  cmd,
		done: make(chan struct{}),
	}
}

// start wires the pipes, starts the child, and begins monitoring. A failure
// at any step records an immediate exit status rather than returning an
// error, so callers always receive a usable handle.
func (h *procHandle) start(startFunc func(cmd *exec.Cmd) error) {
	err := h.wirePipes()
	if err == nil {
		err = startFunc(h.cmd)
	}
	if err != nil {
		// exec closes the parent pipe ends on a failed start; drop them so
		// the accessors hand out drained substitutes instead.
		h.stdin, h.stdout, h.stderr = nil, nil, nil
		h.status = ExitStatus{Code: -1, Err: err}
		close(h.done)
		return
	}
	go h.monitor()
}

func (h *procHandle) wirePipes() error {
	var err error
	if h.stdin, err = h.cmd.StdinPipe(); err != nil {
		return err
	}
	if h.stdout, err = h.cmd.StdoutPipe(); err != nil {
		return err
	}
	h.stderr, err = h.cmd.StderrPipe()
	return err
}

// monitor records the final status once the child exits.
func (h *procHandle) monitor() {
	err := h.cmd.Wait()
	h.status = exitStatusFromState(h.cmd.ProcessState, err)
	close(h.done)
}

func exitStatusFromState(state *os.ProcessState, err error) ExitStatus {
	status := ExitStatus{Code: -1, Err: err}
	if state == nil {
		return status
	}
	status.Code = state.ExitCode()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
	}
	return status
}

func (h *procHandle) Stdin() io.WriteCloser {
	if h.stdin == nil {
		return nopWriteCloser{io.Discard}
	}
	return h.stdin
}

func (h *procHandle) Stdout() io.ReadCloser {
	if h.stdout == nil {
		return io.NopCloser(strings.NewReader(""))
	}
	return h.stdout
}

func (h *procHandle) Stderr() io.ReadCloser {
	if h.stderr == nil {
		return io.NopCloser(strings.NewReader(""))
	}
	return h.stderr
}

func (h *procHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *procHandle) Done() <-chan struct{} {
	return h.done
}

func (h *procHandle) ExitStatus() ExitStatus {
	return h.status
}

func (h *procHandle) Terminate(ctx context.Context) error {
	h.mu.Lock()
	h.requested = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	if h.cmd.Process == nil {
		return nil
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Platforms without SIGTERM delivery escalate straight to a kill.
		h.cmd.Process.Kill()
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
	}

	if err := h.cmd.Process.Kill(); err != nil && !stderr.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing session process: %w", err)
	}
	<-h.done
	return nil
}

func (h *procHandle) TerminationRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requested
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
