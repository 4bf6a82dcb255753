// Package process runs one external CLI process at a time, streams its
// output line by line and tears it down gracefully or forcefully on request.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/textutil"
)

const (
	// DefaultBinary is the coding-assistant CLI looked up on PATH.
	DefaultBinary = "claude"

	// DefaultStopTimeout bounds the graceful phase of Stop.
	DefaultStopTimeout = 5 * time.Second

	// waitDelay bounds how long reaping waits for the stderr copy after
	// the process exited.
	waitDelay = 2 * time.Second
)

// Manager owns at most one running child process.
type Manager struct {
	binary      string
	args        []string
	workDir     string
	stopTimeout time.Duration
	logger      *slog.Logger

	// slot admits a single Run at a time.
	slot *semaphore.Weighted

	mu      sync.Mutex
	handle  *handle
	running bool
}

type handle struct {
	cmd    *exec.Cmd
	pid    int
	stdout *os.File
	stderr *bytes.Buffer

	// done is closed once the process has been reaped; state and waitErr
	// are only read after that.
	done    chan struct{}
	state   *os.ProcessState
	waitErr error

	stopped atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithArgs sets arguments placed before the prompt.
func WithArgs(args ...string) Option {
	return func(m *Manager) {
		m.args = append([]string(nil), args...)
	}
}

// WithWorkDir sets the child's working directory.
func WithWorkDir(dir string) Option {
	return func(m *Manager) {
		m.workDir = dir
	}
}

// WithStopTimeout sets the graceful timeout used by Close and Scope.
func WithStopTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.stopTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager for binary. An empty binary selects DefaultBinary.
func NewManager(binary string, opts ...Option) *Manager {
	if binary == "" {
		binary = DefaultBinary
	}

	m := &Manager{
		binary:      binary,
		stopTimeout: DefaultStopTimeout,
		logger:      slog.Default(),
		slot:        semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Binary returns the configured executable.
func (m *Manager) Binary() string {
	return m.binary
}

// Args returns the arguments placed before the prompt.
func (m *Manager) Args() []string {
	return append([]string(nil), m.args...)
}

// IsRunning reports whether a process is currently tracked as running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.handle != nil
}

// PID returns the pid of the tracked process, or 0.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return 0
	}
	return m.handle.pid
}

// Run spawns the binary with prompt as its last argument and yields its
// standard output line by line, each line keeping its trailing newline.
// Invalid UTF-8 is replaced, never rejected.
//
// The sequence is lazy and single-pass: nothing is spawned until it is
// ranged over. A failure is yielded once as the final element with an
// empty line. Breaking out of the loop early kills the child.
func (m *Manager) Run(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return m.RunWithStart(ctx, prompt, nil)
}

// RunWithStart is Run with a callback invoked with the child's pid right
// after it was spawned, before any output is read.
func (m *Manager) RunWithStart(ctx context.Context, prompt string, started func(pid int)) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !m.slot.TryAcquire(1) {
			yield("", ErrBusy)
			return
		}
		defer m.slot.Release(1)

		if err := ctx.Err(); err != nil {
			yield("", &CommunicationError{ExitCode: -1, Stopped: true, Err: err})
			return
		}

		h, err := m.spawn(prompt)
		if err != nil {
			m.logger.Error("failed to start process", "binary", m.binary, "error", err)
			yield("", err)
			return
		}
		defer m.release(h)

		if started != nil {
			started(h.pid)
		}

		stopWatch := context.AfterFunc(ctx, func() {
			h.stopped.Store(true)
			if err := h.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				m.logger.Error("error killing process on cancel", "pid", h.pid, "error", err)
			}
		})
		defer stopWatch()

		reader := bufio.NewReader(textutil.NewReader(h.stdout))
		for {
			line, readErr := reader.ReadString('\n')
			if line != "" && !yield(line, nil) {
				return
			}
			if errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				yield("", &CommunicationError{ExitCode: -1, Err: fmt.Errorf("read output: %w", readErr)})
				return
			}
		}

		<-h.done
		if err := m.result(ctx, h); err != nil {
			m.logger.Error("process failed", "pid", h.pid, "error", err)
			yield("", err)
			return
		}
		m.logger.Info("process completed successfully", "pid", h.pid)
	}
}

func (m *Manager) spawn(prompt string) (*handle, error) {
	args := append(append([]string(nil), m.args...), prompt)
	cmd := exec.Command(m.binary, args...)
	cmd.Dir = m.workDir
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	// Stdin is attached but never written to.
	if _, err := cmd.StdinPipe(); err != nil {
		return nil, &CommunicationError{ExitCode: -1, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	// A pipe we own keeps Wait from closing stdout under the reader.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &CommunicationError{ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	cmd.Stdout = stdoutW

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, newStartError(m.binary, err)
	}
	stdoutW.Close()

	h := &handle{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		stdout: stdoutR,
		stderr: &stderr,
		done:   make(chan struct{}),
	}
	go h.reap()

	m.mu.Lock()
	m.handle = h
	m.running = true
	m.mu.Unlock()

	m.logger.Info("started process", "binary", m.binary, "pid", h.pid)
	return h, nil
}

func (m *Manager) result(ctx context.Context, h *handle) error {
	if h.state == nil {
		return &CommunicationError{ExitCode: -1, Stopped: h.stopped.Load(), Err: h.waitErr}
	}

	code := h.state.ExitCode()
	if code == 0 {
		return nil
	}

	commErr := &CommunicationError{
		ExitCode: code,
		Stderr:   textutil.Decode(h.stderr.Bytes()),
		Stopped:  h.stopped.Load(),
	}
	if !h.state.Exited() {
		commErr.Signal = h.state.String()
	}
	if err := ctx.Err(); err != nil {
		commErr.Err = err
	}
	return commErr
}

// release runs on every exit path of Run.
func (m *Manager) release(h *handle) {
	if !h.exited() {
		m.logger.Warn("output abandoned before exit, killing process", "pid", h.pid)
		h.stopped.Store(true)
		if err := h.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.logger.Error("error killing process", "pid", h.pid, "error", err)
		}
		<-h.done
	}
	h.stdout.Close()
	m.clear(h)
}

// Stop asks the process to exit, waiting up to timeout before killing it.
// A zero timeout selects DefaultStopTimeout. Stop never fails: a process
// that is already gone is ignored and other errors are logged.
func (m *Manager) Stop(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	h := m.current()
	if h == nil {
		m.logger.Debug("no process to stop")
		return
	}
	defer m.clear(h)

	if h.exited() {
		m.logger.Debug("process already terminated", "pid", h.pid)
		return
	}

	m.logger.Info("stopping process", "pid", h.pid)
	h.stopped.Store(true)
	if err := h.terminate(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			m.logger.Debug("process already terminated", "pid", h.pid)
			return
		}
		m.logger.Warn("graceful stop failed, sending SIGKILL", "pid", h.pid, "error", err)
		m.forceKill(h)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		m.logger.Info("process stopped gracefully", "pid", h.pid)
	case <-timer.C:
		m.logger.Warn("process did not stop in time, sending SIGKILL", "pid", h.pid, "timeout", timeout)
		m.forceKill(h)
	}
}

func (m *Manager) forceKill(h *handle) {
	if err := h.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Error("error killing process", "pid", h.pid, "error", err)
		return
	}
	<-h.done
	m.logger.Info("process forcefully terminated", "pid", h.pid)
}

// Kill ends the process immediately. Like Stop it never fails.
func (m *Manager) Kill() {
	h := m.current()
	if h == nil {
		m.logger.Debug("no process to kill")
		return
	}
	defer m.clear(h)

	if h.exited() {
		m.logger.Debug("process already terminated", "pid", h.pid)
		return
	}

	m.logger.Warn("killing process", "pid", h.pid)
	h.stopped.Store(true)
	if err := h.kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			m.logger.Debug("process already terminated", "pid", h.pid)
		} else {
			m.logger.Error("error killing process", "pid", h.pid, "error", err)
		}
		return
	}
	<-h.done
	m.logger.Info("process killed", "pid", h.pid)
}

// Close stops any running process with the configured stop timeout.
func (m *Manager) Close() error {
	m.Stop(m.stopTimeout)
	return nil
}

// Scope calls fn and stops the process afterwards, even if fn panics.
func (m *Manager) Scope(fn func(*Manager) error) error {
	defer m.Stop(m.stopTimeout)
	return fn(m)
}

func (m *Manager) current() *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// clear resets state if h is still the tracked handle.
func (m *Manager) clear(h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == h {
		m.handle = nil
		m.running = false
	}
}


func (h *handle) reap() {
	h.waitErr = h.cmd.Wait()
	h.state = h.cmd.ProcessState
	close(h.done)
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
