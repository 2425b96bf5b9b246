// Package process runs synthesizer executables. Every process started
// through a Manager is tracked so a single request or all of them can be
// killed, together with any children they spawned.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrKilled is returned for processes stopped by Kill or KillAll. It
// matches context.Canceled so callers treat it as a cancellation.
var ErrKilled = fmt.Errorf("process was killed: %w", context.Canceled)

// KilledExitCode is the exit code reported for killed processes.
const KilledExitCode = -1

// Command describes a process to start.
type Command struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string
	Dir   string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Success reports whether the process exited with code 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

type entry struct {
	cmd    *exec.Cmd
	killed bool
}

// Manager starts and tracks processes.
type Manager struct {
	mu          sync.Mutex
	procs       map[string]*entry
	seq         uint64
	killTimeout time.Duration
	logger      *log.Logger
}

// NewManager creates a manager. killTimeout bounds the processes started
// with Output.
func NewManager(killTimeout time.Duration, logger *log.Logger) *Manager {
	if killTimeout <= 0 {
		killTimeout = 7 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		procs:       make(map[string]*entry),
		killTimeout: killTimeout,
		logger:      logger,
	}
}

// KillTimeout returns the timeout applied by Output.
func (m *Manager) KillTimeout() time.Duration {
	return m.killTimeout
}

// Run starts c, tracks it under uid and waits for it to exit. A non-zero
// exit code is not an error; inspect Result.ExitCode. The error is set
// when the process could not start, ctx was cancelled, or it was killed.
func (m *Manager) Run(ctx context.Context, uid string, c Command) (Result, error) {
	return m.Stream(ctx, uid, c, nil)
}

// Stream is Run with onLine called for every line the process writes to
// stdout, in order, on the calling goroutine. Lines are not collected in
// Result.Stdout when onLine is set.
func (m *Manager) Stream(ctx context.Context, uid string, c Command, onLine func(string)) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	configure(cmd)
	cmd.Cancel = func() error { return kill(cmd.Process) }
	cmd.WaitDelay = time.Second
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Dir = c.Dir

	// stdin is attached before start so the process never sees an empty pipe
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	var pipe io.ReadCloser
	if onLine != nil {
		p, err := cmd.StdoutPipe()
		if err != nil {
			return Result{}, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		pipe = p
	} else {
		cmd.Stdout = &stdout
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}
	key := m.track(uid, cmd)
	defer m.untrack(key)
	m.logger.Debug("process started", "uid", uid, "pid", cmd.Process.Pid, "cmd", c.String())

	if pipe != nil {
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		// drain so Wait does not block on a full pipe
		_, _ = io.Copy(io.Discard, pipe)
	}

	waitErr := cmd.Wait()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	m.logger.Debug("process exited", "uid", uid, "code", result.ExitCode)

	if m.wasKilled(key) {
		result.ExitCode = KilledExitCode
		return result, ErrKilled
	}
	if err := ctx.Err(); err != nil {
		result.ExitCode = KilledExitCode
		return result, err
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("process %s failed: %w", c.Name, waitErr)
	}
	return result, nil
}

// Output runs c untracked by uid and returns its stdout. The process is
// killed after the manager's kill timeout. A non-zero exit code is an
// error carrying stderr.
func (m *Manager) Output(ctx context.Context, c Command) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.killTimeout)
	defer cancel()

	result, err := m.Run(ctx, "", c)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("process %s timed out after %v", c.Name, m.killTimeout)
	}
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		msg := strings.TrimSpace(string(result.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("process %s exited with code %d", c.Name, result.ExitCode)
		}
		return nil, fmt.Errorf("process %s exited with code %d: %s", c.Name, result.ExitCode, msg)
	}
	return result.Stdout, nil
}

// Kill stops the process tracked under uid. It reports whether one was found.
func (m *Manager) Kill(uid string) bool {
	if uid == "" {
		return false
	}
	m.mu.Lock()
	e, ok := m.procs[uid]
	if ok {
		e.killed = true
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := kill(e.cmd.Process); err != nil {
		m.logger.Debug("could not kill process", "uid", uid, "error", err)
	}
	return true
}

// KillAll stops every tracked process and returns how many were signalled.
func (m *Manager) KillAll() int {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.procs))
	for _, e := range m.procs {
		e.killed = true
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		if err := kill(e.cmd.Process); err != nil {
			m.logger.Debug("could not kill process", "pid", e.cmd.Process.Pid, "error", err)
		}
	}
	return len(entries)
}

// Running returns the number of tracked processes.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}

// IsRunning reports whether a process is tracked under uid.
func (m *Manager) IsRunning(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[uid]
	return ok
}

func (m *Manager) track(uid string, cmd *exec.Cmd) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := uid
	if key == "" || m.procs[key] != nil {
		m.seq++
		key = "#" + strconv.FormatUint(m.seq, 10)
	}
	m.procs[key] = &entry{cmd: cmd}
	return key
}

func (m *Manager) untrack(key string) {
	m.mu.Lock()
	delete(m.procs, key)
	m.mu.Unlock()
}

func (m *Manager) wasKilled(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.procs[key]
	return ok && e.killed
}

// LookPath returns the path of the first of names found in PATH.
func LookPath(names ...string) (string, error) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("none of %s found in PATH", strings.Join(names, ", "))
}
