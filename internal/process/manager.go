package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	defaultRestartDelay    = time.Second
	defaultMaxRestartDelay = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second
	readyPollInterval      = 100 * time.Millisecond
)

// ErrNotReady is returned by Start when the ready check does not pass
// within StartupTimeout.
var ErrNotReady = errors.New("process: not ready")

// Config holds configuration for a supervised daemon.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable. It must stay in the foreground
	// (pigpiod needs -g).
	Binary string
	Args   []string

	// ReadyCheck is polled after launch until it returns nil.
	// If nil, the process is ready as soon as it starts.
	ReadyCheck func(ctx context.Context) error

	// StartupTimeout bounds the ready check.
	StartupTimeout time.Duration

	RestartOnFailure bool

	// RestartDelay is the first backoff delay; it doubles per attempt up
	// to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one daemon: start, wait until ready, restart on
// unexpected exit, and stop with SIGTERM then SIGKILL.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	stopRequested bool
	done          chan struct{}
}

// NewManager creates a process manager, filling zero durations with defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start launches the daemon and blocks until its ready check passes.
// Supervision continues in the background until Stop or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.launch(ctx); err != nil {
		m.fail(err)
		close(m.done)
		return err
	}

	go m.monitor(ctx)

	if err := m.waitReady(ctx); err != nil {
		m.Stop() //nolint:errcheck // Already failing; the ready error is more useful
		m.fail(err)
		return err
	}
	return nil
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.status = StatusFailed
	m.lastError = err
	m.mu.Unlock()
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("starting process", "name", m.config.Name, "binary", m.config.Binary, "args", m.config.Args)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from validated config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("process output", "name", m.config.Name, "stream", stream, "line", scanner.Text())
	}
}

// waitReady polls ReadyCheck until it passes, the process exits, or
// StartupTimeout elapses.
func (m *Manager) waitReady(ctx context.Context) error {
	if m.config.ReadyCheck == nil {
		return nil
	}
	if m.config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.StartupTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = m.config.ReadyCheck(ctx); lastErr == nil {
			m.logger.Info("process ready", "name", m.config.Name)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrNotReady, m.config.Name, lastErr)
		case <-m.done:
			return fmt.Errorf("%w: %s exited during startup", ErrNotReady, m.config.Name)
		case <-ticker.C:
		}
	}
}

// backoffDelay returns the wait before restart attempt n (1-based).
func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

// monitor waits on the running command and restarts it when it exits
// without Stop having been called.
func (m *Manager) monitor(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		m.mu.RUnlock()

		err := cmd.Wait()

		m.mu.Lock()
		stopping := m.stopRequested
		if stopping {
			m.status = StatusStopped
		} else {
			m.status = StatusFailed
			m.lastError = err
		}
		m.mu.Unlock()

		if stopping {
			m.logger.Info("process stopped", "name", m.config.Name)
			return
		}
		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)

		if !m.config.RestartOnFailure || ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}

		delay := m.backoffDelay(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.RLock()
		stopping = m.stopRequested
		m.mu.RUnlock()
		if stopping {
			return
		}

		if err := m.launch(ctx); err != nil {
			m.logger.Error("failed to restart process", "name", m.config.Name, "error", err)
			m.fail(err)
			return
		}
	}
}

// Stop sends SIGTERM to the process group, then SIGKILL after GracefulTimeout.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning || m.status == StatusStarting
	m.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the last unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the number of restart attempts so far.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID returns the process ID, or 0 if never started.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}
