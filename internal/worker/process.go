package worker

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
	"github.com/adilrumy05/SmartPlant-Backend/internal/observability/metrics"
)

// readResult is one decoded response line, or the stream error that ended
// the read loop.
type readResult struct {
	resp Response
	err  error
}

// Process is a single live worker subprocess with captured stdio. Responses
// are decoded by a dedicated read loop and delivered over a channel so that
// callers can wait with a deadline.
type Process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	codec     *Codec
	responses chan readResult
	done      chan struct{}

	exitOnce sync.Once
	exitErr  error

	// stale counts responses still owed to requests that were abandoned on
	// timeout. Owned by the Supervisor under its serialization lock.
	stale int
}

// newProcess wires a Process around the given stdio streams and starts the
// response read loop. The exec.Cmd wiring is done by the Runner; tests build
// processes directly from in-memory pipes.
func newProcess(stdin io.WriteCloser, stdout io.Reader, log *slog.Logger, noiseSkipped func()) *Process {
	codec := NewCodec(stdin, stdout, log)
	codec.noiseSkipped = noiseSkipped
	p := &Process{
		stdin:     stdin,
		codec:     codec,
		responses: make(chan readResult, 1),
		done:      make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *Process) readLoop() {
	for {
		resp, err := p.codec.ReadResponse()
		select {
		case p.responses <- readResult{resp: resp, err: err}:
		case <-p.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Alive reports whether the process has not yet exited.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the exit error once Done() is closed, nil for a clean exit.
func (p *Process) ExitErr() error {
	return p.exitErr
}

func (p *Process) markExited(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		close(p.done)
	})
}

// Kill terminates the subprocess and releases its stdio.
func (p *Process) Kill() {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// Runner owns the lifecycle of the worker subprocess: it launches the
// process on demand and replaces it after an exit. Exits are never silently
// swallowed; each one is logged and counted.
type Runner struct {
	mu       sync.Mutex
	settings conf.WorkerSettings
	current  *Process
	log      *slog.Logger
	metrics  *metrics.WorkerMetrics
}

// NewRunner creates a runner for the configured worker command. The metrics
// collector may be nil.
func NewRunner(settings conf.WorkerSettings, log *slog.Logger, workerMetrics *metrics.WorkerMetrics) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		settings: settings,
		log:      log,
		metrics:  workerMetrics,
	}
}

// EnsureRunning returns a live process handle, starting a new subprocess if
// none exists or the previous one has exited.
func (r *Runner) EnsureRunning() (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.Alive() {
		return r.current, nil
	}

	proc, err := r.spawn()
	if err != nil {
		return nil, err
	}
	r.current = proc
	return proc, nil
}

// Stop kills the current process, if any. The next EnsureRunning call
// launches a fresh one.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.Kill()
		r.current = nil
	}
}

func (r *Runner) spawn() (*Process, error) {
	args := append([]string{r.settings.Script}, r.settings.Args...)
	cmd := exec.Command(r.settings.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Newf("worker: creating stdin pipe: %w", err).
			Component("worker").
			Category(errors.CategoryWorkerProcess).
			Build()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Newf("worker: creating stdout pipe: %w", err).
			Component("worker").
			Category(errors.CategoryWorkerProcess).
			Build()
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Newf("worker: creating stderr pipe: %w", err).
			Component("worker").
			Category(errors.CategoryWorkerProcess).
			Build()
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Newf("worker: starting %s: %w", r.settings.Command, err).
			Component("worker").
			Category(errors.CategoryWorkerProcess).
			Context("command", r.settings.Command).
			Context("script", r.settings.Script).
			Build()
	}

	r.log.Info("worker process started",
		"command", r.settings.Command,
		"script", r.settings.Script,
		"pid", cmd.Process.Pid)
	if r.metrics != nil {
		r.metrics.ProcessStarts.Inc()
	}

	var noiseSkipped func()
	if r.metrics != nil {
		noiseSkipped = r.metrics.NoiseLinesSkipped.Inc
	}
	proc := newProcess(stdin, stdout, r.log, noiseSkipped)
	proc.cmd = cmd

	// Surface stderr lines to the operational log only; they are never
	// parsed as protocol data.
	go r.drainStderr(stderr, cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		outcome := "clean"
		if err != nil {
			outcome = "error"
			r.log.Error("worker process exited unexpectedly", "pid", cmd.Process.Pid, "error", err)
		} else {
			r.log.Warn("worker process exited", "pid", cmd.Process.Pid)
		}
		if r.metrics != nil {
			r.metrics.ProcessExits.WithLabelValues(outcome).Inc()
		}
		proc.markExited(err)
	}()

	return proc, nil
}

func (r *Runner) drainStderr(stderr io.Reader, pid int) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		r.log.Warn("worker stderr", "pid", pid, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		r.log.Debug("worker stderr stream closed", "pid", pid, "error", err)
	}
}

// String describes the configured worker command, for diagnostics.
func (r *Runner) String() string {
	return fmt.Sprintf("%s %s", r.settings.Command, r.settings.Script)
}
