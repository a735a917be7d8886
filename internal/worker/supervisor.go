package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
	"github.com/adilrumy05/SmartPlant-Backend/internal/observability/metrics"
)

// DefaultTimeout is the default bound on one inference round-trip.
const DefaultTimeout = 120 * time.Second

// Launcher provides a live worker process on demand. Runner is the
// production implementation; tests substitute in-memory processes.
type Launcher interface {
	EnsureRunning() (*Process, error)
	Stop()
}

// Supervisor serializes inference calls into the worker. The wire protocol
// carries no request-correlation identifier, so correctness depends on at
// most one request being in flight: the Nth response line read from the
// stream answers the Nth request written. Concurrent callers contend on the
// supervisor lock; each call finishes its full round trip before the next
// request is written, so a caller never reads another caller's response.
// The lock does not promise strict arrival-order handoff.
type Supervisor struct {
	mu       sync.Mutex
	launcher Launcher
	timeout  time.Duration
	log      *slog.Logger
	metrics  *metrics.WorkerMetrics
}

// NewSupervisor creates a supervisor over the given launcher. A zero or
// negative timeout falls back to DefaultTimeout. The metrics collector may
// be nil.
func NewSupervisor(launcher Launcher, timeout time.Duration, log *slog.Logger, workerMetrics *metrics.WorkerMetrics) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		launcher: launcher,
		timeout:  timeout,
		log:      log,
		metrics:  workerMetrics,
	}
}

// Infer runs one classification round-trip and returns the ranked
// predictions. On timeout the pending read is abandoned and the worker is
// left running; the response it still owes is drained before the next
// request is written, so a late line is never matched to an unrelated
// request.
func (s *Supervisor) Infer(ctx context.Context, imagePath string, topK int) ([]Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	proc, err := s.launcher.EnsureRunning()
	if err != nil {
		s.countResult("launch_error")
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	proc, err = s.drainStale(ctx, proc, timer)
	if err != nil {
		return nil, err
	}

	req := Request{Image: imagePath, TopK: topK}
	if err := proc.codec.WriteRequest(req); err != nil {
		// A write failure means the pipe is gone; the process is dead or
		// dying. The next call starts a fresh one.
		s.countResult("crashed")
		return nil, errors.Newf("worker: sending inference request: %w", err).
			Component("worker").
			Category(errors.CategoryWorkerCrashed).
			Context("image", imagePath).
			Build()
	}

	select {
	case res := <-proc.responses:
		return s.finish(res, proc, imagePath, start)

	case <-proc.Done():
		// The response may have raced with the exit notification.
		select {
		case res := <-proc.responses:
			return s.finish(res, proc, imagePath, start)
		default:
		}
		s.countResult("crashed")
		return nil, errors.Newf("worker: process exited before responding").
			Component("worker").
			Category(errors.CategoryWorkerCrashed).
			Context("image", imagePath).
			Context("exit_error", errString(proc.ExitErr())).
			Build()

	case <-timer.C:
		// Abandon the read but leave the worker running. It owes one
		// response line that must be discarded before the next request.
		proc.stale++
		if s.metrics != nil {
			s.metrics.Timeouts.Inc()
		}
		s.countResult("timeout")
		s.log.Warn("inference timed out", "image", imagePath, "timeout", s.timeout)
		return nil, errors.Newf("worker: no response within %s", s.timeout).
			Component("worker").
			Category(errors.CategoryTimeout).
			Context("image", imagePath).
			Timing("infer", time.Since(start)).
			Build()

	case <-ctx.Done():
		proc.stale++
		s.countResult("canceled")
		return nil, errors.New(ctx.Err()).
			Component("worker").
			Category(errors.CategoryTimeout).
			Context("image", imagePath).
			Context("reason", "context").
			Build()
	}
}

// drainStale discards response lines owed to previously abandoned requests.
// If the worker has exited the debt dies with it; if the drain itself stalls
// past the timer the process is treated as wedged and replaced.
func (s *Supervisor) drainStale(ctx context.Context, proc *Process, timer *time.Timer) (*Process, error) {
	for proc.stale > 0 {
		select {
		case res := <-proc.responses:
			if res.err != nil {
				// Stream broke mid-drain; replace the process.
				s.launcher.Stop()
				fresh, err := s.launcher.EnsureRunning()
				if err != nil {
					s.countResult("launch_error")
					return nil, err
				}
				return fresh, nil
			}
			proc.stale--
			if s.metrics != nil {
				s.metrics.StaleDrained.Inc()
			}
			s.log.Debug("discarded stale worker response", "remaining", proc.stale)

		case <-proc.Done():
			fresh, err := s.launcher.EnsureRunning()
			if err != nil {
				s.countResult("launch_error")
				return nil, err
			}
			return fresh, nil

		case <-timer.C:
			// Wedged worker: it owes lines it will never emit. Kill it so
			// the next call starts clean.
			s.launcher.Stop()
			s.countResult("timeout")
			return nil, errors.Newf("worker: stale response drain exceeded %s, worker replaced", s.timeout).
				Component("worker").
				Category(errors.CategoryTimeout).
				Context("stale", proc.stale).
				Build()

		case <-ctx.Done():
			return nil, errors.New(ctx.Err()).
				Component("worker").
				Category(errors.CategoryTimeout).
				Context("reason", "context").
				Build()
		}
	}
	return proc, nil
}

func (s *Supervisor) finish(res readResult, proc *Process, imagePath string, start time.Time) ([]Prediction, error) {
	if res.err != nil {
		if !proc.Alive() {
			s.countResult("crashed")
			return nil, errors.Newf("worker: stream closed before response: %w", res.err).
				Component("worker").
				Category(errors.CategoryWorkerCrashed).
				Context("image", imagePath).
				Build()
		}
		s.countResult("protocol_error")
		return nil, errors.Newf("worker: reading response: %w", res.err).
			Component("worker").
			Category(errors.CategoryProtocol).
			Context("image", imagePath).
			Build()
	}

	if res.resp.IsError() {
		s.countResult("application_error")
		return nil, errors.Newf("worker: %s", res.resp.Error).
			Component("worker").
			Category(errors.CategoryInference).
			Context("image", imagePath).
			Build()
	}

	if s.metrics != nil {
		s.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}
	s.countResult("ok")
	return res.resp.TopK, nil
}

func (s *Supervisor) countResult(result string) {
	if s.metrics != nil {
		s.metrics.InferenceTotal.WithLabelValues(result).Inc()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
