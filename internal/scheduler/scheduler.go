// Package scheduler executes submitted jobs through a prioritized,
// retrying worker pool. Among ready jobs, a strictly lower priority
// value runs first; equal priorities run in enqueue order. A retried
// job re-enters the queue with its original priority but a fresh
// sequence number, so it competes on requeue time against newly
// submitted equal-priority jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/pkg/model"
)

// Outcome is the terminal result of one job: a device result on
// success, or the last error after the retry budget is exhausted.
type Outcome struct {
	JobID  string
	Result *device.Result
	Err    error
}

// JobRecorder persists job state transitions. Recorder failures are
// logged by the scheduler and never become job failures.
type JobRecorder interface {
	UpdateJob(ctx context.Context, job *model.Job) error
}

// JobLog receives per-job terminal log entries, fire-and-forget.
type JobLog interface {
	Complete(jobID, summary string, elapsedMS int64) error
	Error(jobID, msg string) error
}

// Config holds scheduler configuration.
type Config struct {
	// Workers is the worker pool size. With a single worker, one
	// job's backoff delay serializes against all other jobs; size
	// the pool above 1 when retry latency matters.
	Workers int

	// PollInterval bounds how long an idle worker blocks on the
	// queue before re-checking for shutdown.
	PollInterval time.Duration

	// Backoff paces retry attempts. Defaults to exponential with a
	// one-second initial delay (1s, 2s, 4s, ...).
	Backoff Backoff
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		PollInterval: 100 * time.Millisecond,
		Backoff:      Exponential{Initial: time.Second},
	}
}

// Scheduler owns the priority queue and the result-slot map. All
// collaborators are passed in at construction; there is no package
// state.
type Scheduler struct {
	queue    *jobQueue
	registry *device.Registry
	cfg      Config
	logger   *slog.Logger

	recorder JobRecorder
	jobLog   JobLog
	limits   *LimitManager
	metrics  *Metrics

	resMu   sync.Mutex
	results map[string]chan Outcome

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithRecorder sets the persistence collaborator.
func WithRecorder(r JobRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithJobLog sets the per-job log collaborator.
func WithJobLog(l JobLog) Option {
	return func(s *Scheduler) { s.jobLog = l }
}

// WithLimits sets per-device throughput limits.
func WithLimits(m *LimitManager) Option {
	return func(s *Scheduler) { s.limits = m }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler. Call Start to launch the worker pool.
func New(reg *device.Registry, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultConfig().Backoff
	}
	s := &Scheduler{
		queue:    newJobQueue(),
		registry: reg,
		cfg:      cfg,
		logger:   logger.With("component", "scheduler"),
		results:  make(map[string]chan Outcome),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool and returns immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	s.running = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("scheduler started", "workers", s.cfg.Workers)
	return nil
}

// Stop shuts the pool down and waits for in-flight attempts to
// finish. Queued jobs are left unprocessed.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// Submit enqueues a job and returns its identifier. It never blocks
// and performs no payload validation.
func (s *Scheduler) Submit(job *model.Job) string {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	job.State = model.JobStateQueued
	job.Attempts = 0

	s.metrics.jobSubmitted()
	s.queue.Push(job)
	s.logger.Debug("job submitted", "job_id", job.ID, "device", job.Device, "priority", job.Priority)
	return job.ID
}

// QueueDepth returns the current number of queued jobs.
func (s *Scheduler) QueueDepth() int {
	return s.queue.Len()
}

// Await blocks until a terminal outcome exists for jobID, then
// retrieves and removes it. Each outcome is consumed exactly once; a
// second Await for an already-consumed id finds no pending result and
// blocks until ctx expires. Await for an id that is never submitted
// likewise blocks on ctx.
func (s *Scheduler) Await(ctx context.Context, jobID string) (Outcome, error) {
	ch := s.slot(jobID)
	select {
	case out := <-ch:
		s.resMu.Lock()
		delete(s.results, jobID)
		s.resMu.Unlock()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// slot returns the one-shot result channel for jobID, creating it on
// first use by either the submitter's waiter or the worker.
func (s *Scheduler) slot(jobID string) chan Outcome {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	ch, ok := s.results[jobID]
	if !ok {
		ch = make(chan Outcome, 1)
		s.results[jobID] = ch
	}
	return ch
}

// deliver publishes a terminal outcome. The channel is buffered, so
// delivery never blocks the worker.
func (s *Scheduler) deliver(out Outcome) {
	s.slot(out.JobID) <- out
}

// noRetryError marks failures that retrying cannot fix, e.g. an
// unknown device name.
type noRetryError struct{ err error }

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// worker drains the queue until Stop. Execution errors are contained
// per job; a worker never exits on a failed attempt.
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker", id)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		it, ok := s.queue.Pop(s.cfg.PollInterval)
		if !ok {
			continue
		}
		job := it.job

		if s.limits != nil && !s.limits.Acquire(job.Device) {
			// Device at capacity: put the entry back with its original
			// sequence number and let another queue entry (or time) win.
			s.queue.Requeue(it)
			select {
			case <-time.After(s.cfg.PollInterval):
			case <-s.stopCh:
				return
			}
			continue
		}

		s.metrics.jobDequeued()
		res, err := s.attempt(job, logger)
		if s.limits != nil {
			s.limits.Release(job.Device)
		}

		if err == nil {
			s.complete(job, res, logger)
			continue
		}

		var noRetry *noRetryError
		if errors.As(err, &noRetry) {
			s.fail(job, err, logger)
			continue
		}

		job.Attempts++
		if job.Attempts > job.MaxRetries {
			s.fail(job, err, logger)
			continue
		}

		s.metrics.jobRetried()
		s.transition(job, model.JobStateRetrying)
		s.record(job)
		delay := s.cfg.Backoff.Delay(job.Attempts)
		logger.Info("job attempt failed, retrying",
			"job_id", job.ID, "attempt", job.Attempts, "max_retries", job.MaxRetries,
			"backoff", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-s.stopCh:
			s.requeueRetry(job)
			return
		}
		s.requeueRetry(job)
	}
}

// attempt runs one execution: compile, run, then best-effort monitor.
// The job is exclusively owned by the calling worker for the whole
// attempt.
func (s *Scheduler) attempt(job *model.Job, logger *slog.Logger) (*device.Result, error) {
	ctx := context.Background()

	s.transition(job, model.JobStateRunning)
	now := time.Now().UTC()
	job.StartedAt = &now
	s.record(job)

	dev, err := s.registry.Get(job.Device)
	if err != nil {
		return nil, &noRetryError{err: err}
	}

	prog, err := dev.Compile(ctx, job.Program)
	if err != nil {
		return nil, fmt.Errorf("compile on %s: %w", job.Device, err)
	}
	res, err := dev.Run(ctx, prog)
	if err != nil {
		return nil, fmt.Errorf("run on %s: %w", job.Device, err)
	}

	// Monitoring is side-effect-only; its failures never fail the job.
	if err := dev.Monitor(ctx, res); err != nil {
		logger.Warn("device monitor failed", "job_id", job.ID, "device", job.Device, "error", err)
	}
	return res, nil
}

// complete finalizes a successful job: persist and log first, then
// release the waiter.
func (s *Scheduler) complete(job *model.Job, res *device.Result, logger *slog.Logger) {
	s.transition(job, model.JobStateCompleted)
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.ElapsedMS = now.Sub(job.SubmittedAt).Milliseconds()
	job.ResultSummary = res.Summary()

	s.record(job)
	if s.jobLog != nil {
		if err := s.jobLog.Complete(job.ID, job.ResultSummary, job.ElapsedMS); err != nil {
			logger.Error("job log write failed", "job_id", job.ID, "error", err)
		}
	}
	s.metrics.jobCompleted(now.Sub(job.SubmittedAt).Seconds())
	logger.Info("job completed", "job_id", job.ID, "device", job.Device, "elapsed_ms", job.ElapsedMS)

	s.deliver(Outcome{JobID: job.ID, Result: res})
}

// fail finalizes a job whose retry budget is exhausted (or whose
// failure is not retryable), retaining the last error.
func (s *Scheduler) fail(job *model.Job, execErr error, logger *slog.Logger) {
	s.transition(job, model.JobStateFailed)
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.ElapsedMS = now.Sub(job.SubmittedAt).Milliseconds()
	job.Error = execErr.Error()

	s.record(job)
	if s.jobLog != nil {
		if err := s.jobLog.Error(job.ID, job.Error); err != nil {
			logger.Error("job log write failed", "job_id", job.ID, "error", err)
		}
	}
	s.metrics.jobFailed(now.Sub(job.SubmittedAt).Seconds())
	logger.Error("job failed", "job_id", job.ID, "device", job.Device,
		"attempts", job.Attempts, "error", execErr)

	s.deliver(Outcome{JobID: job.ID, Err: execErr})
}

// requeueRetry puts a retrying job back in the queue with a fresh
// sequence number.
func (s *Scheduler) requeueRetry(job *model.Job) {
	s.transition(job, model.JobStateQueued)
	s.record(job)
	s.metrics.jobRequeued()
	s.queue.Push(job)
}

// transition applies a state change, logging any violation of the
// transition table as a defect.
func (s *Scheduler) transition(job *model.Job, next model.JobState) {
	if !job.State.CanTransitionTo(next) {
		s.logger.Error("invalid state transition",
			"job_id", job.ID, "from", job.State, "to", next)
	}
	job.State = next
}

// record persists the job's current state, fire-and-forget.
func (s *Scheduler) record(job *model.Job) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.UpdateJob(context.Background(), job); err != nil {
		s.logger.Error("persist job update failed", "job_id", job.ID, "error", err)
	}
}
