// Package pipeline wires the compile and dispatch stages together:
// parse, optimize, emit, then hand the job to the scheduler. It is
// the single entry point shared by the HTTP API and the CLI.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/joblog"
	"github.com/me/qhaul/internal/optimizer"
	"github.com/me/qhaul/internal/parser"
	"github.com/me/qhaul/internal/qasm"
	"github.com/me/qhaul/internal/scheduler"
	"github.com/me/qhaul/internal/store"
	"github.com/me/qhaul/pkg/model"
)

// DefaultDevice is used when a dispatch names no device.
const DefaultDevice = "sim"

// CompileResult is the output of the compile stage: the optimized
// circuit, its emitted instruction stream, and summary metrics.
type CompileResult struct {
	Circuit *model.Circuit     `json:"circuit"`
	QASM    string             `json:"qasm"`
	Stats   model.CircuitStats `json:"stats"`
}

// DispatchOptions selects where and how a compiled circuit runs.
type DispatchOptions struct {
	Device     string
	Priority   int
	MaxRetries int
	Shots      int
	Source     string
}

// Pipeline is the compile-and-dispatch facade. Store and job log are
// optional; a nil store means jobs are not persisted.
type Pipeline struct {
	parser   *parser.Parser
	registry *device.Registry
	sched    *scheduler.Scheduler
	store    store.Store
	jobLog   *joblog.Writer
	logger   *slog.Logger
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithStore enables job persistence.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithJobLog enables per-job log records.
func WithJobLog(w *joblog.Writer) Option {
	return func(p *Pipeline) { p.jobLog = w }
}

// New creates a Pipeline around a device registry and a scheduler.
func New(reg *device.Registry, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		parser:   parser.New(logger),
		registry: reg,
		sched:    sched,
		logger:   logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compile parses and optimizes a circuit description and emits its
// instruction stream. Nothing is queued.
func (p *Pipeline) Compile(data []byte) (*CompileResult, error) {
	circ, err := p.parser.Parse(data)
	if err != nil {
		return nil, err
	}
	opt := optimizer.Optimize(circ)
	text, err := qasm.Emit(opt)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("circuit compiled", "name", opt.Name,
		"gates_in", circ.GateCount(), "gates_out", opt.GateCount(), "depth", opt.Depth)
	return &CompileResult{Circuit: opt, QASM: text, Stats: opt.Stats()}, nil
}

// CompileFile is Compile on a file path.
func (p *Pipeline) CompileFile(path string) (*CompileResult, error) {
	circ, err := p.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	opt := optimizer.Optimize(circ)
	text, err := qasm.Emit(opt)
	if err != nil {
		return nil, err
	}
	return &CompileResult{Circuit: opt, QASM: text, Stats: opt.Stats()}, nil
}

// Dispatch compiles a circuit and enqueues it for execution,
// returning the queued job. Structural errors and an unknown device
// name abort before anything is queued.
func (p *Pipeline) Dispatch(ctx context.Context, data []byte, opts DispatchOptions) (*model.Job, error) {
	res, err := p.Compile(data)
	if err != nil {
		return nil, err
	}
	return p.dispatch(ctx, res, opts)
}

// DispatchFile is Dispatch on a file path, using the path as the job
// source when none is given.
func (p *Pipeline) DispatchFile(ctx context.Context, path string, opts DispatchOptions) (*model.Job, error) {
	res, err := p.CompileFile(path)
	if err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = path
	}
	return p.dispatch(ctx, res, opts)
}

func (p *Pipeline) dispatch(ctx context.Context, res *CompileResult, opts DispatchOptions) (*model.Job, error) {
	deviceName := opts.Device
	if deviceName == "" {
		deviceName = DefaultDevice
	}
	// Fail fast: an unknown device is a submitter error, not a job
	// execution failure.
	if _, err := p.registry.Get(deviceName); err != nil {
		return nil, model.NewValidationError(fmt.Sprintf("unknown device %q (have %v)", deviceName, p.registry.Names()))
	}

	shots := opts.Shots
	if shots <= 0 {
		shots = res.Circuit.Shots
	}
	if shots <= 0 {
		shots = device.DefaultShots
	}
	source := opts.Source
	if source == "" {
		source = res.Circuit.Name
	}

	job := &model.Job{
		ID:          uuid.NewString(),
		Device:      deviceName,
		Priority:    opts.Priority,
		State:       model.JobStateQueued,
		Program:     res.QASM,
		MaxRetries:  opts.MaxRetries,
		GateCount:   res.Stats.GateCount,
		Depth:       res.Stats.Depth,
		Qubits:      res.Stats.Qubits,
		Shots:       shots,
		Source:      source,
		SubmittedAt: time.Now().UTC(),
	}

	// The durable record exists before the job can start running.
	if p.store != nil {
		if err := p.store.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("persist job: %w", err)
		}
	}
	if p.jobLog != nil {
		if err := p.jobLog.Submit(joblog.Record{
			JobID:       job.ID,
			Device:      job.Device,
			Source:      job.Source,
			Program:     job.Program,
			GateCount:   job.GateCount,
			Depth:       job.Depth,
			Qubits:      job.Qubits,
			Shots:       job.Shots,
			SubmittedAt: job.SubmittedAt,
		}); err != nil {
			p.logger.Error("job log write failed", "job_id", job.ID, "error", err)
		}
	}

	p.sched.Submit(job)
	p.logger.Info("job dispatched", "job_id", job.ID, "device", job.Device,
		"priority", job.Priority, "gates", job.GateCount, "depth", job.Depth)
	return job, nil
}

// Run dispatches a circuit and blocks until its terminal outcome.
func (p *Pipeline) Run(ctx context.Context, data []byte, opts DispatchOptions) (*model.Job, *device.Result, error) {
	job, err := p.Dispatch(ctx, data, opts)
	if err != nil {
		return nil, nil, err
	}
	out, err := p.sched.Await(ctx, job.ID)
	if err != nil {
		return job, nil, err
	}
	if out.Err != nil {
		return job, nil, out.Err
	}
	return job, out.Result, nil
}

// Await blocks until the job's terminal outcome.
func (p *Pipeline) Await(ctx context.Context, jobID string) (scheduler.Outcome, error) {
	return p.sched.Await(ctx, jobID)
}

// Logs returns the job's log record.
func (p *Pipeline) Logs(jobID string) (*joblog.Record, error) {
	if p.jobLog == nil {
		return nil, fmt.Errorf("job logging is not enabled")
	}
	return p.jobLog.Read(jobID)
}
