package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/joblog"
	"github.com/me/qhaul/internal/logging"
	"github.com/me/qhaul/internal/scheduler"
	"github.com/me/qhaul/internal/store"
	"github.com/me/qhaul/pkg/model"
)

const bellYAML = `
name: bell
qubits: 2
gates:
  - op: H
    target: 0
  - op: CNOT
    target: 1
    control: 0
  - op: MEASURE
    target: 0
  - op: MEASURE
    target: 1
`

// newTestPipeline builds a pipeline over an in-process sim device.
// The optional store and job log are wired into both the pipeline and
// the scheduler, matching the production setup.
func newTestPipeline(t *testing.T, st store.Store, jl *joblog.Writer) (*Pipeline, *scheduler.Scheduler) {
	t.Helper()
	logger := logging.Discard()
	reg := device.NewRegistry(logger)
	reg.Register(device.NewSim(logger))

	var schedOpts []scheduler.Option
	var pipeOpts []Option
	if st != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(st))
		pipeOpts = append(pipeOpts, WithStore(st))
	}
	if jl != nil {
		schedOpts = append(schedOpts, scheduler.WithJobLog(jl))
		pipeOpts = append(pipeOpts, WithJobLog(jl))
	}

	sched := scheduler.New(reg, scheduler.Config{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		Backoff:      scheduler.Constant{Interval: time.Millisecond},
	}, logger, schedOpts...)
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sched.Stop() })
	return New(reg, sched, logger, pipeOpts...), sched
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestPipelineCompile(t *testing.T) {
	p, _ := newTestPipeline(t, nil, nil)

	res, err := p.Compile([]byte(bellYAML))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(res.QASM, "OPENQASM 2.0;") {
		t.Errorf("emitted stream missing header:\n%s", res.QASM)
	}
	if !strings.Contains(res.QASM, "cx q[0],q[1];") {
		t.Errorf("CNOT alias not canonicalized in output:\n%s", res.QASM)
	}
	if res.Stats.GateCount != 4 || res.Stats.Qubits != 2 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestPipelineCompileRejectsInvalid(t *testing.T) {
	p, _ := newTestPipeline(t, nil, nil)

	if _, err := p.Compile([]byte("qubits: 1\ngates:\n  - op: NOPE\n    target: 0\n")); err == nil {
		t.Fatal("Compile accepted an unknown op")
	}
	var apiErr *model.APIError
	_, err := p.Compile([]byte("qubits: 1\ngates:\n  - op: NOPE\n    target: 0\n"))
	if !errors.As(err, &apiErr) {
		t.Errorf("error type = %T, want *model.APIError", err)
	}
}

func TestPipelineDispatchAndAwait(t *testing.T) {
	st := newTestStore(t)
	jl, err := joblog.New(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	p, _ := newTestPipeline(t, st, jl)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, res, err := p.Run(ctx, []byte(bellYAML), DispatchOptions{MaxRetries: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res == nil || res.Shots != device.DefaultShots {
		t.Errorf("result = %+v, want %d shots", res, device.DefaultShots)
	}
	if job.Device != DefaultDevice {
		t.Errorf("job device = %q, want default %q", job.Device, DefaultDevice)
	}

	// The durable record reflects the terminal state.
	stored, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored == nil || stored.State != model.JobStateCompleted {
		t.Errorf("stored job = %+v, want COMPLETED", stored)
	}

	rec, err := p.Logs(job.ID)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if rec.Status != "COMPLETED" {
		t.Errorf("log record status = %q, want COMPLETED", rec.Status)
	}
}

func TestPipelineDispatchUnknownDevice(t *testing.T) {
	p, sched := newTestPipeline(t, nil, nil)

	_, err := p.Dispatch(context.Background(), []byte(bellYAML), DispatchOptions{Device: "annealer-9"})
	if err == nil {
		t.Fatal("Dispatch accepted an unknown device")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrValidation {
		t.Errorf("error = %v, want validation APIError", err)
	}
	if sched.QueueDepth() != 0 {
		t.Error("job was queued despite unknown device")
	}
}

func TestPipelineShotsPrecedence(t *testing.T) {
	p, _ := newTestPipeline(t, nil, nil)
	ctx := context.Background()

	// Option overrides circuit, circuit overrides default.
	withShots := strings.Replace(bellYAML, "qubits: 2", "qubits: 2\nshots: 64", 1)

	job, err := p.Dispatch(ctx, []byte(withShots), DispatchOptions{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Shots != 64 {
		t.Errorf("job shots = %d, want circuit's 64", job.Shots)
	}

	job, err = p.Dispatch(ctx, []byte(withShots), DispatchOptions{Shots: 16})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Shots != 16 {
		t.Errorf("job shots = %d, want option's 16", job.Shots)
	}
}

func TestPipelineDispatchPersistsBeforeQueueing(t *testing.T) {
	st := newTestStore(t)
	p, _ := newTestPipeline(t, st, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := p.Dispatch(ctx, []byte(bellYAML), DispatchOptions{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, err := p.Await(ctx, job.ID); err != nil {
		t.Fatalf("Await: %v", err)
	}
	stored, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored == nil {
		t.Fatal("dispatched job missing from store")
	}
}
