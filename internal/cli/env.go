package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/joblog"
	"github.com/me/qhaul/internal/pipeline"
	"github.com/me/qhaul/internal/scheduler"
	"github.com/me/qhaul/internal/store"
)

// env is the in-process execution stack a CLI command runs against.
type env struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	sched    *scheduler.Scheduler
	jobLog   *joblog.Writer
}

// newEnv builds the local stack: sqlite store, job log dir, sim
// device, and a started scheduler.
func newEnv() (*env, error) {
	if dir := filepath.Dir(flagDBPath); dir != "." && flagDBPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(flagDBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	jl, err := joblog.New(flagLogDir, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	reg := device.NewRegistry(logger)
	reg.Register(device.NewSim(logger))

	sched := scheduler.New(reg, scheduler.Config{
		Workers:      2,
		PollInterval: 50 * time.Millisecond,
		Backoff:      scheduler.Exponential{Initial: time.Second, Max: 30 * time.Second},
	}, logger,
		scheduler.WithRecorder(st),
		scheduler.WithJobLog(jl),
	)
	if err := sched.Start(); err != nil {
		st.Close()
		return nil, err
	}

	p := pipeline.New(reg, sched, logger, pipeline.WithStore(st), pipeline.WithJobLog(jl))
	return &env{pipeline: p, store: st, sched: sched, jobLog: jl}, nil
}

// newStoreOnlyEnv opens just the database, for read-only commands.
func newStoreOnlyEnv() (*env, error) {
	st, err := store.NewSQLiteStore(flagDBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	jl, err := joblog.New(flagLogDir, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{store: st, jobLog: jl}, nil
}

func (e *env) close() {
	if e.sched != nil {
		_ = e.sched.Stop()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}
