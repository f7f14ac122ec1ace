// Package device defines the execution-backend capability consumed by
// the scheduler, plus the registry devices are looked up in. Vendor
// SDK backends plug in behind the Device interface; the built-in sim
// device covers local development and tests.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Program is a device-specific compiled form of an instruction stream.
type Program any

// Result is the outcome of one run on a device.
type Result struct {
	Device  string         `json:"device"`
	Shots   int            `json:"shots"`
	Counts  map[string]int `json:"counts"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Summary returns a short human-readable digest for logs and the
// jobs table.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d shots over %d outcomes on %s", r.Shots, len(r.Counts), r.Device)
}

// Device is one execution backend. Compile and Run errors are
// retryable execution failures; Monitor is best-effort and its errors
// must not fail the job.
type Device interface {
	// Name returns the registry key for this device.
	Name() string

	// Compile translates an instruction stream into the device's
	// executable form.
	Compile(ctx context.Context, qasm string) (Program, error)

	// Run executes a compiled program. May take nontrivial wall-clock
	// time and may fail transiently.
	Run(ctx context.Context, prog Program) (*Result, error)

	// Monitor reports on a finished run (side effects only).
	Monitor(ctx context.Context, res *Result) error
}

// Registry maps device names to Device implementations. It is
// populated explicitly at startup, before concurrent access, so no
// mutex is needed.
type Registry struct {
	devices map[string]Device
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		devices: make(map[string]Device),
		logger:  logger.With("component", "device-registry"),
	}
}

// Register adds a Device, keyed by its Name().
func (r *Registry) Register(d Device) {
	r.devices[d.Name()] = d
	r.logger.Info("device registered", "device", d.Name())
}

// Get returns the Device for the given name or an error if none is
// registered. An unknown name is a caller error, not a retryable
// condition.
func (r *Registry) Get(name string) (Device, error) {
	d, ok := r.devices[name]
	if !ok {
		return nil, fmt.Errorf("no device registered for name %q", name)
	}
	return d, nil
}

// Names returns the registered device names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.devices))
	for name := range r.devices {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
