package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/me/qhaul/internal/config"
	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/joblog"
	"github.com/me/qhaul/internal/logging"
	"github.com/me/qhaul/internal/pipeline"
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
  - op: CX
    target: 1
    control: 0
  - op: MEASURE
    target: 0
  - op: MEASURE
    target: 1
`

// envelope mirrors the response format for decoding in tests.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.Discard()

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	jl, err := joblog.New(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}

	reg := device.NewRegistry(logger)
	reg.Register(device.NewSim(logger))

	promReg := prometheus.NewRegistry()
	sched := scheduler.New(reg, scheduler.Config{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		Backoff:      scheduler.Constant{Interval: time.Millisecond},
	}, logger,
		scheduler.WithRecorder(st),
		scheduler.WithJobLog(jl),
		scheduler.WithMetrics(scheduler.NewMetrics(promReg)),
	)
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sched.Stop() })

	p := pipeline.New(reg, sched, logger, pipeline.WithStore(st), pipeline.WithJobLog(jl))
	srv := New(config.DefaultServerConfig(), p, st, reg, logger, WithMetricsGatherer(promReg))

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func decodeEnvelope(t *testing.T, res *http.Response) envelope {
	t.Helper()
	defer res.Body.Close()
	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	env := decodeEnvelope(t, res)
	if env.Status != "ok" {
		t.Errorf("envelope status = %q", env.Status)
	}
	if !strings.Contains(string(env.Data), `"sim"`) {
		t.Errorf("health data missing sim device: %s", env.Data)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestCompileEndpoint(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/circuits/compile", "application/yaml",
		strings.NewReader(bellYAML))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("status = %d, body %s", res.StatusCode, body)
	}
	env := decodeEnvelope(t, res)

	var data struct {
		QASM  string             `json:"qasm"`
		Stats model.CircuitStats `json:"stats"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(data.QASM, "OPENQASM 2.0;") {
		t.Errorf("qasm missing header:\n%s", data.QASM)
	}
	if data.Stats.Qubits != 2 || data.Stats.GateCount != 4 {
		t.Errorf("stats = %+v", data.Stats)
	}
}

func TestCompileEndpointRejectsInvalid(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/circuits/compile", "application/yaml",
		strings.NewReader("qubits: 1\ngates:\n  - op: WARP\n    target: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	env := decodeEnvelope(t, res)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v, want validation error", env.Error)
	}
}

func submitBody(t *testing.T, extra map[string]any) *bytes.Reader {
	t.Helper()
	// The circuit document is JSON inside the submit request.
	payload := map[string]any{
		"circuit": map[string]any{
			"name":   "bell",
			"qubits": 2,
			"gates": []map[string]any{
				{"op": "H", "target": 0},
				{"op": "CX", "target": 1, "control": 0},
			},
		},
	}
	for k, v := range extra {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func TestSubmitJobWaitsForOutcome(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/jobs?wait=true", "application/json",
		submitBody(t, map[string]any{"priority": "high", "shots": 16}))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("status = %d, body %s", res.StatusCode, body)
	}
	env := decodeEnvelope(t, res)

	var data struct {
		Job    *model.Job     `json:"job"`
		Result *device.Result `json:"result"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Job == nil || data.Job.State != model.JobStateCompleted {
		t.Fatalf("job = %+v, want COMPLETED", data.Job)
	}
	if data.Result == nil || data.Result.Shots != 16 {
		t.Errorf("result = %+v, want 16 shots", data.Result)
	}

	// The persisted record is queryable afterwards.
	res, err = http.Get(ts.URL + "/api/jobs/" + data.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get job status = %d", res.StatusCode)
	}
	env = decodeEnvelope(t, res)
	var job model.Job
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}
	if job.State != model.JobStateCompleted {
		t.Errorf("stored job state = %s", job.State)
	}

	// And the job log endpoint serves its record.
	res, err = http.Get(ts.URL + "/api/jobs/" + data.Job.ID + "/logs")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get job logs status = %d", res.StatusCode)
	}
	res.Body.Close()
}

func TestSubmitJobQueued(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/jobs", "application/json", submitBody(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("status = %d, body %s", res.StatusCode, body)
	}
	env := decodeEnvelope(t, res)
	var data struct {
		Job *model.Job `json:"job"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Job == nil || data.Job.ID == "" {
		t.Fatalf("job = %+v", data.Job)
	}
}

func TestSubmitJobValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"missing circuit", `{"device": "sim"}`},
		{"bad priority", `{"circuit": {"qubits": 1, "gates": []}, "priority": "urgent"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if res.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", res.StatusCode)
			}
			res.Body.Close()
		})
	}
}

func TestSubmitJobUnknownDevice(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/jobs", "application/json",
		submitBody(t, map[string]any{"device": "annealer-9"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
	res.Body.Close()
}

func TestGetJobNotFound(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/jobs/no-such-job")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
	env := decodeEnvelope(t, res)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/jobs?wait=true", "application/json", submitBody(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()

	res, err = http.Get(ts.URL + "/api/jobs?state=COMPLETED")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	env := decodeEnvelope(t, res)
	var jobs []*model.Job
	if err := json.Unmarshal(env.Data, &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("listing = %d jobs, want 1", len(jobs))
	}
	if env.Pagination == nil || env.Pagination.Total != 1 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestListDevices(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/devices")
	if err != nil {
		t.Fatal(err)
	}
	env := decodeEnvelope(t, res)
	var devices []deviceInfo
	if err := json.Unmarshal(env.Data, &devices); err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Name != "sim" {
		t.Errorf("devices = %+v", devices)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/jobs?wait=true", "application/json", submitBody(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()

	res, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "qhaul_jobs_submitted_total 1") {
		t.Errorf("metrics output missing submitted counter:\n%s", body)
	}
}
