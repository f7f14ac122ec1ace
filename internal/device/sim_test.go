package device

import (
	"context"
	"testing"

	"github.com/me/qhaul/internal/logging"
)

func runQASM(t *testing.T, sim *Sim, qasm string) *Result {
	t.Helper()
	prog, err := sim.Compile(context.Background(), qasm)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	res, err := sim.Run(context.Background(), prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestSimBitFlips(t *testing.T) {
	sim := NewSim(logging.Discard(), WithShots(100))
	res := runQASM(t, sim, `OPENQASM 2.0;
include "qelib1.inc";
qreg q[3];
x q[0];
cx q[0],q[2];
measure q[0] -> c[0];
`)

	// q0=1, q2=1 via cx, q1=0: bitstring q2 q1 q0 = "101".
	if res.Counts["101"] != 100 {
		t.Errorf("counts = %v, want all 100 shots on 101", res.Counts)
	}
}

func TestSimHadamardSplitsShots(t *testing.T) {
	sim := NewSim(logging.Discard(), WithShots(1000))
	res := runQASM(t, sim, `OPENQASM 2.0;
qreg q[2];
h q[0];
`)

	if len(res.Counts) != 2 {
		t.Fatalf("outcomes = %v, want 2", res.Counts)
	}
	if res.Counts["00"] != 500 || res.Counts["01"] != 500 {
		t.Errorf("counts = %v, want 500/500 across 00 and 01", res.Counts)
	}
}

func TestSimEntangledControlMixesTarget(t *testing.T) {
	sim := NewSim(logging.Discard(), WithShots(400))
	res := runQASM(t, sim, `OPENQASM 2.0;
qreg q[2];
h q[0];
cx q[0],q[1];
`)

	// Both qubits mixed: four outcomes, uniform split.
	if len(res.Counts) != 4 {
		t.Errorf("outcomes = %v, want 4", res.Counts)
	}
	for k, v := range res.Counts {
		if v != 100 {
			t.Errorf("outcome %s = %d shots, want 100", k, v)
		}
	}
}

func TestSimPhaseGatesDoNotMix(t *testing.T) {
	sim := NewSim(logging.Discard(), WithShots(64))
	res := runQASM(t, sim, `OPENQASM 2.0;
qreg q[1];
rz(0.5) q[0];
t q[0];
z q[0];
`)
	if res.Counts["0"] != 64 {
		t.Errorf("counts = %v, want all shots on 0", res.Counts)
	}
}

func TestSimDeterministic(t *testing.T) {
	sim := NewSim(logging.Discard())
	qasm := `OPENQASM 2.0;
qreg q[2];
h q[0];
x q[1];
`
	a := runQASM(t, sim, qasm)
	b := runQASM(t, sim, qasm)
	if len(a.Counts) != len(b.Counts) {
		t.Fatal("two runs disagree")
	}
	for k, v := range a.Counts {
		if b.Counts[k] != v {
			t.Errorf("outcome %s: %d vs %d", k, v, b.Counts[k])
		}
	}
}

func TestSimRejectsUnknownInstruction(t *testing.T) {
	sim := NewSim(logging.Discard())
	prog, err := sim.Compile(context.Background(), "qreg q[1];\nwarp q[0];\n")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := sim.Run(context.Background(), prog); err == nil {
		t.Error("expected error for unknown instruction")
	}
}

func TestSimCompileRejectsMissingRegister(t *testing.T) {
	sim := NewSim(logging.Discard())
	if _, err := sim.Compile(context.Background(), "h q[0];\n"); err == nil {
		t.Error("expected error for program without qreg")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(logging.Discard())
	sim := NewSim(logging.Discard())
	reg.Register(sim)

	got, err := reg.Get("sim")
	if err != nil {
		t.Fatalf("Get(sim): %v", err)
	}
	if got != sim {
		t.Error("Get returned a different device")
	}

	if _, err := reg.Get("ibmq"); err == nil {
		t.Error("expected error for unregistered device")
	}

	names := reg.Names()
	if len(names) != 1 || names[0] != "sim" {
		t.Errorf("Names() = %v, want [sim]", names)
	}
}
