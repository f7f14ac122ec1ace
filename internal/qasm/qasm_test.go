package qasm

import (
	"strings"
	"testing"

	"github.com/me/qhaul/pkg/model"
)

func TestEmitBellCircuit(t *testing.T) {
	c := &model.Circuit{
		Name:   "bell",
		Qubits: 2,
		Gates: []model.Gate{
			{Op: "H", Target: model.Wire(0)},
			{Op: "CX", Target: model.Wire(1), Control: model.Wire(0)},
			{Op: "MEASURE", Target: model.Wire(0)},
			{Op: "MEASURE", Target: model.Wire(1)},
		},
	}

	got, err := Emit(c)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	want := `OPENQASM 2.0;
include "qelib1.inc";
qreg q[2];
creg c[2];
h q[0];
cx q[0],q[1];
measure q[0] -> c[0];
measure q[1] -> c[1];
`
	if got != want {
		t.Errorf("Emit output:\n%s\nwant:\n%s", got, want)
	}
}

func TestEmitParameterizedAndRenamedOps(t *testing.T) {
	c := &model.Circuit{
		Name:   "params",
		Qubits: 2,
		Gates: []model.Gate{
			{Op: "RZ", Target: model.Wire(0), Params: map[string]float64{"theta": 0.5}},
			{Op: "P", Target: model.Wire(0), Params: map[string]float64{"theta": 0.25}},
			{Op: "CP", Target: model.Wire(1), Control: model.Wire(0), Params: map[string]float64{"theta": 1.5}},
			{Op: "U3", Target: model.Wire(1), Params: map[string]float64{"theta": 1, "phi": 2, "lambda": 3}},
		},
	}

	got, err := Emit(c)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	for _, line := range []string{
		"rz(0.5) q[0];",
		"u1(0.25) q[0];",
		"cu1(1.5) q[0],q[1];",
		"u3(1,2,3) q[1];",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("output missing %q:\n%s", line, got)
		}
	}
	if strings.Contains(got, "creg") {
		t.Error("creg declared without any measure")
	}
}

func TestEmitGlobalBarrier(t *testing.T) {
	c := &model.Circuit{
		Name:   "barrier",
		Qubits: 3,
		Gates:  []model.Gate{{Op: "BARRIER"}},
	}
	got, err := Emit(c)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(got, "barrier q[0],q[1],q[2];") {
		t.Errorf("barrier line missing:\n%s", got)
	}
}

func TestEmitRejectsEmptyWidth(t *testing.T) {
	c := &model.Circuit{Name: "void", Qubits: 0}
	if _, err := Emit(c); err == nil {
		t.Error("expected error for zero-qubit circuit")
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	c := &model.Circuit{
		Name:   "det",
		Qubits: 2,
		Gates: []model.Gate{
			{Op: "H", Target: model.Wire(0)},
			{Op: "CRZ", Target: model.Wire(1), Control: model.Wire(0), Params: map[string]float64{"theta": 0.7}},
		},
	}
	a, err := Emit(c)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	b, err := Emit(c)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if a != b {
		t.Error("same circuit emitted differently")
	}
}
