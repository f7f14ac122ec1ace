package model

import "fmt"

// Circuit is the intermediate representation the optimizer operates on:
// an ordered gate list plus a qubit count. Gate order is execution
// order. Depth is computed by the optimizer, never supplied as input.
type Circuit struct {
	Name   string `json:"name" yaml:"name"`
	Qubits int    `json:"qubits" yaml:"qubits"`
	Shots  int    `json:"shots,omitempty" yaml:"shots,omitempty"`
	Gates  []Gate `json:"gates" yaml:"gates"`
	Depth  int    `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// Validate checks structural invariants: a positive qubit count, every
// gate valid against its op profile, and every referenced wire index
// inside [0, Qubits).
func (c *Circuit) Validate() error {
	if c.Qubits <= 0 {
		return fmt.Errorf("circuit %q: qubit count must be positive, got %d", c.Name, c.Qubits)
	}
	if c.Shots < 0 {
		return fmt.Errorf("circuit %q: shots must not be negative, got %d", c.Name, c.Shots)
	}
	for i := range c.Gates {
		g := &c.Gates[i]
		if err := g.Validate(); err != nil {
			return fmt.Errorf("circuit %q: gate %d: %w", c.Name, i, err)
		}
		for _, w := range g.Wires() {
			if w >= c.Qubits {
				return fmt.Errorf("circuit %q: gate %d (%s): wire %d out of range for %d qubits",
					c.Name, i, g.Op, w, c.Qubits)
			}
		}
	}
	return nil
}

// GateCount returns the number of gates in the circuit.
func (c *Circuit) GateCount() int {
	return len(c.Gates)
}

// CircuitStats summarizes an optimized circuit for persistence and
// job logs.
type CircuitStats struct {
	GateCount int `json:"gate_count"`
	Depth     int `json:"depth"`
	Qubits    int `json:"qubits"`
	Shots     int `json:"shots,omitempty"`
}

// Stats returns the circuit's summary metrics.
func (c *Circuit) Stats() CircuitStats {
	return CircuitStats{
		GateCount: len(c.Gates),
		Depth:     c.Depth,
		Qubits:    c.Qubits,
		Shots:     c.Shots,
	}
}
