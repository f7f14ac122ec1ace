// Package optimizer rewrites a validated circuit through a fixed
// pipeline of local, provably-safe passes:
//
//	1. cancel adjacent inverse pairs
//	2. fuse adjacent same-axis rotations
//	3. commute Z rotations across CX/CZ where that enables fusion
//	4. compact wire indices in first-use order
//	5. compute ASAP depth
//
// Structurally invalid input is a caller defect; Optimize assumes the
// circuit passed model.Circuit.Validate.
package optimizer

import (
	"math"

	"github.com/me/qhaul/pkg/model"
)

const twoPi = 2 * math.Pi

// angleTolerance is the wrapped distance below which an angle counts
// as zero (net identity rotation).
const angleTolerance = 1e-8

// inverseOps maps each cancelable op to the op that undoes it.
// Self-inverse ops map to themselves; the T/S families pair with
// their daggers.
var inverseOps = map[string]string{
	"X":    "X",
	"Y":    "Y",
	"Z":    "Z",
	"H":    "H",
	"CX":   "CX",
	"CY":   "CY",
	"CZ":   "CZ",
	"CH":   "CH",
	"SWAP": "SWAP",
	"T":    "TDG",
	"TDG":  "T",
	"S":    "SDG",
	"SDG":  "S",
}

var rotationOps = map[string]bool{"RX": true, "RY": true, "RZ": true}

// Optimize runs the full pass pipeline and returns a rewritten circuit
// with compacted wires and a populated depth. The input circuit is not
// modified.
func Optimize(c *model.Circuit) *model.Circuit {
	gates := cloneGates(c.Gates)
	gates = cancelInverses(gates)
	gates = fuseRotations(gates)
	gates = commuteRotations(gates)
	gates, wires, sawGlobal := remapWires(gates)

	out := &model.Circuit{
		Name:  c.Name,
		Shots: c.Shots,
		Gates: gates,
	}
	switch {
	case wires > 0:
		out.Qubits = wires
	case sawGlobal:
		// Global-only circuits keep their declared width: a barrier
		// acts on every wire by convention.
		out.Qubits = c.Qubits
	default:
		out.Qubits = 0
	}
	out.Depth = computeDepth(gates)
	return out
}

func cloneGates(gates []model.Gate) []model.Gate {
	out := make([]model.Gate, len(gates))
	for i := range gates {
		out[i] = gates[i].Clone()
	}
	return out
}

// sameWires reports whether two gates act on the identical
// (target, control) pair.
func sameWires(a, b *model.Gate) bool {
	return samePtr(a.Target, b.Target) && samePtr(a.Control, b.Control)
}

func samePtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// cancelInverses removes adjacent inverse pairs in a single forward
// pass, using the output buffer as an implicit stack: pop on match,
// push otherwise.
func cancelInverses(gates []model.Gate) []model.Gate {
	out := make([]model.Gate, 0, len(gates))
	for i := range gates {
		g := &gates[i]
		if len(out) > 0 && len(g.Params) == 0 {
			prev := &out[len(out)-1]
			if inv, ok := inverseOps[g.Op]; ok && prev.Op == inv && len(prev.Params) == 0 && sameWires(prev, g) {
				out = out[:len(out)-1]
				continue
			}
		}
		out = append(out, *g)
	}
	return out
}

// fuseRotations merges adjacent same-axis rotations on the same wires
// into one rotation carrying the wrapped angle sum, dropping the gate
// entirely when the sum is a net identity.
func fuseRotations(gates []model.Gate) []model.Gate {
	out := make([]model.Gate, 0, len(gates))
	for i := range gates {
		g := &gates[i]
		if len(out) > 0 && rotationOps[g.Op] {
			prev := &out[len(out)-1]
			if prev.Op == g.Op && sameWires(prev, g) && prev.Params != nil && g.Params != nil {
				theta := wrapAngle(prev.Theta() + g.Theta())
				if angleIsZero(theta) {
					out = out[:len(out)-1]
				} else {
					prev.Params["theta"] = theta
				}
				continue
			}
		}
		out = append(out, *g)
	}
	return out
}

// wrapAngle reduces an angle into [0, 2π).
func wrapAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// angleIsZero checks the shortest wrapped distance from a to 0, not
// raw equality, so 2π-ε counts as identity too.
func angleIsZero(a float64) bool {
	d := math.Mod(a, twoPi)
	if d > math.Pi {
		d -= twoPi
	} else if d < -math.Pi {
		d += twoPi
	}
	return math.Abs(d) < angleTolerance
}

// commuteRotations swaps a single-qubit Z rotation back across a
// CX/CZ it commutes with, but only when the swap lands it next to
// another rotation it can fuse with. Fusion runs after every
// productive swap, so repeated application reaches a fixpoint and the
// pass is idempotent.
func commuteRotations(gates []model.Gate) []model.Gate {
	for {
		swapped := false
		for i := 1; i+1 < len(gates); i++ {
			g1, g2 := &gates[i], &gates[i+1]
			if !commutesBack(g1, g2) {
				continue
			}
			if !fusableRotations(&gates[i-1], g2) {
				continue
			}
			gates[i], gates[i+1] = gates[i+1], gates[i]
			gates = fuseRotations(gates)
			swapped = true
			break
		}
		if !swapped {
			return gates
		}
	}
}

// commutesBack reports whether rot (a single-qubit RZ) commutes with
// the two-qubit gate g immediately before it: an RZ on the control
// wire of CX or CZ, or on either wire of the symmetric CZ.
func commutesBack(g, rot *model.Gate) bool {
	if rot.Op != "RZ" || rot.Control != nil || rot.Target == nil {
		return false
	}
	if g.Op != "CX" && g.Op != "CZ" {
		return false
	}
	if g.Control != nil && *rot.Target == *g.Control {
		return true
	}
	return g.Op == "CZ" && g.Target != nil && *rot.Target == *g.Target
}

// fusableRotations reports whether two gates are same-axis rotations
// on the same wires, i.e. pass 2 would merge them if adjacent.
func fusableRotations(a, b *model.Gate) bool {
	return rotationOps[a.Op] && a.Op == b.Op && sameWires(a, b)
}

// remapWires renumbers referenced wires compactly in first-use order
// (target before control within a gate). It returns the rewritten
// gates, the count of distinct referenced wires, and whether any
// global gate was seen.
func remapWires(gates []model.Gate) ([]model.Gate, int, bool) {
	mapping := make(map[int]int)
	next := 0
	sawGlobal := false

	alloc := func(w int) int {
		if n, ok := mapping[w]; ok {
			return n
		}
		mapping[w] = next
		next++
		return mapping[w]
	}

	out := make([]model.Gate, 0, len(gates))
	for i := range gates {
		g := gates[i].Clone()
		if g.IsGlobal() {
			sawGlobal = true
			out = append(out, g)
			continue
		}
		t := alloc(*g.Target)
		g.Target = &t
		if g.Control != nil {
			c := alloc(*g.Control)
			g.Control = &c
		}
		out = append(out, g)
	}
	return out, len(mapping), sawGlobal
}
