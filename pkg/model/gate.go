package model

import (
	"fmt"
	"math"
	"strings"
)

// Gate is one operation in a circuit: a canonical op tag, an optional
// target wire, an optional control wire, and optional named angle
// parameters. Gates are treated as immutable once validated; rewrite
// passes build new gates instead of mutating wires in place.
type Gate struct {
	Op      string             `json:"op" yaml:"op"`
	Target  *int               `json:"target,omitempty" yaml:"target,omitempty"`
	Control *int               `json:"control,omitempty" yaml:"control,omitempty"`
	Params  map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// OpProfile describes the required-field shape of one canonical op tag.
type OpProfile struct {
	NeedsTarget  bool
	NeedsControl bool
	ParamNames   []string
}

// opProfiles is the static table mapping every canonical op tag to its
// required-field profile. Gate validation is driven entirely by this
// table; an op missing here is unsupported.
var opProfiles = map[string]OpProfile{
	// Single-qubit, no parameters.
	"H":       {NeedsTarget: true},
	"X":       {NeedsTarget: true},
	"Y":       {NeedsTarget: true},
	"Z":       {NeedsTarget: true},
	"S":       {NeedsTarget: true},
	"SDG":     {NeedsTarget: true},
	"T":       {NeedsTarget: true},
	"TDG":     {NeedsTarget: true},
	"RESET":   {NeedsTarget: true},
	"MEASURE": {NeedsTarget: true},

	// Single-qubit rotations and phase.
	"RX": {NeedsTarget: true, ParamNames: []string{"theta"}},
	"RY": {NeedsTarget: true, ParamNames: []string{"theta"}},
	"RZ": {NeedsTarget: true, ParamNames: []string{"theta"}},
	"P":  {NeedsTarget: true, ParamNames: []string{"theta"}},
	"U2": {NeedsTarget: true, ParamNames: []string{"phi", "lambda"}},
	"U3": {NeedsTarget: true, ParamNames: []string{"theta", "phi", "lambda"}},

	// Two-qubit, no parameters.
	"CX":   {NeedsTarget: true, NeedsControl: true},
	"CY":   {NeedsTarget: true, NeedsControl: true},
	"CZ":   {NeedsTarget: true, NeedsControl: true},
	"CH":   {NeedsTarget: true, NeedsControl: true},
	"SWAP": {NeedsTarget: true, NeedsControl: true},

	// Two-qubit, parameterized.
	"CRX": {NeedsTarget: true, NeedsControl: true, ParamNames: []string{"theta"}},
	"CRY": {NeedsTarget: true, NeedsControl: true, ParamNames: []string{"theta"}},
	"CRZ": {NeedsTarget: true, NeedsControl: true, ParamNames: []string{"theta"}},
	"CP":  {NeedsTarget: true, NeedsControl: true, ParamNames: []string{"theta"}},

	// Global: acts on every wire, no target.
	"BARRIER": {},
}

// opAliases maps accepted alternate spellings to canonical tags.
// Aliases are resolved at parse time; the optimizer and emitter only
// ever see canonical tags.
var opAliases = map[string]string{
	"CNOT":   "CX",
	"PHASE":  "P",
	"U1":     "P",
	"U":      "U3",
	"CPHASE": "CP",
	"CU1":    "CP",
}

// CanonicalOp uppercases an op tag and resolves aliases. It returns an
// error for unsupported operations.
func CanonicalOp(op string) (string, error) {
	up := strings.ToUpper(strings.TrimSpace(op))
	if canon, ok := opAliases[up]; ok {
		up = canon
	}
	if _, ok := opProfiles[up]; !ok {
		return "", fmt.Errorf("unsupported gate operation %q", op)
	}
	return up, nil
}

// ProfileFor returns the required-field profile for a canonical op tag.
func ProfileFor(op string) (OpProfile, bool) {
	p, ok := opProfiles[op]
	return p, ok
}

// Validate checks the gate against the op profile table. The op must
// already be canonical (CanonicalOp has been applied).
func (g *Gate) Validate() error {
	prof, ok := opProfiles[g.Op]
	if !ok {
		return fmt.Errorf("unsupported gate operation %q", g.Op)
	}

	if prof.NeedsTarget {
		if g.Target == nil {
			return fmt.Errorf("gate %s requires a target wire", g.Op)
		}
		if *g.Target < 0 {
			return fmt.Errorf("gate %s target wire %d is negative", g.Op, *g.Target)
		}
	} else if g.Target != nil {
		return fmt.Errorf("gate %s is global and takes no target wire", g.Op)
	}

	if prof.NeedsControl {
		if g.Control == nil {
			return fmt.Errorf("gate %s requires a control wire", g.Op)
		}
		if *g.Control < 0 {
			return fmt.Errorf("gate %s control wire %d is negative", g.Op, *g.Control)
		}
		if g.Target != nil && *g.Control == *g.Target {
			return fmt.Errorf("gate %s control and target are both wire %d", g.Op, *g.Target)
		}
	} else if g.Control != nil {
		return fmt.Errorf("gate %s takes no control wire", g.Op)
	}

	if len(prof.ParamNames) == 0 {
		if len(g.Params) != 0 {
			return fmt.Errorf("gate %s takes no parameters", g.Op)
		}
		return nil
	}
	for _, name := range prof.ParamNames {
		v, ok := g.Params[name]
		if !ok {
			return fmt.Errorf("gate %s missing parameter %q", g.Op, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("gate %s parameter %q is not a finite number", g.Op, name)
		}
	}
	if len(g.Params) != len(prof.ParamNames) {
		for name := range g.Params {
			if !prof.hasParam(name) {
				return fmt.Errorf("gate %s has unexpected parameter %q", g.Op, name)
			}
		}
	}
	return nil
}

func (p OpProfile) hasParam(name string) bool {
	for _, n := range p.ParamNames {
		if n == name {
			return true
		}
	}
	return false
}

// IsGlobal reports whether the gate acts on every wire by convention
// (no target), e.g. a full-circuit barrier.
func (g *Gate) IsGlobal() bool {
	return g.Target == nil
}

// Wires returns the wire indices the gate references, target first.
func (g *Gate) Wires() []int {
	var w []int
	if g.Target != nil {
		w = append(w, *g.Target)
	}
	if g.Control != nil {
		w = append(w, *g.Control)
	}
	return w
}

// Theta returns the "theta" parameter, or 0 if absent.
func (g *Gate) Theta() float64 {
	return g.Params["theta"]
}

// Clone returns a deep copy of the gate.
func (g *Gate) Clone() Gate {
	out := Gate{Op: g.Op}
	if g.Target != nil {
		t := *g.Target
		out.Target = &t
	}
	if g.Control != nil {
		c := *g.Control
		out.Control = &c
	}
	if g.Params != nil {
		out.Params = make(map[string]float64, len(g.Params))
		for k, v := range g.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Wire returns a pointer to an int, for building gate literals.
func Wire(i int) *int {
	return &i
}
