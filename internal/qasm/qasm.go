// Package qasm emits OpenQASM 2.0 from an optimized circuit. Every
// canonical op tag maps to exactly one instruction template; aliases
// never reach this layer.
package qasm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/me/qhaul/pkg/model"
)

const header = "OPENQASM 2.0;\ninclude \"qelib1.inc\";\n"

// instruction names for ops whose QASM spelling is not simply the
// lowercased tag.
var renamedOps = map[string]string{
	"P":  "u1",
	"CP": "cu1",
}

// Emit renders the circuit as an OpenQASM 2.0 program. A classical
// register is declared only when the circuit measures.
func Emit(c *model.Circuit) (string, error) {
	if c.Qubits <= 0 {
		return "", fmt.Errorf("cannot emit circuit %q with %d qubits", c.Name, c.Qubits)
	}

	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "qreg q[%d];\n", c.Qubits)

	for i := range c.Gates {
		if c.Gates[i].Op == "MEASURE" {
			fmt.Fprintf(&b, "creg c[%d];\n", c.Qubits)
			break
		}
	}

	for i := range c.Gates {
		line, err := emitGate(&c.Gates[i], c.Qubits)
		if err != nil {
			return "", fmt.Errorf("gate %d: %w", i, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func emitGate(g *model.Gate, qubits int) (string, error) {
	prof, ok := model.ProfileFor(g.Op)
	if !ok {
		return "", fmt.Errorf("no instruction template for op %q", g.Op)
	}

	switch g.Op {
	case "BARRIER":
		args := make([]string, qubits)
		for i := range args {
			args[i] = fmt.Sprintf("q[%d]", i)
		}
		return "barrier " + strings.Join(args, ",") + ";", nil
	case "MEASURE":
		return fmt.Sprintf("measure q[%d] -> c[%d];", *g.Target, *g.Target), nil
	}

	name := renamedOps[g.Op]
	if name == "" {
		name = strings.ToLower(g.Op)
	}

	var b strings.Builder
	b.WriteString(name)
	if len(prof.ParamNames) > 0 {
		vals := make([]string, len(prof.ParamNames))
		for i, p := range prof.ParamNames {
			vals[i] = strconv.FormatFloat(g.Params[p], 'g', -1, 64)
		}
		b.WriteString("(" + strings.Join(vals, ",") + ")")
	}
	b.WriteByte(' ')
	if g.Control != nil {
		fmt.Fprintf(&b, "q[%d],", *g.Control)
	}
	fmt.Fprintf(&b, "q[%d];", *g.Target)
	return b.String(), nil
}
