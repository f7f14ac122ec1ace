// Package angleexpr evaluates angle expressions found in circuit
// parameter fields, e.g. "pi/2" or "3*pi/4". Expressions run in a
// JavaScript runtime (goja) pre-seeded with the constants pi, tau and
// e; the full Math object is also available.
package angleexpr

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
)

// Evaluator evaluates angle expressions. It holds one JavaScript VM
// and is not safe for concurrent use; create one per parse.
type Evaluator struct {
	vm *goja.Runtime
}

// New creates an Evaluator with the angle constants installed.
func New() (*Evaluator, error) {
	vm := goja.New()
	consts := map[string]float64{
		"pi":  math.Pi,
		"tau": 2 * math.Pi,
		"e":   math.E,
	}
	for name, v := range consts {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("set constant %s: %w", name, err)
		}
	}
	return &Evaluator{vm: vm}, nil
}

// Eval evaluates an expression and returns it as a float64. The result
// must be a finite number.
func (e *Evaluator) Eval(expr string) (float64, error) {
	val, err := e.vm.RunString(expr)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	f := val.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expression %q is not a finite number (got %v)", expr, val)
	}
	// ToFloat coerces non-numeric values; insist on an actual number.
	if _, ok := val.Export().(float64); !ok {
		if _, ok := val.Export().(int64); !ok {
			return 0, fmt.Errorf("expression %q did not evaluate to a number (got %T)", expr, val.Export())
		}
	}
	return f, nil
}
