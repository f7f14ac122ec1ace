// Package parser reads declarative circuit descriptions (JSON or YAML)
// and validates them into the model.Circuit intermediate
// representation. All alias resolution happens here; downstream
// components only ever see canonical op tags.
package parser

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/qhaul/internal/angleexpr"
	"github.com/me/qhaul/pkg/model"
)

// Parser converts raw circuit documents into validated Circuits.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// rawGate mirrors one gate entry before validation. Params is left
// untyped to accept the map, list, scalar, and expression forms.
type rawGate struct {
	Op      string `yaml:"op" json:"op"`
	Target  *int   `yaml:"target" json:"target"`
	Control *int   `yaml:"control" json:"control"`
	Params  any    `yaml:"params" json:"params"`
}

type rawCircuit struct {
	Name   string    `yaml:"name" json:"name"`
	Qubits int       `yaml:"qubits" json:"qubits"`
	Shots  int       `yaml:"shots" json:"shots"`
	Gates  []rawGate `yaml:"gates" json:"gates"`
}

// ParseFile reads and parses a circuit description file.
func (p *Parser) ParseFile(path string) (*model.Circuit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read circuit file: %w", err)
	}
	circ, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if circ.Name == "" {
		circ.Name = path
	}
	return circ, nil
}

// Parse parses a circuit description. YAML is a superset of JSON here,
// so a single decoder covers both input formats.
func (p *Parser) Parse(data []byte) (*model.Circuit, error) {
	var raw rawCircuit
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, model.NewValidationError(fmt.Sprintf("circuit parse error: %v", err))
	}

	circ := &model.Circuit{
		Name:   raw.Name,
		Qubits: raw.Qubits,
		Shots:  raw.Shots,
		Gates:  make([]model.Gate, 0, len(raw.Gates)),
	}

	ev, err := angleexpr.New()
	if err != nil {
		return nil, fmt.Errorf("angle evaluator: %w", err)
	}

	var details []model.FieldError
	for i, rg := range raw.Gates {
		g, err := p.buildGate(rg, ev)
		if err != nil {
			details = append(details, model.FieldError{
				Field:   fmt.Sprintf("gates[%d]", i),
				Message: err.Error(),
			})
			continue
		}
		circ.Gates = append(circ.Gates, g)
	}
	if len(details) > 0 {
		return nil, model.NewValidationError("invalid gates in circuit", details...)
	}

	if err := circ.Validate(); err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	p.logger.Debug("circuit parsed", "name", circ.Name, "qubits", circ.Qubits, "gates", len(circ.Gates))
	return circ, nil
}

// buildGate canonicalizes the op, normalizes the params into named
// angles, and validates against the op profile.
func (p *Parser) buildGate(rg rawGate, ev *angleexpr.Evaluator) (model.Gate, error) {
	op, err := model.CanonicalOp(rg.Op)
	if err != nil {
		return model.Gate{}, err
	}

	g := model.Gate{Op: op, Target: rg.Target, Control: rg.Control}

	prof, _ := model.ProfileFor(op)
	params, err := normalizeParams(rg.Params, prof, ev)
	if err != nil {
		return model.Gate{}, fmt.Errorf("gate %s: %w", op, err)
	}
	g.Params = params

	if err := g.Validate(); err != nil {
		return model.Gate{}, err
	}
	return g, nil
}

// normalizeParams accepts the three supported parameter forms:
//
//	map:    {theta: 1.5} or {theta: "pi/2"}
//	list:   [1.5, "pi/2"] assigned positionally by the op profile
//	scalar: 1.5 or "pi/2" for single-parameter ops
func normalizeParams(raw any, prof model.OpProfile, ev *angleexpr.Evaluator) (map[string]float64, error) {
	if raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]float64, len(v))
		for name, val := range v {
			f, err := coerceAngle(val, ev)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			out[name] = f
		}
		return out, nil

	case []any:
		if len(v) > len(prof.ParamNames) {
			return nil, fmt.Errorf("got %d positional parameters, op takes %d", len(v), len(prof.ParamNames))
		}
		out := make(map[string]float64, len(v))
		for i, val := range v {
			f, err := coerceAngle(val, ev)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", prof.ParamNames[i], err)
			}
			out[prof.ParamNames[i]] = f
		}
		return out, nil

	default:
		if len(prof.ParamNames) != 1 {
			return nil, fmt.Errorf("scalar parameter form needs a single-parameter op")
		}
		f, err := coerceAngle(v, ev)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", prof.ParamNames[0], err)
		}
		return map[string]float64{prof.ParamNames[0]: f}, nil
	}
}

// coerceAngle turns a raw YAML value into a float64 angle. Strings go
// through the expression evaluator.
func coerceAngle(v any, ev *angleexpr.Evaluator) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return ev.Eval(x)
	default:
		return 0, fmt.Errorf("unsupported parameter value %v (%T)", v, v)
	}
}
