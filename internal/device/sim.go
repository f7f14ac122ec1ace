package device

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultShots is used when a program does not set a shot count.
const DefaultShots = 1024

// maxMixedQubits bounds the outcome enumeration of the classical-path
// simulator (2^n outcomes for n superposed qubits).
const maxMixedQubits = 16

// Sim is a local classical-path simulator. It tracks basis-state bit
// flips (x, cx, swap) exactly and treats superposition-creating gates
// (h, u2, u3, rx, ry) as marking their qubit "mixed"; shots are split
// uniformly across the outcomes of the mixed qubits. Deterministic,
// fast, and honest enough for pipeline development and tests.
type Sim struct {
	logger  *slog.Logger
	latency time.Duration
	shots   int
}

// SimOption configures the simulator.
type SimOption func(*Sim)

// WithLatency makes every Run sleep for d, to exercise queueing
// behaviour in development setups.
func WithLatency(d time.Duration) SimOption {
	return func(s *Sim) { s.latency = d }
}

// WithShots overrides the default shot count.
func WithShots(n int) SimOption {
	return func(s *Sim) { s.shots = n }
}

// NewSim creates the built-in "sim" device.
func NewSim(logger *slog.Logger, opts ...SimOption) *Sim {
	s := &Sim{
		logger: logger.With("component", "sim-device"),
		shots:  DefaultShots,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "sim".
func (s *Sim) Name() string { return "sim" }

// simProgram is the simulator's compiled form: qubit count plus a
// flat instruction list.
type simProgram struct {
	qubits int
	instrs []simInstr
}

type simInstr struct {
	name  string
	wires []int
}

// Compile parses the OpenQASM text into a simProgram.
func (s *Sim) Compile(_ context.Context, qasm string) (Program, error) {
	prog := &simProgram{}
	for ln, line := range strings.Split(qasm, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		if line == "" || strings.HasPrefix(line, "OPENQASM") || strings.HasPrefix(line, "include") ||
			strings.HasPrefix(line, "creg") || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "qreg") {
			n, err := parseRegWidth(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", ln+1, err)
			}
			prog.qubits = n
			continue
		}
		instr, err := parseInstr(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln+1, err)
		}
		prog.instrs = append(prog.instrs, instr)
	}
	if prog.qubits == 0 {
		return nil, fmt.Errorf("program declares no qubit register")
	}
	return prog, nil
}

// parseRegWidth extracts n from "qreg q[n]".
func parseRegWidth(line string) (int, error) {
	open := strings.IndexByte(line, '[')
	close := strings.IndexByte(line, ']')
	if open < 0 || close < open {
		return 0, fmt.Errorf("malformed register declaration %q", line)
	}
	n, err := strconv.Atoi(line[open+1 : close])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("malformed register width in %q", line)
	}
	return n, nil
}

// parseInstr splits "name(params) q[a],q[b]" into name and wires.
// The simulator ignores angle values: rotations either preserve the
// basis (z axis) or mix (x/y axis), and that depends only on the name.
func parseInstr(line string) (simInstr, error) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return simInstr{}, fmt.Errorf("malformed instruction %q", line)
	}
	name := fields[0]
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}

	var wires []int
	operands := fields[1]
	if i := strings.Index(operands, "->"); i >= 0 {
		operands = operands[:i] // measure q[i] -> c[i]
	}
	for _, arg := range strings.Split(operands, ",") {
		arg = strings.TrimSpace(arg)
		open := strings.IndexByte(arg, '[')
		close := strings.IndexByte(arg, ']')
		if open < 0 || close < open {
			return simInstr{}, fmt.Errorf("malformed operand %q", arg)
		}
		w, err := strconv.Atoi(arg[open+1 : close])
		if err != nil {
			return simInstr{}, fmt.Errorf("malformed wire index in %q", arg)
		}
		wires = append(wires, w)
	}
	return simInstr{name: name, wires: wires}, nil
}

// Run executes the classical-path simulation.
func (s *Sim) Run(ctx context.Context, prog Program) (*Result, error) {
	sp, ok := prog.(*simProgram)
	if !ok {
		return nil, fmt.Errorf("program was not compiled by the sim device (%T)", prog)
	}

	start := time.Now()
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	bits := make([]bool, sp.qubits)
	mixed := make([]bool, sp.qubits)

	for _, in := range sp.instrs {
		switch in.name {
		case "x":
			bits[in.wires[0]] = !bits[in.wires[0]]
		case "y":
			bits[in.wires[0]] = !bits[in.wires[0]]
		case "h", "u2", "u3", "rx", "ry":
			mixed[in.wires[0]] = true
		case "cx", "cy":
			ctrl, tgt := in.wires[0], in.wires[1]
			if mixed[ctrl] {
				mixed[tgt] = true
			} else if bits[ctrl] {
				bits[tgt] = !bits[tgt]
			}
		case "swap":
			a, b := in.wires[0], in.wires[1]
			bits[a], bits[b] = bits[b], bits[a]
			mixed[a], mixed[b] = mixed[b], mixed[a]
		case "z", "s", "sdg", "t", "tdg", "rz", "u1", "cz", "ch", "crx", "cry", "crz", "cu1",
			"barrier", "measure", "reset":
			// Phase-only, synchronization, or readout: no effect on
			// the classical outcome distribution tracked here. reset
			// on a mixed qubit is approximated as a no-op.
			if in.name == "reset" {
				bits[in.wires[0]] = false
				mixed[in.wires[0]] = false
			}
		default:
			return nil, fmt.Errorf("sim does not support instruction %q", in.name)
		}
	}

	counts, err := enumerate(bits, mixed, s.shots)
	if err != nil {
		return nil, err
	}

	return &Result{
		Device:  s.Name(),
		Shots:   s.shots,
		Counts:  counts,
		Elapsed: time.Since(start),
	}, nil
}

// enumerate splits shots uniformly across the 2^k outcomes of the k
// mixed qubits, on top of the fixed bits. Bitstrings are big-endian:
// q[n-1] ... q[0].
func enumerate(bits, mixed []bool, shots int) (map[string]int, error) {
	var mixedIdx []int
	for i, m := range mixed {
		if m {
			mixedIdx = append(mixedIdx, i)
		}
	}
	if len(mixedIdx) > maxMixedQubits {
		return nil, fmt.Errorf("%d superposed qubits exceed the classical-path limit of %d",
			len(mixedIdx), maxMixedQubits)
	}

	n := 1 << len(mixedIdx)
	per := shots / n
	rem := shots % n

	counts := make(map[string]int, n)
	outcome := make([]bool, len(bits))
	for v := 0; v < n; v++ {
		copy(outcome, bits)
		for bi, qi := range mixedIdx {
			outcome[qi] = v&(1<<bi) != 0
		}
		c := per
		if v < rem {
			c++
		}
		if c > 0 {
			counts[bitstring(outcome)] = c
		}
	}
	return counts, nil
}

func bitstring(bits []bool) string {
	var b strings.Builder
	for i := len(bits) - 1; i >= 0; i-- {
		if bits[i] {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Monitor logs the run summary.
func (s *Sim) Monitor(_ context.Context, res *Result) error {
	s.logger.Info("run summary", "shots", res.Shots, "outcomes", len(res.Counts), "elapsed", res.Elapsed)
	return nil
}
