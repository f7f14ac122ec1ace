package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/qhaul/internal/logging"
	"github.com/me/qhaul/internal/optimizer"
	"github.com/me/qhaul/internal/parser"
	"github.com/me/qhaul/internal/qasm"
)

func newCompileCmd() *cobra.Command {
	var outPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "compile <circuit-file>",
		Short: "Compile a circuit and print its instruction stream",
		Long: `Parses a YAML or JSON circuit description, runs the optimizer
(inverse cancellation, rotation fusion, commutation, wire remapping,
depth computation), and prints the emitted instruction stream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			circ, err := parser.New(logging.Discard()).ParseFile(args[0])
			if err != nil {
				return err
			}
			before := circ.GateCount()
			opt := optimizer.Optimize(circ)
			text, err := qasm.Emit(opt)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			} else {
				fmt.Print(text)
			}

			if !quiet {
				fmt.Fprintf(os.Stderr, "gates: %d -> %d, depth: %d, qubits: %d\n",
					before, opt.GateCount(), opt.Depth, opt.Qubits)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the instruction stream to a file instead of stdout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the stats summary")
	return cmd
}
