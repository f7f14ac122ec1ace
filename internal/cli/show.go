package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var showProgram bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newStoreOnlyEnv()
			if err != nil {
				return err
			}
			defer e.close()

			job, err := e.store.GetJob(context.Background(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}

			fmt.Printf("ID:          %s\n", job.ID)
			fmt.Printf("State:       %s\n", job.State)
			fmt.Printf("Device:      %s\n", job.Device)
			fmt.Printf("Priority:    %d\n", job.Priority)
			fmt.Printf("Source:      %s\n", job.Source)
			fmt.Printf("Gates:       %d (depth %d, %d qubits, %d shots)\n",
				job.GateCount, job.Depth, job.Qubits, job.Shots)
			fmt.Printf("Attempts:    %d of %d retries used\n", job.Attempts, job.MaxRetries)
			fmt.Printf("Submitted:   %s (%s)\n",
				job.SubmittedAt.Format(time.RFC3339), humanize.Time(job.SubmittedAt))
			if job.CompletedAt != nil {
				fmt.Printf("Finished:    %s (%dms)\n",
					job.CompletedAt.Format(time.RFC3339), job.ElapsedMS)
			}
			if job.ResultSummary != "" {
				fmt.Printf("Result:      %s\n", job.ResultSummary)
			}
			if job.Error != "" {
				fmt.Printf("Error:       %s\n", job.Error)
			}
			if showProgram && job.Program != "" {
				fmt.Printf("\n%s", job.Program)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProgram, "program", false, "Also print the compiled instruction stream")
	return cmd
}
