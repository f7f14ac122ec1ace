package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/qhaul/internal/pipeline"
	"github.com/me/qhaul/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		deviceName string
		priority   string
		shots      int
		maxRetries int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <circuit-file>",
		Short: "Compile a circuit, run it on a device, and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prio, err := model.ParsePriority(priority)
			if err != nil {
				return err
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			job, err := e.pipeline.DispatchFile(ctx, args[0], pipeline.DispatchOptions{
				Device:     deviceName,
				Priority:   prio,
				Shots:      shots,
				MaxRetries: maxRetries,
			})
			if err != nil {
				return err
			}
			fmt.Printf("job %s queued on %s (%d gates, depth %d)\n",
				job.ID, job.Device, job.GateCount, job.Depth)

			out, err := e.pipeline.Await(ctx, job.ID)
			if err != nil {
				return fmt.Errorf("waiting for job %s: %w", job.ID, err)
			}
			if out.Err != nil {
				return fmt.Errorf("job %s failed: %w", job.ID, out.Err)
			}

			res := out.Result
			fmt.Printf("completed in %s\n\n", res.Elapsed.Round(time.Millisecond))
			outcomes := make([]string, 0, len(res.Counts))
			for k := range res.Counts {
				outcomes = append(outcomes, k)
			}
			sort.Strings(outcomes)
			for _, k := range outcomes {
				fmt.Printf("  %s  %d\n", k, res.Counts[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceName, "device", "d", pipeline.DefaultDevice, "Target device")
	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "Job priority (high, normal, low, or an integer)")
	cmd.Flags().IntVar(&shots, "shots", 0, "Shot count (0 uses the circuit's, then the device default)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Retry budget for transient device failures")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up waiting after this long")
	return cmd
}
