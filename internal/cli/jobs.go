package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/qhaul/pkg/model"
)

func newJobsCmd() *cobra.Command {
	var (
		state      string
		deviceName string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newStoreOnlyEnv()
			if err != nil {
				return err
			}
			defer e.close()

			jobs, total, err := e.store.ListJobs(context.Background(), model.ListOptions{
				Limit:  limit,
				State:  model.JobState(state),
				Device: deviceName,
			})
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Printf("%-36s  %-10s  %-8s  %-20s  %s\n", "ID", "STATE", "DEVICE", "SOURCE", "SUBMITTED")
			for _, job := range jobs {
				fmt.Printf("%-36s  %-10s  %-8s  %-20s  %s\n",
					job.ID, job.State, job.Device, truncate(job.Source, 20),
					humanize.Time(job.SubmittedAt))
			}
			if len(jobs) < total {
				fmt.Printf("\n(%d of %d shown)\n", len(jobs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (QUEUED, RUNNING, RETRYING, COMPLETED, FAILED)")
	cmd.Flags().StringVar(&deviceName, "device", "", "Filter by device")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
