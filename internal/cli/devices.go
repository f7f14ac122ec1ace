package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/logging"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := device.NewRegistry(logging.Discard())
			reg.Register(device.NewSim(logging.Discard()))
			for _, name := range reg.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
