package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perfx-labs/perfx/pkg/platform"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a pending run on the platform",
	Long: `Cancel marks a run canceled before it has started. A run that is
already executing is stopped by interrupting the perfx run process
instead, which records a failure with the interrupt reason.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if platformURL == "" {
			return fmt.Errorf("platform URL is not configured (use --platform-url or PERFX_PLATFORM_URL)")
		}
		client := platform.NewClient(platformURL)
		if err := client.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Run %s canceled\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
