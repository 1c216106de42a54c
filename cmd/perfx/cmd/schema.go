package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/perfx-labs/perfx/pkg/platform"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <run-id>",
	Short: "Show the endpoint argument schema for a run",
	Long: `Schema fetches the run from the platform and prints the parameters
its endpoint accepts, so operators can see what --set expects before
starting anything.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if platformURL == "" {
			return fmt.Errorf("platform URL is not configured (use --platform-url or PERFX_PLATFORM_URL)")
		}
		client := platform.NewClient(platformURL)
		run, err := client.FetchRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		params, err := run.ArgumentParameters()
		if err != nil {
			return fmt.Errorf("endpoint argument schema is malformed: %w", err)
		}
		if len(params) == 0 {
			fmt.Println("Endpoint declares no parameters")
			return nil
		}

		endpoint := ""
		if run.Endpoint != nil {
			endpoint = run.Endpoint.EndpointPath
		}
		fmt.Printf("Parameters for %s (%s):\n", args[0], endpoint)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Name", "Type", "Required", "Default", "Choices", "Description")
		for _, p := range params {
			required := ""
			if p.Required {
				required = "yes"
			}
			def := ""
			if p.Default != nil {
				def = *p.Default
			}
			table.Append(p.Name, string(p.Kind), required, def, strings.Join(p.Choices, ", "), p.Description)
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
