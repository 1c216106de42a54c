package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/perfx-labs/perfx/internal/orchestrator"
	"github.com/perfx-labs/perfx/pkg/validate"
)

func renderValidationFailure(vf *orchestrator.ValidationFailure) {
	fmt.Println("Argument validation failed:")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Parameter", "Problem")
	for _, perr := range vf.Errors {
		table.Append(perr.Parameter, perr.Message)
	}
	table.Render()
	fmt.Println()
	fmt.Println(validate.FormatHelp(vf.Schema))
}

func renderPlan(runID string, plan *orchestrator.Plan) {
	fmt.Printf("Dry run for %s: nothing was started.\n\n", runID)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")
	table.Append("Run ID", runID)
	table.Append("Target host", plan.Host)
	if plan.Run.Endpoint != nil {
		table.Append("Endpoint", plan.Run.Endpoint.EndpointPath)
	}
	if plan.Run.Environment != nil {
		table.Append("Environment", plan.Run.Environment.EnvCode)
	}
	if len(plan.Shape) > 0 {
		table.Append("Shape steps", strconv.Itoa(len(plan.Shape)))
	} else {
		table.Append("Users", strconv.Itoa(plan.Run.Users))
		if plan.Run.SpawnRate > 0 {
			table.Append("Spawn rate", fmt.Sprintf("%.1f/s", plan.Run.SpawnRate))
		}
		if plan.Run.RunTime != "" {
			table.Append("Run time", plan.Run.RunTime)
		}
	}
	table.Render()

	if len(plan.Resolved) == 0 {
		return
	}
	fmt.Println("\nResolved arguments:")
	args := tablewriter.NewWriter(os.Stdout)
	args.Header("Name", "Value", "Exported As")
	for _, name := range sortedKeys(plan.Resolved) {
		exported := "PERFX_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		args.Append(name, plan.Resolved[name], exported)
	}
	args.Render()
}

func renderSummary(runID string, outcome *orchestrator.Outcome) {
	fmt.Printf("\nRun %s %s\n\n", runID, outcome.State)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Requests", strconv.FormatInt(outcome.Summary.Requests, 10))
	table.Append("Failures", strconv.FormatInt(outcome.Summary.Failures, 10))
	table.Append("Duration", fmt.Sprintf("%ds", outcome.Summary.DurationSeconds))
	if outcome.Summary.AvgResponseTime > 0 {
		table.Append("Avg response time", fmt.Sprintf("%.1f ms", outcome.Summary.AvgResponseTime))
	}
	if outcome.Summary.RPS > 0 {
		table.Append("Requests/s", fmt.Sprintf("%.2f", outcome.Summary.RPS))
	}
	if outcome.Generator != nil && outcome.Generator.Summary.Requests > 0 {
		agg := outcome.Generator.Summary
		table.Append("Fail ratio", fmt.Sprintf("%.2f%%", agg.FailRatio()*100))
		table.Append("Min response time", fmt.Sprintf("%.1f ms", agg.MinResponseTime))
		table.Append("Max response time", fmt.Sprintf("%.1f ms", agg.MaxResponseTime))
		table.Append("Median response time", fmt.Sprintf("%.1f ms", agg.MedianResponseTime))
		table.Append("95th percentile", fmt.Sprintf("%.1f ms", agg.P95ResponseTime))
		table.Append("99th percentile", fmt.Sprintf("%.1f ms", agg.P99ResponseTime))
	}
	table.Render()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
