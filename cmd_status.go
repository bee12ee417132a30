package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run and its phase results",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	run, err := a.svc.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if run == nil {
		fmt.Fprintf(out, "No run %s\n", args[0])
		return nil
	}

	fmt.Fprintf(out, "Run:     %s\n", run.RunID)
	fmt.Fprintf(out, "Source:  %s\n", run.SourceCompany)
	if run.TargetCompany != "" {
		fmt.Fprintf(out, "Target:  %s\n", run.TargetCompany)
	}
	fmt.Fprintf(out, "Status:  %s (%s)\n", run.Status, run.State)
	fmt.Fprintf(out, "Tokens:  %d  cost %.4f\n", run.TokensUsed, run.Cost)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:   %s\n", run.Error)
	}

	results, err := a.svc.ListPhaseResults(ctx, run.RunID)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		fmt.Fprintf(out, "Phases: (%d)\n", len(results))
		for _, r := range results {
			fmt.Fprintf(out, "  %-10s %-9s attempts=%d %dms", r.Phase, r.Status, r.Attempts, r.DurationMs)
			if r.Error != "" {
				fmt.Fprintf(out, " %s", r.Error)
			}
			fmt.Fprintln(out)
		}
	}

	report, err := a.svc.GetDiversityReport(ctx, run.RunID)
	if err != nil {
		return err
	}
	if report != nil {
		fmt.Fprintf(out, "Diversity: %s clearance=%s\n", report.Status, report.SynthesisClearance)
	}
	return nil
}
