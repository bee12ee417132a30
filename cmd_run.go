package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runFlags struct {
	runID string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a run in this process and print its final status",
	Long: "Executes an existing queued run given by --run-id, or creates one from\n" +
		"--source/--target/--chunks and executes it immediately.",
	RunE: runRun,
}

func init() {
	addRunRequestFlags(runCmd)
	runCmd.Flags().StringVar(&runFlags.runID, "run-id", "", "Execute this queued run instead of creating one")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := runFlags.runID
	if runID == "" {
		req, err := runRequest()
		if err != nil {
			return err
		}
		run, err := a.svc.CreateRun(ctx, req)
		if err != nil {
			return err
		}
		runID = run.RunID
		fmt.Fprintf(cmd.ErrOrStderr(), "created %s\n", runID)
	}

	run, err := a.svc.ExecuteRun(ctx, runID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), run.Summary())
}
