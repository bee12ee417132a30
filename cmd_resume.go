package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Re-enter the synthesis tail of a blocked run",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.svc.ResumeRun(cmd.Context(), args[0], true)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), run.Summary())
}
