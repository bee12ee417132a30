package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportFlags struct {
	dir string
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the diagnostic zip archive of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.dir, "dir", "", "Output directory (default from config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.svc.ExportFile(cmd.Context(), args[0], exportFlags.dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
