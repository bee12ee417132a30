package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

var enqueueFlags struct {
	source     string
	target     string
	chunksFile string
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create a queued run for the scheduler",
	RunE:  runEnqueue,
}

func init() {
	addRunRequestFlags(enqueueCmd)
}

func addRunRequestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&enqueueFlags.source, "source", "", "Source company (required)")
	f.StringVar(&enqueueFlags.target, "target", "", "Target company")
	f.StringVar(&enqueueFlags.chunksFile, "chunks", "", "JSON file with an array of source chunks")
}

// runRequest builds the create request from the shared flags.
func runRequest() (domain.CreateRunRequest, error) {
	req := domain.CreateRunRequest{
		SourceCompany: enqueueFlags.source,
		TargetCompany: enqueueFlags.target,
	}
	if enqueueFlags.chunksFile == "" {
		return req, nil
	}
	data, err := os.ReadFile(enqueueFlags.chunksFile)
	if err != nil {
		return req, fmt.Errorf("read chunks: %w", err)
	}
	if err := json.Unmarshal(data, &req.Chunks); err != nil {
		return req, fmt.Errorf("parse chunks %s: %w", enqueueFlags.chunksFile, err)
	}
	return req, nil
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	req, err := runRequest()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.svc.CreateRun(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), run.Summary())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
