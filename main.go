package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "customerintel",
	Short: "Sequential LLM research pipeline for account intelligence",
	Long: "customerintel runs the fifteen-step research protocol for a source and\n" +
		"target company, gates the evidence on citation diversity and assembles\n" +
		"the synthesis bundle.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level (overrides config)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: json or console")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
