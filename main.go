package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "github.com/tanpawarit/chative-supervisor/pkg/logger/autoload"
)

var rootCmd = &cobra.Command{
	Use:   "chative-supervisor",
	Short: "Supervisor-routed multi-worker task runner",
	Long: `chative-supervisor runs a task through a supervisor that hands the work
to one worker at a time until it declares the task finished.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("env", "", "path to .env file")
	rootCmd.PersistentFlags().String("workers", "", "path to a YAML worker roster (defaults to Analyzer/Writer)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
