package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "task-orch",
		Short: "Task Orchestrator - runs maintenance and import tasks",
		Long: `Task Orchestrator runs configured tasks under a common lifecycle:
it prevents overlapping runs, honours task dependencies, records every run
and mails success and error summaries.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
