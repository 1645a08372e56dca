// Package main provides the entry point for the course scheduler API server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	backend    string
)

var rootCmd = &cobra.Command{
	Use:           "cab_scheduler",
	Short:         "Course scheduling service",
	Long:          "cab_scheduler serves department offerings, stores each student's scheduling preferences and generates candidate weekly schedules.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Metadata backend: clerk, postgres or memory (overrides METADATA_BACKEND)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
