package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/config"
	"github.com/jonathan/cab-scheduler/internal/observability"
	"github.com/jonathan/cab-scheduler/internal/types"
)

var offeringsJSON bool

var offeringsCmd = &cobra.Command{
	Use:   "offerings <DEPT>",
	Short: "List a department's offered courses",
	Long:  "Fetch a department's courses for every configured offering term and print the merged set.",
	Args:  cobra.ExactArgs(1),
	RunE:  runOfferings,
}

func init() {
	offeringsCmd.Flags().BoolVar(&offeringsJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(offeringsCmd)
}

func runOfferings(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	// Offerings never read user metadata.
	cfg.MetadataBackend = config.BackendMemory
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	dept := strings.ToUpper(strings.TrimSpace(args[0]))
	if !types.IsDepartment(dept) {
		a.logger.Warn("unknown department, querying anyway", zap.String("dept", dept))
	}

	courses, err := a.offerings().Get(context.Background(), dept)
	if err != nil {
		return fmt.Errorf("failed to load offerings for %s: %w", dept, err)
	}

	if offeringsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(courses)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintOfferings(dept, courses)
	return nil
}
