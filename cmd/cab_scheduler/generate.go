package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jonathan/cab-scheduler/internal/observability"
	"github.com/jonathan/cab-scheduler/internal/schedule"
)

var (
	generateUserID string
	generateJSON   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate candidate schedules from a user's stored preferences",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateUserID, "user", "u", "", "User ID (required)")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Print JSON instead of boxes")
	_ = generateCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	ctx := context.Background()
	store, closeStore, err := a.store(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := a.loadManager(ctx, store, generateUserID)
	if err != nil {
		return err
	}
	defer m.Close()

	view := schedule.NewView()
	res, genErr := a.scheduler().Generate(ctx, m, generateUserID)
	view.Apply(res, genErr)

	if generateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(view.State()); err != nil {
			return err
		}
	} else {
		observability.NewPrinter(cmd.OutOrStdout()).PrintSchedules(view.State())
	}

	// The view already shows logical failures; only transport problems fail the command.
	var genFailure *schedule.GenerationError
	if genErr != nil && !errors.As(genErr, &genFailure) {
		return genErr
	}
	return nil
}
