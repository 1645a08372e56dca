package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/observability"
	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/types"
)

var (
	prefsUserID string
	prefsJSON   bool
	prefsDept   string
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or edit a user's scheduling preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <op> <value>",
	Short: "Apply one edit and save it",
	Long: "Apply one named edit to the stored preferences and write the result.\n\n" +
		"Operations: " + strings.Join(preferences.Ops(), ", ") + ".\n\n" +
		"Values are JSON; bare words are taken as strings. Course additions accept\n" +
		"a course code, and --dept looks its title up in that department's offerings.",
	Args: cobra.ExactArgs(2),
	RunE: runPrefsSet,
}

func init() {
	prefsCmd.PersistentFlags().StringVarP(&prefsUserID, "user", "u", "", "User ID (required)")
	_ = prefsCmd.MarkPersistentFlagRequired("user")
	prefsShowCmd.Flags().BoolVar(&prefsJSON, "json", false, "Print the stored JSON document")
	prefsSetCmd.Flags().StringVar(&prefsDept, "dept", "", "Department to resolve a course title from")

	prefsCmd.AddCommand(prefsShowCmd, prefsSetCmd)
	rootCmd.AddCommand(prefsCmd)
}

func runPrefsShow(cmd *cobra.Command, _ []string) error {
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

	m, err := a.loadManager(ctx, store, prefsUserID)
	if err != nil {
		return err
	}
	defer m.Close()

	prefs := m.Snapshot()
	if prefsJSON {
		doc, err := preferences.Encode(prefs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintPreferences(prefs)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	ctx := context.Background()
	op := args[0]
	value, err := mutationValue(op, args[1])
	if err != nil {
		return err
	}
	if prefsDept != "" && isCourseAddition(op) {
		value, err = resolveTitle(ctx, a, prefsDept, value)
		if err != nil {
			return err
		}
	}

	store, closeStore, err := a.store(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := a.loadManager(ctx, store, prefsUserID)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Apply(preferences.Mutation{Op: op, Value: value}); err != nil {
		return err
	}
	if !m.Pending() {
		a.logger.Info("preferences unchanged", zap.String("op", op))
	}
	if err := m.Flush(ctx); err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintPreferences(m.Snapshot())
	return nil
}

func isCourseAddition(op string) bool {
	return op == preferences.OpAddRequiredCourse || op == preferences.OpAddCompletedCourse
}

// mutationValue turns a command-line argument into a mutation value. Valid
// JSON is used as given and anything else becomes a JSON string. A bare
// course code for a course addition becomes {"code": ...}.
func mutationValue(op, raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	var value json.RawMessage
	if json.Valid([]byte(raw)) {
		value = json.RawMessage(raw)
	} else {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		value = encoded
	}

	if isCourseAddition(op) {
		var code string
		if json.Unmarshal(value, &code) == nil {
			return json.Marshal(types.Course{Code: code})
		}
	}
	return value, nil
}

// resolveTitle fills in a course's title from its department's offerings.
func resolveTitle(ctx context.Context, a *app, dept string, value json.RawMessage) (json.RawMessage, error) {
	var course types.Course
	if err := json.Unmarshal(value, &course); err != nil {
		return nil, fmt.Errorf("%w: %v", preferences.ErrInvalidPreference, err)
	}
	if course.Title != "" {
		return value, nil
	}
	found, ok, err := a.offerings().Find(ctx, strings.ToUpper(dept), course.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to load offerings for %s: %w", dept, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s is not offered by %s", course.Code, strings.ToUpper(dept))
	}
	return json.Marshal(found)
}
