// Package schemas provides JSON Schema validation for stored documents.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	rootschemas "github.com/jonathan/cab-scheduler/schemas"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var (
	preferencesOnce   sync.Once
	preferencesSchema *gojsonschema.Schema
	preferencesErr    error
)

func compiledPreferences() (*gojsonschema.Schema, error) {
	preferencesOnce.Do(func() {
		preferencesSchema, preferencesErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(rootschemas.Preferences))
		if preferencesErr != nil {
			preferencesErr = &SchemaLoadError{
				Path:    "preferences.schema.json",
				Message: "embedded schema does not compile",
				Cause:   preferencesErr,
			}
		}
	})
	return preferencesSchema, preferencesErr
}

// ValidatePreferences validates a stored preference document against the
// embedded preferences schema.
func ValidatePreferences(doc []byte) error {
	schema, err := compiledPreferences()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to read preference document: %w", err)
	}
	return resultError(result)
}

func resultError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
