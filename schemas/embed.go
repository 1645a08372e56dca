// Package schemas holds the JSON Schema documents for stored data.
package schemas

import _ "embed"

// Preferences is the schema for the stored preference document.
//
//go:embed preferences.schema.json
var Preferences string
