package schemas

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func TestAllSchemaFiles_ValidJSON(t *testing.T) {
	schemaFiles := []string{
		"preferences.schema.json",
	}

	for _, schemaFile := range schemaFiles {
		t.Run(schemaFile, func(t *testing.T) {
			data, err := os.ReadFile(schemaFile)
			require.NoError(t, err, "should be able to read schema file")

			var v map[string]any
			err = json.Unmarshal(data, &v)
			assert.NoError(t, err, "schema file should be valid JSON: %s", schemaFile)
			assert.Equal(t, "http://json-schema.org/draft-07/schema#", v["$schema"])
		})
	}
}

func TestPreferencesSchema_Compiles(t *testing.T) {
	_, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(Preferences))
	require.NoError(t, err, "embedded preferences schema should compile")
}

func TestPreferencesSchema_EmbeddedMatchesFile(t *testing.T) {
	data, err := os.ReadFile("preferences.schema.json")
	require.NoError(t, err)
	assert.Equal(t, string(data), Preferences)
}

func TestPreferencesSchema_CourseDefinitionResolves(t *testing.T) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(Preferences))
	require.NoError(t, err)

	result, err := schema.Validate(gojsonschema.NewStringLoader(
		`{"version":1,"requiredCourses":[{"title":"missing code"}]}`))
	require.NoError(t, err)
	assert.False(t, result.Valid(), "course without code should be rejected via #/definitions/course")
}
