package preferences

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/cab-scheduler/internal/schemas"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// legacyKeys maps unversioned document keys to their current names.
var legacyKeys = []struct {
	from string
	to   string
}{
	{"courses", "completedCourses"},
	{"desiredCourses", "requiredCourses"},
	{"NumberDesiredClasses", "desiredCourseCount"},
	{"NumberDesiredCourses", "desiredCourseCount"},
	{"numClasses", "totalClasses"},
	{"preferredDepts", "electiveDepartments"},
	{"unavailableTimes", "excludedSlots"},
	{"needWRIT", "needsWrit"},
}

// Decode turns a stored document into a normalised aggregate. A nil or
// empty blob yields the defaults. Unversioned documents are migrated before
// validation. Fields that fail validation fall back to their defaults while
// the rest of the document is kept; the error names what was dropped. The
// returned aggregate is always usable.
func Decode(blob []byte) (types.Preferences, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return types.DefaultPreferences(), nil
	}

	doc, err := Migrate(blob)
	if err != nil {
		return types.DefaultPreferences(), err
	}

	var rejected error
	if err := schemas.ValidatePreferences(doc); err != nil {
		rejected = fmt.Errorf("stored preferences rejected: %w", err)
		doc, err = dropInvalidFields(doc, err)
		if err != nil {
			return types.DefaultPreferences(), errors.Join(rejected, err)
		}
	}

	prefs := types.DefaultPreferences()
	if err := json.Unmarshal(doc, &prefs); err != nil {
		return types.DefaultPreferences(), fmt.Errorf("failed to decode stored preferences: %w", err)
	}
	return Normalize(prefs), rejected
}

// dropInvalidFields removes the top-level keys named by a schema validation
// failure and checks that what remains is valid. Failures at the document
// root cannot be repaired field by field.
func dropInvalidFields(doc []byte, validationErr error) ([]byte, error) {
	var fieldErrs *schemas.ValidationError
	if !errors.As(validationErr, &fieldErrs) {
		return nil, validationErr
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("stored preferences are not a JSON object: %w", err)
	}
	for _, fe := range fieldErrs.Errors {
		key, _, _ := strings.Cut(fe.Field, ".")
		if key == "" || key == "(root)" || key == "version" {
			return nil, validationErr
		}
		delete(fields, key)
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to repair stored preferences: %w", err)
	}
	if err := schemas.ValidatePreferences(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode serialises the aggregate for storage, stamping the current version.
func Encode(prefs types.Preferences) ([]byte, error) {
	prefs = Normalize(prefs)
	prefs.Version = types.PreferencesVersion
	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}
	return data, nil
}

// Migrate rewrites an unversioned document to the current key names. Keys
// already present under their current name are left alone. Versioned
// documents are returned unchanged.
func Migrate(blob []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("stored preferences are not a JSON object: %w", err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}

	if raw, ok := doc["version"]; ok {
		var version int
		if err := json.Unmarshal(raw, &version); err == nil && version >= 1 {
			return blob, nil
		}
	}

	for _, key := range legacyKeys {
		raw, ok := doc[key.from]
		if !ok {
			continue
		}
		delete(doc, key.from)
		if _, taken := doc[key.to]; taken || isNull(raw) {
			continue
		}
		doc[key.to] = raw
	}
	doc["version"] = json.RawMessage(fmt.Sprint(types.PreferencesVersion))

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate stored preferences: %w", err)
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Normalize drops duplicate entries, replaces nil lists with empty ones,
// clamps the total into [0, MaxClasses] and the MWF count into
// [0, TotalClasses].
func Normalize(prefs types.Preferences) types.Preferences {
	out := prefs.Clone()
	out.Version = types.PreferencesVersion
	out.TotalClasses = min(max(out.TotalClasses, 0), types.MaxClasses)
	if out.MWFClasses < 0 {
		out.MWFClasses = 0
	}
	if out.MWFClasses > out.TotalClasses {
		out.MWFClasses = out.TotalClasses
	}
	if out.DesiredCourseCount < 0 {
		out.DesiredCourseCount = 0
	}
	out.ExcludedSlots = uniqueStrings(out.ExcludedSlots)
	out.ElectiveDepartments = uniqueStrings(out.ElectiveDepartments)
	out.RequiredCourses = uniqueCourses(out.RequiredCourses)
	out.CompletedCourses = uniqueCourses(out.CompletedCourses)
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func uniqueCourses(courses []types.Course) []types.Course {
	seen := make(map[string]struct{}, len(courses))
	out := make([]types.Course, 0, len(courses))
	for _, c := range courses {
		c.Code = strings.TrimSpace(c.Code)
		if c.Code == "" {
			continue
		}
		if _, dup := seen[c.Code]; dup {
			continue
		}
		seen[c.Code] = struct{}{}
		out = append(out, c)
	}
	return out
}
