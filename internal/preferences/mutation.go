package preferences

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jonathan/cab-scheduler/internal/types"
)

// Mutation operation names accepted by Apply.
const (
	OpSetTotalClasses          = "setTotalClasses"
	OpSetMWFClasses            = "setMwfClasses"
	OpSetNeedsWrit             = "setNeedsWrit"
	OpSetDesiredCourseCount    = "setDesiredCourseCount"
	OpToggleExcludedSlot       = "toggleExcludedSlot"
	OpToggleElectiveDepartment = "toggleElectiveDepartment"
	OpAddRequiredCourse        = "addRequiredCourse"
	OpRemoveRequiredCourse     = "removeRequiredCourse"
	OpAddCompletedCourse       = "addCompletedCourse"
	OpRemoveCompletedCourse    = "removeCompletedCourse"
)

// Mutation is a named edit with a JSON-encoded argument, as received by the
// HTTP API.
type Mutation struct {
	Op    string          `json:"op" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// Ops lists the supported operation names.
func Ops() []string {
	return []string{
		OpSetTotalClasses,
		OpSetMWFClasses,
		OpSetNeedsWrit,
		OpSetDesiredCourseCount,
		OpToggleExcludedSlot,
		OpToggleElectiveDepartment,
		OpAddRequiredCourse,
		OpRemoveRequiredCourse,
		OpAddCompletedCourse,
		OpRemoveCompletedCourse,
	}
}

// Apply decodes the mutation's value and performs the named edit. Unknown
// operations and undecodable values wrap ErrInvalidPreference.
func (m *Manager) Apply(mut Mutation) error {
	switch mut.Op {
	case OpSetTotalClasses:
		var n int
		if err := decodeValue(mut, &n); err != nil {
			return err
		}
		return m.SetTotalClasses(n)
	case OpSetMWFClasses:
		var n int
		if err := decodeValue(mut, &n); err != nil {
			return err
		}
		return m.SetMWFClasses(n)
	case OpSetNeedsWrit:
		var b bool
		if err := decodeValue(mut, &b); err != nil {
			return err
		}
		return m.SetNeedsWrit(b)
	case OpSetDesiredCourseCount:
		var n int
		if err := decodeValue(mut, &n); err != nil {
			return err
		}
		return m.SetDesiredCourseCount(n)
	case OpToggleExcludedSlot:
		var s string
		if err := decodeValue(mut, &s); err != nil {
			return err
		}
		return m.ToggleExcludedSlot(s)
	case OpToggleElectiveDepartment:
		var s string
		if err := decodeValue(mut, &s); err != nil {
			return err
		}
		return m.ToggleElectiveDepartment(s)
	case OpAddRequiredCourse:
		var c types.Course
		if err := decodeValue(mut, &c); err != nil {
			return err
		}
		return m.AddRequiredCourse(c)
	case OpRemoveRequiredCourse:
		var code string
		if err := decodeValue(mut, &code); err != nil {
			return err
		}
		return m.RemoveRequiredCourse(code)
	case OpAddCompletedCourse:
		var c types.Course
		if err := decodeValue(mut, &c); err != nil {
			return err
		}
		return m.AddCompletedCourse(c)
	case OpRemoveCompletedCourse:
		var code string
		if err := decodeValue(mut, &code); err != nil {
			return err
		}
		return m.RemoveCompletedCourse(code)
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidPreference, mut.Op)
	}
}

func decodeValue(mut Mutation, out any) error {
	if v := bytes.TrimSpace(mut.Value); len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidPreference, mut.Op)
	}
	if err := json.Unmarshal(mut.Value, out); err != nil {
		return fmt.Errorf("%w: bad value for %s: %v", ErrInvalidPreference, mut.Op, err)
	}
	return nil
}
