package types

import (
	"github.com/go-playground/validator/v10"
)

// PreferencesVersion is the current version of the stored preference document.
const PreferencesVersion = 1

// Default preference values applied to any field missing from stored metadata.
const (
	DefaultTotalClasses = 3
	DefaultMWFClasses   = 2

	// MaxClasses bounds both class counts.
	MaxClasses = 10
)

// Preferences is a student's scheduling preference aggregate. It is the
// document persisted wholesale to the identity provider's user metadata.
type Preferences struct {
	Version             int      `json:"version"`
	TotalClasses        int      `json:"totalClasses" validate:"min=0,max=10"`
	MWFClasses          int      `json:"mwfClasses" validate:"min=0,max=10,ltefield=TotalClasses"`
	ExcludedSlots       []string `json:"excludedSlots" validate:"unique,dive,required"`
	RequiredCourses     []Course `json:"requiredCourses" validate:"unique=Code,dive"`
	CompletedCourses    []Course `json:"completedCourses" validate:"unique=Code,dive"`
	ElectiveDepartments []string `json:"electiveDepartments" validate:"unique,dive,required"`
	NeedsWrit           bool     `json:"needsWrit"`
	DesiredCourseCount  int      `json:"desiredCourseCount" validate:"min=0"`
}

// DefaultPreferences returns the aggregate used for a user with no stored metadata.
func DefaultPreferences() Preferences {
	return Preferences{
		Version:             PreferencesVersion,
		TotalClasses:        DefaultTotalClasses,
		MWFClasses:          DefaultMWFClasses,
		ExcludedSlots:       []string{},
		RequiredCourses:     []Course{},
		CompletedCourses:    []Course{},
		ElectiveDepartments: []string{},
	}
}

// TThClasses is the number of Tuesday/Thursday classes implied by the split.
func (p Preferences) TThClasses() int {
	return p.TotalClasses - p.MWFClasses
}

// Clone returns a deep copy of p.
func (p Preferences) Clone() Preferences {
	out := p
	out.ExcludedSlots = append([]string{}, p.ExcludedSlots...)
	out.RequiredCourses = append([]Course{}, p.RequiredCourses...)
	out.CompletedCourses = append([]Course{}, p.CompletedCourses...)
	out.ElectiveDepartments = append([]string{}, p.ElectiveDepartments...)
	return out
}

// Validate checks the aggregate invariants.
func (p *Preferences) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}
