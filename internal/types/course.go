// Package types provides type definitions for structured data used throughout the cab-scheduler system.
package types

// Course is a catalog course identified by its code (e.g. "CSCI 0320").
type Course struct {
	Code  string `json:"code" validate:"required"`
	Title string `json:"title"`
}

// Term is a catalog term code such as "202410" (fall) or "202420" (spring).
type Term string

const (
	// TermFall2024 is the first term queried for historical offerings.
	TermFall2024 Term = "202410"
	// TermSpring2025 is the second offerings term and the default generation term.
	TermSpring2025 Term = "202420"
)

// DefaultOfferingTerms returns the terms merged into a department's offering set, in priority order.
func DefaultOfferingTerms() []Term {
	return []Term{TermFall2024, TermSpring2025}
}

// ContainsCourse reports whether courses holds a course with the given code.
func ContainsCourse(courses []Course, code string) bool {
	for _, c := range courses {
		if c.Code == code {
			return true
		}
	}
	return false
}

// CourseCodes returns the codes of courses in order.
func CourseCodes(courses []Course) []string {
	codes := make([]string, 0, len(courses))
	for _, c := range courses {
		codes = append(codes, c.Code)
	}
	return codes
}
