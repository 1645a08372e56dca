// Package observability provides structured logging and the boxed
// human-readable output used by the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/cab-scheduler/internal/schedule"
	"github.com/jonathan/cab-scheduler/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintOfferings outputs a department's offering set. Every course is
// listed; the set is what a user picks from.
func (p *Printer) PrintOfferings(dept string, courses []types.Course) {
	var sb strings.Builder
	if len(courses) == 0 {
		sb.WriteString("No courses offered.\n")
	}
	for _, c := range courses {
		sb.WriteString(fmt.Sprintf("%-10s %s\n", c.Code, c.Title))
	}
	p.printBox(fmt.Sprintf("OFFERINGS: %s (%d)", dept, len(courses)), sb.String())
}

// PrintPreferences outputs a summary of the preference aggregate.
func (p *Printer) PrintPreferences(prefs types.Preferences) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Classes:     %d (MWF %d, TTh %d)\n",
		prefs.TotalClasses, prefs.MWFClasses, prefs.TThClasses()))
	sb.WriteString(fmt.Sprintf("Needs WRIT:  %t\n", prefs.NeedsWrit))
	sb.WriteString(fmt.Sprintf("Required this semester: %d\n", prefs.DesiredCourseCount))
	sb.WriteString("\n")

	writeCourses(&sb, "Required Courses", prefs.RequiredCourses)
	writeCourses(&sb, "Completed Courses", prefs.CompletedCourses)

	if len(prefs.ElectiveDepartments) > 0 {
		sb.WriteString(fmt.Sprintf("Elective Departments: %s\n", strings.Join(prefs.ElectiveDepartments, ", ")))
	}
	if len(prefs.ExcludedSlots) > 0 {
		sb.WriteString(fmt.Sprintf("Excluded Times: %s\n", strings.Join(prefs.ExcludedSlots, ", ")))
	}

	p.printBox("PREFERENCES", sb.String())
}

func writeCourses(sb *strings.Builder, label string, courses []types.Course) {
	if len(courses) == 0 {
		return
	}
	sb.WriteString(label + ":\n")
	count := min(len(courses), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s", courses[i].Code))
		if courses[i].Title != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", courses[i].Title))
		}
		sb.WriteString("\n")
	}
	if len(courses) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(courses)-maxItemsToShow))
	}
	sb.WriteString("\n")
}

// PrintSchedules outputs one box per candidate schedule, in the order given.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSchedules(state schedule.ViewState) {
	if state.Error != "" {
		p.printBox("SCHEDULE GENERATION FAILED", state.Error)
		return
	}
	if len(state.Schedules) == 0 {
		p.printBox("SCHEDULES", "No schedules found.")
		return
	}

	for i, candidate := range state.Schedules {
		var sb strings.Builder
		for _, c := range candidate.Courses {
			line := fmt.Sprintf("%-10s %s", c.Code, c.Meets)
			if c.Writ {
				line += " [WRIT]"
			}
			sb.WriteString(line + "\n")
			if c.Title != "" {
				sb.WriteString(fmt.Sprintf("           %s\n", c.Title))
			}
		}
		if candidate.DayBalance != nil {
			sb.WriteString(fmt.Sprintf("\nMWF %d / TTh %d\n", candidate.DayBalance.MWFCount, candidate.DayBalance.TThCount))
		}
		p.printBox(fmt.Sprintf("SCHEDULE %d (score %.2f)", i+1, candidate.Score), sb.String())
	}
	if state.Total > len(state.Schedules) {
		fmt.Fprintf(p.out, "Showing %d of %d schedules.\n", len(state.Schedules), state.Total)
	}
}
