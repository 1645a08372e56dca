package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/schedule"
	"github.com/jonathan/cab-scheduler/internal/types"
)

func TestPrintOfferings(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintOfferings("CSCI", []types.Course{
		{Code: "CSCI0320", Title: "Intro to Software Engineering"},
		{Code: "CSCI0170", Title: "CS Theory"},
	})
	output := buf.String()

	assert.Contains(t, output, "OFFERINGS: CSCI (2)")
	assert.Contains(t, output, "CSCI0320")
	assert.Contains(t, output, "CS Theory")
}

func TestPrintOfferings_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintOfferings("ZZZZ", nil)
	assert.Contains(t, buf.String(), "No courses offered.")
}

func TestPrintPreferences(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	prefs := types.DefaultPreferences()
	prefs.TotalClasses = 4
	prefs.MWFClasses = 1
	prefs.NeedsWrit = true
	prefs.ElectiveDepartments = []string{"MATH", "APMA"}
	for _, code := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7"} {
		prefs.CompletedCourses = append(prefs.CompletedCourses, types.Course{Code: code})
	}

	p.PrintPreferences(prefs)
	output := buf.String()

	assert.Contains(t, output, "PREFERENCES")
	assert.Contains(t, output, "MWF 1, TTh 3")
	assert.Contains(t, output, "Needs WRIT:  true")
	assert.Contains(t, output, "MATH, APMA")
	assert.Contains(t, output, "... and 2 more")
	assert.NotContains(t, output, "Required Courses")
}

func TestPrintSchedules(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSchedules(schedule.ViewState{
		Total: 7,
		Schedules: []types.ScheduleCandidate{
			{Score: 12.5, Courses: []types.ScheduledCourse{
				{Code: "ENGL0900", Title: "Critical Reading and Writing", Meets: "TTh 1-2:20", Writ: true},
			}, DayBalance: &types.DayBalance{MWFCount: 0, TThCount: 1}},
			{Score: 3, Courses: []types.ScheduledCourse{{Code: "CSCI0320", Meets: "MWF 10-10:50"}}},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "SCHEDULE 1 (score 12.50)")
	assert.Contains(t, output, "[WRIT]")
	assert.Contains(t, output, "MWF 0 / TTh 1")
	assert.Contains(t, output, "SCHEDULE 2")
	assert.Contains(t, output, "Showing 2 of 7 schedules.")
	assert.Less(t, strings.Index(output, "ENGL0900"), strings.Index(output, "CSCI0320"))
}

func TestPrintSchedules_Error(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSchedules(schedule.ViewState{Error: "No valid WRIT course found"})

	assert.Contains(t, buf.String(), "SCHEDULE GENERATION FAILED")
	assert.Contains(t, buf.String(), "No valid WRIT course found")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).printBox("T", strings.Repeat("x", 200))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"", "debug", "WARN", "nonsense"} {
		logger, err := NewLogger(level)
		assert.NoError(t, err, level)
		assert.NotNil(t, logger)
	}

	logger, _ := NewLogger("warn")
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}

func TestLoggerContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}
