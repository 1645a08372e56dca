package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/cab-scheduler/internal/types"
)

func sampleResult() *Result {
	return &Result{
		Term: types.TermSpring2025,
		Schedules: []types.ScheduleCandidate{
			{Score: 2, Courses: []types.ScheduledCourse{{Code: "CSCI0320"}}},
		},
		Total:       1,
		GeneratedAt: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestView_ErrorClearsSchedules(t *testing.T) {
	view := NewView()
	view.Apply(sampleResult(), nil)
	assert.Len(t, view.State().Schedules, 1)

	view.Apply(nil, &GenerationError{Messages: []string{"No valid WRIT course found"}})
	state := view.State()
	assert.Empty(t, state.Schedules)
	assert.Equal(t, "No valid WRIT course found", state.Error)
	assert.Nil(t, state.GeneratedAt)
}

func TestView_SuccessClearsError(t *testing.T) {
	view := NewView()
	view.Apply(nil, &TransportError{Cause: fmt.Errorf("dial tcp: refused")})
	assert.Equal(t, ErrGenerationFailed.Error(), view.State().Error)

	view.Apply(sampleResult(), nil)
	state := view.State()
	assert.Empty(t, state.Error)
	assert.Equal(t, types.TermSpring2025, state.Term)
	assert.Len(t, state.Schedules, 1)
	assert.NotNil(t, state.GeneratedAt)
}

func TestView_CancelledLeavesStateAlone(t *testing.T) {
	view := NewView()
	view.Apply(sampleResult(), nil)

	view.Apply(nil, fmt.Errorf("superseded: %w", context.Canceled))
	assert.Len(t, view.State().Schedules, 1)
	assert.Empty(t, view.State().Error)
}

func TestView_StateIsCopy(t *testing.T) {
	view := NewView()
	view.Apply(sampleResult(), nil)

	state := view.State()
	state.Schedules[0] = types.ScheduleCandidate{}
	assert.Equal(t, "CSCI0320", view.State().Schedules[0].Courses[0].Code)
}

func TestNewView_Empty(t *testing.T) {
	state := NewView().State()
	assert.NotNil(t, state.Schedules)
	assert.Empty(t, state.Schedules)
	assert.Empty(t, state.Error)
}
