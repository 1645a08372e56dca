package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonathan/cab-scheduler/internal/types"
)

// ViewState is what a user currently sees.
type ViewState struct {
	Schedules   []types.ScheduleCandidate `json:"schedules"`
	Error       string                    `json:"error,omitempty"`
	Term        types.Term                `json:"term,omitempty"`
	Total       int                       `json:"total"`
	GeneratedAt *time.Time                `json:"generatedAt,omitempty"`
}

// View holds the last generation outcome. It is safe for concurrent use.
type View struct {
	mu    sync.RWMutex
	state ViewState
}

// NewView returns an empty view.
func NewView() *View {
	return &View{state: ViewState{Schedules: []types.ScheduleCandidate{}}}
}

// Apply records a generation outcome. A failure clears the schedules and
// stores the message; a success replaces the schedules and clears the
// message. Cancelled requests leave the view untouched.
func (v *View) Apply(res *Result, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err != nil {
		v.state = ViewState{
			Schedules: []types.ScheduleCandidate{},
			Error:     err.Error(),
		}
		return
	}
	generatedAt := res.GeneratedAt
	v.state = ViewState{
		Schedules:   append([]types.ScheduleCandidate{}, res.Schedules...),
		Term:        res.Term,
		Total:       res.Total,
		GeneratedAt: &generatedAt,
	}
}

// State returns a copy of the current state.
func (v *View) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := v.state
	out.Schedules = append([]types.ScheduleCandidate{}, v.state.Schedules...)
	return out
}
