package types

import "strings"

// ScheduledCourse is one course inside a generated schedule.
type ScheduledCourse struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Meets string `json:"meets"`
	Writ  bool   `json:"writ"`
}

// ScheduleCandidate is a weekly schedule returned by the generator. Score is
// carried for display only; candidates keep the generator's order.
type ScheduleCandidate struct {
	Score      float64           `json:"score"`
	Courses    []ScheduledCourse `json:"courses"`
	DayBalance *DayBalance       `json:"dayBalance,omitempty"`
}

// DayBalance is the MWF/TTh split of a generated schedule.
type DayBalance struct {
	MWFCount int `json:"mwfCount"`
	TThCount int `json:"tthCount"`
}

// GenerateResponse is the generator's response envelope.
type GenerateResponse struct {
	Success *bool    `json:"success,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Error   string   `json:"error,omitempty"`
	// MissingPrerequisites accompanies a "Missing prerequisites" error.
	MissingPrerequisites []string            `json:"missingPrerequisites,omitempty"`
	SchedulesCount       int                 `json:"schedulesCount,omitempty"`
	Schedules            []ScheduleCandidate `json:"schedules,omitempty"`
}

// Failed reports whether the generator signalled a logical failure.
func (r *GenerateResponse) Failed() bool {
	if r.Success != nil && !*r.Success {
		return true
	}
	return len(r.Errors) > 0 || r.Error != ""
}

// Messages returns the human-readable failure messages in server order.
func (r *GenerateResponse) Messages() []string {
	msgs := append([]string{}, r.Errors...)
	if r.Error != "" {
		msg := r.Error
		if len(r.MissingPrerequisites) > 0 {
			msg += ": " + strings.Join(r.MissingPrerequisites, ", ")
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
