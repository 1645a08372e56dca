// Package schedule builds schedule-generation requests from a preference
// aggregate and keeps the top candidates the generator returns.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/fetch"
	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// DefaultTopN is how many candidates are kept from a response.
const DefaultTopN = 3

// Weekdays is the fixed day list sent with every request.
var Weekdays = []string{"M", "T", "W", "Th", "F"}

var (
	// ErrGenerationFailed is the user-visible error for transport failures.
	ErrGenerationFailed = errors.New("schedule generation failed, please try again later")
	// ErrNotLoaded is returned when generating from an aggregate that has
	// not finished loading.
	ErrNotLoaded = preferences.ErrNotLoaded
)

// GenerationError carries the failure messages reported by the generator.
type GenerationError struct {
	Messages []string
}

func (e *GenerationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// TransportError wraps a network or HTTP failure. Its message is the
// generic ErrGenerationFailed text; the cause is kept for logging.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return ErrGenerationFailed.Error() }

// Unwrap returns the underlying failure.
func (e *TransportError) Unwrap() error { return e.Cause }

// Is matches ErrGenerationFailed.
func (e *TransportError) Is(target error) bool { return target == ErrGenerationFailed }

// Source supplies the aggregate to generate from.
type Source interface {
	Loaded() bool
	Snapshot() types.Preferences
}

// Result is the kept portion of a generator response.
type Result struct {
	Term        types.Term                `json:"term"`
	Schedules   []types.ScheduleCandidate `json:"schedules"`
	Total       int                       `json:"total"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// Config holds configuration for the client. Zero values use defaults.
type Config struct {
	Term    types.Term
	TopN    int
	Options *fetch.Options
	Logger  *zap.Logger
}

// Client calls GET {BaseURL}/generate.
type Client struct {
	baseURL string
	term    types.Term
	topN    int
	options *fetch.Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient creates a generator client.
func NewClient(baseURL string, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		term:    cfg.Term,
		topN:    cfg.TopN,
		options: cfg.Options,
		logger:  cfg.Logger,
		now:     time.Now,
	}
	if c.term == "" {
		c.term = types.TermSpring2025
	}
	if c.topN <= 0 {
		c.topN = DefaultTopN
	}
	if c.options == nil {
		c.options = fetch.DefaultOptions()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Term returns the term requests are generated for.
func (c *Client) Term() types.Term { return c.term }

// BuildQuery serialises the aggregate into generator query parameters.
func BuildQuery(prefs types.Preferences, userID string, term types.Term) url.Values {
	q := url.Values{}
	q.Set("term", string(term))
	q.Set("classes", strconv.Itoa(prefs.TotalClasses))
	q.Set("user", userID)
	q.Set("needed", strings.Join(types.CourseCodes(prefs.RequiredCourses), ","))
	q.Set("times", strings.Join(prefs.ExcludedSlots, ","))
	q.Set("days", strings.Join(Weekdays, ","))
	q.Set("mwf", strconv.Itoa(prefs.MWFClasses))
	q.Set("tth", strconv.Itoa(prefs.TThClasses()))
	q.Set("reqThisSem", strconv.Itoa(prefs.DesiredCourseCount))
	q.Set("depts", strings.Join(prefs.ElectiveDepartments, ","))
	q.Set("writ", strconv.FormatBool(prefs.NeedsWrit))
	return q
}

// Generate requests schedules for the source's current aggregate. A
// logical failure reported by the generator returns *GenerationError; any
// transport failure, a deadline included, returns a *TransportError matching
// ErrGenerationFailed. Only cancellation is returned as is. Candidates keep the generator's order; only the first TopN are kept.
func (c *Client) Generate(ctx context.Context, src Source, userID string) (*Result, error) {
	if !src.Loaded() {
		return nil, ErrNotLoaded
	}

	prefs := src.Snapshot()
	endpoint := fmt.Sprintf("%s/generate?%s", c.baseURL, BuildQuery(prefs, userID, c.term).Encode())

	var resp types.GenerateResponse
	if err := fetch.GetJSON(ctx, endpoint, &resp, c.options); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		c.logger.Error("schedule generation request failed",
			zap.String("user_id", userID),
			zap.Int("status", fetch.StatusCode(err)),
			zap.Error(err))
		return nil, &TransportError{Cause: err}
	}

	if resp.Failed() {
		msgs := resp.Messages()
		if len(msgs) == 0 {
			msgs = []string{ErrGenerationFailed.Error()}
		}
		c.logger.Info("generator rejected request",
			zap.String("user_id", userID),
			zap.Strings("messages", msgs))
		return nil, &GenerationError{Messages: msgs}
	}

	kept := resp.Schedules
	if len(kept) > c.topN {
		kept = kept[:c.topN]
	}
	total := resp.SchedulesCount
	if total < len(resp.Schedules) {
		total = len(resp.Schedules)
	}
	return &Result{
		Term:        c.term,
		Schedules:   append([]types.ScheduleCandidate{}, kept...),
		Total:       total,
		GeneratedAt: c.now(),
	}, nil
}
