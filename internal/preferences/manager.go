// Package preferences owns a user's scheduling preference aggregate: it loads
// the stored document once, applies edits in memory and writes the whole
// aggregate back on a debounce.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/clock"
	"github.com/jonathan/cab-scheduler/internal/metadata"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// Defaults for Options.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultMinInterval  = time.Second
	DefaultWriteTimeout = 10 * time.Second
)

var (
	// ErrInvalidPreference is returned for an edit that would break the
	// aggregate's invariants.
	ErrInvalidPreference = errors.New("invalid preference")
	// ErrNotLoaded is returned when the aggregate is used before Load.
	ErrNotLoaded = errors.New("preferences not loaded")
	// ErrClosed is returned for edits after Close.
	ErrClosed = errors.New("preferences manager closed")
)

// Options configures a Manager. Zero values use defaults; a negative
// MinInterval disables the write rate limit.
type Options struct {
	Debounce     time.Duration
	MinInterval  time.Duration
	WriteTimeout time.Duration
	Clock        clock.Clock
	Logger       *zap.Logger
}

// Manager holds one user's aggregate. It is safe for concurrent use.
type Manager struct {
	userID       string
	store        metadata.Store
	clock        clock.Clock
	logger       *zap.Logger
	debounce     time.Duration
	minInterval  time.Duration
	writeTimeout time.Duration

	loadMu sync.Mutex

	mu        sync.Mutex
	prefs     types.Preferences
	loaded    bool
	closed    bool
	dirty     bool
	timer     clock.Timer
	timerGen  uint64
	lastWrite time.Time
	writeSeq  uint64
	cancel    context.CancelFunc

	// writeMu serialises store writes so an older write cannot land after a
	// newer one.
	writeMu sync.Mutex
}

// NewManager creates a manager for userID backed by store.
func NewManager(userID string, store metadata.Store, opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	m := &Manager{
		userID:       userID,
		store:        store,
		clock:        opts.Clock,
		logger:       opts.Logger,
		debounce:     opts.Debounce,
		minInterval:  opts.MinInterval,
		writeTimeout: opts.WriteTimeout,
		prefs:        types.DefaultPreferences(),
	}
	if m.clock == nil {
		m.clock = clock.Real{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("user_id", userID))
	if m.debounce <= 0 {
		m.debounce = DefaultDebounce
	}
	if m.minInterval == 0 {
		m.minInterval = DefaultMinInterval
	}
	if m.writeTimeout <= 0 {
		m.writeTimeout = DefaultWriteTimeout
	}
	return m
}

// UserID returns the user the manager belongs to.
func (m *Manager) UserID() string { return m.userID }

// Load reads the stored document once. Later calls do nothing, so a reload
// can never overwrite edits made since the first load. A store read failure
// leaves the manager unloaded so edits cannot replace the stored document
// with defaults; the next call retries. Fields of the stored document that
// fail validation are logged and take their defaults.
func (m *Manager) Load(ctx context.Context) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if m.Loaded() {
		return nil
	}

	blob, err := m.store.Get(ctx, m.userID)
	if err != nil {
		m.logger.Warn("failed to read stored preferences", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrNotLoaded, err)
	}
	prefs, decodeErr := Decode(blob)
	if decodeErr != nil {
		m.logger.Warn("stored preferences partially discarded", zap.Error(decodeErr))
	}

	m.mu.Lock()
	m.prefs = prefs
	m.loaded = true
	m.mu.Unlock()
	m.logger.Debug("preferences loaded", zap.Bool("stored", len(blob) > 0))
	return nil
}

// Loaded reports whether Load has completed.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Snapshot returns a deep copy of the current aggregate.
func (m *Manager) Snapshot() types.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.Clone()
}

// Pending reports whether edits are waiting to be written.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// SetTotalClasses sets the number of classes per semester. The MWF count is
// lowered to match if it would exceed the new total.
func (m *Manager) SetTotalClasses(n int) error {
	if n < 0 || n > types.MaxClasses {
		return fmt.Errorf("%w: total classes must be between 0 and %d, got %d",
			ErrInvalidPreference, types.MaxClasses, n)
	}
	return m.mutate(func(p *types.Preferences) bool {
		if p.TotalClasses == n {
			return false
		}
		p.TotalClasses = n
		if p.MWFClasses > n {
			p.MWFClasses = n
		}
		return true
	})
}

// SetMWFClasses sets how many classes meet Monday/Wednesday/Friday.
func (m *Manager) SetMWFClasses(k int) error {
	return m.mutateChecked(func(p *types.Preferences) (bool, error) {
		if k < 0 || k > p.TotalClasses {
			return false, fmt.Errorf("%w: MWF classes must be between 0 and %d, got %d",
				ErrInvalidPreference, p.TotalClasses, k)
		}
		if p.MWFClasses == k {
			return false, nil
		}
		p.MWFClasses = k
		return true, nil
	})
}

// SetNeedsWrit sets whether a writing-designated course is required.
func (m *Manager) SetNeedsWrit(needs bool) error {
	return m.mutate(func(p *types.Preferences) bool {
		if p.NeedsWrit == needs {
			return false
		}
		p.NeedsWrit = needs
		return true
	})
}

// SetDesiredCourseCount sets how many required courses to take this semester.
func (m *Manager) SetDesiredCourseCount(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: desired course count must be at least 0, got %d", ErrInvalidPreference, n)
	}
	return m.mutate(func(p *types.Preferences) bool {
		if p.DesiredCourseCount == n {
			return false
		}
		p.DesiredCourseCount = n
		return true
	})
}

// ToggleExcludedSlot adds slot to the exclusions, or removes it if present.
func (m *Manager) ToggleExcludedSlot(slot string) error {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return fmt.Errorf("%w: time slot is empty", ErrInvalidPreference)
	}
	return m.mutate(func(p *types.Preferences) bool {
		p.ExcludedSlots = toggle(p.ExcludedSlots, slot)
		return true
	})
}

// ToggleElectiveDepartment adds dept to the elective departments, or removes
// it if present.
func (m *Manager) ToggleElectiveDepartment(dept string) error {
	dept = strings.TrimSpace(dept)
	if dept == "" {
		return fmt.Errorf("%w: department is empty", ErrInvalidPreference)
	}
	return m.mutate(func(p *types.Preferences) bool {
		p.ElectiveDepartments = toggle(p.ElectiveDepartments, dept)
		return true
	})
}

// AddRequiredCourse appends course unless one with the same code is present.
func (m *Manager) AddRequiredCourse(course types.Course) error {
	course, err := checkCourse(course)
	if err != nil {
		return err
	}
	return m.mutate(func(p *types.Preferences) bool {
		if types.ContainsCourse(p.RequiredCourses, course.Code) {
			return false
		}
		p.RequiredCourses = append(p.RequiredCourses, course)
		return true
	})
}

// RemoveRequiredCourse removes the required course with code.
func (m *Manager) RemoveRequiredCourse(code string) error {
	return m.mutate(func(p *types.Preferences) bool {
		var removed bool
		p.RequiredCourses, removed = removeCourse(p.RequiredCourses, strings.TrimSpace(code))
		return removed
	})
}

// AddCompletedCourse appends course unless one with the same code is present.
func (m *Manager) AddCompletedCourse(course types.Course) error {
	course, err := checkCourse(course)
	if err != nil {
		return err
	}
	return m.mutate(func(p *types.Preferences) bool {
		if types.ContainsCourse(p.CompletedCourses, course.Code) {
			return false
		}
		p.CompletedCourses = append(p.CompletedCourses, course)
		return true
	})
}

// RemoveCompletedCourse removes the completed course with code.
func (m *Manager) RemoveCompletedCourse(code string) error {
	return m.mutate(func(p *types.Preferences) bool {
		var removed bool
		p.CompletedCourses, removed = removeCourse(p.CompletedCourses, strings.TrimSpace(code))
		return removed
	})
}

func (m *Manager) mutate(fn func(p *types.Preferences) bool) error {
	return m.mutateChecked(func(p *types.Preferences) (bool, error) {
		return fn(p), nil
	})
}

// mutateChecked applies fn under the lock and schedules a write if it
// reported a change.
func (m *Manager) mutateChecked(fn func(p *types.Preferences) (bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if !m.loaded {
		return ErrNotLoaded
	}

	changed, err := fn(&m.prefs)
	if err != nil || !changed {
		return err
	}
	m.dirty = true
	m.scheduleLocked(m.debounce)
	return nil
}

// scheduleLocked (re)starts the write timer.
func (m *Manager) scheduleLocked(d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = m.clock.AfterFunc(d, func() { m.onTimer(gen) })
}

func (m *Manager) onTimer(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.timerGen || !m.dirty {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	if m.minInterval > 0 && !m.lastWrite.IsZero() {
		if wait := m.minInterval - now.Sub(m.lastWrite); wait > 0 {
			// Too soon after the previous write: push to the end of the window.
			m.scheduleLocked(wait)
			m.mu.Unlock()
			m.logger.Debug("preferences write deferred", zap.Duration("wait", wait))
			return
		}
	}

	m.timer = nil
	snapshot, seq, ctx, cancel := m.beginWriteLocked(context.Background())
	m.mu.Unlock()

	if err := m.write(ctx, cancel, seq, snapshot); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("preferences write superseded")
			return
		}
		m.logger.Error("failed to persist preferences", zap.Error(err))
	}
}

// beginWriteLocked captures the state to write and cancels any older write
// still in flight.
func (m *Manager) beginWriteLocked(parent context.Context) (types.Preferences, uint64, context.Context, context.CancelFunc) {
	snapshot := m.prefs.Clone()
	m.dirty = false
	m.lastWrite = m.clock.Now()

	if m.cancel != nil {
		m.cancel()
	}
	m.writeSeq++
	ctx, cancel := context.WithTimeout(parent, m.writeTimeout)
	m.cancel = cancel
	return snapshot, m.writeSeq, ctx, cancel
}

func (m *Manager) write(ctx context.Context, cancel context.CancelFunc, seq uint64, snapshot types.Preferences) error {
	defer func() {
		m.mu.Lock()
		if m.writeSeq == seq {
			m.cancel = nil
		}
		m.mu.Unlock()
		cancel()
	}()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := Encode(snapshot)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, m.userID, blob); err != nil {
		return err
	}
	m.logger.Debug("preferences persisted", zap.Uint64("write", seq))
	return nil
}

// Flush writes pending edits now, ignoring the debounce and rate limit.
// It returns the store error, if any.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	if !m.loaded || !m.dirty {
		m.mu.Unlock()
		return nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	snapshot, seq, writeCtx, cancel := m.beginWriteLocked(ctx)
	m.mu.Unlock()

	if err := m.write(writeCtx, cancel, seq, snapshot); err != nil {
		return fmt.Errorf("flush preferences for %s: %w", m.userID, err)
	}
	return nil
}

// Close stops the write timer. Pending edits are discarded; call Flush first
// to keep them.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func toggle(values []string, v string) []string {
	for i, existing := range values {
		if existing == v {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return append(values, v)
}

func removeCourse(courses []types.Course, code string) ([]types.Course, bool) {
	for i, c := range courses {
		if c.Code == code {
			return append(courses[:i:i], courses[i+1:]...), true
		}
	}
	return courses, false
}

func checkCourse(course types.Course) (types.Course, error) {
	course.Code = strings.TrimSpace(course.Code)
	course.Title = strings.TrimSpace(course.Title)
	if course.Code == "" {
		return course, fmt.Errorf("%w: course code is empty", ErrInvalidPreference)
	}
	return course, nil
}
