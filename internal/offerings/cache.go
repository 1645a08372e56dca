// Package offerings provides the course offering cache: a read-through cache
// from department code to the de-duplicated courses offered across the
// configured catalog terms.
package offerings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/cab-scheduler/internal/clock"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// ErrEmptyDepartment is returned for a blank department code.
var ErrEmptyDepartment = errors.New("department code is empty")

// Fetcher retrieves one term's offerings for a department.
type Fetcher interface {
	Filter(ctx context.Context, term types.Term, dept string) ([]types.Course, error)
}

// Policy decides when a cached department entry stops being served.
type Policy interface {
	Expired(storedAt, now time.Time) bool
}

// NeverExpire keeps entries for the lifetime of the cache.
type NeverExpire struct{}

// Expired always returns false.
func (NeverExpire) Expired(time.Time, time.Time) bool { return false }

// ExpireAfter expires entries once they are older than the duration.
type ExpireAfter time.Duration

// Expired reports whether storedAt is at least d before now.
func (d ExpireAfter) Expired(storedAt, now time.Time) bool {
	return now.Sub(storedAt) >= time.Duration(d)
}

// Config holds configuration for the cache. Zero values use defaults.
type Config struct {
	// Terms are queried in parallel on a miss; earlier terms win title ties.
	// The last term doubles as the fallback term.
	Terms  []types.Term
	Clock  clock.Clock
	Policy Policy
	Logger *zap.Logger
}

type entry struct {
	courses  []types.Course
	storedAt time.Time
}

// Cache maps department codes to offering sets. It is safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	terms   []types.Term
	clock   clock.Clock
	policy  Policy
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry

	inflight singleflight.Group
}

// New creates a cache over fetcher.
func New(fetcher Fetcher, cfg *Config) *Cache {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Cache{
		fetcher: fetcher,
		terms:   cfg.Terms,
		clock:   cfg.Clock,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		entries: make(map[string]entry),
	}
	if len(c.terms) == 0 {
		c.terms = types.DefaultOfferingTerms()
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.policy == nil {
		c.policy = NeverExpire{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Get returns the offering set for dept. A cached set is returned without
// network access. On a miss all terms are fetched in parallel and merged;
// concurrent misses for the same department share one fetch. If any term
// fails, a single fetch of the fallback term is returned uncached.
func (c *Cache) Get(ctx context.Context, dept string) ([]types.Course, error) {
	dept = strings.TrimSpace(dept)
	if dept == "" {
		return nil, ErrEmptyDepartment
	}

	if courses, ok := c.lookup(dept); ok {
		return cloneCourses(courses), nil
	}

	// The shared fetch must outlive any single caller; each caller still
	// stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(dept, func() (any, error) {
		return c.load(shared, dept)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneCourses(res.Val.([]types.Course)), nil
	}
}

// Find returns the course with code from dept's offering set.
func (c *Cache) Find(ctx context.Context, dept, code string) (types.Course, bool, error) {
	courses, err := c.Get(ctx, dept)
	if err != nil {
		return types.Course{}, false, err
	}
	for _, course := range courses {
		if course.Code == code {
			return course, true, nil
		}
	}
	return types.Course{}, false, nil
}

// Len returns the number of cached departments.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(dept string) ([]types.Course, bool) {
	c.mu.RLock()
	e, ok := c.entries[dept]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.policy.Expired(e.storedAt, c.clock.Now()) {
		c.mu.Lock()
		if cur, still := c.entries[dept]; still && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, dept)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.courses, true
}

func (c *Cache) store(dept string, courses []types.Course) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[dept] = entry{courses: courses, storedAt: c.clock.Now()}
}

// load fetches every term in parallel, merges, and caches. On failure it
// falls back to the last term without caching.
func (c *Cache) load(ctx context.Context, dept string) ([]types.Course, error) {
	results := make([][]types.Course, len(c.terms))

	g, gCtx := errgroup.WithContext(ctx)
	for i, term := range c.terms {
		g.Go(func() error {
			courses, err := c.fetcher.Filter(gCtx, term, dept)
			if err != nil {
				return fmt.Errorf("term %s: %w", term, err)
			}
			results[i] = courses
			return nil
		})
	}

	primaryErr := g.Wait()
	if primaryErr == nil {
		merged := Merge(results...)
		c.store(dept, merged)
		c.logger.Debug("cached department offerings",
			zap.String("department", dept),
			zap.Int("courses", len(merged)))
		return merged, nil
	}

	fallbackTerm := c.terms[len(c.terms)-1]
	c.logger.Warn("offering fetch failed, falling back to single term",
		zap.String("department", dept),
		zap.String("term", string(fallbackTerm)),
		zap.Error(primaryErr))

	courses, err := c.fetcher.Filter(ctx, fallbackTerm, dept)
	if err != nil {
		c.logger.Error("offering fallback failed",
			zap.String("department", dept),
			zap.Error(err))
		return nil, fmt.Errorf("offerings for %s: %w", dept, errors.Join(primaryErr, err))
	}
	return Merge(courses), nil
}

// Merge concatenates course lists in order, keeping the first occurrence of
// each code.
func Merge(lists ...[]types.Course) []types.Course {
	seen := make(map[string]struct{})
	merged := make([]types.Course, 0)
	for _, list := range lists {
		for _, course := range list {
			if _, dup := seen[course.Code]; dup {
				continue
			}
			seen[course.Code] = struct{}{}
			merged = append(merged, course)
		}
	}
	return merged
}

func cloneCourses(courses []types.Course) []types.Course {
	return append([]types.Course{}, courses...)
}
