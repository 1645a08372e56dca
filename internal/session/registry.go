// Package session keeps one preference manager and one schedule view per
// authenticated user.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/metadata"
	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/schedule"
)

// ErrEmptyUserID is returned for a blank user ID.
var ErrEmptyUserID = errors.New("session: user id is required")

// Generator produces schedules for a user's aggregate.
type Generator interface {
	Generate(ctx context.Context, src schedule.Source, userID string) (*schedule.Result, error)
}

// Session is one user's state.
type Session struct {
	UserID      string
	Preferences *preferences.Manager
	View        *schedule.View

	generator Generator
	logger    *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Generate runs the generator for this session and records the outcome in
// the view. Starting a new generation cancels one still in flight, so an
// older response can never replace a newer one.
func (s *Session) Generate(ctx context.Context) (*schedule.Result, error) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	res, err := s.generator.Generate(ctx, s.Preferences, s.UserID)

	s.mu.Lock()
	current := s.seq == seq
	if current {
		s.View.Apply(res, err)
	}
	s.mu.Unlock()

	if !current {
		s.logger.Debug("schedule generation superseded")
		if err == nil {
			err = context.Canceled
		}
		return nil, err
	}
	return res, err
}

// Options configures a Registry.
type Options struct {
	Preferences *preferences.Options
	Logger      *zap.Logger
}

// Registry maps user IDs to sessions. It is safe for concurrent use.
type Registry struct {
	store     metadata.Store
	generator Generator
	prefOpts  preferences.Options
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// ErrClosed is returned by Session after Close.
var ErrClosed = errors.New("session registry closed")

// NewRegistry creates a registry persisting to store and generating with gen.
func NewRegistry(store metadata.Store, gen Generator, opts *Options) *Registry {
	if opts == nil {
		opts = &Options{}
	}
	r := &Registry{
		store:     store,
		generator: gen,
		logger:    opts.Logger,
		sessions:  make(map[string]*Session),
	}
	if opts.Preferences != nil {
		r.prefOpts = *opts.Preferences
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.prefOpts.Logger == nil {
		r.prefOpts.Logger = r.logger
	}
	return r
}

// Session returns the user's session, creating it on first use. The
// preference aggregate is loaded before the session is returned; a store
// read failure is returned wrapping preferences.ErrNotLoaded.
func (r *Registry) Session(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := r.sessions[userID]
	if !ok {
		prefOpts := r.prefOpts
		s = &Session{
			UserID:      userID,
			Preferences: preferences.NewManager(userID, r.store, &prefOpts),
			View:        schedule.NewView(),
			generator:   r.generator,
			logger:      r.logger.With(zap.String("user_id", userID)),
		}
		r.sessions[userID] = s
		r.logger.Debug("session created", zap.String("user_id", userID))
	}
	r.mu.Unlock()

	// Load is idempotent and serialised inside the manager. A failed read
	// leaves the session unloaded and the next call retries.
	if err := s.Preferences.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close flushes pending edits for every session and stops their timers.
// Flush failures are joined into the returned error.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Preferences.Flush(ctx); err != nil {
			r.logger.Error("failed to flush preferences on shutdown",
				zap.String("user_id", s.UserID), zap.Error(err))
			errs = append(errs, err)
		}
		s.Preferences.Close()
	}
	return errors.Join(errs...)
}
