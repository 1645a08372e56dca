package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/cab-scheduler/internal/clock"
	"github.com/jonathan/cab-scheduler/internal/metadata"
	"github.com/jonathan/cab-scheduler/internal/types"
)

const testUser = "user_2abc"

func newTestManager(t *testing.T, store metadata.Store) (*Manager, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	m := NewManager(testUser, store, &Options{Clock: fake})
	require.NoError(t, m.Load(context.Background()))
	t.Cleanup(m.Close)
	return m, fake
}

func storedPreferences(t *testing.T, store metadata.Store) types.Preferences {
	t.Helper()
	blob, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, blob, "expected a stored document")
	prefs, err := Decode(blob)
	require.NoError(t, err)
	return prefs
}

func TestLoad_UsesStoredDocument(t *testing.T) {
	store := metadata.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), testUser,
		json.RawMessage(`{"version":1,"totalClasses":4,"mwfClasses":1}`)))

	m, _ := newTestManager(t, store)
	assert.True(t, m.Loaded())
	snap := m.Snapshot()
	assert.Equal(t, 4, snap.TotalClasses)
	assert.Equal(t, 3, snap.TThClasses())
}

func TestLoad_OnlyOnce(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, _ := newTestManager(t, store)

	require.NoError(t, m.SetTotalClasses(5))
	require.NoError(t, store.Put(context.Background(), testUser,
		json.RawMessage(`{"version":1,"totalClasses":1}`)))

	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, 5, m.Snapshot().TotalClasses, "reload must not clobber edits")
}

type failingStore struct {
	getErr error
	putErr error
	puts   int
}

func (s *failingStore) Get(context.Context, string) (json.RawMessage, error) {
	return nil, s.getErr
}

func (s *failingStore) Put(context.Context, string, json.RawMessage) error {
	s.puts++
	return s.putErr
}

// flakyStore fails the first failGets reads and otherwise delegates.
type flakyStore struct {
	*metadata.MemoryStore
	failGets int
}

func (s *flakyStore) Get(ctx context.Context, userID string) (json.RawMessage, error) {
	if s.failGets > 0 {
		s.failGets--
		return nil, errors.New("clerk unavailable")
	}
	return s.MemoryStore.Get(ctx, userID)
}

func TestLoad_StoreErrorLeavesUnloaded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &flakyStore{MemoryStore: metadata.NewMemoryStore(), failGets: 1}
	require.NoError(t, store.Put(context.Background(), testUser, json.RawMessage(
		`{"version":1,"totalClasses":4,"requiredCourses":[{"code":"CSCI0320"}],"needsWrit":true}`)))
	putsBefore := store.Puts()

	fake := clock.NewFake(time.Unix(0, 0))
	m := NewManager(testUser, store, &Options{Clock: fake, Logger: zap.New(core)})
	defer m.Close()

	err := m.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Contains(t, err.Error(), "clerk unavailable")
	assert.False(t, m.Loaded())
	assert.Equal(t, 1, logs.FilterMessage("failed to read stored preferences").Len())

	assert.ErrorIs(t, m.ToggleExcludedSlot("M 9-10"), ErrNotLoaded)
	require.NoError(t, m.Flush(context.Background()))
	fake.Advance(5 * time.Second)
	assert.Equal(t, putsBefore, store.Puts(), "nothing may be written before a successful load")

	require.NoError(t, m.Load(context.Background()))
	require.True(t, m.Loaded())
	snap := m.Snapshot()
	assert.Equal(t, 4, snap.TotalClasses)
	assert.True(t, snap.NeedsWrit)
	assert.Equal(t, []types.Course{{Code: "CSCI0320"}}, snap.RequiredCourses)

	require.NoError(t, m.ToggleExcludedSlot("M 9-10"))
	require.NoError(t, m.Flush(context.Background()))
	stored := storedPreferences(t, store)
	assert.Equal(t, 4, stored.TotalClasses)
	assert.True(t, stored.NeedsWrit)
	assert.Equal(t, []string{"M 9-10"}, stored.ExcludedSlots)
}

func TestLoad_PartiallyInvalidDocumentKeepsValidFields(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := metadata.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), testUser, json.RawMessage(
		`{"version":1,"totalClasses":11,"requiredCourses":[{"code":"CSCI0320"}],"needsWrit":true}`)))

	m := NewManager(testUser, store, &Options{Clock: clock.NewFake(time.Unix(0, 0)), Logger: zap.New(core)})
	defer m.Close()
	require.NoError(t, m.Load(context.Background()))

	snap := m.Snapshot()
	assert.Equal(t, types.DefaultTotalClasses, snap.TotalClasses)
	assert.True(t, snap.NeedsWrit)
	assert.Equal(t, []types.Course{{Code: "CSCI0320"}}, snap.RequiredCourses)
	assert.Equal(t, 1, logs.FilterMessage("stored preferences partially discarded").Len())
}

func TestMaxClassesRoundTrip(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, _ := newTestManager(t, store)

	require.NoError(t, m.AddRequiredCourse(types.Course{Code: "CSCI0320"}))
	require.NoError(t, m.SetNeedsWrit(true))
	require.NoError(t, m.SetTotalClasses(types.MaxClasses))
	require.NoError(t, m.SetMWFClasses(types.MaxClasses))
	assert.ErrorIs(t, m.SetTotalClasses(types.MaxClasses+1), ErrInvalidPreference)
	require.NoError(t, m.Flush(context.Background()))

	fresh, _ := newTestManager(t, store)
	snap := fresh.Snapshot()
	assert.Equal(t, types.MaxClasses, snap.TotalClasses)
	assert.Equal(t, types.MaxClasses, snap.MWFClasses)
	assert.True(t, snap.NeedsWrit)
	assert.Equal(t, []types.Course{{Code: "CSCI0320"}}, snap.RequiredCourses)
}

func TestMutationsBeforeLoad(t *testing.T) {
	m := NewManager(testUser, metadata.NewMemoryStore(), nil)
	assert.ErrorIs(t, m.SetTotalClasses(4), ErrNotLoaded)
	assert.False(t, m.Loaded())
}

func TestRapidEditsWriteOnce(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, fake := newTestManager(t, store)

	for n := 4; n <= 8; n++ {
		require.NoError(t, m.SetTotalClasses(n))
		fake.Advance(90 * time.Millisecond)
	}
	assert.Equal(t, 0, store.Puts(), "no write inside the debounce window")
	assert.True(t, m.Pending())

	fake.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, store.Puts())
	assert.Equal(t, 8, storedPreferences(t, store).TotalClasses)
	assert.False(t, m.Pending())
}

func TestWriteInsideMinIntervalIsDeferred(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, fake := newTestManager(t, store)

	require.NoError(t, m.SetTotalClasses(4))
	fake.Advance(500 * time.Millisecond)
	require.Equal(t, 1, store.Puts())

	require.NoError(t, m.SetNeedsWrit(true))
	fake.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, store.Puts(), "second write falls inside the 1s window")

	fake.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, store.Puts(), "deferred write lands at the end of the window")
	prefs := storedPreferences(t, store)
	assert.Equal(t, 4, prefs.TotalClasses)
	assert.True(t, prefs.NeedsWrit)
}

func TestMinIntervalDisabled(t *testing.T) {
	store := metadata.NewMemoryStore()
	fake := clock.NewFake(time.Unix(0, 0))
	m := NewManager(testUser, store, &Options{Clock: fake, MinInterval: -1})
	require.NoError(t, m.Load(context.Background()))
	defer m.Close()

	require.NoError(t, m.SetTotalClasses(4))
	fake.Advance(500 * time.Millisecond)
	require.NoError(t, m.SetTotalClasses(5))
	fake.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, store.Puts())
}

func TestNoOpEditSchedulesNothing(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, fake := newTestManager(t, store)

	course := types.Course{Code: "CSCI0320", Title: "Intro to Software Engineering"}
	require.NoError(t, m.AddRequiredCourse(course))
	fake.Advance(time.Second)
	require.Equal(t, 1, store.Puts())

	require.NoError(t, m.AddRequiredCourse(types.Course{Code: "CSCI0320", Title: "other title"}))
	assert.Equal(t, []types.Course{course}, m.Snapshot().RequiredCourses)
	assert.Equal(t, 0, fake.Pending())
	assert.False(t, m.Pending())
}

func TestToggleTwiceRestores(t *testing.T) {
	m, _ := newTestManager(t, metadata.NewMemoryStore())

	require.NoError(t, m.ToggleExcludedSlot("T 9-10:20"))
	before := m.Snapshot().ExcludedSlots
	require.NoError(t, m.ToggleExcludedSlot("M 1-2"))
	require.NoError(t, m.ToggleExcludedSlot("M 1-2"))
	assert.Equal(t, before, m.Snapshot().ExcludedSlots)

	require.NoError(t, m.ToggleElectiveDepartment("MATH"))
	assert.Equal(t, []string{"MATH"}, m.Snapshot().ElectiveDepartments)
	require.NoError(t, m.ToggleElectiveDepartment("MATH"))
	assert.Empty(t, m.Snapshot().ElectiveDepartments)
}

func TestScalarValidation(t *testing.T) {
	m, _ := newTestManager(t, metadata.NewMemoryStore())

	assert.ErrorIs(t, m.SetTotalClasses(-1), ErrInvalidPreference)
	assert.ErrorIs(t, m.SetMWFClasses(4), ErrInvalidPreference, "default total is 3")
	assert.ErrorIs(t, m.SetMWFClasses(-1), ErrInvalidPreference)
	assert.ErrorIs(t, m.SetDesiredCourseCount(-2), ErrInvalidPreference)
	assert.ErrorIs(t, m.ToggleExcludedSlot(" "), ErrInvalidPreference)
	assert.ErrorIs(t, m.AddCompletedCourse(types.Course{Title: "no code"}), ErrInvalidPreference)

	require.NoError(t, m.SetMWFClasses(3))
	assert.Equal(t, 0, m.Snapshot().TThClasses())

	// Lowering the total clamps the MWF count
	require.NoError(t, m.SetTotalClasses(1))
	snap := m.Snapshot()
	assert.Equal(t, 1, snap.MWFClasses)
	assert.NoError(t, snap.Validate())
}

func TestRemoveCourses(t *testing.T) {
	m, _ := newTestManager(t, metadata.NewMemoryStore())

	require.NoError(t, m.AddCompletedCourse(types.Course{Code: "CSCI0150"}))
	require.NoError(t, m.AddCompletedCourse(types.Course{Code: "CSCI0170"}))
	require.NoError(t, m.RemoveCompletedCourse("CSCI0150"))
	assert.Equal(t, []types.Course{{Code: "CSCI0170"}}, m.Snapshot().CompletedCourses)

	require.NoError(t, m.RemoveRequiredCourse("NOPE0000"))
	assert.Empty(t, m.Snapshot().RequiredCourses)
}

func TestSnapshotIsCopy(t *testing.T) {
	m, _ := newTestManager(t, metadata.NewMemoryStore())
	require.NoError(t, m.ToggleExcludedSlot("M 9"))

	snap := m.Snapshot()
	snap.ExcludedSlots[0] = "mutated"
	assert.Equal(t, []string{"M 9"}, m.Snapshot().ExcludedSlots)
}

func TestPersistFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &failingStore{putErr: errors.New("HTTP status 500")}
	fake := clock.NewFake(time.Unix(0, 0))
	m := NewManager(testUser, store, &Options{Clock: fake, Logger: zap.New(core)})
	require.NoError(t, m.Load(context.Background()))
	defer m.Close()

	require.NoError(t, m.SetNeedsWrit(true))
	fake.Advance(time.Second)

	assert.Equal(t, 1, store.puts)
	assert.Equal(t, 1, logs.FilterMessage("failed to persist preferences").Len())
	assert.True(t, m.Snapshot().NeedsWrit, "failed write does not roll back")

	// No retry
	fake.Advance(10 * time.Second)
	assert.Equal(t, 1, store.puts)
}

func TestFlushWritesImmediately(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, fake := newTestManager(t, store)

	require.NoError(t, m.SetDesiredCourseCount(2))
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 1, store.Puts())
	assert.Equal(t, 2, storedPreferences(t, store).DesiredCourseCount)

	// The debounce timer no longer writes
	fake.Advance(time.Second)
	assert.Equal(t, 1, store.Puts())

	// Nothing pending: flush is a no-op
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 1, store.Puts())
}

func TestFlushReportsStoreError(t *testing.T) {
	store := &failingStore{putErr: errors.New("boom")}
	m := NewManager(testUser, store, &Options{Clock: clock.NewFake(time.Unix(0, 0))})
	require.NoError(t, m.Load(context.Background()))
	defer m.Close()

	require.NoError(t, m.SetNeedsWrit(true))
	err := m.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCloseStopsTimer(t *testing.T) {
	store := metadata.NewMemoryStore()
	m, fake := newTestManager(t, store)

	require.NoError(t, m.SetTotalClasses(4))
	m.Close()
	fake.Advance(time.Second)
	assert.Equal(t, 0, store.Puts())
	assert.ErrorIs(t, m.SetTotalClasses(5), ErrClosed)
}

// blockingStore holds its first Put until the write is cancelled.
type blockingStore struct {
	*metadata.MemoryStore
	mu      sync.Mutex
	calls   int
	entered chan struct{}
}

func (s *blockingStore) Put(ctx context.Context, userID string, blob json.RawMessage) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-ctx.Done()
		return ctx.Err()
	}
	return s.MemoryStore.Put(ctx, userID, blob)
}

func TestNewerWriteCancelsInFlight(t *testing.T) {
	store := &blockingStore{MemoryStore: metadata.NewMemoryStore(), entered: make(chan struct{})}
	m, fake := newTestManager(t, store)

	require.NoError(t, m.SetTotalClasses(4))
	done := make(chan struct{})
	go func() {
		defer close(done)
		fake.Advance(500 * time.Millisecond)
	}()

	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("first write never started")
	}

	require.NoError(t, m.SetTotalClasses(6))
	require.NoError(t, m.Flush(context.Background()))
	<-done

	assert.Equal(t, 1, store.Puts())
	assert.Equal(t, 6, storedPreferences(t, store).TotalClasses)
}

func TestApply(t *testing.T) {
	m, _ := newTestManager(t, metadata.NewMemoryStore())

	steps := []Mutation{
		{Op: OpSetTotalClasses, Value: json.RawMessage(`4`)},
		{Op: OpSetMWFClasses, Value: json.RawMessage(`1`)},
		{Op: OpSetNeedsWrit, Value: json.RawMessage(`true`)},
		{Op: OpSetDesiredCourseCount, Value: json.RawMessage(`2`)},
		{Op: OpToggleExcludedSlot, Value: json.RawMessage(`"F 3-4"`)},
		{Op: OpToggleElectiveDepartment, Value: json.RawMessage(`"APMA"`)},
		{Op: OpAddRequiredCourse, Value: json.RawMessage(`{"code":"CSCI0320","title":"Intro to Software Engineering"}`)},
		{Op: OpAddCompletedCourse, Value: json.RawMessage(`{"code":"CSCI0150","title":"Intro to OOP"}`)},
		{Op: OpAddCompletedCourse, Value: json.RawMessage(`{"code":"CSCI0170"}`)},
		{Op: OpRemoveCompletedCourse, Value: json.RawMessage(`"CSCI0170"`)},
	}
	for _, step := range steps {
		require.NoError(t, m.Apply(step), step.Op)
	}

	snap := m.Snapshot()
	assert.Equal(t, 4, snap.TotalClasses)
	assert.Equal(t, 1, snap.MWFClasses)
	assert.Equal(t, 3, snap.TThClasses())
	assert.True(t, snap.NeedsWrit)
	assert.Equal(t, 2, snap.DesiredCourseCount)
	assert.Equal(t, []string{"F 3-4"}, snap.ExcludedSlots)
	assert.Equal(t, []string{"APMA"}, snap.ElectiveDepartments)
	assert.Equal(t, []string{"CSCI0320"}, types.CourseCodes(snap.RequiredCourses))
	assert.Equal(t, []string{"CSCI0150"}, types.CourseCodes(snap.CompletedCourses))
}

func TestApply_Errors(t *testing.T) {
	m, _ := newTestManager(t, metadata.NewMemoryStore())

	tests := []struct {
		name string
		mut  Mutation
	}{
		{"unknown op", Mutation{Op: "deleteEverything", Value: json.RawMessage(`1`)}},
		{"wrong value type", Mutation{Op: OpSetTotalClasses, Value: json.RawMessage(`"four"`)}},
		{"invalid value", Mutation{Op: OpSetMWFClasses, Value: json.RawMessage(`9`)}},
		{"empty course", Mutation{Op: OpAddRequiredCourse, Value: json.RawMessage(`{}`)}},
		{"null value", Mutation{Op: OpSetTotalClasses, Value: json.RawMessage(`null`)}},
		{"missing value", Mutation{Op: OpSetNeedsWrit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, m.Apply(tt.mut), ErrInvalidPreference)
		})
	}
}

func TestOps(t *testing.T) {
	assert.Len(t, Ops(), 10)
}
