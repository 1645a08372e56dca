package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/cab-scheduler/internal/config"
	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/schedule"
	"github.com/jonathan/cab-scheduler/internal/server"
	"github.com/jonathan/cab-scheduler/internal/types"
)

// execute runs the root command in-process with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// fakeUpstream serves the catalog /filter and generator /generate endpoints.
func fakeUpstream(t *testing.T, generateBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/filter":
			if r.URL.Query().Get("dept") != "CSCI" {
				_, _ = w.Write([]byte(`{"results":[]}`))
				return
			}
			if r.URL.Query().Get("term") == string(types.TermFall2024) {
				_, _ = w.Write([]byte(`{"results":[{"code":"CSCI0320","title":"Introduction to Software Engineering"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"results":[{"code":"CSCI0320","title":"Software Engineering"},{"code":"CSCI0170","title":"Computer Science: An Integrated Introduction"}]}`))
		case "/generate":
			_, _ = w.Write([]byte(generateBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("CATALOG_URL", srv.URL)
	t.Setenv("GENERATOR_URL", srv.URL)
	return srv
}

func TestOfferingsCommand(t *testing.T) {
	fakeUpstream(t, `{}`)

	out, err := execute(t, "offerings", "csci", "--json")
	require.NoError(t, err)

	var courses []types.Course
	require.NoError(t, json.Unmarshal([]byte(out), &courses))
	assert.Equal(t, []types.Course{
		{Code: "CSCI0320", Title: "Introduction to Software Engineering"},
		{Code: "CSCI0170", Title: "Computer Science: An Integrated Introduction"},
	}, courses)
}

func TestOfferingsCommand_Table(t *testing.T) {
	fakeUpstream(t, `{}`)

	out, err := execute(t, "offerings", "CSCI")
	require.NoError(t, err)
	assert.Contains(t, out, "OFFERINGS: CSCI (2)")
	assert.Contains(t, out, "CSCI0170")
}

func TestOfferingsCommand_RequiresDepartment(t *testing.T) {
	_, err := execute(t, "offerings")
	assert.Error(t, err)
}

func TestPrefsSet_MemoryBackend(t *testing.T) {
	fakeUpstream(t, `{}`)

	out, err := execute(t, "prefs", "set", "--backend", "memory", "-u", "user_1", "setTotalClasses", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Classes:     4 (MWF 2, TTh 2)")

	out, err = execute(t, "prefs", "set", "--backend", "memory", "-u", "user_1", "--dept", "csci", "addRequiredCourse", "CSCI0170")
	require.NoError(t, err)
	assert.Contains(t, out, "CSCI0170 (Computer Science")
}

func TestPrefsSet_Errors(t *testing.T) {
	fakeUpstream(t, `{}`)

	_, err := execute(t, "prefs", "set", "--backend", "memory", "-u", "user_1", "setMwfClasses", "9")
	assert.ErrorIs(t, err, preferences.ErrInvalidPreference)

	_, err = execute(t, "prefs", "set", "--backend", "memory", "-u", "user_1", "--dept", "CSCI", "addCompletedCourse", "CSCI9999")
	assert.ErrorContains(t, err, "not offered")

	_, err = execute(t, "prefs", "set", "--backend", "memory", "setNeedsWrit", "true")
	assert.ErrorContains(t, err, `"user" not set`)

	_, err = execute(t, "prefs", "set", "--backend", "memory", "-u", " ", "setNeedsWrit", "true")
	assert.ErrorContains(t, err, "--user")
}

func TestPrefsShow_JSON(t *testing.T) {
	fakeUpstream(t, `{}`)

	out, err := execute(t, "prefs", "show", "--backend", "memory", "-u", "user_1", "--json")
	require.NoError(t, err)

	prefs, err := preferences.Decode([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPreferences(), prefs)
}

func TestGenerateCommand(t *testing.T) {
	fakeUpstream(t, `{"success":true,"schedulesCount":1,"schedules":[{"score":2.5,"courses":[{"code":"CSCI0320","meets":"MWF 10-10:50","writ":true}]}]}`)

	out, err := execute(t, "generate", "--backend", "memory", "-u", "user_1", "--json")
	require.NoError(t, err)

	var state schedule.ViewState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	require.Len(t, state.Schedules, 1)
	assert.True(t, state.Schedules[0].Courses[0].Writ)
	assert.Equal(t, types.TermSpring2025, state.Term)
}

func TestGenerateCommand_LogicalFailure(t *testing.T) {
	fakeUpstream(t, `{"success":false,"errors":["No valid WRIT course found"]}`)

	out, err := execute(t, "generate", "--backend", "memory", "-u", "user_1")
	require.NoError(t, err)
	assert.Contains(t, out, "SCHEDULE GENERATION FAILED")
	assert.Contains(t, out, "No valid WRIT course found")
}

func TestGenerateCommand_TransportFailure(t *testing.T) {
	srv := fakeUpstream(t, `{}`)
	srv.Close()

	_, err := execute(t, "generate", "--backend", "memory", "-u", "user_1")
	assert.ErrorIs(t, err, schedule.ErrGenerationFailed)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret-with-at-least-32-bytes")
	t.Setenv("CLERK_JWT_KEY", "")

	out, err := execute(t, "token", "-u", "user_1")
	require.NoError(t, err)

	jwtConfig, err := config.NewJWTConfig()
	require.NoError(t, err)
	service, err := server.NewJWTService(jwtConfig)
	require.NoError(t, err)
	claims, err := service.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.GetUserID())
}

func TestMutationValue(t *testing.T) {
	tests := []struct {
		name string
		op   string
		raw  string
		want string
	}{
		{name: "number", op: preferences.OpSetTotalClasses, raw: "4", want: `4`},
		{name: "bool", op: preferences.OpSetNeedsWrit, raw: " true ", want: `true`},
		{name: "bare word", op: preferences.OpToggleExcludedSlot, raw: "M 9-9:50", want: `"M 9-9:50"`},
		{name: "quoted", op: preferences.OpToggleElectiveDepartment, raw: `"MATH"`, want: `"MATH"`},
		{name: "course code", op: preferences.OpAddRequiredCourse, raw: "CSCI0320", want: `{"code":"CSCI0320","title":""}`},
		{name: "course object", op: preferences.OpAddCompletedCourse, raw: `{"code":"CSCI0150","title":"Intro"}`, want: `{"code":"CSCI0150","title":"Intro"}`},
		{name: "remove code", op: preferences.OpRemoveRequiredCourse, raw: "CSCI0320", want: `"CSCI0320"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mutationValue(tt.op, tt.raw)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestPreferenceOptions_ZeroIntervalDisablesLimit(t *testing.T) {
	cfg := config.Default()
	cfg.MetadataBackend = config.BackendMemory
	cfg.PersistMinInterval = "0s"
	a, err := newApp(cfg)
	require.NoError(t, err)

	opts, err := a.preferenceOptions()
	require.NoError(t, err)
	assert.Negative(t, opts.MinInterval)
}
