package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/schedule"
	"github.com/jonathan/cab-scheduler/internal/server/middleware"
	"github.com/jonathan/cab-scheduler/internal/session"
	"github.com/jonathan/cab-scheduler/internal/types"
)

const maxBodyBytes = 64 << 10

var validate = validator.New()

// DepartmentsResponse lists selectable departments.
type DepartmentsResponse struct {
	Departments []string `json:"departments"`
}

// OfferingsResponse is a department's offering set.
type OfferingsResponse struct {
	Department string         `json:"department"`
	Courses    []types.Course `json:"courses"`
}

// PreferencesResponse is the user's preference aggregate plus derived
// values.
type PreferencesResponse struct {
	Preferences types.Preferences `json:"preferences"`
	TThClasses  int               `json:"tthClasses"`
	Loaded      bool              `json:"loaded"`
	Pending     bool              `json:"pending"`
}

// GenerateResponse carries the view after a generation attempt.
type GenerateResponse struct {
	schedule.ViewState
}

func (s *Server) handleDepartments(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, DepartmentsResponse{Departments: types.Departments()})
}

func (s *Server) handleOfferings(w http.ResponseWriter, r *http.Request) {
	dept := strings.ToUpper(strings.TrimSpace(r.PathValue("dept")))
	courses, err := s.offerings.Get(r.Context(), dept)
	if err != nil {
		s.failRequest(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, OfferingsResponse{Department: dept, Courses: courses})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, preferencesResponse(sess.Preferences))
}

func (s *Server) handlePatchPreferences(w http.ResponseWriter, r *http.Request) {
	var mut preferences.Mutation
	if err := decodeBody(r, &mut); err != nil {
		s.failRequest(w, r, err)
		return
	}
	if err := validate.Struct(mut); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			s.failRequest(w, r, &ErrValidation{Field: strings.ToLower(fieldErrs[0].Field()), Message: "is required"})
			return
		}
		s.failRequest(w, r, &ErrValidation{Message: err.Error()})
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Preferences.Apply(mut); err != nil {
		s.failRequest(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, preferencesResponse(sess.Preferences))
}

func (s *Server) handleFlushPreferences(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Preferences.Flush(r.Context()); err != nil {
		// Flush reports store failures verbatim; surface them as upstream errors.
		status := HTTPStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		s.errorResponse(w, status, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, preferencesResponse(sess.Preferences))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.Generate(r.Context()); err != nil {
		s.failRequest(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, GenerateResponse{ViewState: sess.View.State()})
}

func (s *Server) handleGetSchedules(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, GenerateResponse{ViewState: sess.View.State()})
}

// session resolves the caller's session, writing an error response when it
// cannot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.failRequest(w, r, err)
		return nil, false
	}
	sess, err := s.sessions.Session(r.Context(), userID)
	if err != nil {
		s.failRequest(w, r, err)
		return nil, false
	}
	if !sess.Preferences.Loaded() {
		s.failRequest(w, r, preferences.ErrNotLoaded)
		return nil, false
	}
	return sess, true
}

func preferencesResponse(m *preferences.Manager) PreferencesResponse {
	prefs := m.Snapshot()
	return PreferencesResponse{
		Preferences: prefs,
		TThClasses:  prefs.TThClasses(),
		Loaded:      m.Loaded(),
		Pending:     m.Pending(),
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrValidation{Message: "request body is empty"}
		}
		return &ErrValidation{Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
