package http

import (
	"errors"
	"net/http"
	"strings"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
)

const cycleNotFound = "Cycle not found"

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, sess core.Session) {
	st, err := s.deps.Settings.Get(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().Field("settings", st).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var st cycle.Settings
	if err := DecodeJSON(w, r, &st); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	for i := range st.Cycles {
		st.Cycles[i].Name = sanitizeInput(st.Cycles[i].Name)
	}

	saved, err := s.deps.Settings.Update(r.Context(), sess.UserID, st)
	if errors.Is(err, cycle.ErrCycleNotFound) {
		// the body named an active cycle it does not contain
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().Field("settings", saved).Write(w)
}

func (s *Server) handleAddCycle(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var c cycle.Cycle
	if err := DecodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	c.Name = sanitizeInput(c.Name)

	added, err := s.deps.Settings.AddCycle(r.Context(), sess.UserID, c)
	if err != nil {
		s.writeError(w, r, err, cycleNotFound)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Field("cycle", added).
		Write(w)
}

func (s *Server) handleUpdateCycle(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var c cycle.Cycle
	if err := DecodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	c.ID = strings.TrimSpace(r.PathValue("id"))
	c.Name = sanitizeInput(c.Name)

	st, err := s.deps.Settings.UpdateCycle(r.Context(), sess.UserID, c)
	if err != nil {
		s.writeError(w, r, err, cycleNotFound)
		return
	}
	NewJSONResponse().Field("settings", st).Write(w)
}

func (s *Server) handleDeleteCycle(w http.ResponseWriter, r *http.Request, sess core.Session) {
	st, err := s.deps.Settings.DeleteCycle(r.Context(), sess.UserID, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		s.writeError(w, r, err, cycleNotFound)
		return
	}
	NewJSONResponse().Field("settings", st).Write(w)
}

func (s *Server) handleActivateCycle(w http.ResponseWriter, r *http.Request, sess core.Session) {
	st, err := s.deps.Settings.ActivateCycle(r.Context(), sess.UserID, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		s.writeError(w, r, err, cycleNotFound)
		return
	}
	NewJSONResponse().Field("settings", st).Write(w)
}
