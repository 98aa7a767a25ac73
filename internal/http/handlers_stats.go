package http

import (
	"net/http"

	"budgettracker/internal/core"
	"budgettracker/internal/stats"
)

// targetCurrency reads ?currency=, falling back to the user's default.
func (s *Server) targetCurrency(r *http.Request, sess core.Session) (core.Currency, error) {
	return ParseCurrencyParam(r.URL.Query(), "currency", s.deps.Settings.DefaultCurrency(r.Context(), sess.UserID))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess core.Session) {
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	target, err := s.targetCurrency(r, sess)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}

	dash, err := s.deps.Stats.Dashboard(r.Context(), sess.UserID, mp.Year, mp.Month, target)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().Field("stats", dash).Write(w)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request, sess core.Session) {
	day, err := ParseDateParam(r.URL.Query(), "date", s.now())
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	target, err := s.targetCurrency(r, sess)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}

	daily, err := s.deps.Stats.Daily(r.Context(), sess.UserID, day, target)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if daily.Transactions == nil {
		daily.Transactions = []core.Transaction{}
	}
	NewJSONResponse().Field("stats", daily).Write(w)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request, sess core.Session) {
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	target, err := s.targetCurrency(r, sess)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}

	days, err := s.deps.Stats.Calendar(r.Context(), sess.UserID, mp.Year, mp.Month, target)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().
		Field("currency", target).
		Field("days", days).
		Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, sess core.Session) {
	period, err := ParsePeriodParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	target, err := s.targetCurrency(r, sess)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}

	slices, err := s.deps.Stats.Categories(r.Context(), sess.UserID, period, target)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	if slices == nil {
		slices = []stats.CategorySlice{}
	}
	NewJSONResponse().
		Field("currency", target).
		Field("categories", slices).
		Write(w)
}
