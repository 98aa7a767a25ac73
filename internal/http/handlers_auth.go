package http

import (
	"context"
	"net/http"

	"budgettracker/internal/auth"
	"budgettracker/internal/core"
	applog "budgettracker/internal/log"
)

type sessionKey struct{}

// authedHandler receives the session of the authenticated caller.
type authedHandler func(w http.ResponseWriter, r *http.Request, sess core.Session)

// requireAuth resolves the bearer token and rejects anonymous requests.
func (s *Server) requireAuth(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.Auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			s.writeError(w, r, err, "")
			return
		}
		logger := applog.FromContext(r.Context()).With(applog.FieldUserID, sess.UserID)
		ctx := applog.NewContext(context.WithValue(r.Context(), sessionKey{}, sess), logger)
		next(w, r.WithContext(ctx), sess)
	})
}

// SessionFromContext returns the session stored by requireAuth.
func SessionFromContext(ctx context.Context) (core.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(core.Session)
	return sess, ok
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}
	req.Name = sanitizeInput(req.Name)

	res, err := s.deps.Auth.Signup(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Field("user", res.User).
		Field("session", res.Session).
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}

	res, err := s.deps.Auth.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().
		Field("user", res.User).
		Field("session", res.Session).
		Write(w)
}

// handleLogout always succeeds; an unknown or missing token has nothing to end.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.deps.Auth.Logout(r.Context(), token); err != nil {
			s.writeError(w, r, err, "")
			return
		}
	}
	NewJSONResponse().Message("Logged out").Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess core.Session) {
	user, err := s.deps.Auth.CurrentUser(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, err, "User not found")
		return
	}
	NewJSONResponse().Field("user", user).Write(w)
}
