package http

import (
	"errors"
	"net/http"

	"budgettracker/internal/auth"
	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	"budgettracker/internal/cycle"
	applog "budgettracker/internal/log"
	"budgettracker/internal/repository"
	"budgettracker/internal/services"
)

var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrInvalidCategory,
	core.ErrInvalidExpenseType,
	core.ErrInvalidCurrency,
	core.ErrNotesTooLong,
	cycle.ErrInvalidDay,
	cycle.ErrInvalidType,
	cycle.ErrEmptyName,
	cycle.ErrInvalidBudget,
	ErrInvalidYear,
	ErrInvalidMonth,
	ErrInvalidBody,
	auth.ErrMissingCredentials,
	auth.ErrInvalidEmail,
	auth.ErrWeakPassword,
}

// writeError maps service errors to responses. notFound is the message used
// when the addressed record does not exist.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			BadRequestError(err.Error()).Write(w)
			return
		}
	}

	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, cycle.ErrCycleNotFound):
		NotFoundError(notFound).Write(w)
	case errors.Is(err, services.ErrDuplicateID), errors.Is(err, auth.ErrEmailTaken), errors.Is(err, cycle.ErrDuplicateCycle):
		ConflictError(err.Error()).Write(w)
	case errors.Is(err, auth.ErrInvalidCredentials):
		UnauthorizedError("Invalid email or password").Write(w)
	case errors.Is(err, auth.ErrSessionExpired):
		UnauthorizedError("Session expired").Write(w)
	case errors.Is(err, auth.ErrUnauthenticated):
		UnauthorizedError("Authentication required").Write(w)
	case errors.Is(err, currency.ErrUnknownRate):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, applog.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		InternalServerError().Write(w)
	}
}
