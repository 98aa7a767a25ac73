package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgettracker/internal/auth"
	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	applog "budgettracker/internal/log"
	"budgettracker/internal/middleware/ratelimit"
	"budgettracker/internal/middleware/security"
	"budgettracker/internal/middleware/trace"
	"budgettracker/internal/rates"
	"budgettracker/internal/services"
)

// RateSource is the view of the rate provider the API needs.
type RateSource interface {
	Current() rates.Result
	FetchRates(ctx context.Context, base core.Currency) (rates.Result, error)
	Status() rates.Status
	IsCacheStale() bool
	TimeSinceUpdate() (int64, bool)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API.
type Deps struct {
	Auth         *auth.Service
	Transactions *services.TransactionService
	Settings     *services.SettingsService
	Stats        *services.StatsService
	Rates        RateSource
	Converter    currency.Converter
	BaseCurrency core.Currency
	Store        Pinger
	Logger       *applog.Logger
}

type Option func(*options)

type options struct {
	rateLimit ratelimit.Config
	now       func() time.Time
}

func WithRateLimit(cfg ratelimit.Config) Option {
	return func(o *options) { o.rateLimit = cfg }
}

// WithClock replaces time.Now for date defaults.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type Server struct {
	http.Server
	deps   Deps
	logger *applog.Logger
	now    func() time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts ...Option) *Server {
	o := options{
		rateLimit: ratelimit.DefaultConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if deps.Logger == nil {
		deps.Logger = applog.Discard()
	}
	if deps.BaseCurrency == "" {
		deps.BaseCurrency = core.DefaultCurrency
	}

	logger := deps.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		deps:     deps,
		logger:   logger,
		now:      o.now,
		limiter:  ratelimit.NewLimiter(o.rateLimit),
		detector: security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.Handle("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.Handle("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.requireAuth(s.handleCreateTransaction))
	mux.Handle("DELETE /api/transactions", s.requireAuth(s.handleClearTransactions))
	mux.Handle("PUT /api/transactions/{id}", s.requireAuth(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.requireAuth(s.handleDeleteTransaction))

	mux.Handle("GET /api/stats/dashboard", s.requireAuth(s.handleDashboard))
	mux.Handle("GET /api/stats/daily", s.requireAuth(s.handleDaily))
	mux.Handle("GET /api/stats/calendar", s.requireAuth(s.handleCalendar))
	mux.Handle("GET /api/stats/categories", s.requireAuth(s.handleCategories))

	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/rates", s.handleRates)
	mux.HandleFunc("POST /api/rates/refresh", s.handleRefreshRates)
	mux.HandleFunc("GET /api/rates/convert", s.handleConvert)

	mux.Handle("GET /api/settings", s.requireAuth(s.handleGetSettings))
	mux.Handle("PUT /api/settings", s.requireAuth(s.handleUpdateSettings))
	mux.Handle("POST /api/settings/cycles", s.requireAuth(s.handleAddCycle))
	mux.Handle("PUT /api/settings/cycles/{id}", s.requireAuth(s.handleUpdateCycle))
	mux.Handle("DELETE /api/settings/cycles/{id}", s.requireAuth(s.handleDeleteCycle))
	mux.Handle("POST /api/settings/cycles/{id}/activate", s.requireAuth(s.handleActivateCycle))

	// Outermost first: trace, security headers, rate limit, probe filter.
	var handler http.Handler = mux
	handler = s.rejectSuspicious(handler)
	handler = s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.IsSuspicious(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request rejected",
				applog.FieldClientIP, s.detector.ClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.UserAgent())
			BadRequestError("Bad request").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
