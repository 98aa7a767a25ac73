package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"budgettracker/internal/auth"
	"budgettracker/internal/cache"
	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	applog "budgettracker/internal/log"
	"budgettracker/internal/middleware/ratelimit"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository/memory"
	"budgettracker/internal/services"
	"budgettracker/internal/stats"
)

type fakeRates struct {
	mu      sync.Mutex
	res     rates.Result
	fetches int
}

func newFakeRates() *fakeRates {
	return &fakeRates{res: rates.Result{
		Snapshot: rates.Snapshot{
			Rates:        core.Rates{core.USD: 1, core.EUR: 0.92, core.CAD: 1.36, core.TRY: 32.5},
			BaseCurrency: core.USD,
			Timestamp:    time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		},
		Provenance: rates.FromPrimary,
	}}
}

func (f *fakeRates) Current() rates.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.res
}

func (f *fakeRates) FetchRates(_ context.Context, base core.Currency) (rates.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.res.BaseCurrency = base
	return f.res, nil
}

func (f *fakeRates) Status() rates.Status {
	return rates.Status{State: rates.StateSuccess, Provenance: rates.FromPrimary}
}

func (f *fakeRates) IsCacheStale() bool { return false }

func (f *fakeRates) TimeSinceUpdate() (int64, bool) { return 42, true }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

type testEnv struct {
	srv   *Server
	rates *fakeRates
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := memory.New()
	fr := newFakeRates()
	logger := applog.Discard()

	settings := services.NewSettingsService(store, nil)
	txs := services.NewTransactionService(store, services.NopPublisher{}, settings, logger)
	st := services.NewStatsService(store, settings, fr,
		stats.NewEngine(currency.NewConverter(currency.Lenient)),
		cache.NewLRUCache[any](100, time.Minute))
	txs.OnChange(st.Invalidate)
	settings.OnChange(st.Invalidate)

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	srv := NewServer(":0", Deps{
		Auth:         auth.NewService(store, auth.WithBcryptCost(bcrypt.MinCost)),
		Transactions: txs,
		Settings:     settings,
		Stats:        st,
		Rates:        fr,
		Converter:    currency.NewConverter(currency.Lenient),
		BaseCurrency: core.USD,
		Store:        store,
		Logger:       logger,
	}, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, rates: fr}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)

	var out map[string]interface{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr, out
}

func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	rr, body := e.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"name":"Test","email":"`+email+`","password":"Sup3r$ecret"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", rr.Code, rr.Body.String())
	}
	session := body["session"].(map[string]interface{})
	return session["token"].(string)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr, _ := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	env.srv.deps.Store = failingPinger{}
	rr, _ := env.do(t, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when store is down, got %d", rr.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"","password":""}`)
	if rr.Code != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("missing credentials: status=%d body=%v", rr.Code, body)
	}

	rr, _ = env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"a@example.com","password":"short"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("weak password: expected 400, got %d", rr.Code)
	}

	token := env.signup(t, "Ada@Example.com")

	rr, _ = env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"ada@example.com","password":"Sup3r$ecret"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", rr.Code)
	}

	rr, _ = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ada@example.com","password":"wrong"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rr.Code)
	}

	rr, body = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ada@example.com","password":"Sup3r$ecret"}`)
	if rr.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("login: status=%d body=%v", rr.Code, body)
	}

	rr, body = env.do(t, http.MethodGet, "/api/auth/me", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("me: status=%d", rr.Code)
	}
	user := body["user"].(map[string]interface{})
	if user["email"] != "ada@example.com" {
		t.Fatalf("email not normalized: %v", user["email"])
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatal("password hash must not be returned")
	}

	rr, _ = env.do(t, http.MethodPost, "/api/auth/logout", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: status=%d", rr.Code)
	}
	rr, _ = env.do(t, http.MethodGet, "/api/auth/me", token, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("token should be revoked, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/transactions", "/api/stats/dashboard", "/api/settings"} {
		rr, body := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized || body["success"] != false {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
		rr, _ = env.do(t, http.MethodGet, path, "not-a-session", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s with bogus token: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestTransactionCRUD(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "crud@example.com")

	rr, body := env.do(t, http.MethodPost, "/api/transactions", token,
		`{"type":"expense","category":"food","amount":12.345,"date":"2024-03-10","currency":"EUR","expenseType":"leisure"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := body["transaction"].(map[string]interface{})
	id := created["id"].(string)
	if id == "" || created["amount"] != 12.35 {
		t.Fatalf("unexpected created transaction: %v", created)
	}

	rr, _ = env.do(t, http.MethodPost, "/api/transactions", token,
		`{"type":"income","category":"food","amount":10,"date":"2024-03-10"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("income with expense category: expected 400, got %d", rr.Code)
	}

	rr, _ = env.do(t, http.MethodPost, "/api/transactions", token,
		`{"type":"income","category":"salary","amount":3100,"date":"2024-03-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create income: status=%d", rr.Code)
	}

	rr, body = env.do(t, http.MethodGet, "/api/transactions", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status=%d", rr.Code)
	}
	list := body["transactions"].([]interface{})
	if len(list) != 2 || list[0].(map[string]interface{})["id"] != id {
		t.Fatalf("expected newest first, got %v", list)
	}

	rr, body = env.do(t, http.MethodPut, "/api/transactions/"+id, token,
		`{"type":"expense","category":"food","amount":20,"date":"2024-03-11","currency":"EUR"}`)
	if rr.Code != http.StatusOK || body["transaction"].(map[string]interface{})["amount"] != 20.0 {
		t.Fatalf("update: status=%d body=%v", rr.Code, body)
	}

	rr, body = env.do(t, http.MethodPut, "/api/transactions/missing", token,
		`{"type":"expense","category":"food","amount":1,"date":"2024-03-11"}`)
	if rr.Code != http.StatusNotFound || body["error"] != txNotFound {
		t.Fatalf("update missing: status=%d body=%v", rr.Code, body)
	}

	rr, _ = env.do(t, http.MethodDelete, "/api/transactions/"+id, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: status=%d", rr.Code)
	}
	rr, _ = env.do(t, http.MethodDelete, "/api/transactions/"+id, token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete twice: expected 404, got %d", rr.Code)
	}

	rr, body = env.do(t, http.MethodDelete, "/api/transactions", token, "")
	if rr.Code != http.StatusOK || body["message"] != "All transactions cleared" {
		t.Fatalf("clear: status=%d body=%v", rr.Code, body)
	}
	rr, body = env.do(t, http.MethodDelete, "/api/transactions", token, "")
	if rr.Code != http.StatusOK || body["message"] != "No transactions to clear" {
		t.Fatalf("clear empty: status=%d body=%v", rr.Code, body)
	}
}

func TestTransactionsAreIsolatedPerUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice@example.com")
	bob := env.signup(t, "bob@example.com")

	_, body := env.do(t, http.MethodPost, "/api/transactions", alice,
		`{"type":"expense","category":"housing","amount":800,"date":"2024-03-01"}`)
	id := body["transaction"].(map[string]interface{})["id"].(string)

	_, body = env.do(t, http.MethodGet, "/api/transactions", bob, "")
	if n := len(body["transactions"].([]interface{})); n != 0 {
		t.Fatalf("bob sees %d of alice's transactions", n)
	}
	rr, _ := env.do(t, http.MethodDelete, "/api/transactions/"+id, bob, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("bob deleting alice's transaction: expected 404, got %d", rr.Code)
	}
}

func TestDashboardAndCalendar(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "stats@example.com")

	for _, tx := range []string{
		`{"type":"income","category":"salary","amount":3100,"date":"2024-03-01","currency":"USD"}`,
		`{"type":"expense","category":"housing","amount":92,"date":"2024-03-02","currency":"EUR","expenseType":"mandatory"}`,
		`{"type":"expense","category":"food","amount":200,"date":"2024-03-02","currency":"USD","expenseType":"leisure"}`,
	} {
		if rr, _ := env.do(t, http.MethodPost, "/api/transactions", token, tx); rr.Code != http.StatusCreated {
			t.Fatalf("seed: status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	rr, body := env.do(t, http.MethodGet, "/api/stats/dashboard?year=2024&month=3&currency=USD", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard: status=%d body=%s", rr.Code, rr.Body.String())
	}
	dash := body["stats"].(map[string]interface{})
	checks := map[string]float64{
		"income":           3100,
		"expense":          300,
		"mandatoryExpense": 100,
		"leisureExpense":   200,
		"moneySaved":       2800,
		"dailyBudget":      96.77,
		"daysInPeriod":     31,
	}
	for field, want := range checks {
		if got := dash[field]; got != want {
			t.Errorf("dashboard %s = %v, want %v", field, got, want)
		}
	}

	rr, body = env.do(t, http.MethodGet, "/api/stats/calendar?year=2024&month=3&currency=USD", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("calendar: status=%d", rr.Code)
	}
	days := body["days"].([]interface{})
	if len(days) != 31 {
		t.Fatalf("calendar days = %d, want 31", len(days))
	}
	day2 := days[1].(map[string]interface{})
	if day2["overBudget"] != true {
		t.Errorf("day 2 spends 300 against 96.77 and should be over budget: %v", day2)
	}

	rr, body = env.do(t, http.MethodGet, "/api/stats/daily?date=2024-03-02&currency=EUR", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("daily: status=%d", rr.Code)
	}
	daily := body["stats"].(map[string]interface{})
	if daily["expense"] != 276.0 {
		t.Errorf("daily expense in EUR = %v, want 276", daily["expense"])
	}

	rr, body = env.do(t, http.MethodGet, "/api/stats/categories?year=2024&month=3&currency=USD", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("categories: status=%d", rr.Code)
	}
	if n := len(body["categories"].([]interface{})); n != 2 {
		t.Errorf("categories = %d, want 2", n)
	}

	for _, q := range []string{"month=13", "currency=GBP", "year=abc"} {
		rr, _ = env.do(t, http.MethodGet, "/api/stats/dashboard?"+q, token, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("dashboard?%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestRatesEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodGet, "/api/rates", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("rates: status=%d", rr.Code)
	}
	view := body["rates"].(map[string]interface{})
	if view["provenance"] != "primary" || view["ageSeconds"] != 42.0 {
		t.Fatalf("unexpected rates view: %v", view)
	}
	display := view["display"].(map[string]interface{})
	if display["CAD"] != "1 USD = 1.3600 CAD" {
		t.Errorf("display CAD = %v", display["CAD"])
	}

	rr, _ = env.do(t, http.MethodPost, "/api/rates/refresh?base=EUR", "", "")
	if rr.Code != http.StatusOK || env.rates.fetches != 1 {
		t.Fatalf("refresh: status=%d fetches=%d", rr.Code, env.rates.fetches)
	}

	rr, body = env.do(t, http.MethodGet, "/api/rates/convert?amount=100&from=USD&to=EUR", "", "")
	if rr.Code != http.StatusOK || body["result"] != 92.0 || body["degraded"] != false {
		t.Fatalf("convert: status=%d body=%v", rr.Code, body)
	}

	rr, _ = env.do(t, http.MethodGet, "/api/rates/convert?amount=-5&from=USD&to=EUR", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", rr.Code)
	}

	rr, body = env.do(t, http.MethodGet, "/api/currencies", "", "")
	if rr.Code != http.StatusOK || len(body["currencies"].([]interface{})) != 4 {
		t.Fatalf("currencies: status=%d body=%v", rr.Code, body)
	}
}

func TestStrictConversionRejectsUnknownRate(t *testing.T) {
	env := newTestEnv(t)
	env.srv.deps.Converter = currency.NewConverter(currency.Strict)
	env.rates.res.Rates = core.Rates{core.USD: 1}

	rr, body := env.do(t, http.MethodGet, "/api/rates/convert?amount=10&from=USD&to=TRY", "", "")
	if rr.Code != http.StatusUnprocessableEntity || body["success"] != false {
		t.Fatalf("expected 422, got %d %v", rr.Code, body)
	}
}

func TestSettingsAndCycles(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "cycles@example.com")

	rr, body := env.do(t, http.MethodGet, "/api/settings", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get settings: status=%d", rr.Code)
	}
	st := body["settings"].(map[string]interface{})
	if st["activeCycleId"] != "default-salary" {
		t.Fatalf("default settings missing: %v", st)
	}

	rr, body = env.do(t, http.MethodPost, "/api/settings/cycles", token,
		`{"name":"Card","type":"credit-card","startDay":25,"endDay":24}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add cycle: status=%d body=%s", rr.Code, rr.Body.String())
	}
	cycleID := body["cycle"].(map[string]interface{})["id"].(string)

	rr, _ = env.do(t, http.MethodPost, "/api/settings/cycles", token,
		`{"name":"Bad","type":"credit-card","startDay":0,"endDay":24}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid cycle: expected 400, got %d", rr.Code)
	}

	rr, _ = env.do(t, http.MethodPost, "/api/settings/cycles", token,
		`{"id":"default-salary","name":"Copy","type":"salary","startDay":1,"endDay":31}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate cycle id: expected 409, got %d", rr.Code)
	}

	rr, body = env.do(t, http.MethodPost, "/api/settings/cycles/"+cycleID+"/activate", token, "")
	if rr.Code != http.StatusOK || body["settings"].(map[string]interface{})["activeCycleId"] != cycleID {
		t.Fatalf("activate: status=%d body=%v", rr.Code, body)
	}

	rr, body = env.do(t, http.MethodGet, "/api/stats/dashboard?year=2024&month=2", token, "")
	if rr.Code != http.StatusOK || body["stats"].(map[string]interface{})["daysInPeriod"] != 31.0 {
		t.Fatalf("dashboard should use the 25..24 cycle length: %v", body)
	}

	rr, _ = env.do(t, http.MethodPut, "/api/settings/cycles/"+cycleID, token,
		`{"name":"Card 2","type":"credit-card","startDay":10,"endDay":20}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update cycle: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr, body = env.do(t, http.MethodPost, "/api/settings/cycles/nope/activate", token, "")
	if rr.Code != http.StatusNotFound || body["error"] != cycleNotFound {
		t.Fatalf("activate missing: status=%d body=%v", rr.Code, body)
	}

	rr, _ = env.do(t, http.MethodDelete, "/api/settings/cycles/"+cycleID, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete cycle: status=%d", rr.Code)
	}

	rr, body = env.do(t, http.MethodPut, "/api/settings", token,
		`{"budgetCycles":[],"theme":"dark","defaultCurrency":"CAD"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update settings: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if body["settings"].(map[string]interface{})["defaultCurrency"] != "CAD" {
		t.Fatalf("default currency not saved: %v", body)
	}

	rr, body = env.do(t, http.MethodPost, "/api/transactions", token,
		`{"type":"expense","category":"food","amount":5,"date":"2024-03-01"}`)
	if rr.Code != http.StatusCreated || body["transaction"].(map[string]interface{})["currency"] != "CAD" {
		t.Fatalf("new transaction should take the default currency: %v", body)
	}

	rr, _ = env.do(t, http.MethodPut, "/api/settings", token, `{"defaultCurrency":"GBP"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported currency: expected 400, got %d", rr.Code)
	}
}

func TestRateLimitAndProbeFilter(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(ratelimit.Config{
		RequestsPerMinute: 2,
		CleanupInterval:   time.Hour,
		IdleTTL:           time.Hour,
	}))

	for i := 0; i < 2; i++ {
		if rr, _ := env.do(t, http.MethodGet, "/api/currencies", "", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rr.Code)
		}
	}
	rr, body := env.do(t, http.MethodGet, "/api/currencies", "", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" || body["success"] != false {
		t.Fatalf("expected 429, got %d", rr.Code)
	}

	probe := newTestEnv(t)
	rr, _ = probe.do(t, http.MethodGet, "/.env", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("probe: expected 400, got %d", rr.Code)
	}
}

func TestResponsesCarrySecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)
	rr, _ := env.do(t, http.MethodGet, "/api/currencies", "", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}
