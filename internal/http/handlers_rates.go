package http

import (
	"net/http"
	"time"

	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	"budgettracker/internal/rates"
)

// ratesView is the rate table as the API reports it.
type ratesView struct {
	Base       core.Currency            `json:"base"`
	Rates      core.Rates               `json:"rates"`
	Timestamp  time.Time                `json:"timestamp"`
	Provenance rates.Provenance         `json:"provenance"`
	AgeSeconds *int64                   `json:"ageSeconds,omitempty"`
	Stale      bool                     `json:"stale"`
	State      rates.State              `json:"state"`
	Refreshing bool                     `json:"refreshing"`
	LastError  string                   `json:"lastError,omitempty"`
	Display    map[core.Currency]string `json:"display"`
}

func (s *Server) viewRates(res rates.Result) ratesView {
	st := s.deps.Rates.Status()
	base := res.BaseCurrency
	if base == "" {
		base = core.DefaultCurrency
	}
	v := ratesView{
		Base:       base,
		Rates:      res.Rates,
		Timestamp:  res.Timestamp,
		Provenance: res.Provenance,
		Stale:      s.deps.Rates.IsCacheStale(),
		State:      st.State,
		Refreshing: st.Refreshing,
		LastError:  st.LastError,
		Display:    make(map[core.Currency]string),
	}
	if age, ok := s.deps.Rates.TimeSinceUpdate(); ok {
		v.AgeSeconds = &age
	}
	for _, info := range core.SupportedCurrencies() {
		if info.Code == base {
			continue
		}
		if rate := currency.CrossRate(base, info.Code, res.Rates); rate > 0 {
			v.Display[info.Code] = currency.FormatRate(rate, base, info.Code)
		}
	}
	return v
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Field("currencies", core.SupportedCurrencies()).Write(w)
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Field("rates", s.viewRates(s.deps.Rates.Current())).Write(w)
}

// handleRefreshRates forces a fetch. It never fails for lack of a live
// source; the response says where the rates came from.
func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	base, err := ParseCurrencyParam(r.URL.Query(), "base", s.deps.BaseCurrency)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	res, err := s.deps.Rates.FetchRates(r.Context(), base)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().Field("rates", s.viewRates(res)).Write(w)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := core.ParseAmount(q.Get("amount"))
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	from, err := ParseCurrencyParam(q, "from", core.DefaultCurrency)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	to, err := ParseCurrencyParam(q, "to", s.deps.BaseCurrency)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}

	current := s.deps.Rates.Current()
	conv, err := s.deps.Converter.ConvertContext(r.Context(), amount, from, to, current.Rates)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	NewJSONResponse().
		Field("amount", amount).
		Field("from", from).
		Field("to", to).
		Field("result", conv.Amount).
		Field("rate", currency.CrossRate(from, to, current.Rates)).
		Field("degraded", conv.Degraded).
		Field("provenance", current.Provenance).
		Write(w)
}
