// Package rates keeps the exchange-rate table used for conversions: a
// persisted snapshot cache and a provider that refreshes it from remote
// sources with fallbacks.
package rates

import (
	"encoding/json"
	"time"

	"budgettracker/internal/core"
)

// CacheKey names the persisted snapshot in every SnapshotStore.
const CacheKey = "budget-tracker-exchange-rates"

// Provenance tells where the rates returned by a fetch came from.
type Provenance string

const (
	FromPrimary   Provenance = "primary"
	FromSecondary Provenance = "secondary"
	FromCache     Provenance = "cached"
	FromDefaults  Provenance = "default"
)

// Snapshot is a rate table captured at a point in time.
type Snapshot struct {
	Rates        core.Rates
	BaseCurrency core.Currency
	Timestamp    time.Time
}

// storedSnapshot is the persisted layout; the timestamp is unix millis.
type storedSnapshot struct {
	Rates        map[string]float64 `json:"rates"`
	BaseCurrency string             `json:"baseCurrency"`
	Timestamp    int64              `json:"timestamp"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	stored := storedSnapshot{
		Rates:        make(map[string]float64, len(s.Rates)),
		BaseCurrency: string(s.BaseCurrency),
		Timestamp:    s.Timestamp.UnixMilli(),
	}
	for c, v := range s.Rates {
		stored.Rates[string(c)] = v
	}
	return json.Marshal(stored)
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var stored storedSnapshot
	if err := json.Unmarshal(b, &stored); err != nil {
		return err
	}
	s.Rates = make(core.Rates, len(stored.Rates))
	for c, v := range stored.Rates {
		s.Rates[core.Currency(c)] = v
	}
	s.BaseCurrency = core.Currency(stored.BaseCurrency)
	s.Timestamp = time.UnixMilli(stored.Timestamp).UTC()
	return nil
}

func (s Snapshot) clone() Snapshot {
	s.Rates = s.Rates.Clone()
	return s
}

// normalize keeps only the supported currencies. A missing base entry is
// taken as 1, any other missing entry as 0 (unknown).
func normalize(raw map[string]float64, base core.Currency) core.Rates {
	out := make(core.Rates, len(core.SupportedCurrencies()))
	for _, info := range core.SupportedCurrencies() {
		out[info.Code] = raw[string(info.Code)]
	}
	if out[base] == 0 {
		out[base] = 1
	}
	return out
}
