package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"budgettracker/internal/cache"
	"budgettracker/internal/core"
	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
	"budgettracker/internal/stats"
)

// RateSource yields the rate table statistics are computed with.
type RateSource interface {
	Current() rates.Result
}

// StatsService loads a user's transactions and settings and feeds them to
// the stats engine with the current rate table. Results are cached per user
// and keyed by the rate table timestamp, so a rate refresh or any
// transaction change yields fresh figures.
type StatsService struct {
	txs      repository.TransactionRepository
	settings *SettingsService
	rates    RateSource
	engine   *stats.Engine
	cache    *cache.LRUCache[any]

	// gens counts invalidations per user; a result computed across an
	// invalidation is returned but never cached.
	mu   sync.Mutex
	gens map[string]uint64
}

// StatsCacheTTL bounds how long computed statistics are reused.
const StatsCacheTTL = 5 * time.Minute

func NewStatsService(txs repository.TransactionRepository, settings *SettingsService, rs RateSource, engine *stats.Engine, c *cache.LRUCache[any]) *StatsService {
	return &StatsService{txs: txs, settings: settings, rates: rs, engine: engine, cache: c, gens: make(map[string]uint64)}
}

// Invalidate drops cached results for userID.
func (s *StatsService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.gens[userID]++
	s.mu.Unlock()
	s.cache.DeletePrefix(userID + "|")
}

func (s *StatsService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// cacheKey scopes a result to the user and the rate table it was computed
// with. The hardcoded defaults carry a fresh timestamp on every call, so they
// are keyed by provenance instead.
func cacheKey(userID string, rt rates.Result, parts ...string) string {
	version := fmt.Sprint(rt.Timestamp.UnixMilli())
	if rt.Provenance == rates.FromDefaults {
		version = string(rates.FromDefaults)
	}
	return userID + "|" + strings.Join(parts, "|") + "|" + version
}

func cached[T any](s *StatsService, userID, key string, compute func() (T, error)) (T, error) {
	if s.cache == nil {
		return compute()
	}
	if v, ok := s.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	gen := s.generation(userID)
	v, err := compute()
	if err != nil {
		return v, err
	}
	s.mu.Lock()
	if s.gens[userID] == gen {
		s.cache.Set(key, v)
	}
	s.mu.Unlock()
	return v, nil
}

func (s *StatsService) load(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := s.txs.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Dashboard returns the monthly overview for year/month in target.
func (s *StatsService) Dashboard(ctx context.Context, userID string, year int, month time.Month, target core.Currency) (stats.DashboardStats, error) {
	rt := s.rates.Current()
	key := cacheKey(userID, rt, "dashboard", fmt.Sprintf("%04d-%02d", year, month), string(target))
	return cached(s, userID, key, func() (stats.DashboardStats, error) {
		txs, err := s.load(ctx, userID)
		if err != nil {
			return stats.DashboardStats{}, err
		}
		active, err := s.settings.ActiveCycle(ctx, userID)
		if err != nil {
			return stats.DashboardStats{}, err
		}
		m := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return s.engine.Dashboard(ctx, txs, target, rt.Rates, m, active), nil
	})
}

// Daily returns the figures and transactions for one date.
func (s *StatsService) Daily(ctx context.Context, userID string, day core.Date, target core.Currency) (stats.DailyStats, error) {
	rt := s.rates.Current()
	key := cacheKey(userID, rt, "daily", day.String(), string(target))
	return cached(s, userID, key, func() (stats.DailyStats, error) {
		txs, err := s.load(ctx, userID)
		if err != nil {
			return stats.DailyStats{}, err
		}
		return s.engine.Daily(ctx, txs, target, rt.Rates, day), nil
	})
}

// Calendar returns per-day figures for the month, flagging days whose
// expenses exceed the month's daily budget.
func (s *StatsService) Calendar(ctx context.Context, userID string, year int, month time.Month, target core.Currency) ([]stats.CalendarDay, error) {
	dash, err := s.Dashboard(ctx, userID, year, month, target)
	if err != nil {
		return nil, err
	}
	rt := s.rates.Current()
	key := cacheKey(userID, rt, "calendar", fmt.Sprintf("%04d-%02d", year, month), string(target))
	return cached(s, userID, key, func() ([]stats.CalendarDay, error) {
		txs, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		m := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return s.engine.Calendar(ctx, txs, target, rt.Rates, m, dash.DailyBudget), nil
	})
}

// Categories breaks down expenses by category over p. A zero period covers
// all time.
func (s *StatsService) Categories(ctx context.Context, userID string, p stats.Period, target core.Currency) ([]stats.CategorySlice, error) {
	rt := s.rates.Current()
	key := cacheKey(userID, rt, "categories", p.From.String(), p.To.String(), string(target))
	return cached(s, userID, key, func() ([]stats.CategorySlice, error) {
		txs, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.engine.Categories(ctx, txs, target, rt.Rates, p), nil
	})
}
