package rates

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"budgettracker/internal/core"
)

type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
)

const (
	DefaultRefreshInterval = 60 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
)

// Result is a resolved rate table together with where it came from. It is
// both the return value of FetchRates and the payload sent to subscribers.
type Result struct {
	Snapshot
	Provenance Provenance
}

// Status is a point-in-time view of the provider.
type Status struct {
	State      State
	Provenance Provenance
	LastFetch  time.Time
	LastError  string
	Refreshing bool
}

// ProviderConfig holds configuration for the rate provider
type ProviderConfig struct {
	// Sources are tried in order; the first is the primary source.
	Sources []Source
	Cache   *Cache

	// RefreshInterval is the auto-refresh period (default: 60s)
	RefreshInterval time.Duration

	// FetchTimeout bounds a single source request (default: 10s)
	FetchTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Provider resolves the current rate table. A fetch tries each source in
// order, then falls back to the cached snapshot, then to DefaultRates, so it
// always yields a usable table. At most one fetch per base currency is in
// flight; concurrent callers share its result.
type Provider struct {
	sources  []Source
	cache    *Cache
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	group singleflight.Group

	mu         sync.Mutex
	state      State
	provenance Provenance
	lastFetch  time.Time
	lastErr    error
	subs       map[uint64]func(Result)
	nextSub    uint64

	// Auto-refresh lifecycle
	loopMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewProvider(cfg ProviderConfig) *Provider {
	p := &Provider{
		sources:  cfg.Sources,
		cache:    cfg.Cache,
		interval: cfg.RefreshInterval,
		timeout:  cfg.FetchTimeout,
		now:      cfg.Now,
		logger:   cfg.Logger,
		state:    StateIdle,
		subs:     make(map[uint64]func(Result)),
	}
	if p.cache == nil {
		p.cache = NewCache(nil)
	}
	if p.interval <= 0 {
		p.interval = DefaultRefreshInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultFetchTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Cache exposes the snapshot cache backing the provider.
func (p *Provider) Cache() *Cache { return p.cache }

// FetchRates resolves the rate table for base. It only returns an error when
// ctx is done before the shared fetch completes.
func (p *Provider) FetchRates(ctx context.Context, base core.Currency) (Result, error) {
	// The shared fetch must not die with the first caller's context.
	detached := context.WithoutCancel(ctx)
	ch := p.group.DoChan(string(base), func() (any, error) {
		return p.fetch(detached, base), nil
	})
	select {
	case res := <-ch:
		// callers joined on one fetch each get their own table
		out := res.Val.(Result)
		out.Rates = out.Rates.Clone()
		return out, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Provider) fetch(ctx context.Context, base core.Currency) Result {
	p.setState(StateFetching, "", nil)

	var lastErr error
	for i, src := range p.sources {
		fctx, cancel := context.WithTimeout(ctx, p.timeout)
		raw, err := src.Fetch(fctx, base)
		cancel()
		if err != nil {
			lastErr = err
			p.logger.WarnContext(ctx, "Rate source failed", "source", src.Name(), "error", err)
			continue
		}

		prov := FromPrimary
		if i > 0 {
			prov = FromSecondary
		}
		res := Result{
			Snapshot: Snapshot{
				Rates:        normalize(raw, base),
				BaseCurrency: base,
				Timestamp:    p.now().UTC(),
			},
			Provenance: prov,
		}
		if err := p.cache.Set(ctx, res.Snapshot); err != nil {
			p.logger.WarnContext(ctx, "Failed to persist exchange rates", "error", err)
		}
		p.setState(StateSuccess, prov, nil)
		p.logger.InfoContext(ctx, "Exchange rates updated", "source", src.Name(), "base", base)
		p.notify(res)
		return res
	}

	if lastErr == nil {
		lastErr = errors.New("no rate sources configured")
	}
	if snap, ok := p.cache.Get(); ok {
		p.setState(StateFailed, FromCache, lastErr)
		p.logger.WarnContext(ctx, "Using cached exchange rates", "timestamp", snap.Timestamp)
		return Result{Snapshot: snap, Provenance: FromCache}
	}
	p.setState(StateFailed, FromDefaults, lastErr)
	p.logger.WarnContext(ctx, "Using default exchange rates")
	return defaultResult(p.now())
}

// Current returns the table to convert with right now without fetching: the
// cached snapshot when there is one, the defaults otherwise.
func (p *Provider) Current() Result {
	snap, ok := p.cache.Get()
	if !ok {
		return defaultResult(p.now())
	}
	p.mu.Lock()
	prov := p.provenance
	p.mu.Unlock()
	if prov == "" || prov == FromDefaults {
		prov = FromCache
	}
	return Result{Snapshot: snap, Provenance: prov}
}

func defaultResult(now time.Time) Result {
	return Result{
		Snapshot: Snapshot{
			Rates:        core.DefaultRates(),
			BaseCurrency: core.USD,
			Timestamp:    now.UTC(),
		},
		Provenance: FromDefaults,
	}
}

func (p *Provider) IsCacheStale() bool { return p.cache.IsStale() }

func (p *Provider) TimeSinceUpdate() (int64, bool) { return p.cache.TimeSinceUpdate() }

func (p *Provider) Status() Status {
	p.mu.Lock()
	st := Status{
		State:      p.state,
		Provenance: p.provenance,
		LastFetch:  p.lastFetch,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	p.mu.Unlock()
	st.Refreshing = p.IsRunning()
	return st
}

func (p *Provider) setState(s State, prov Provenance, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	if s == StateFetching {
		return
	}
	p.provenance = prov
	p.lastFetch = p.now().UTC()
	p.lastErr = err
}

// Subscribe registers fn for every live update. The returned function
// removes the subscription; calling it more than once, or from inside fn, is
// safe. fn runs on the fetching goroutine and must not call FetchRates.
func (p *Provider) Subscribe(fn func(Result)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) notify(res Result) {
	p.mu.Lock()
	fns := make([]func(Result), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		res := res
		res.Rates = res.Rates.Clone()
		fn(res)
	}
}

// LatestOnly wraps fn so that updates older than the last delivered one are
// dropped.
func LatestOnly(fn func(Result)) func(Result) {
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func(res Result) {
		mu.Lock()
		if res.Timestamp.Before(last) {
			mu.Unlock()
			return
		}
		last = res.Timestamp
		mu.Unlock()
		fn(res)
	}
}

// Start launches the auto-refresh loop for base, fetching immediately and
// then every refresh interval. Calling Start while running is a no-op.
func (p *Provider) Start(ctx context.Context, base core.Currency) {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.runLoop(ctx, base, p.stopCh, p.doneCh)

	p.logger.InfoContext(ctx, "Rate auto-refresh started", "base", base, "interval", p.interval)
}

// Stop halts the auto-refresh loop and waits for it to exit. A fetch already
// in progress is allowed to finish. Stop on a stopped provider is a no-op.
func (p *Provider) Stop(ctx context.Context) error {
	p.loopMu.Lock()
	if !p.running {
		p.loopMu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.loopMu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Rate auto-refresh stopped")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Rate auto-refresh stop timed out")
		return ctx.Err()
	}
}

func (p *Provider) IsRunning() bool {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	return p.running
}

func (p *Provider) runLoop(ctx context.Context, base core.Currency, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx, base)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			p.loopMu.Lock()
			if p.stopCh == stopCh {
				p.running = false
			}
			p.loopMu.Unlock()
			return
		case <-ticker.C:
			p.refresh(ctx, base)
		}
	}
}

func (p *Provider) refresh(ctx context.Context, base core.Currency) {
	if _, err := p.FetchRates(context.WithoutCancel(ctx), base); err != nil {
		p.logger.WarnContext(ctx, "Scheduled rate refresh failed", "error", err)
	}
}
