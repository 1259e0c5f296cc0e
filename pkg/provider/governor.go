package provider

import (
	"sync"
	"time"
)

// providerWindow is the rolling one-minute request counter for one provider.
type providerWindow struct {
	requestCount int
	windowReset  time.Time
}

// Governor owns every piece of shared mutable provider state: the rolling
// per-provider request counters and the daily-spend accumulator. All
// mutation goes through atomic check-and-increment methods under one lock,
// so multiple queue instances or manual triggers can share a Governor
// without over-admitting requests.
//
// A Governor should be created using NewGovernor.
type Governor struct {
	mu         sync.Mutex
	windows    map[string]*providerWindow
	spend      float64
	spendDay   time.Time
	dailyLimit float64
	now        func() time.Time
}

// NewGovernorParams contains configuration for creating a Governor.
//
// DailyCostLimit caps total spend per calendar day (UTC). Now overrides the
// clock and exists for tests; leave nil in production.
type NewGovernorParams struct {
	DailyCostLimit float64
	Now            func() time.Time
}

// NewGovernor creates a governor with empty counters.
func NewGovernor(params NewGovernorParams) *Governor {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Governor{
		windows:    make(map[string]*providerWindow),
		dailyLimit: params.DailyCostLimit,
		now:        now,
	}
}

// TryAcquire checks the provider's rolling one-minute counter against its
// requests-per-minute ceiling and increments it, as one atomic step. It
// returns false without incrementing when the ceiling is reached.
func (g *Governor) TryAcquire(providerID string, requestsPerMinute int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	w := g.window(providerID)
	if w.requestCount >= requestsPerMinute {
		return false
	}
	w.requestCount++
	return true
}

// Saturated reports whether the provider's ceiling is currently exhausted,
// without consuming a slot. The dispatcher uses this to skip providers
// before attempting them.
func (g *Governor) Saturated(providerID string, requestsPerMinute int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.window(providerID).requestCount >= requestsPerMinute
}

// window returns the provider's counter, resetting it when the current
// window has elapsed. Callers must hold g.mu.
func (g *Governor) window(providerID string) *providerWindow {
	now := g.now()
	w, ok := g.windows[providerID]
	if !ok {
		w = &providerWindow{windowReset: now.Add(time.Minute)}
		g.windows[providerID] = w
		return w
	}
	if !now.Before(w.windowReset) {
		w.requestCount = 0
		w.windowReset = now.Add(time.Minute)
	}
	return w
}

// AddSpend adds the cost of a completed provider call to the daily
// accumulator. Spend is monotonic within a day window; it only resets when
// the day rolls over.
func (g *Governor) AddSpend(cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	g.spend += cost
}

// TodaySpend returns the accumulated spend for the current day window.
func (g *Governor) TodaySpend() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	return g.spend
}

// DailyLimit returns the configured daily cost limit.
func (g *Governor) DailyLimit() float64 {
	return g.dailyLimit
}

// RemainingBudget returns how much of today's budget is left, never below
// zero.
func (g *Governor) RemainingBudget() float64 {
	remaining := g.DailyLimit() - g.TodaySpend()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// rollDay resets the spend accumulator when the UTC day has changed.
// Callers must hold g.mu.
func (g *Governor) rollDay() {
	day := g.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(g.spendDay) {
		g.spendDay = day
		g.spend = 0
	}
}
