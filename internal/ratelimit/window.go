// Package ratelimit provides sliding-window token admission control for AI agents.
package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Window is the trailing interval over which token usage is summed.
const Window = 60 * time.Second

// Unlimited disables admission checks for an agent when used as a limit.
// Any negative limit is treated the same way.
const Unlimited = -1

// Config configures a Limiter.
type Config struct {
	// Enabled toggles all checking. When false, Check always admits and
	// Record is a no-op.
	Enabled bool `json:"enabled"`

	// GlobalLimit is the tokens-per-window limit for agents without an override.
	GlobalLimit int `json:"global_limit"`

	// AgentLimits overrides GlobalLimit per agent.
	AgentLimits map[string]int `json:"agent_limits,omitempty"`
}

// usageEntry is one recorded consumption.
type usageEntry struct {
	at     time.Time
	tokens int
}

// agentWindow holds the recent usage for one agent.
// Entries are appended in non-decreasing time order, so expiry only ever
// removes from the front.
type agentWindow struct {
	mu      sync.Mutex
	entries []usageEntry
	head    int // index of the first live entry
	sum     int // sum of live entries
}

// evictLocked drops entries older than Window relative to now. Caller must hold w.mu.
func (w *agentWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-Window)
	for w.head < len(w.entries) && w.entries[w.head].at.Before(cutoff) {
		w.sum -= w.entries[w.head].tokens
		w.entries[w.head] = usageEntry{}
		w.head++
	}

	// Compact once the dead prefix dominates the slice.
	if w.head > 0 && w.head*2 >= len(w.entries) {
		live := copy(w.entries, w.entries[w.head:])
		w.entries = w.entries[:live]
		w.head = 0
	}
}

// oldestLocked returns the timestamp of the oldest live entry. Caller must hold w.mu.
func (w *agentWindow) oldestLocked() (time.Time, bool) {
	if w.head >= len(w.entries) {
		return time.Time{}, false
	}
	return w.entries[w.head].at, true
}

// Limiter admits or rejects token consumption per agent over a sliding window.
// It is safe for concurrent use; state for different agents is independent.
type Limiter struct {
	mu      sync.RWMutex
	config  Config
	windows map[string]*agentWindow

	// nowFn allows test time injection.
	nowFn func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFn = now
	}
}

// New creates a Limiter from cfg.
func New(cfg Config, opts ...Option) *Limiter {
	limits := make(map[string]int, len(cfg.AgentLimits))
	for agent, limit := range cfg.AgentLimits {
		limits[agent] = limit
	}
	cfg.AgentLimits = limits

	l := &Limiter{
		config:  cfg,
		windows: make(map[string]*agentWindow),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) now() time.Time {
	if l.nowFn != nil {
		return l.nowFn()
	}
	return time.Now()
}

// Enabled reports whether the limiter is checking at all.
func (l *Limiter) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// SetAgentLimit installs or replaces a per-agent override.
func (l *Limiter) SetAgentLimit(agentID string, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.AgentLimits[agentID] = limit
}

// LimitFor resolves the effective limit for an agent: the agent override if
// present, otherwise the global limit.
func (l *Limiter) LimitFor(agentID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limitLocked(agentID)
}

func (l *Limiter) limitLocked(agentID string) int {
	if limit, ok := l.config.AgentLimits[agentID]; ok {
		return limit
	}
	return l.config.GlobalLimit
}

// window returns the agent's window, creating it if needed.
func (l *Limiter) window(agentID string) *agentWindow {
	l.mu.RLock()
	w, ok := l.windows[agentID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[agentID]; ok {
		return w
	}
	w = &agentWindow{}
	l.windows[agentID] = w
	return w
}

// Check reports whether agentID may consume tokensToAdd more tokens now.
// On rejection the reason names the agent, the current usage against the
// limit and an estimated reset time.
func (l *Limiter) Check(agentID string, tokensToAdd int) (bool, string) {
	l.mu.RLock()
	enabled := l.config.Enabled
	limit := l.limitLocked(agentID)
	l.mu.RUnlock()

	if !enabled {
		return true, ""
	}
	if limit < 0 {
		return true, ""
	}

	w := l.window(agentID)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.evictLocked(now)

	if w.sum+tokensToAdd <= limit {
		return true, ""
	}

	var resetIn time.Duration
	if oldest, ok := w.oldestLocked(); ok {
		resetIn = Window - now.Sub(oldest)
		if resetIn < 0 {
			resetIn = 0
		}
	}

	return false, fmt.Sprintf(
		"rate limit exceeded for agent %q: %d/%d tokens used in the last %ds (requested %d), resets in ~%ds",
		agentID, w.sum, limit, int(Window.Seconds()), tokensToAdd, int(resetIn/time.Second),
	)
}

// Record appends a consumption entry for agentID. It does not enforce the
// limit; callers are expected to Check first.
func (l *Limiter) Record(agentID string, tokenCount int) {
	if !l.Enabled() {
		return
	}

	w := l.window(agentID)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.evictLocked(now)
	w.entries = append(w.entries, usageEntry{at: now, tokens: tokenCount})
	w.sum += tokenCount
}

// Usage returns the agent's usage within the current window and its limit.
// Unlimited agents and a disabled limiter report 0/0.
func (l *Limiter) Usage(agentID string) (current int, limit int) {
	l.mu.RLock()
	enabled := l.config.Enabled
	limit = l.limitLocked(agentID)
	w, ok := l.windows[agentID]
	l.mu.RUnlock()

	if !enabled || limit < 0 {
		return 0, 0
	}
	if !ok {
		return 0, limit
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(l.now())
	return w.sum, limit
}

// AgentUsage is a point-in-time view of one agent's window.
type AgentUsage struct {
	Agent   string `json:"agent" yaml:"agent"`
	Current int    `json:"current" yaml:"current"`
	Limit   int    `json:"limit" yaml:"limit"`
}

// Snapshot returns the usage of every agent seen so far, sorted by agent.
func (l *Limiter) Snapshot() []AgentUsage {
	l.mu.RLock()
	agents := make([]string, 0, len(l.windows))
	for agent := range l.windows {
		agents = append(agents, agent)
	}
	l.mu.RUnlock()
	sort.Strings(agents)

	out := make([]AgentUsage, 0, len(agents))
	for _, agent := range agents {
		current, limit := l.Usage(agent)
		out = append(out, AgentUsage{Agent: agent, Current: current, Limit: limit})
	}
	return out
}

// FormatDelay formats a duration as a human-readable string.
func FormatDelay(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
