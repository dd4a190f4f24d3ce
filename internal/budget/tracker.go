// Package budget tracks cumulative per-agent token usage against a ceiling and
// classifies it into ok, warning and critical bands.
package budget

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"
)

// Thresholds for budget classification, as fractions of the ceiling.
const (
	// WarningThreshold marks advisory pressure (80%).
	WarningThreshold = 0.80

	// CriticalThreshold requires the agent to be summarized and replaced (95%).
	CriticalThreshold = 0.95

	// SummaryContextChars caps how much context is embedded in a handoff prompt.
	SummaryContextChars = 2000

	// SummaryTokenTarget is the requested length of a handoff summary.
	SummaryTokenTarget = 500
)

// Status is the threshold band an agent's usage falls into.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Config configures a Tracker.
type Config struct {
	// DefaultMaxTokens applies to agents without an explicit limit. Zero
	// leaves the ceiling unset.
	DefaultMaxTokens int `json:"default_max_tokens"`

	// AgentLimits sets per-agent ceilings up front.
	AgentLimits map[string]int `json:"agent_limits,omitempty"`
}

// agentState is the budget for one agent.
type agentState struct {
	used    int
	ceiling int
}

func (s *agentState) ratio() float64 {
	if s.ceiling <= 0 {
		return 0
	}
	return float64(s.used) / float64(s.ceiling)
}

// Tracker accumulates token usage per agent. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	config  Config
	agents  map[string]*agentState
	counter TokenCounter
	logger  *slog.Logger
}

// New creates a Tracker. A nil counter selects ApproxCounter.
func New(cfg Config, counter TokenCounter, logger *slog.Logger) *Tracker {
	if counter == nil {
		counter = ApproxCounter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		config:  cfg,
		agents:  make(map[string]*agentState),
		counter: counter,
		logger:  logger,
	}
	for agent, ceiling := range cfg.AgentLimits {
		t.agents[agent] = &agentState{ceiling: ceiling}
	}
	return t
}

// stateLocked returns the agent's state, creating it with the default ceiling.
// Caller must hold t.mu.
func (t *Tracker) stateLocked(agentID string) *agentState {
	if s, ok := t.agents[agentID]; ok {
		return s
	}
	s := &agentState{ceiling: t.config.DefaultMaxTokens}
	t.agents[agentID] = s
	return s
}

// Counter returns the token counting strategy in use.
func (t *Tracker) Counter() TokenCounter {
	return t.counter
}

// SetLimit sets the ceiling for an agent.
func (t *Tracker) SetLimit(agentID string, maxTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateLocked(agentID).ceiling = maxTokens
}

// CountTokens counts tokens in text with the configured strategy.
func (t *Tracker) CountTokens(text string) int {
	return t.counter.Count(text)
}

// Add counts text and adds it to the agent's usage, returning the new total.
func (t *Tracker) Add(agentID, text string) int {
	return t.AddTokens(agentID, t.CountTokens(text))
}

// AddTokens adds an already-counted amount to the agent's usage, returning
// the new total. Negative amounts are ignored.
func (t *Tracker) AddTokens(agentID string, tokens int) int {
	if tokens < 0 {
		tokens = 0
	}

	t.mu.Lock()
	s := t.stateLocked(agentID)
	before := s.ratio()
	s.used += tokens
	total, after := s.used, s.ratio()
	t.mu.Unlock()

	if classify(before) != classify(after) {
		t.logger.Info("agent budget threshold crossed",
			"agent", agentID,
			"status", classify(after),
			"used", total,
			"ratio", after)
	}
	return total
}

// Usage returns the agent's tokens used, ceiling and usage ratio.
// Unknown agents report zero usage with the default ceiling.
func (t *Tracker) Usage(agentID string) (used, ceiling int, ratio float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.agents[agentID]
	if !ok {
		return 0, t.config.DefaultMaxTokens, 0
	}
	return s.used, s.ceiling, s.ratio()
}

// classify maps a usage ratio to a status band.
func classify(ratio float64) Status {
	switch {
	case ratio >= CriticalThreshold:
		return StatusCritical
	case ratio >= WarningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// Classify returns the agent's status band and, for warning and critical,
// a message with the usage percentage and tokens remaining.
func (t *Tracker) Classify(agentID string) (Status, string) {
	used, ceiling, ratio := t.Usage(agentID)
	return classifyUsage(used, ceiling, ratio)
}

func classifyUsage(used, ceiling int, ratio float64) (Status, string) {
	status := classify(ratio)
	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}

	switch status {
	case StatusCritical:
		return status, fmt.Sprintf("Token budget critical at %.1f%% (%d tokens remaining)", ratio*100, remaining)
	case StatusWarning:
		return status, fmt.Sprintf("Token budget at %.1f%% (%d tokens remaining)", ratio*100, remaining)
	default:
		return status, ""
	}
}

// ShouldSleep reports whether the agent should be summarized and replaced.
// Only critical triggers it; warning is advisory.
func (t *Tracker) ShouldSleep(agentID string) bool {
	status, _ := t.Classify(agentID)
	return status == StatusCritical
}

// Reset zeroes the agent's usage, keeping its ceiling.
func (t *Tracker) Reset(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.agents[agentID]; ok {
		s.used = 0
	}
}

// SummaryPrompt renders the handoff instruction sent to an agent about to be
// replaced. Only the first SummaryContextChars characters of context are
// embedded.
func (t *Tracker) SummaryPrompt(agentID, context string) string {
	_, _, ratio := t.Usage(agentID)
	return fmt.Sprintf(summaryPromptTemplate,
		agentID, ratio*100, SummaryTokenTarget, truncateChars(context, SummaryContextChars))
}

const summaryPromptTemplate = `Agent %s has used %.1f%% of its token budget and will be handed off to a fresh agent.

Write a handoff summary of at most %d tokens that lets your successor continue without rereading the conversation. Cover:
1. The task you were working on and its current state
2. What you completed and how you verified it
3. What remains, including blockers and open questions
4. Files you modified and build diagnostics you claimed or fixed

Respond with the summary only.

Recent context:
%s
`

// truncateChars returns at most n characters (runes) of s.
func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// AgentStats is the exported view of one agent's budget.
type AgentStats struct {
	TokensUsed   int     `json:"tokens_used" yaml:"tokens_used"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens"`
	UsagePercent float64 `json:"usage_percent" yaml:"usage_percent"`
	Status       Status  `json:"status" yaml:"status"`
	Message      string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// ExportStats returns a serializable snapshot of every known agent.
func (t *Tracker) ExportStats() map[string]AgentStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]AgentStats, len(t.agents))
	for agent, s := range t.agents {
		ratio := s.ratio()
		status, msg := classifyUsage(s.used, s.ceiling, ratio)
		out[agent] = AgentStats{
			TokensUsed:   s.used,
			MaxTokens:    s.ceiling,
			UsagePercent: ratio * 100,
			Status:       status,
			Message:      msg,
		}
	}
	return out
}

// Agents returns the known agent identifiers, sorted.
func (t *Tracker) Agents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	agents := make([]string, 0, len(t.agents))
	for agent := range t.agents {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}
