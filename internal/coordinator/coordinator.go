// Package coordinator owns the rate limiter, budget tracker, build ledger and
// command runner for one crew of agents and exposes the operations agents
// perform against them.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dicklesworthstone/crewgate/internal/budget"
	"github.com/Dicklesworthstone/crewgate/internal/config"
	"github.com/Dicklesworthstone/crewgate/internal/diagnostics"
	"github.com/Dicklesworthstone/crewgate/internal/ledger"
	"github.com/Dicklesworthstone/crewgate/internal/ratelimit"
	"github.com/Dicklesworthstone/crewgate/internal/runner"
)

// Coordinator wires the subsystems together. Each subsystem is safe for
// concurrent use, so the Coordinator holds no lock of its own.
type Coordinator struct {
	limiter *ratelimit.Limiter
	budget  *budget.Tracker
	ledger  *ledger.Ledger
	runner  *runner.Runner
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*settings)

type settings struct {
	now     func() time.Time
	counter budget.TokenCounter
	noFiles bool
}

// WithClock injects the time source used by the limiter and ledger.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithCounter overrides the configured token counter.
func WithCounter(c budget.TokenCounter) Option {
	return func(s *settings) { s.counter = c }
}

// WithoutMirrors disables the status and change log documents.
func WithoutMirrors() Option {
	return func(s *settings) { s.noFiles = true }
}

// New builds a Coordinator from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.counter == nil {
		s.counter = budget.NewCounter(cfg.Budget.Counter, cfg.Budget.Encoding, logger)
	}

	dir := cfg.Workspace
	if s.noFiles {
		dir = ""
	}

	c := &Coordinator{
		limiter: ratelimit.New(ratelimit.Config{
			Enabled:     cfg.RateLimit.Enabled,
			GlobalLimit: cfg.RateLimit.GlobalLimit,
			AgentLimits: cfg.RateLimit.Agents,
		}, ratelimit.WithClock(s.now)),
		budget: budget.New(budget.Config{
			DefaultMaxTokens: cfg.Budget.DefaultMaxTokens,
			AgentLimits:      cfg.Budget.Agents,
		}, s.counter, logger),
		ledger: ledger.New(ledger.Options{
			Dir:         dir,
			StatusFile:  cfg.Ledger.StatusFile,
			ChangesFile: cfg.Ledger.ChangesFile,
			MaxPatches:  cfg.Ledger.MaxPatches,
			OutputLines: cfg.Ledger.OutputLines,
			Logger:      logger,
			Now:         s.now,
		}),
		runner: runner.New(time.Duration(cfg.Runner.TimeoutSeconds)*time.Second, logger),
		logger: logger,
	}

	logger.Debug("coordinator ready",
		"workspace", dir,
		"rate_limit", c.limiter.Enabled(),
		"counter", s.counter.Name(),
		"timeout", c.runner.Timeout())
	return c
}

// Limiter returns the sliding-window limiter.
func (c *Coordinator) Limiter() *ratelimit.Limiter { return c.limiter }

// Budget returns the budget tracker.
func (c *Coordinator) Budget() *budget.Tracker { return c.budget }

// Ledger returns the shared build ledger.
func (c *Coordinator) Ledger() *ledger.Ledger { return c.ledger }

// Runner returns the command runner.
func (c *Coordinator) Runner() *runner.Runner { return c.runner }

// BuildResult describes one build or test run.
type BuildResult struct {
	Tool        string                   `json:"tool" yaml:"tool"`
	Status      diagnostics.Status       `json:"status" yaml:"status"`
	ExitCode    int                      `json:"exit_code" yaml:"exit_code"`
	TimedOut    bool                     `json:"timed_out" yaml:"timed_out"`
	Duration    time.Duration            `json:"duration" yaml:"duration"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

// RunBuild marks the ledger running, executes argv and records its output
// under tool. A timed-out command is recorded like any other failure.
func (c *Coordinator) RunBuild(ctx context.Context, tool string, argv []string) (BuildResult, error) {
	if len(argv) == 0 || argv[0] == "" {
		return BuildResult{Tool: tool}, fmt.Errorf("run %s: %w", tool, runner.ErrEmptyCommand)
	}
	if tool == "" {
		tool = argv[0]
	}
	c.ledger.RecordRunning(tool)

	res, err := c.runner.Run(ctx, argv)
	if err != nil {
		// An interrupted run is recorded as failed so the ledger never stays running.
		status := c.ledger.RecordBuildOutput(tool, "command did not complete: "+err.Error(), runner.ExitNotStarted)
		return BuildResult{Tool: tool, Status: status, ExitCode: runner.ExitNotStarted}, fmt.Errorf("run %s: %w", tool, err)
	}

	status := c.ledger.RecordBuildOutput(tool, res.Output, res.ExitCode)
	return BuildResult{
		Tool:        tool,
		Status:      status,
		ExitCode:    res.ExitCode,
		TimedOut:    res.TimedOut,
		Duration:    res.Duration,
		Diagnostics: c.ledger.Diagnostics(),
	}, nil
}

// Admission is the limiter's answer for a pending request.
type Admission struct {
	Tokens  int    `json:"tokens"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Admit counts text and asks the limiter whether agentID may send it now.
// Nothing is recorded.
func (c *Coordinator) Admit(agentID, text string) Admission {
	tokens := c.budget.CountTokens(text)
	ok, reason := c.limiter.Check(agentID, tokens)
	if !ok {
		c.logger.Info("request deferred", "agent", agentID, "tokens", tokens)
	}
	return Admission{Tokens: tokens, Allowed: ok, Reason: reason}
}

// TurnReport is the outcome of accounting one exchange.
type TurnReport struct {
	Tokens      int           `json:"tokens" yaml:"tokens"`
	Used        int           `json:"used" yaml:"used"`
	Max         int           `json:"max" yaml:"max"`
	Status      budget.Status `json:"status" yaml:"status"`
	Message     string        `json:"message,omitempty" yaml:"message,omitempty"`
	ShouldSleep bool          `json:"should_sleep" yaml:"should_sleep"`
}

// ReportTurn accounts the tokens of one exchange against both the sliding
// window and the cumulative budget. Text is counted once.
func (c *Coordinator) ReportTurn(agentID, text string) TurnReport {
	tokens := c.budget.CountTokens(text)
	c.limiter.Record(agentID, tokens)
	used := c.budget.AddTokens(agentID, tokens)

	_, ceiling, _ := c.budget.Usage(agentID)
	status, msg := c.budget.Classify(agentID)
	return TurnReport{
		Tokens:      tokens,
		Used:        used,
		Max:         ceiling,
		Status:      status,
		Message:     msg,
		ShouldSleep: status == budget.StatusCritical,
	}
}

// Replace returns the handoff prompt for agentID built from its recent
// context and resets its budget for the successor.
func (c *Coordinator) Replace(agentID, recentContext string) string {
	prompt := c.budget.SummaryPrompt(agentID, recentContext)
	c.budget.Reset(agentID)
	c.logger.Info("agent replaced", "agent", agentID)
	return prompt
}

// RecordPatch diffs original against modified and appends the patch to the
// change log. It returns the diff, which is empty when nothing changed.
func (c *Coordinator) RecordPatch(file, author, original, modified, description string) string {
	diff := ledger.Diff(original, modified, file)
	if diff == "" {
		c.logger.Debug("patch skipped, no changes", "file", file, "author", author)
		return ""
	}
	c.ledger.AddPatch(file, author, diff, description)
	return diff
}

// Stats is an aggregate snapshot of all subsystems.
type Stats struct {
	Budgets     map[string]budget.AgentStats `json:"budgets" yaml:"budgets"`
	RateLimits  []ratelimit.AgentUsage       `json:"rate_limits" yaml:"rate_limits"`
	BuildStatus diagnostics.Status           `json:"build_status" yaml:"build_status"`
	Unclaimed   int                          `json:"unclaimed" yaml:"unclaimed"`
	Patches     int                          `json:"patches" yaml:"patches"`
	Summary     string                       `json:"summary" yaml:"summary"`
}

// Stats returns a snapshot for reporting.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Budgets:     c.budget.ExportStats(),
		RateLimits:  c.limiter.Snapshot(),
		BuildStatus: c.ledger.Status(),
		Unclaimed:   len(c.ledger.Unclaimed()),
		Patches:     len(c.ledger.Patches()),
		Summary:     c.ledger.Summary(),
	}
}
