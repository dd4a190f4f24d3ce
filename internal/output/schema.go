package output

import (
	"time"

	"github.com/Dicklesworthstone/crewgate/internal/diagnostics"
)

// ErrorResponse is the standard JSON error format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// NewError creates a new error response
func NewError(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// TimestampedResponse adds a timestamp to any response
type TimestampedResponse struct {
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// NewTimestamped creates a timestamped response base
func NewTimestamped() TimestampedResponse {
	return TimestampedResponse{GeneratedAt: Timestamp()}
}

// ClassifyResponse is the output format for the classify command
type ClassifyResponse struct {
	TimestampedResponse `yaml:",inline"`
	Tool                string                   `json:"tool" yaml:"tool"`
	ExitCode            int                      `json:"exit_code" yaml:"exit_code"`
	Status              diagnostics.Status       `json:"status" yaml:"status"`
	Diagnostics         []diagnostics.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

// TokenCountResponse is the output format for budget count
type TokenCountResponse struct {
	Counter string `json:"counter" yaml:"counter"`
	Tokens  int    `json:"tokens" yaml:"tokens"`
	Chars   int    `json:"chars" yaml:"chars"`
}

// BudgetCheckResponse is the output format for budget check
type BudgetCheckResponse struct {
	Tokens       int     `json:"tokens" yaml:"tokens"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens"`
	UsagePercent float64 `json:"usage_percent" yaml:"usage_percent"`
	Status       string  `json:"status" yaml:"status"`
	Message      string  `json:"message,omitempty" yaml:"message,omitempty"`
	ShouldSleep  bool    `json:"should_sleep" yaml:"should_sleep"`
}

// VersionResponse is the output format for the version command
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}
