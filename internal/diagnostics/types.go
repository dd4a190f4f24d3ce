// Package diagnostics turns raw build and test tool output into structured
// diagnostics and an overall build status.
package diagnostics

// Status is the overall outcome of a build or test run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusRunning Status = "running"
	StatusUnknown Status = "unknown"
)

// Severity is the level of one diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Diagnostic is one parsed issue from tool output.
type Diagnostic struct {
	// ID is a stable identifier assigned when the diagnostic is recorded.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	File     string   `json:"file" yaml:"file"`
	Line     int      `json:"line" yaml:"line"`
	Column   int      `json:"column" yaml:"column"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Tool     string   `json:"tool" yaml:"tool"`

	ClaimedBy string `json:"claimed_by,omitempty" yaml:"claimed_by,omitempty"`
	Fixed     bool   `json:"fixed" yaml:"fixed"`
}

// Claimed reports whether an agent holds the diagnostic.
func (d Diagnostic) Claimed() bool {
	return d.ClaimedBy != ""
}

// Open reports whether the diagnostic is neither claimed nor fixed.
func (d Diagnostic) Open() bool {
	return !d.Claimed() && !d.Fixed
}
