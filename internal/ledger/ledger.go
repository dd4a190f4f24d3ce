// Package ledger holds the build state shared by all agents: the current
// diagnostics with their claim and fix flags, a bounded patch history, and
// two markdown mirror documents regenerated on every change.
package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/crewgate/internal/diagnostics"
)

// Defaults for Options.
const (
	DefaultStatusFile  = "BUILD_STATUS.md"
	DefaultChangesFile = "CHANGES.md"
	DefaultMaxPatches  = 50
	DefaultOutputLines = 500

	summaryListLimit  = 5
	summaryMessageLen = 60
)

// Patch is one recorded unified diff.
type Patch struct {
	File        string    `json:"file" yaml:"file"`
	Author      string    `json:"author" yaml:"author"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	DiffContent string    `json:"diff_content" yaml:"diff_content"`
	Description string    `json:"description" yaml:"description"`
}

// Options configures a Ledger.
type Options struct {
	// Dir holds the mirror documents. Empty disables mirroring.
	Dir string

	StatusFile  string
	ChangesFile string
	MaxPatches  int
	OutputLines int

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Ledger is the shared build state. Mutations are serialized, including the
// mirror render that follows them; queries may run concurrently.
type Ledger struct {
	mu sync.RWMutex

	status      diagnostics.Status
	tool        string
	exitCode    int
	updatedAt   time.Time
	lastOutput  string
	diagnostics []diagnostics.Diagnostic
	patches     []Patch

	opts   Options
	logger *slog.Logger
}

// New creates an empty Ledger with status unknown.
func New(opts Options) *Ledger {
	if opts.StatusFile == "" {
		opts.StatusFile = DefaultStatusFile
	}
	if opts.ChangesFile == "" {
		opts.ChangesFile = DefaultChangesFile
	}
	if opts.MaxPatches <= 0 {
		opts.MaxPatches = DefaultMaxPatches
	}
	if opts.OutputLines <= 0 {
		opts.OutputLines = DefaultOutputLines
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		status: diagnostics.StatusUnknown,
		opts:   opts,
		logger: logger,
	}
}

// StatusPath returns the status mirror path, or "" when mirroring is off.
func (l *Ledger) StatusPath() string {
	if l.opts.Dir == "" {
		return ""
	}
	return filepath.Join(l.opts.Dir, l.opts.StatusFile)
}

// ChangesPath returns the change-log mirror path, or "" when mirroring is off.
func (l *Ledger) ChangesPath() string {
	if l.opts.Dir == "" {
		return ""
	}
	return filepath.Join(l.opts.Dir, l.opts.ChangesFile)
}

// RecordBuildOutput classifies a finished run and replaces the whole
// diagnostic set with the result. Claims and fixes from the previous run are
// discarded. The status mirror is rewritten before returning.
func (l *Ledger) RecordBuildOutput(tool, output string, exitCode int) diagnostics.Status {
	status, diags := diagnostics.Classify(tool, output, exitCode)
	for i := range diags {
		diags[i].ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.status = status
	l.tool = tool
	l.exitCode = exitCode
	l.updatedAt = l.opts.Now()
	l.lastOutput = truncateOutput(output, l.opts.OutputLines)
	l.diagnostics = diags

	l.logger.Info("build output recorded",
		"tool", tool,
		"exit_code", exitCode,
		"status", status,
		"diagnostics", len(diags))

	l.writeStatusLocked()
	return status
}

// RecordRunning marks a run as in progress. Diagnostics from the previous
// run stay visible until its output is recorded.
func (l *Ledger) RecordRunning(tool string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.status = diagnostics.StatusRunning
	l.tool = tool
	l.updatedAt = l.opts.Now()
	l.writeStatusLocked()
}

// Unclaimed returns the diagnostics that are neither claimed nor fixed, in
// list order. Indices into the full list are available via Diagnostics.
func (l *Ledger) Unclaimed() []diagnostics.Diagnostic {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []diagnostics.Diagnostic
	for _, d := range l.diagnostics {
		if d.Open() {
			out = append(out, d)
		}
	}
	return out
}

// Claim assigns the diagnostic at index to agentID. It fails when the index
// is out of range or the diagnostic already has a claimant.
func (l *Ledger) Claim(index int, agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimLocked(index, agentID)
}

// ClaimByID is Claim addressed by stable ID. It fails when the ID is no
// longer part of the current diagnostic set.
func (l *Ledger) ClaimByID(id, agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimLocked(l.indexLocked(id), agentID)
}

func (l *Ledger) claimLocked(index int, agentID string) bool {
	if index < 0 || index >= len(l.diagnostics) {
		return false
	}
	d := &l.diagnostics[index]
	if d.Claimed() {
		return false
	}
	d.ClaimedBy = agentID

	l.logger.Debug("diagnostic claimed", "index", index, "id", d.ID, "agent", agentID)
	l.writeStatusLocked()
	return true
}

// MarkFixed flags the diagnostic at index as fixed. No prior claim is needed.
func (l *Ledger) MarkFixed(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.markFixedLocked(index)
}

// MarkFixedByID is MarkFixed addressed by stable ID.
func (l *Ledger) MarkFixedByID(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.markFixedLocked(l.indexLocked(id))
}

func (l *Ledger) markFixedLocked(index int) bool {
	if index < 0 || index >= len(l.diagnostics) {
		return false
	}
	l.diagnostics[index].Fixed = true
	l.writeStatusLocked()
	return true
}

func (l *Ledger) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range l.diagnostics {
		if l.diagnostics[i].ID == id {
			return i
		}
	}
	return -1
}

// AddPatch appends a patch, keeps only the most recent MaxPatches, and
// rewrites the change log.
func (l *Ledger) AddPatch(file, author, diffContent, description string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.patches = append(l.patches, Patch{
		File:        file,
		Author:      author,
		Timestamp:   l.opts.Now(),
		DiffContent: diffContent,
		Description: description,
	})
	if over := len(l.patches) - l.opts.MaxPatches; over > 0 {
		l.patches = append([]Patch(nil), l.patches[over:]...)
	}

	l.logger.Debug("patch recorded", "file", file, "author", author, "retained", len(l.patches))
	l.writeChangesLocked()
}

// Diagnostics returns a copy of the current diagnostic list.
func (l *Ledger) Diagnostics() []diagnostics.Diagnostic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]diagnostics.Diagnostic(nil), l.diagnostics...)
}

// Patches returns a copy of the retained patch history, oldest first.
func (l *Ledger) Patches() []Patch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Patch(nil), l.patches...)
}

// Status returns the status of the last recorded run.
func (l *Ledger) Status() diagnostics.Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// LastOutput returns the stored, truncated output of the last run.
func (l *Ledger) LastOutput() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastOutput
}

// Summary renders a condensed description of the build state for inclusion
// in agent prompts. Its layout is for humans and models, not for parsing;
// use Unclaimed for structured access.
func (l *Ledger) Summary() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	var open []int
	for i, d := range l.diagnostics {
		if d.Open() {
			open = append(open, i)
		}
	}

	fmt.Fprintf(&b, "Build status: %s | %d diagnostics, %d unclaimed", l.status, len(l.diagnostics), len(open))
	for n, i := range open {
		if n == summaryListLimit {
			fmt.Fprintf(&b, "\n  (+%d more)", len(open)-summaryListLimit)
			break
		}
		d := l.diagnostics[i]
		fmt.Fprintf(&b, "\n  [%d] %s:%d %s: %s", i, d.File, d.Line, d.Severity, truncateChars(d.Message, summaryMessageLen))
	}
	return b.String()
}

// truncateOutput keeps the last maxLines lines of output, prefixed with a
// count of the lines dropped.
func truncateOutput(output string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) <= maxLines {
		return output
	}
	omitted := len(lines) - maxLines
	return fmt.Sprintf("... (%d lines omitted) ...\n%s\n", omitted, strings.Join(lines[omitted:], "\n"))
}

// truncateChars shortens s to at most n characters.
func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
