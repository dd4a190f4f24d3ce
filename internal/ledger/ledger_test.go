package ledger

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/crewgate/internal/diagnostics"
)

const gccOutput = `main.c:10:5: error: expected ';' before 'return'
main.c:22:12: warning: unused variable 'x'
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

func newTestLedger(t *testing.T, dir string) *Ledger {
	t.Helper()
	return New(Options{Dir: dir, Logger: quietLogger(), Now: fixedNow})
}

func TestNewLedgerIsUnknown(t *testing.T) {
	l := newTestLedger(t, "")
	assert.Equal(t, diagnostics.StatusUnknown, l.Status())
	assert.Empty(t, l.Diagnostics())
	assert.Empty(t, l.Unclaimed())
	assert.Equal(t, "Build status: unknown | 0 diagnostics, 0 unclaimed", l.Summary())
	assert.Empty(t, l.StatusPath())
}

func TestRecordBuildOutput(t *testing.T) {
	l := newTestLedger(t, "")

	status := l.RecordBuildOutput("gcc", gccOutput, 1)
	assert.Equal(t, diagnostics.StatusFailed, status)
	assert.Equal(t, diagnostics.StatusFailed, l.Status())

	diags := l.Diagnostics()
	require.GreaterOrEqual(t, len(diags), 2)
	assert.Equal(t, diagnostics.SeverityError, diags[0].Severity)
	assert.Equal(t, 10, diags[0].Line)
	assert.NotEmpty(t, diags[0].ID)
	assert.NotEqual(t, diags[0].ID, diags[1].ID)

	assert.Equal(t, diagnostics.StatusWarning, l.RecordBuildOutput("gcc", gccOutput, 0))
}

func TestRecordBuildOutputReplacesDiagnostics(t *testing.T) {
	l := newTestLedger(t, "")
	l.RecordBuildOutput("gcc", gccOutput, 1)
	require.True(t, l.Claim(0, "X"))
	require.True(t, l.MarkFixed(1))
	oldID := l.Diagnostics()[0].ID

	l.RecordBuildOutput("gcc", gccOutput, 1)

	diags := l.Diagnostics()
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Empty(t, d.ClaimedBy, "claims must not carry over")
		assert.False(t, d.Fixed, "fixes must not carry over")
	}
	assert.False(t, l.ClaimByID(oldID, "Y"), "stale ID must not resolve")

	l.RecordBuildOutput("gcc", "", 0)
	assert.Empty(t, l.Diagnostics())
	assert.Equal(t, diagnostics.StatusSuccess, l.Status())
}

func TestClaimExclusivity(t *testing.T) {
	l := newTestLedger(t, "")
	l.RecordBuildOutput("gcc", gccOutput, 1)

	assert.True(t, l.Claim(0, "X"))
	assert.False(t, l.Claim(0, "Y"))
	assert.False(t, l.Claim(0, "X"), "re-claiming is also rejected")
	assert.Equal(t, "X", l.Diagnostics()[0].ClaimedBy)
}

func TestClaimOutOfRange(t *testing.T) {
	l := newTestLedger(t, "")
	l.RecordBuildOutput("gcc", gccOutput, 1)

	assert.False(t, l.Claim(-1, "X"))
	assert.False(t, l.Claim(2, "X"))
	assert.False(t, l.MarkFixed(-1))
	assert.False(t, l.MarkFixed(99))
	for _, d := range l.Diagnostics() {
		assert.True(t, d.Open(), "failed operations must not mutate")
	}
}

func TestClaimByIDAndMarkFixedByID(t *testing.T) {
	l := newTestLedger(t, "")
	l.RecordBuildOutput("gcc", gccOutput, 1)
	id := l.Diagnostics()[1].ID

	assert.True(t, l.ClaimByID(id, "X"))
	assert.False(t, l.ClaimByID(id, "Y"))
	assert.False(t, l.ClaimByID("", "Y"))
	assert.True(t, l.MarkFixedByID(id))
	assert.False(t, l.MarkFixedByID("nope"))

	d := l.Diagnostics()[1]
	assert.Equal(t, "X", d.ClaimedBy)
	assert.True(t, d.Fixed)
}

func TestMarkFixedWithoutClaim(t *testing.T) {
	l := newTestLedger(t, "")
	l.RecordBuildOutput("gcc", gccOutput, 1)

	assert.True(t, l.MarkFixed(0))
	d := l.Diagnostics()[0]
	assert.True(t, d.Fixed)
	assert.Empty(t, d.ClaimedBy)
}

func TestUnclaimedFiltersInOrder(t *testing.T) {
	l := newTestLedger(t, "")
	var out strings.Builder
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&out, "f.c:%d:1: error: e%d\n", i, i)
	}
	l.RecordBuildOutput("gcc", out.String(), 1)

	l.Claim(0, "X")
	l.MarkFixed(2)

	open := l.Unclaimed()
	require.Len(t, open, 2)
	assert.Equal(t, "e2", open[0].Message)
	assert.Equal(t, "e4", open[1].Message)
}

func TestDiagnosticsReturnsCopy(t *testing.T) {
	l := newTestLedger(t, "")
	l.RecordBuildOutput("gcc", gccOutput, 1)

	diags := l.Diagnostics()
	diags[0].ClaimedBy = "intruder"
	assert.True(t, l.Claim(0, "X"), "mutating a snapshot must not affect the ledger")
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	l := newTestLedger(t, t.TempDir())
	l.RecordBuildOutput("gcc", gccOutput, 1)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(agent int) {
			defer wg.Done()
			if l.Claim(0, fmt.Sprintf("agent-%d", agent)) {
				wins.Add(1)
			}
			_ = l.Summary()
			_ = l.Unclaimed()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.NotEmpty(t, l.Diagnostics()[0].ClaimedBy)
}

func TestPatchRetention(t *testing.T) {
	l := newTestLedger(t, "")
	for i := 1; i <= 60; i++ {
		l.AddPatch(fmt.Sprintf("file%d.c", i), "X", "diff", fmt.Sprintf("patch %d", i))
	}

	patches := l.Patches()
	require.Len(t, patches, DefaultMaxPatches)
	assert.Equal(t, "patch 11", patches[0].Description)
	assert.Equal(t, "patch 60", patches[len(patches)-1].Description)
	for i, p := range patches {
		assert.Equal(t, fmt.Sprintf("patch %d", i+11), p.Description, "relative order must be kept")
	}
}

func TestCustomPatchRetention(t *testing.T) {
	l := New(Options{MaxPatches: 3, Logger: quietLogger()})
	for i := 0; i < 5; i++ {
		l.AddPatch("f", "a", "d", fmt.Sprint(i))
	}
	patches := l.Patches()
	require.Len(t, patches, 3)
	assert.Equal(t, "2", patches[0].Description)
}

func TestSummary(t *testing.T) {
	l := newTestLedger(t, "")
	var out strings.Builder
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&out, "src/m.c:%d:2: error: %s\n", i, strings.Repeat(string(rune('a'+i)), 100))
	}
	l.RecordBuildOutput("gcc", out.String(), 1)
	l.Claim(0, "X")

	summary := l.Summary()
	lines := strings.Split(summary, "\n")
	require.Len(t, lines, 7, summary)
	assert.Equal(t, "Build status: failed | 8 diagnostics, 7 unclaimed", lines[0])
	assert.Equal(t, "  [1] src/m.c:2 error: "+strings.Repeat("c", 60), lines[1])
	assert.Contains(t, lines[5], "[5]")
	assert.Equal(t, "  (+2 more)", lines[6])
}

func TestSummaryExactlyFiveHasNoSuffix(t *testing.T) {
	l := newTestLedger(t, "")
	var out strings.Builder
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&out, "m.c:%d:1: warning: w\n", i)
	}
	l.RecordBuildOutput("gcc", out.String(), 0)
	assert.NotContains(t, l.Summary(), "more")
}

func TestTruncateOutput(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 510; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	got := truncateOutput(b.String(), 500)
	assert.True(t, strings.HasPrefix(got, "... (10 lines omitted) ...\nline 11\n"), got[:60])
	assert.True(t, strings.HasSuffix(got, "line 510\n"))

	short := "a\nb\n"
	assert.Equal(t, short, truncateOutput(short, 500))
}

func TestLedgerStoresTruncatedOutput(t *testing.T) {
	l := New(Options{OutputLines: 2, Logger: quietLogger()})
	l.RecordBuildOutput("gcc", "one\ntwo\nthree\n", 0)
	assert.Equal(t, "... (1 lines omitted) ...\ntwo\nthree\n", l.LastOutput())
}

func TestMirrorDocuments(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t, dir)

	l.RecordBuildOutput("gcc", gccOutput, 1)
	l.Claim(0, "alice")
	l.MarkFixed(1)
	l.AddPatch("main.c", "alice", Diff("int x\n", "int x;\n", "main.c"), "add semicolon")

	status, err := os.ReadFile(filepath.Join(dir, DefaultStatusFile))
	require.NoError(t, err)
	text := string(status)
	assert.Contains(t, text, "**Status:** failed")
	assert.Contains(t, text, "2026-03-04T05:06:07Z")
	assert.Contains(t, text, "| 0 | main.c | 10 | error | expected ';' before 'return' | alice | no |")
	assert.Contains(t, text, "| 1 | main.c | 22 | warning | unused variable 'x' | - | yes |")
	assert.Contains(t, text, "```\nmain.c:10:5: error")

	changes, err := os.ReadFile(filepath.Join(dir, DefaultChangesFile))
	require.NoError(t, err)
	text = string(changes)
	assert.Contains(t, text, "## main.c")
	assert.Contains(t, text, "**Author:** alice")
	assert.Contains(t, text, "**Description:** add semicolon")
	assert.Contains(t, text, "```diff\n--- a/main.c\n+++ b/main.c")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not be left behind")
}

func TestRecordRunning(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t, dir)
	l.RecordBuildOutput("gcc", gccOutput, 1)

	l.RecordRunning("gcc")
	assert.Equal(t, diagnostics.StatusRunning, l.Status())
	assert.Len(t, l.Diagnostics(), 2)

	data, err := os.ReadFile(l.StatusPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "**Status:** running")
}

func TestMirrorWriteFailureIsLoggedNotFatal(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	var logs bytes.Buffer
	l := New(Options{
		Dir:    filepath.Join(blocker, "mirrors"),
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})

	status := l.RecordBuildOutput("gcc", gccOutput, 1)
	assert.Equal(t, diagnostics.StatusFailed, status)
	assert.Len(t, l.Diagnostics(), 2, "in-memory state stays authoritative")
	assert.True(t, l.Claim(0, "X"))
	l.AddPatch("f", "X", "d", "")
	assert.Len(t, l.Patches(), 1)

	assert.Contains(t, logs.String(), "status mirror not updated")
	assert.Contains(t, logs.String(), "change log mirror not updated")
}

func TestTableCellEscapes(t *testing.T) {
	assert.Equal(t, `a\|b c`, tableCell("a|b\nc"))
	long := strings.Repeat("x", 200)
	assert.LessOrEqual(t, len(tableCell(long)), statusCellWidth)
}

func TestCodeFence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "no ticks here", "```"},
		{"short run", "use `x` here", "```"},
		{"triple", "a\n```\nb", "````"},
		{"longest wins", "``` and `````", "``````"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codeFence(tt.content))
		})
	}
}

func TestMirrorFencesEnclosingBackticks(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t, dir)

	l.RecordBuildOutput("mdlint", "README.md:3: unterminated block\n```\n## Heading\n", 1)
	l.AddPatch("README.md", "alice", "@@ -1 +1 @@\n-```go\n+```\n", "close block")

	status, err := os.ReadFile(l.StatusPath())
	require.NoError(t, err)
	text := string(status)
	assert.Contains(t, text, "````\nREADME.md:3: unterminated block\n```\n## Heading\n````\n")
	lastOutput := text[strings.Index(text, "## Last Output"):]
	assert.Equal(t, 2, strings.Count(lastOutput, "````"), "output block must stay closed")

	changes, err := os.ReadFile(filepath.Join(dir, DefaultChangesFile))
	require.NoError(t, err)
	assert.Contains(t, string(changes), "````diff\n@@ -1 +1 @@\n-```go\n+```\n````\n")
}
