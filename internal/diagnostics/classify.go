package diagnostics

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Family groups tools whose output shares a format.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyCompiler
	FamilyBuild
	FamilyInterpreter
)

func (f Family) String() string {
	switch f {
	case FamilyCompiler:
		return "compiler"
	case FamilyBuild:
		return "build"
	case FamilyInterpreter:
		return "interpreter"
	default:
		return "unknown"
	}
}

var compilerTools = map[string]bool{
	"gcc": true, "g++": true, "cc": true, "c++": true,
	"clang": true, "clang++": true,
}

var buildTools = map[string]bool{
	"make": true, "gmake": true,
}

var interpreterTools = map[string]bool{
	"python": true, "python3": true, "pytest": true, "py.test": true,
}

// FamilyOf resolves a tool name to its output family. Paths and versioned
// names are accepted: "/usr/bin/gcc-13" is a compiler.
func FamilyOf(tool string) Family {
	name := strings.ToLower(filepath.Base(strings.TrimSpace(tool)))
	name = strings.TrimSuffix(name, ".exe")

	switch {
	case compilerTools[name]:
		return FamilyCompiler
	case buildTools[name]:
		return FamilyBuild
	case interpreterTools[name]:
		return FamilyInterpreter
	}

	// Versioned and cross compilers: gcc-13, clang-17, arm-none-eabi-gcc.
	for _, base := range []string{"gcc", "g++", "clang", "clang++"} {
		if strings.HasPrefix(name, base+"-") || strings.HasSuffix(name, "-"+base) {
			return FamilyCompiler
		}
	}
	if strings.HasPrefix(name, "python3.") {
		return FamilyInterpreter
	}
	return FamilyUnknown
}

var (
	// file:line:col: severity: message
	compilerPattern = regexp.MustCompile(`^(.+?):(\d+):(\d+): (?:fatal )?(error|warning|note): (.*)$`)

	// make: *** [target] Error 2, make[1]: *** [target] Error 1
	makeFailurePattern = regexp.MustCompile(`make(?:\[(\d+)\])?: \*\*\* \[([^\]]+)\] Error (\d+)`)

	tracebackFramePattern = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	pytestFailedPattern   = regexp.MustCompile(`FAILED (\S+?)::(\S+)`)
)

// Classify derives the build status from exitCode and output, and parses
// diagnostics according to the tool's family. It never fails: output that
// matches nothing yields no diagnostics, and unknown tools are not parsed.
func Classify(tool, output string, exitCode int) (Status, []Diagnostic) {
	clean := ansi.Strip(output)
	status := StatusFromExit(clean, exitCode)

	var diags []Diagnostic
	switch FamilyOf(tool) {
	case FamilyCompiler:
		diags = ParseCompiler(tool, clean)
	case FamilyBuild:
		diags = ParseCompiler(tool, clean)
		diags = append(diags, ParseMakeFailures(tool, clean)...)
	case FamilyInterpreter:
		diags = ParseTracebacks(tool, clean)
		diags = append(diags, ParsePytestFailures(tool, clean)...)
	}
	return status, diags
}

// StatusFromExit maps an exit code to a status. A zero exit whose output
// mentions "warning" in any case is a warning.
func StatusFromExit(output string, exitCode int) Status {
	if exitCode != 0 {
		return StatusFailed
	}
	if strings.Contains(strings.ToLower(output), "warning") {
		return StatusWarning
	}
	return StatusSuccess
}

func splitLines(output string) []string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseCompiler scans for gcc/clang style "file:line:col: severity: message" lines.
func ParseCompiler(tool, output string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range splitLines(output) {
		m := compilerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		diags = append(diags, Diagnostic{
			File:     m[1],
			Line:     atoi(m[2]),
			Column:   atoi(m[3]),
			Severity: Severity(m[4]),
			Message:  strings.TrimSpace(m[5]),
			Tool:     tool,
		})
	}
	return diags
}

// ParseMakeFailures emits one error per failed make target.
func ParseMakeFailures(tool, output string) []Diagnostic {
	var diags []Diagnostic
	for _, m := range makeFailurePattern.FindAllStringSubmatch(output, -1) {
		msg := fmt.Sprintf("make target %s failed with error %s", m[2], m[3])
		if m[1] != "" {
			msg = fmt.Sprintf("make[%s] target %s failed with error %s", m[1], m[2], m[3])
		}
		diags = append(diags, Diagnostic{
			File:     "Makefile",
			Severity: SeverityError,
			Message:  msg,
			Tool:     tool,
		})
	}
	return diags
}

// ParseTracebacks extracts one error per Python traceback. A line containing
// "Traceback" opens a block, frame lines update the location, and the first
// non-indented non-empty line after it is the error message.
func ParseTracebacks(tool, output string) []Diagnostic {
	var (
		diags  []Diagnostic
		inside bool
		file   string
		line   int
	)

	for _, text := range splitLines(output) {
		if !inside {
			if strings.Contains(text, "Traceback") {
				inside = true
				file, line = "", 0
			}
			continue
		}

		if m := tracebackFramePattern.FindStringSubmatch(text); m != nil {
			file, line = m[1], atoi(m[2])
			continue
		}
		if strings.TrimSpace(text) == "" || text[0] == ' ' || text[0] == '\t' {
			continue
		}

		diags = append(diags, Diagnostic{
			File:     file,
			Line:     line,
			Severity: SeverityError,
			Message:  strings.TrimSpace(text),
			Tool:     tool,
		})
		inside = false
	}
	return diags
}

// ParsePytestFailures emits one error per "FAILED path::test" summary line.
func ParsePytestFailures(tool, output string) []Diagnostic {
	var diags []Diagnostic
	for _, m := range pytestFailedPattern.FindAllStringSubmatch(output, -1) {
		diags = append(diags, Diagnostic{
			File:     m[1],
			Severity: SeverityError,
			Message:  "test failed: " + m[2],
			Tool:     tool,
		})
	}
	return diags
}
