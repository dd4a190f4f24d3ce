package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrorWithHint outputs an error plus a remediation hint
func (f *Formatter) ErrorWithHint(msg, hint string) error {
	if f.IsJSON() {
		return f.JSON(ErrorResponse{Error: msg, Hint: hint})
	}
	return NewCLIError(msg).WithHint(hint)
}

// PrintError writes an error to stderr, or a JSON envelope to stdout in JSON mode
func PrintError(err error, jsonMode bool) {
	writeError(os.Stdout, os.Stderr, err, jsonMode)
}

func writeError(stdout, stderr io.Writer, err error, jsonMode bool) {
	if jsonMode {
		resp := NewError(err.Error())
		if ce, ok := err.(*CLIError); ok {
			resp = ErrorResponse{Error: ce.Message, Code: ce.Code, Details: ce.Cause, Hint: ce.Hint}
		}
		_ = WriteJSON(stdout, resp, true)
		return
	}
	if ce, ok := err.(*CLIError); ok {
		fmt.Fprint(stderr, FormatCLIError(ce))
		return
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
}

// CLIError is a user-facing error with optional code, cause and hint.
type CLIError struct {
	Message string
	Code    string
	Cause   string
	Hint    string
}

// NewCLIError creates a CLIError
func NewCLIError(msg string) *CLIError {
	return &CLIError{Message: msg}
}

// WithCode sets the error code
func (e *CLIError) WithCode(code string) *CLIError {
	e.Code = code
	return e
}

// WithCause sets the underlying cause
func (e *CLIError) WithCause(cause string) *CLIError {
	e.Cause = cause
	return e
}

// WithHint sets the remediation hint
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

func (e *CLIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// FormatCLIError renders e as plain text lines.
func FormatCLIError(e *CLIError) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	b.WriteString("\n")
	if e.Cause != "" {
		fmt.Fprintf(&b, "  Cause: %s\n", e.Cause)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "  Hint: %s\n", e.Hint)
	}
	return b.String()
}
