package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// mockResult implements the Result interface for testing Formatter.Output.
type mockResult struct {
	textOut string
	textErr error
	jsonOut interface{}
}

func (m *mockResult) Text(w io.Writer) error {
	if m.textErr != nil {
		return m.textErr
	}
	_, err := fmt.Fprint(w, m.textOut)
	return err
}
func (m *mockResult) JSON() interface{} { return m.jsonOut }

func TestFormatterOutput_JSONMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(WithJSON(true), WithWriter(&buf))

	r := &mockResult{jsonOut: map[string]string{"status": "ok"}}
	if err := f.Output(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", decoded["status"])
	}
}

func TestFormatterOutput_YAMLMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(WithFormat(FormatYAML), WithWriter(&buf))

	r := &mockResult{jsonOut: TokenCountResponse{Counter: "approx", Tokens: 3, Chars: 12}}
	if err := f.Output(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML output: %v", err)
	}
	if decoded["counter"] != "approx" || decoded["tokens"] != 3 {
		t.Errorf("unexpected YAML: %s", buf.String())
	}
}

func TestFormatterOutput_TextMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(WithWriter(&buf))

	r := &mockResult{textOut: "hello world"}
	if err := f.Output(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "hello world" {
		t.Errorf("expected 'hello world', got %q", buf.String())
	}
}

func TestFormatterOutput_TextError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(WithWriter(&buf))

	r := &mockResult{textErr: fmt.Errorf("render failed")}
	err := f.Output(r)
	if err == nil || err.Error() != "render failed" {
		t.Errorf("expected 'render failed' error, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatterErrorWithHint_JSONMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(WithJSON(true), WithWriter(&buf))

	if err := f.ErrorWithHint("no build recorded", "run crewgate build first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["error"] != "no build recorded" || decoded["hint"] != "run crewgate build first" {
		t.Errorf("unexpected envelope: %v", decoded)
	}
}

func TestFormatterErrorWithHint_TextMode(t *testing.T) {
	t.Parallel()

	f := New(WithWriter(io.Discard))
	err := f.ErrorWithHint("no build recorded", "run crewgate build first")

	var ce *CLIError
	if !errors.As(err, &ce) || ce.Hint != "run crewgate build first" {
		t.Errorf("expected CLIError with hint, got %#v", err)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	writeError(&stdout, &stderr, NewCLIError("bad config").WithCode("CONFIG").WithHint("run crewgate config init"), true)

	var resp ErrorResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Error != "bad config" || resp.Code != "CONFIG" || resp.Hint == "" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr written in JSON mode: %q", stderr.String())
	}
}

func TestWriteErrorText(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	writeError(&stdout, &stderr, errors.New("boom"), false)

	if stderr.String() != "Error: boom\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout written in text mode: %q", stdout.String())
	}
}

func TestFormatCLIError_AllFields(t *testing.T) {
	t.Parallel()

	e := NewCLIError("classify failed").
		WithCode("E_INPUT").
		WithCause("file not found").
		WithHint("pass - to read stdin")
	out := FormatCLIError(e)

	for _, want := range []string{"Error: classify failed", "[E_INPUT]", "Cause: file not found", "Hint: pass - to read stdin"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if e.Error() != "[E_INPUT] classify failed" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestFormatCLIError_MessageOnly(t *testing.T) {
	t.Parallel()

	out := FormatCLIError(NewCLIError("connection refused"))
	if out != "Error: connection refused\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"hello", 0, ""},
		{"hello", -5, ""},
		{"hello", 10, "hello"},
		{"abcdef", 3, "abc"},
		{"🎉hello", 2, ""},
		{"日本語", 5, "..."},
		{"ab🎉", 5, "ab..."},
		{"abcdefgh", 6, "abc..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}
