// Package output renders command results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Format selects how results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
	}
}

// Result is anything a command can print in every format.
type Result interface {
	Text(w io.Writer) error
	JSON() interface{}
}

// Formatter writes results in the selected format.
type Formatter struct {
	format Format
	w      io.Writer
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithJSON selects JSON output when enabled.
func WithJSON(enabled bool) Option {
	return func(f *Formatter) {
		if enabled {
			f.format = FormatJSON
		}
	}
}

// WithFormat selects an explicit format.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithWriter redirects output, stdout by default.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.w = w }
}

// New creates a Formatter.
func New(opts ...Option) *Formatter {
	f := &Formatter{format: FormatText, w: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsJSON reports whether JSON output is selected.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Output renders r in the selected format.
func (f *Formatter) Output(r Result) error {
	switch f.format {
	case FormatJSON:
		return f.JSON(r.JSON())
	case FormatYAML:
		return f.YAML(r.JSON())
	default:
		return r.Text(f.w)
	}
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v interface{}) error {
	return WriteJSON(f.w, v, true)
}

// YAML writes v as YAML.
func (f *Formatter) YAML(v interface{}) error {
	return WriteYAML(f.w, v)
}

// WriteJSON encodes v to w, indented when pretty is set.
func WriteJSON(w io.Writer, v interface{}, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// WriteYAML encodes v to w with two-space indentation.
func WriteYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Timestamp returns the current time in UTC, truncated to seconds.
func Timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
