package budget

import (
	"testing"
)

func TestApproxCounter(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abc", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"hello world, this is a test", 6},
	}

	var c ApproxCounter
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := c.Count(tt.input); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewCounter_Fallbacks(t *testing.T) {
	logger := quietLogger()

	if got := NewCounter("", "", logger).Name(); got != CounterApprox {
		t.Errorf("empty name selected %q, want approx", got)
	}
	if got := NewCounter("APPROX", "", logger).Name(); got != CounterApprox {
		t.Errorf("case-insensitive approx selected %q", got)
	}
	if got := NewCounter("sentencepiece", "", logger).Name(); got != CounterApprox {
		t.Errorf("unknown counter selected %q, want approx fallback", got)
	}
	if got := NewCounter(CounterTiktoken, "no_such_encoding", logger).Name(); got != CounterApprox {
		t.Errorf("broken encoding selected %q, want approx fallback", got)
	}
}

func TestTiktokenCounter(t *testing.T) {
	c, err := NewTiktokenCounter(DefaultEncoding)
	if err != nil {
		t.Fatalf("NewTiktokenCounter: %v", err)
	}
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := c.Count("hello world"); got != 2 {
		t.Errorf("Count(hello world) = %d, want 2", got)
	}
	if c.Name() != "tiktoken:cl100k_base" {
		t.Errorf("Name() = %q", c.Name())
	}

	tr := New(Config{}, c, quietLogger())
	if got := tr.Add("a", "hello world"); got != 2 {
		t.Errorf("Add() = %d, want 2", got)
	}
}
