package budget

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Counter names accepted by NewCounter.
const (
	CounterApprox   = "approx"
	CounterTiktoken = "tiktoken"

	// DefaultEncoding is the BPE encoding used by the tiktoken counter.
	DefaultEncoding = "cl100k_base"
)

// TokenCounter turns text into a token count.
type TokenCounter interface {
	Count(text string) int
	Name() string
}

// ApproxCounter estimates tokens with the 1 token ≈ 4 characters heuristic.
type ApproxCounter struct{}

// Count returns len(text)/4, and at least 1 for non-empty text.
func (ApproxCounter) Count(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		return 1
	}
	return n
}

// Name implements TokenCounter.
func (ApproxCounter) Name() string { return CounterApprox }

// TiktokenCounter counts tokens exactly with a BPE encoding. The encoding
// tables are embedded, so construction never touches the network.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{encoding: encoding, enc: enc}, nil
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Name implements TokenCounter.
func (c *TiktokenCounter) Name() string { return CounterTiktoken + ":" + c.encoding }

// NewCounter returns the counter named by name. Unknown names and a precise
// counter that fails to load both fall back to ApproxCounter; this never fails.
func NewCounter(name, encoding string, logger *slog.Logger) TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CounterApprox:
		return ApproxCounter{}
	case CounterTiktoken:
		c, err := NewTiktokenCounter(encoding)
		if err != nil {
			logger.Warn("precise token counter unavailable, using approximation",
				"encoding", encoding, "error", err)
			return ApproxCounter{}
		}
		return c
	default:
		logger.Warn("unknown token counter, using approximation", "counter", name)
		return ApproxCounter{}
	}
}
