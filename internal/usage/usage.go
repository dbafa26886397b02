// Package usage estimates token counts with github.com/pkoukk/tiktoken-go
// when a provider's Response doesn't report real usage, so the usage
// aggregations get a best-effort number instead of zero.
package usage

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator wraps a cached tiktoken encoding so repeated estimates
// don't rebuild the BPE ranks on every call.
type Estimator struct {
	mu       sync.Mutex
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewEstimator builds an Estimator using the named tiktoken encoding
// (e.g. "cl100k_base"), lazily loaded on first use.
func NewEstimator(encoding string) *Estimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Estimator{encoding: encoding}
}

// Count returns the estimated token count for text. Falls back to a
// crude 4-chars-per-token heuristic if the encoding fails to load
// (e.g. offline with no cached BPE file), so callers always get a
// usable, if approximate, number rather than an error.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			return fallbackCount(text)
		}
		e.enc = enc
	}
	return len(e.enc.Encode(text, nil, nil))
}

func fallbackCount(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
