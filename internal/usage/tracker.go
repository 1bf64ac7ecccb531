// Package usage counts model requests and tokens consumed by an agent
// session. Tracker satisfies guardrail.UsageSource.
package usage

import (
	"errors"
	"sync/atomic"
)

// ErrNegative is returned when a negative token count is recorded.
var ErrNegative = errors.New("usage counts must not be negative")

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests        int64 `json:"requests" yaml:"requests"`
	PremiumRequests int64 `json:"premium_requests" yaml:"premium_requests"`
	InputTokens     int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens" yaml:"output_tokens"`
}

// Tracker accumulates usage. Reads are lock-free and safe alongside writers.
type Tracker struct {
	requests     atomic.Int64
	premium      atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordRequest counts one model request and its tokens.
func (t *Tracker) RecordRequest(premium bool, inputTokens, outputTokens int) error {
	if inputTokens < 0 || outputTokens < 0 {
		return ErrNegative
	}
	t.requests.Add(1)
	if premium {
		t.premium.Add(1)
	}
	t.inputTokens.Add(int64(inputTokens))
	t.outputTokens.Add(int64(outputTokens))
	return nil
}

// Add merges a delta, typically an agent's per-iteration report.
func (t *Tracker) Add(d Snapshot) error {
	if d.Requests < 0 || d.PremiumRequests < 0 || d.InputTokens < 0 || d.OutputTokens < 0 {
		return ErrNegative
	}
	t.requests.Add(d.Requests)
	t.premium.Add(d.PremiumRequests)
	t.inputTokens.Add(d.InputTokens)
	t.outputTokens.Add(d.OutputTokens)
	return nil
}

// PremiumRequests returns the premium requests made so far.
func (t *Tracker) PremiumRequests() int {
	return int(t.premium.Load())
}

// Snapshot copies the counters. Fields are loaded independently, so a
// snapshot taken during concurrent writes may straddle a request.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Requests:        t.requests.Load(),
		PremiumRequests: t.premium.Load(),
		InputTokens:     t.inputTokens.Load(),
		OutputTokens:    t.outputTokens.Load(),
	}
}

// Restore replaces the counters with a persisted snapshot.
func (t *Tracker) Restore(s Snapshot) {
	t.requests.Store(s.Requests)
	t.premium.Store(s.PremiumRequests)
	t.inputTokens.Store(s.InputTokens)
	t.outputTokens.Store(s.OutputTokens)
}
