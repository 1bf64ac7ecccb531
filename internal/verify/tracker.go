// Package verify records oracle verdicts and gates completion on them.
//
// A Tracker holds the last verdict per (Scope, id). A Gate consults the
// Tracker before any node may be marked complete; it decides permission,
// while the work package decides whether the transition itself is legal.
package verify

import (
	"fmt"
	"sort"
	"sync"
)

// Scope is the granularity a verdict applies to.
type Scope string

const (
	ScopeTask      Scope = "task"
	ScopeComponent Scope = "component"
	ScopeModule    Scope = "module"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeTask, ScopeComponent, ScopeModule:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown verification scope %q (want task, component or module)", s)
	}
}

// Key identifies a verification record.
type Key struct {
	Scope Scope  `json:"scope"`
	ID    string `json:"id"`
}

// Record is a persisted verification verdict.
type Record struct {
	Scope  Scope  `json:"scope"`
	ID     string `json:"id"`
	Passed bool   `json:"passed"`
}

// Tracker maps (scope, id) to the most recent verdict. Records are never
// removed for the lifetime of a session.
type Tracker struct {
	mu      sync.RWMutex
	records map[Key]bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[Key]bool)}
}

// RecordVerification stores a verdict, replacing any earlier one.
func (t *Tracker) RecordVerification(scope Scope, id string, passed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[Key{Scope: scope, ID: id}] = passed
}

// IsVerified returns the last verdict for the key, or false when nothing has
// been recorded.
func (t *Tracker) IsVerified(scope Scope, id string) bool {
	passed, _ := t.Lookup(scope, id)
	return passed
}

// Lookup returns the last verdict and whether one exists.
func (t *Tracker) Lookup(scope Scope, id string) (passed, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	passed, ok = t.records[Key{Scope: scope, ID: id}]
	return passed, ok
}

// Records returns a snapshot sorted by scope then id.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	out := make([]Record, 0, len(t.records))
	for k, passed := range t.records {
		out = append(out, Record{Scope: k.Scope, ID: k.ID, Passed: passed})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore loads persisted records. Later entries win over earlier ones.
func (t *Tracker) Restore(records []Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		t.records[Key{Scope: r.Scope, ID: r.ID}] = r.Passed
	}
}
