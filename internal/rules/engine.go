// Package rules implements the proxy's rule engine: ordered
// block/rate-limit rules matched against a (server, tool) pair, with
// sliding-window counters for rate limits. Pattern matching is a glob
// anchored at both ends over the tool name, delegated to
// github.com/IGLOU-EU/go-wildcard/v2 rather than hand-rolled on regexp.
package rules

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// Clock is injectable so rate-limit tests don't depend on wall time.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Decision is the outcome of evaluating the rule set against a call.
type Decision struct {
	Allowed bool
	Reason  string
}

// Engine holds the ordered rule set and the sliding-window counters keyed
// per (rule, server, tool).
type Engine struct {
	clock Clock

	mu    sync.Mutex
	rules []model.Rule

	cmu      sync.Mutex
	counters map[string][]time.Time // key: ruleID + "\x00" + server + "\x00" + tool
}

// NewEngine returns an Engine with an empty rule set.
func NewEngine() *Engine {
	return &Engine{clock: systemClock{}, counters: make(map[string][]time.Time)}
}

// NewEngineWithClock is the test-injection constructor.
func NewEngineWithClock(clock Clock) *Engine {
	return &Engine{clock: clock, counters: make(map[string][]time.Time)}
}

// SetRules replaces the rule set, sorted by ascending priority with ties
// broken by original (insertion) order. Counters of every rule that the
// new set drops or changes are discarded.
func (e *Engine) SetRules(rs []model.Rule) {
	sorted := make([]model.Rule, len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	e.mu.Lock()
	old := e.rules
	e.rules = sorted
	e.mu.Unlock()

	next := make(map[string]model.Rule, len(sorted))
	for _, r := range sorted {
		next[r.ID] = r
	}
	for _, r := range old {
		if n, ok := next[r.ID]; !ok || n != r {
			e.ClearRule(r.ID)
		}
	}
}

// Evaluate runs the ordered rule set against (server, tool): the first
// matching enabled rule whose scope matches the server decides the
// outcome. Block matches deny; rate-limit matches query/update the
// sliding-window counter and deny or allow without falling through to
// later rules either way. No match allows.
func (e *Engine) Evaluate(server, tool string) Decision {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if r.Scope != "" && r.Scope != "*" && !wildcard.Match(r.Scope, server) {
			continue
		}
		if !wildcard.Match(r.Pattern, tool) {
			continue
		}

		switch r.Kind {
		case model.RuleBlock:
			return Decision{Allowed: false, Reason: r.Reason}
		case model.RuleRateLimit:
			if e.allowRateLimit(r, server, tool) {
				return Decision{Allowed: true}
			}
			return Decision{Allowed: false, Reason: "rate limited: " + r.Reason}
		}
	}
	return Decision{Allowed: true}
}

func (e *Engine) allowRateLimit(r model.Rule, server, tool string) bool {
	key := strings.Join([]string{r.ID, server, tool}, "\x00")
	window := time.Duration(r.WindowSeconds) * time.Second
	now := e.clock.Now()
	cutoff := now.Add(-window)

	e.cmu.Lock()
	defer e.cmu.Unlock()

	ts := e.counters[key]
	pruned := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= r.MaxCalls {
		e.counters[key] = pruned
		return false
	}
	e.counters[key] = append(pruned, now)
	return true
}

// ClearRule discards the sliding-window counters for every (server, tool)
// partition of one rule. SetRules calls it for every rule that a new rule
// set removes or changes, which includes disabling it.
func (e *Engine) ClearRule(ruleID string) {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	prefix := ruleID + "\x00"
	for k := range e.counters {
		if strings.HasPrefix(k, prefix) {
			delete(e.counters, k)
		}
	}
}
