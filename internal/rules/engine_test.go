package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsentry/mcpsentry/internal/model"
)

// fakeClock is the injectable clock used by rate-limit tests.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestBlockRule(t *testing.T) {
	e := NewEngine()
	e.SetRules([]model.Rule{{ID: "r1", Kind: model.RuleBlock, Pattern: "delete_*", Scope: "*", Priority: 0, Enabled: true, Reason: "destructive tool"}})

	d := e.Evaluate("any-server", "delete_index")
	require.False(t, d.Allowed)
	assert.Equal(t, "destructive tool", d.Reason)

	d = e.Evaluate("any-server", "read_index")
	assert.True(t, d.Allowed)
}

// Three calls inside a 10s burst against max_calls=2/window=60s: the
// third is denied.
func TestRateLimitBurstDenied(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := NewEngineWithClock(clock)
	e.SetRules([]model.Rule{{ID: "r1", Kind: model.RuleRateLimit, Pattern: "send_email", Scope: "*", Enabled: true, Reason: "email spam guard", MaxCalls: 2, WindowSeconds: 60}})

	d1 := e.Evaluate("srv", "send_email")
	assert.True(t, d1.Allowed)
	clock.advance(3 * time.Second)
	d2 := e.Evaluate("srv", "send_email")
	assert.True(t, d2.Allowed)
	clock.advance(3 * time.Second)
	d3 := e.Evaluate("srv", "send_email")
	assert.False(t, d3.Allowed)
}

// Boundary: max_calls=1, window=60 allows once, denies within 60s, allows after.
func TestRateLimitBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := NewEngineWithClock(clock)
	e.SetRules([]model.Rule{{ID: "r1", Kind: model.RuleRateLimit, Pattern: "x", Scope: "*", Enabled: true, MaxCalls: 1, WindowSeconds: 60}})

	assert.True(t, e.Evaluate("srv", "x").Allowed)
	clock.advance(59 * time.Second)
	assert.False(t, e.Evaluate("srv", "x").Allowed)
	clock.advance(time.Second + time.Nanosecond)
	assert.True(t, e.Evaluate("srv", "x").Allowed)
}

func TestDisabledRuleNeverMatches(t *testing.T) {
	e := NewEngine()
	e.SetRules([]model.Rule{{ID: "r1", Kind: model.RuleBlock, Pattern: "*", Enabled: false}})
	assert.True(t, e.Evaluate("srv", "anything").Allowed)
}

// A matching Block rule is not overridden by a rule with a larger
// priority number.
func TestFirstMatchWins(t *testing.T) {
	e := NewEngine()
	e.SetRules([]model.Rule{
		{ID: "deny", Kind: model.RuleBlock, Pattern: "tool_*", Scope: "*", Priority: 0, Enabled: true, Reason: "blocked"},
		{ID: "allow-everything", Kind: model.RuleRateLimit, Pattern: "*", Scope: "*", Priority: 10, Enabled: true, MaxCalls: 1000, WindowSeconds: 60},
	})
	d := e.Evaluate("srv", "tool_x")
	assert.False(t, d.Allowed)
}

func TestScopeMustMatchServer(t *testing.T) {
	e := NewEngine()
	e.SetRules([]model.Rule{{ID: "r1", Kind: model.RuleBlock, Pattern: "*", Scope: "prod-*", Enabled: true}})
	assert.True(t, e.Evaluate("dev-server", "anything").Allowed)
	assert.False(t, e.Evaluate("prod-server", "anything").Allowed)
}

func TestClearRuleDropsPartition(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := NewEngineWithClock(clock)
	e.SetRules([]model.Rule{{ID: "r1", Kind: model.RuleRateLimit, Pattern: "x", Scope: "*", Enabled: true, MaxCalls: 1, WindowSeconds: 60}})
	e.Evaluate("srv", "x")
	assert.False(t, e.Evaluate("srv", "x").Allowed)
	e.ClearRule("r1")
	assert.True(t, e.Evaluate("srv", "x").Allowed)
}
