package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

// fakeClock advances manually so cooldown windows can be tested without
// sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine := NewEngine(logger)
	engine.now = clock.Now
	return engine, clock
}

func sampleAt(clock *fakeClock, value float64) model.Sample {
	return model.Sample{Value: value, At: clock.t}
}

func TestEngine_RaisedOncePerCrossing(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 80, Cooldown: time.Hour}

	// Baseline below threshold, no report requested.
	tr := engine.Evaluate("disk", "usage", sampleAt(clock, 70), policy)
	require.Equal(t, model.TransitionNone, tr)

	// Upward crossing.
	clock.Advance(10 * time.Second)
	tr = engine.Evaluate("disk", "usage", sampleAt(clock, 85), policy)
	require.Equal(t, model.TransitionRaised, tr)

	// Still above, inside cooldown.
	clock.Advance(10 * time.Second)
	tr = engine.Evaluate("disk", "usage", sampleAt(clock, 86), policy)
	require.Equal(t, model.TransitionSuppressed, tr)

	// Still above, cooldown elapsed.
	clock.Advance(2 * time.Hour)
	tr = engine.Evaluate("disk", "usage", sampleAt(clock, 85), policy)
	require.Equal(t, model.TransitionRepeated, tr)

	// Downward crossing.
	clock.Advance(10 * time.Second)
	tr = engine.Evaluate("disk", "usage", sampleAt(clock, 60), policy)
	require.Equal(t, model.TransitionCleared, tr)

	// Stays below: silent.
	clock.Advance(10 * time.Second)
	tr = engine.Evaluate("disk", "usage", sampleAt(clock, 60), policy)
	require.Equal(t, model.TransitionNone, tr)

	// A second upward crossing raises again.
	clock.Advance(10 * time.Second)
	tr = engine.Evaluate("disk", "usage", sampleAt(clock, 95), policy)
	require.Equal(t, model.TransitionRaised, tr)
}

func TestEngine_BaselineReported(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 90, Cooldown: time.Hour, ReportBaseline: true}

	tr := engine.Evaluate("system", "ram", sampleAt(clock, 95), policy)
	require.Equal(t, model.TransitionBaseline, tr)
	require.True(t, engine.Active("system", "ram"))

	// An abnormal baseline does not raise again; the condition was already
	// recorded as active.
	clock.Advance(time.Minute)
	tr = engine.Evaluate("system", "ram", sampleAt(clock, 95), policy)
	require.Equal(t, model.TransitionSuppressed, tr)
}

func TestEngine_BaselineBelowThreshold(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 90, Cooldown: time.Hour, ReportBaseline: true}

	tr := engine.Evaluate("system", "swap", sampleAt(clock, 10), policy)
	require.Equal(t, model.TransitionBaseline, tr)
	require.False(t, engine.Active("system", "swap"))

	// First crossing after a normal baseline is a real Raised.
	clock.Advance(time.Minute)
	tr = engine.Evaluate("system", "swap", sampleAt(clock, 95), policy)
	require.Equal(t, model.TransitionRaised, tr)
}

func TestEngine_CooldownSpacing(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 50, Cooldown: 10 * time.Minute}

	engine.Evaluate("system", "load", sampleAt(clock, 10), policy)
	clock.Advance(time.Minute)
	require.Equal(t, model.TransitionRaised,
		engine.Evaluate("system", "load", sampleAt(clock, 60), policy))

	var repeats int
	for i := 0; i < 60; i++ {
		clock.Advance(time.Minute)
		tr := engine.Evaluate("system", "load", sampleAt(clock, 60), policy)
		if tr == model.TransitionRepeated {
			repeats++
		} else {
			require.Equal(t, model.TransitionSuppressed, tr)
		}
	}

	// 60 minutes of abnormal samples at a 10 minute cooldown: exactly 6 repeats.
	require.Equal(t, 6, repeats)
}

func TestEngine_ConditionsAreIndependent(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 80, Cooldown: time.Hour}

	engine.Evaluate("system", "ram", sampleAt(clock, 10), policy)
	engine.Evaluate("system", "swap", sampleAt(clock, 10), policy)

	clock.Advance(time.Minute)
	require.Equal(t, model.TransitionRaised,
		engine.Evaluate("system", "ram", sampleAt(clock, 90), policy))

	// The swap condition keeps its own state.
	require.Equal(t, model.TransitionNone,
		engine.Evaluate("system", "swap", sampleAt(clock, 10), policy))
	require.True(t, engine.Active("system", "ram"))
	require.False(t, engine.Active("system", "swap"))
}

func TestEngine_BoundaryValueBreaches(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 80, Cooldown: time.Hour}

	engine.Evaluate("disk", "usage", sampleAt(clock, 0), policy)
	clock.Advance(time.Minute)

	// A value exactly at the threshold counts as abnormal.
	require.Equal(t, model.TransitionRaised,
		engine.Evaluate("disk", "usage", sampleAt(clock, 80), policy))
}

func TestEngine_Snapshot(t *testing.T) {
	engine, clock := newTestEngine(t)
	policy := model.Policy{Threshold: 80, Cooldown: time.Hour}

	engine.Evaluate("disk", "usage", sampleAt(clock, 90), policy)
	engine.Evaluate("system", "ram", sampleAt(clock, 10), policy)

	views := engine.Snapshot()
	require.Len(t, views, 2)
	for _, v := range views {
		require.True(t, v.SeenOnce)
		if v.Probe == "disk" {
			require.True(t, v.Active)
		} else {
			require.False(t, v.Active)
		}
	}
}
