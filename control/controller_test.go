package control

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController() *Controller {
	return New(Config{Min: 1, Max: 8, Initial: 4})
}

func TestController_Defaults(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	st := c.State()
	assert.Equal(t, 1, st.Limit, "default budget starts at Min")

	c = New(Config{Min: 2, Initial: 100})
	assert.Equal(t, 4, c.cfg.Max, "Max defaults to 2*Min")
	assert.Equal(t, 4, c.Limit(), "Initial is clamped into [Min, Max]")
}

// Low pressure with rising throughput raises the budget one step per cycle:
// 4 -> 5 -> 6 -> 7, never jumping.
func TestController_CappedProgression(t *testing.T) {
	t.Parallel()

	c := newTestController()
	throughput := 100.0
	for _, want := range []int{5, 6, 7} {
		throughput += 10
		c.Sample(throughput, 0.2, 0.3)
		assert.Equal(t, want, c.Limit())
	}
	st := c.State()
	assert.Equal(t, uint8(3), st.ConsecutiveRaises)
	assert.Equal(t, throughput, st.LastThroughput)
}

// High CPU or memory pressure steps the budget down and resets the raise
// streak; the floor is Min.
func TestController_PressureDecrease(t *testing.T) {
	t.Parallel()

	c := New(Config{Min: 1, Max: 8, Initial: 2})

	c.Sample(50, 0.95, 0.1) // cpu over threshold
	assert.Equal(t, 1, c.Limit())
	c.Sample(50, 0.1, 0.95) // mem over threshold, already at floor
	assert.Equal(t, 1, c.Limit(), "budget must not drop below Min")

	st := c.State()
	assert.Equal(t, uint8(0), st.ConsecutiveRaises)
}

// Anti-thrash: once the raise streak exceeds the cap, a mixed-signal sample
// holds the budget and resets the streak.
func TestController_AntiThrashHold(t *testing.T) {
	t.Parallel()

	c := New(Config{Min: 1, Max: 16, Initial: 4, MaxConsecutiveRaises: 3})

	// Four raises in a row: streak = 4 (> cap).
	tp := 1.0
	for i := 0; i < 4; i++ {
		tp += 1
		c.Sample(tp, 0.1, 0.1)
	}
	require.Equal(t, 8, c.Limit())
	require.Equal(t, uint8(4), c.State().ConsecutiveRaises)

	// Mixed signal (throughput not rising): hold and reset the streak.
	c.Sample(tp-1, 0.1, 0.1)
	assert.Equal(t, 8, c.Limit())
	assert.Equal(t, uint8(0), c.State().ConsecutiveRaises)
}

// The budget never leaves [Min, Max] and never moves by more than one step
// per sample, for any input sequence.
func TestController_BoundsProperty(t *testing.T) {
	t.Parallel()

	c := New(Config{Min: 2, Max: 6, Initial: 4})
	inputs := []struct{ tp, cpu, mem float64 }{
		{10, 0.1, 0.1}, {20, 0.1, 0.1}, {30, 0.99, 0.1}, {5, 0.1, 0.99},
		{40, 0.1, 0.1}, {50, 0.1, 0.1}, {60, 0.1, 0.1}, {70, 0.1, 0.1},
		{80, 0.1, 0.1}, {1, 0.95, 0.95}, {2, 0.95, 0.95}, {3, 0.95, 0.95},
		{4, 0.95, 0.95}, {90, 0.1, 0.1},
	}
	prev := c.Limit()
	for _, in := range inputs {
		c.Sample(in.tp, in.cpu, in.mem)
		cur := c.Limit()
		assert.GreaterOrEqual(t, cur, 2)
		assert.LessOrEqual(t, cur, 6)
		assert.LessOrEqual(t, abs(cur-prev), 1, "budget moved more than one step")
		prev = cur
	}
}

// Malformed samples are a hold: the budget and the throughput reference
// survive NaN and infinite inputs untouched.
func TestController_MalformedInputs(t *testing.T) {
	t.Parallel()

	c := newTestController()
	c.Sample(100, 0.1, 0.1) // raise to 5, lastThroughput=100
	require.Equal(t, 5, c.Limit())

	c.Sample(math.NaN(), 0.1, 0.1)
	c.Sample(200, math.NaN(), 0.1)
	c.Sample(200, 0.1, math.Inf(1))
	c.Sample(math.Inf(-1), 0.1, 0.1)

	assert.Equal(t, 5, c.Limit(), "malformed samples must not move the budget")
	assert.Equal(t, 100.0, c.State().LastThroughput,
		"malformed throughput must not poison the reference")
}

// lastThroughput is updated after every well-formed sample regardless of
// the branch taken, so a falling-then-flat workload does not raise forever.
func TestController_ThroughputReferenceAlwaysUpdates(t *testing.T) {
	t.Parallel()

	c := newTestController()
	c.Sample(100, 0.7, 0.7) // hold branch
	assert.Equal(t, 100.0, c.State().LastThroughput)
	c.Sample(50, 0.95, 0.1) // decrease branch
	assert.Equal(t, 50.0, c.State().LastThroughput)
}

func TestController_SampleCooldown(t *testing.T) {
	t.Parallel()

	c := New(Config{Min: 1, Max: 8, Initial: 4, MinSampleInterval: time.Hour})
	c.Sample(10, 0.1, 0.1) // first sample passes the limiter and raises
	require.Equal(t, 5, c.Limit())

	// Within the cooldown every further sample is dropped.
	c.Sample(100, 0.1, 0.1)
	c.Sample(200, 0.1, 0.1)
	assert.Equal(t, 5, c.Limit())
	assert.Equal(t, 10.0, c.State().LastThroughput)
}

func TestController_LimitIsConcurrencySafe(t *testing.T) {
	t.Parallel()

	c := newTestController()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tp := 0.0
		for i := 0; i < 1_000; i++ {
			tp += 1
			c.Sample(tp, 0.2, 0.2)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10_000; i++ {
			l := c.Limit()
			if l < 1 || l > 8 {
				t.Errorf("limit out of bounds: %d", l)
				return
			}
		}
	}()
	wg.Wait()
}

type fakeMonitor struct {
	mu  sync.Mutex
	cpu float64
	mem float64
}

func (m *fakeMonitor) Usage(context.Context) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cpu, m.mem, nil
}

// The sampler converts Observe() counts into a throughput rate and feeds
// the controller once per tick.
func TestSampler_DrivesController(t *testing.T) {
	t.Parallel()

	c := newTestController()
	mon := &fakeMonitor{cpu: 0.1, mem: 0.1}
	s := NewSampler(c, mon, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// Feed work so throughput rises tick over tick.
	deadline := time.After(300 * time.Millisecond)
	n := 100
feed:
	for {
		select {
		case <-deadline:
			break feed
		case <-time.After(5 * time.Millisecond):
			c.Observe(n)
			n += 100
		}
	}
	cancel()
	<-done

	st := c.State()
	assert.Greater(t, st.Limit, 4, "rising throughput under low pressure must raise the budget")
	assert.False(t, st.LastSampleAt.IsZero(), "sampler must have applied at least one cycle")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
