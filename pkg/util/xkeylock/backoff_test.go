package xkeylock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBackoff(opts ...AcquireOption) *backoff {
	o := resolveAcquireOptions(nil, opts)
	return newBackoff(&o)
}

func TestBackoff_DefaultSequence(t *testing.T) {
	b := newTestBackoff()

	ms := time.Millisecond
	want := []time.Duration{10 * ms, 20 * ms, 40 * ms, 80 * ms, 160 * ms, 320 * ms, 640 * ms, time.Second, time.Second}
	for i, w := range want {
		assert.Equal(t, w, b.next(), "step %d", i)
	}
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	b := newTestBackoff(
		WithInitialBackoff(3*time.Millisecond),
		WithBackoffMultiplier(1.7),
		WithMaxBackoff(500*time.Millisecond),
	)

	prev := time.Duration(0)
	for range 100 {
		d := b.next()
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
		prev = d
	}
	assert.Equal(t, 500*time.Millisecond, prev)
}

func TestBackoff_FixedInterval(t *testing.T) {
	b := newTestBackoff(WithInitialBackoff(5*time.Millisecond), WithBackoffMultiplier(1))
	for range 5 {
		assert.Equal(t, 5*time.Millisecond, b.next())
	}
}

func TestBackoff_Jitter(t *testing.T) {
	b := newTestBackoff(
		WithInitialBackoff(100*time.Millisecond),
		WithMaxBackoff(100*time.Millisecond),
		WithJitter(0.5),
	)
	for range 200 {
		d := b.next()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond, "jitter must respect the cap")
	}
}

func TestBackoff_MaxBelowInitial(t *testing.T) {
	b := newTestBackoff(WithInitialBackoff(50*time.Millisecond), WithMaxBackoff(10*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, b.next())
	assert.Equal(t, 50*time.Millisecond, b.next())
}

func TestBackoff_InvalidOptionsIgnored(t *testing.T) {
	o := resolveAcquireOptions(nil, []AcquireOption{
		WithInitialBackoff(-1),
		WithMaxBackoff(0),
		WithBackoffMultiplier(0.5),
		WithJitter(7),
		WithMaxAttempts(-3),
		nil,
	})
	assert.Equal(t, DefaultInitialBackoff, o.initialBackoff)
	assert.Equal(t, DefaultMaxBackoff, o.maxBackoff)
	assert.InDelta(t, DefaultBackoffMultiplier, o.multiplier, 0)
	assert.InDelta(t, 1.0, o.jitter, 0)
	assert.Zero(t, o.maxAttempts)
	assert.False(t, o.hasTimeout)
}

func TestCapDelay(t *testing.T) {
	limit := time.Second
	assert.Equal(t, limit, capDelay(math.Inf(1), limit))
	assert.Equal(t, limit, capDelay(math.NaN(), limit))
	assert.Equal(t, time.Duration(0), capDelay(-5, limit))
	assert.Equal(t, 3*time.Millisecond, capDelay(float64(3*time.Millisecond), limit))
}
