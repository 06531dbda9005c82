package resilience

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewKeyedBreaker(DefaultBreakerConfig())
	failure := eris.New("upstream unavailable")

	require.True(t, b.Allow("porter"))
	b.Record("porter", failure)
	assert.True(t, b.Allow("porter"), "one failure stays closed")

	b.Record("porter", failure)
	assert.False(t, b.Allow("porter"), "second failure opens the circuit")

	failures, open := b.Counters("porter")
	assert.Equal(t, 2, failures)
	assert.True(t, open)
}

func TestBreakerKeysAreIndependent(t *testing.T) {
	b := NewKeyedBreaker(DefaultBreakerConfig())
	failure := eris.New("upstream unavailable")

	b.Record("porter", failure)
	b.Record("porter", failure)

	assert.False(t, b.Allow("porter"))
	assert.True(t, b.Allow("drucker"))
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := NewKeyedBreaker(DefaultBreakerConfig())
	failure := eris.New("upstream unavailable")

	b.Record("porter", failure)
	b.Record("porter", nil)
	b.Record("porter", failure)

	assert.True(t, b.Allow("porter"), "counter restarts after a success")
	failures, open := b.Counters("porter")
	assert.Equal(t, 1, failures)
	assert.False(t, open)
}

func TestBreakerShouldTripFilter(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.ShouldTrip = func(err error) bool {
		return err.Error() != "benign"
	}
	b := NewKeyedBreaker(cfg)

	b.Record("porter", eris.New("benign"))
	b.Record("porter", eris.New("benign"))
	assert.True(t, b.Allow("porter"), "filtered failures never open the circuit")
}

func TestBreakerLazyReset(t *testing.T) {
	now := time.Now()
	b := NewKeyedBreaker(DefaultBreakerConfig())
	b.nowFunc = func() time.Time { return now }

	failure := eris.New("upstream unavailable")
	b.Record("porter", failure)
	b.Record("porter", failure)
	require.False(t, b.Allow("porter"))

	// Inside the reset window the circuit stays open.
	now = now.Add(9 * time.Second)
	assert.False(t, b.Allow("porter"))

	// Past the window the next Allow closes the circuit in place.
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow("porter"))
	failures, open := b.Counters("porter")
	assert.Zero(t, failures)
	assert.False(t, open)
}

func TestBreakerStateChangeCallback(t *testing.T) {
	now := time.Now()
	var transitions []bool

	cfg := DefaultBreakerConfig()
	cfg.OnStateChange = func(key string, open bool) {
		assert.Equal(t, "porter", key)
		transitions = append(transitions, open)
	}
	b := NewKeyedBreaker(cfg)
	b.nowFunc = func() time.Time { return now }

	failure := eris.New("upstream unavailable")
	b.Record("porter", failure)
	b.Record("porter", failure)
	now = now.Add(11 * time.Second)
	b.Allow("porter")

	assert.Equal(t, []bool{true, false}, transitions)
}

func TestBreakerStatesSnapshot(t *testing.T) {
	b := NewKeyedBreaker(DefaultBreakerConfig())
	failure := eris.New("upstream unavailable")

	b.Record("porter", failure)
	b.Record("porter", failure)
	b.Record("drucker", nil)

	assert.Equal(t, map[string]bool{"porter": true, "drucker": false}, b.States())
}
