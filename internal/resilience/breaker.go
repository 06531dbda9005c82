// Package resilience provides the circuit breaker and retry patterns used
// around external generation calls.
package resilience

import (
	"sync"
	"time"
)

// BreakerConfig controls per-key circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of qualifying failures before the
	// circuit for a key opens. Default: 2.
	FailureThreshold int

	// ResetTimeout is how long a circuit stays open. The transition back to
	// closed happens lazily on the next Allow call, not on a timer.
	// Default: 10s.
	ResetTimeout time.Duration

	// ShouldTrip decides whether an error counts toward the threshold.
	// If nil, every error counts.
	ShouldTrip func(err error) bool

	// OnStateChange is called when a key's circuit opens or closes.
	OnStateChange func(key string, open bool)
}

// DefaultBreakerConfig returns the defaults used for upstream prediction.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     10 * time.Second,
	}
}

// KeyedBreaker tracks independent open/closed circuits per string key.
// State transitions: closed -> open after FailureThreshold qualifying
// failures; open -> closed once ResetTimeout has elapsed since the last
// failure, checked on access.
type KeyedBreaker struct {
	cfg     BreakerConfig
	mu      sync.Mutex
	entries map[string]*breakerEntry

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

type breakerEntry struct {
	failures    int
	lastFailure time.Time
	open        bool
}

// NewKeyedBreaker creates a breaker registry with the given config.
func NewKeyedBreaker(cfg BreakerConfig) *KeyedBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 2
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	return &KeyedBreaker{
		cfg:     cfg,
		entries: make(map[string]*breakerEntry),
		nowFunc: time.Now,
	}
}

// Allow reports whether a call for key may proceed. An open circuit whose
// reset window has elapsed is closed here and the call allowed through.
func (b *KeyedBreaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok || !e.open {
		return true
	}
	if b.nowFunc().Sub(e.lastFailure) > b.cfg.ResetTimeout {
		e.open = false
		e.failures = 0
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(key, false)
		}
		return true
	}
	return false
}

// Record feeds a call outcome into the circuit for key. A nil error or a
// non-qualifying failure resets the counter; a qualifying failure increments
// it and opens the circuit at the threshold.
func (b *KeyedBreaker) Record(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &breakerEntry{}
		b.entries[key] = e
	}

	shouldTrip := b.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	if err == nil || !shouldTrip(err) {
		e.failures = 0
		if e.open {
			e.open = false
			if b.cfg.OnStateChange != nil {
				b.cfg.OnStateChange(key, false)
			}
		}
		return
	}

	e.failures++
	e.lastFailure = b.nowFunc()
	if !e.open && e.failures >= b.cfg.FailureThreshold {
		e.open = true
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(key, true)
		}
	}
}

// Counters returns the failure count and open state for key, for
// observability and tests.
func (b *KeyedBreaker) Counters(key string) (failures int, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return 0, false
	}
	return e.failures, e.open
}

// States returns a snapshot of the open/closed state of every tracked key.
func (b *KeyedBreaker) States() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := make(map[string]bool, len(b.entries))
	for key, e := range b.entries {
		states[key] = e.open
	}
	return states
}
