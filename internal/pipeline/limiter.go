package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency caps simultaneous generation calls within a fan-out
// phase.
const DefaultConcurrency = 4

// Limiter is a counting gate with fixed width. Waiters are admitted in FIFO
// order as slots free up. The slot is released unconditionally, including
// when the task panics, so a failing task can never wedge the gate.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a gate admitting up to width concurrent tasks.
func NewLimiter(width int) *Limiter {
	if width <= 0 {
		width = DefaultConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(width))}
}

// Do runs task once a slot is available. It returns ctx.Err() without
// running the task if the context ends while queued.
func (l *Limiter) Do(ctx context.Context, task func()) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	task()
	return nil
}
