// Package idgen assigns identities to newly created nodes.
//
// Two generators are provided:
//
//   - Clock: process-local, derived from the wall clock. Identities are
//     unique and increasing within one process and roughly time ordered
//     across processes.
//   - Redis: a shared INCR counter, unique across every process using the
//     same key.
package idgen

import (
	"context"
	"sync/atomic"
	"time"
)

// Generator produces node identities. Implementations must be safe for
// concurrent use and never return the same identity twice.
type Generator interface {
	NextID(ctx context.Context) (int64, error)
}

// Func adapts an ordinary function to the Generator interface.
type Func func(ctx context.Context) (int64, error)

// NextID calls f.
func (f Func) NextID(ctx context.Context) (int64, error) {
	return f(ctx)
}

// counterBits is the width of the per-millisecond sequence of Clock ids.
const counterBits = 20

// Clock generates ids of the form unixMillis<<20 | sequence. When more than
// 2^20 ids are requested within one millisecond, or the wall clock moves
// backwards, ids keep increasing past the clock.
type Clock struct {
	now  func() time.Time
	last atomic.Int64
}

// NewClock creates a clock generator. A nil now defaults to time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// NextID returns the next id. It never fails.
func (c *Clock) NextID(context.Context) (int64, error) {
	floor := c.now().UnixMilli() << counterBits
	for {
		last := c.last.Load()
		next := last + 1
		if floor > next {
			next = floor
		}
		if c.last.CompareAndSwap(last, next) {
			return next, nil
		}
	}
}

// TimeOf recovers the creation time encoded in a Clock id.
func TimeOf(id int64) time.Time {
	return time.UnixMilli(id >> counterBits)
}
