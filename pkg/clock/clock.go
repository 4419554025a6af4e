// Package clock holds the timestamp rules of the last-write-wins register.
//
// Two rules govern every mutation:
//
//	R1 (acceptance): a write stamped c replaces a stored record stamped s
//	   iff c >= s. Ties go to the write processed second.
//	R2 (stamping): a write that arrives without a timestamp is stamped with
//	   the server's wall clock in milliseconds, never below a value the
//	   clock has already handed out.
//
// PullOrderLess gives pulls a deterministic total order: by timestamp,
// then by event id.
package clock

import (
	"sync"
	"time"
)

// Clock stamps writes with wall-clock milliseconds. It never goes
// backwards, even if the system clock does. Safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// New returns a Clock reading from now. A nil now uses time.Now.
func New(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now implements R2: the current wall clock in milliseconds, clamped to be
// non-decreasing across calls.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts < c.last {
		ts = c.last
	}
	c.last = ts
	return ts
}

// Accepts implements R1.
func Accepts(candidate, stored int64) bool {
	return candidate >= stored
}

// PullOrderLess reports whether a record (tsA, idA) sorts before (tsB, idB):
//
//	tsA < tsB, or
//	tsA == tsB and idA < idB (lexicographic)
func PullOrderLess(tsA int64, idA string, tsB int64, idB string) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	return idA < idB
}
