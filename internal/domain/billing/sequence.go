package billing

import (
	"strconv"
	"sync"
	"time"
)

// IDAllocator issues bill identifiers as decimal strings that are strictly
// increasing across the life of the allocator. Ids are based on wall-clock
// milliseconds; when the clock reading does not advance past the last issued
// value (same-tick bursts, clock steps backwards), last+1 is substituted.
type IDAllocator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{now: time.Now}
}

// NewIDAllocatorWithClock exists for tests that need a deterministic clock.
func NewIDAllocatorWithClock(now func() time.Time) *IDAllocator {
	return &IDAllocator{now: now}
}

// Next returns the next bill id. The read-compare-write on the last issued
// value is one critical section so concurrent callers can never observe the
// same id.
func (a *IDAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidate := a.now().UnixMilli()
	if candidate <= a.last {
		candidate = a.last + 1
	}
	a.last = candidate
	return strconv.FormatInt(candidate, 10)
}
