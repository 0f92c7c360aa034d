package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hs-go/internal/files"
)

// StubClock is a files.Clock that only moves when a test advances it, so
// modified_at, deleted_at and version timestamps can be asserted exactly.
type StubClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock starts at the same instant the catalog tests use as testTime.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance lets a test order two mutations in time.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out predictable trash, version and temp names
// (id-1, id-2, ...) in place of uuids.
type StubIDGenerator struct {
	next atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator {
	return new(StubIDGenerator)
}

func (g *StubIDGenerator) New() string {
	return fmt.Sprintf("id-%d", g.next.Add(1))
}

var (
	_ files.Clock       = (*StubClock)(nil)
	_ files.IDGenerator = (*StubIDGenerator)(nil)
)
