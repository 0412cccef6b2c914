package recency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

// test clock which only moves when told to
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(0, 0)
	tr.Now = clock.Now
	return tr, clock
}

func TestCheckAndUpdate(t *testing.T) {
	assert := assert.New(t)
	tr, clock := testTracker()

	assert.False(tr.CheckAndUpdate(1, "hello"))
	clock.Advance(time.Second)
	assert.True(tr.CheckAndUpdate(1, "hello"))

	st, ok := tr.Get(1)
	assert.True(ok)
	assert.Equal("hello", st.LastText)
	assert.Equal(clock.Now(), st.LastSeenAt)
	// duplicates don't count as new messages in the burst
	assert.Equal(uint32(1), st.WindowCount)

	assert.False(tr.CheckAndUpdate(1, "world"))
	assert.False(tr.CheckAndUpdate(1, "hello"))

	// exact equality only
	assert.False(tr.CheckAndUpdate(1, "hello "))

	// chats are independent
	assert.False(tr.CheckAndUpdate(2, "hello "))
	assert.Equal(2, tr.Len())
}

func TestWindowCount(t *testing.T) {
	assert := assert.New(t)
	tr, clock := testTracker()

	tr.CheckAndUpdate(1, "a")
	clock.Advance(2 * time.Second)
	tr.CheckAndUpdate(1, "b")
	clock.Advance(2 * time.Second)
	tr.CheckAndUpdate(1, "c")

	st, _ := tr.Get(1)
	assert.Equal(uint32(3), st.WindowCount)

	// a gap longer than the burst window resets the count
	clock.Advance(DefaultBurstWindow + time.Second)
	tr.CheckAndUpdate(1, "d")
	st, _ = tr.Get(1)
	assert.Equal(uint32(1), st.WindowCount)
}

func TestConcurrentCheckAndUpdate(t *testing.T) {
	assert := assert.New(t)
	tr := NewTracker(0, 0)

	n := 100
	var firsts atomic.Int64
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !tr.CheckAndUpdate(42, "same text") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(int64(1), firsts.Load())
}

func TestPrune(t *testing.T) {
	assert := assert.New(t)
	tr, clock := testTracker()

	tr.CheckAndUpdate(1, "old")
	clock.Advance(30 * time.Minute)
	tr.CheckAndUpdate(2, "recent")
	clock.Advance(45 * time.Minute)

	assert.Equal(1, tr.Prune(time.Hour))
	_, ok := tr.Get(1)
	assert.False(ok)
	_, ok = tr.Get(2)
	assert.True(ok)

	// a pruned chat starts fresh
	assert.False(tr.CheckAndUpdate(1, "old"))
	assert.Equal(0, tr.Prune(time.Hour))
}

func TestRunLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	assert := assert.New(t)
	tr, clock := testTracker()

	tr.CheckAndUpdate(1, "x")
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
