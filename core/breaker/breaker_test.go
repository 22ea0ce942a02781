package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	cb := NewWithConfig("test", 30*time.Second, 10, 60*time.Second)
	cb.now = clock.now
	return cb
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for i := 0; i < 9; i++ {
		cb.MarkFailure()
	}
	assert.True(t, cb.Allow())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for i := 0; i < 10; i++ {
		cb.MarkFailure()
	}
	assert.False(t, cb.Allow())
}

func TestBreaker_ReclosesAfterCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for i := 0; i < 10; i++ {
		cb.MarkFailure()
	}
	require.False(t, cb.Allow())

	// 冷却期内保持打开
	clock.advance(59 * time.Second)
	assert.False(t, cb.Allow())

	// 冷却结束后基于时间自动闭合，与流量无关
	clock.advance(2 * time.Second)
	assert.True(t, cb.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for i := 0; i < 9; i++ {
		cb.MarkFailure()
	}
	cb.MarkSuccess()

	for i := 0; i < 9; i++ {
		cb.MarkFailure()
	}
	assert.True(t, cb.Allow(), "failures before a success must not count")
}

func TestBreaker_OldFailuresOutsideWindowIgnored(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for i := 0; i < 9; i++ {
		cb.MarkFailure()
	}

	// 窗口滑过后旧失败不再计数
	clock.advance(31 * time.Second)
	cb.MarkFailure()
	assert.True(t, cb.Allow())
}

func TestBreaker_DoRejectsWhileOpen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	failing := errors.New("upstream down")
	for i := 0; i < 10; i++ {
		_ = cb.Do(func() error { return failing })
	}

	calls := 0
	err := cb.Do(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "wrapped operation must not run while open")
}

func TestBreaker_DoPassesThroughResult(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, cb.Do(func() error { return sentinel }), sentinel)
	assert.NoError(t, cb.Do(func() error { return nil }))
}
