package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucket_BurstThenExhaust(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 3, 1)

	for i := 0; i < 3; i++ {
		if !b.Allow(1) {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	if b.Allow(1) {
		t.Fatal("expected bucket to be empty")
	}
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 2, 2)

	if !b.Allow(2) {
		t.Fatal("expected initial burst")
	}
	if b.Allow(1) {
		t.Fatal("expected empty bucket")
	}

	clock.advance(500 * time.Millisecond)
	if !b.Allow(1) {
		t.Fatal("expected one token after 500ms at 2 tokens/sec")
	}
	if b.Allow(1) {
		t.Fatal("expected no second token yet")
	}

	clock.advance(10 * time.Second)
	if !b.Allow(2) {
		t.Fatal("expected refill clamped to capacity")
	}
	if b.Allow(1) {
		t.Fatal("capacity must not be exceeded after long idle")
	}
}

func TestTokenBucket_SubTokenProgressAccumulates(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clock, 1, 1)

	if !b.Allow(1) {
		t.Fatal("expected initial token")
	}

	// Ten 100ms refills must add up to a whole token.
	for i := 0; i < 9; i++ {
		clock.advance(100 * time.Millisecond)
		if b.Allow(1) {
			t.Fatalf("token granted too early at step %d", i)
		}
	}
	clock.advance(100 * time.Millisecond)
	if !b.Allow(1) {
		t.Fatal("expected token after 1s of accumulated progress")
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clock, 1, 1)

	if !b.Allow(1) {
		t.Fatal("expected initial token")
	}
	clock.now = time.Unix(50, 0)
	if b.Allow(1) {
		t.Fatal("backwards clock must not refill")
	}
	clock.advance(time.Second)
	if !b.Allow(1) {
		t.Fatal("expected refill after clock moves forward again")
	}
}

func TestTokenBucket_NonPositiveCost(t *testing.T) {
	b := NewTokenBucket(&fakeClock{}, 0, 0)
	if !b.Allow(0) {
		t.Fatal("zero cost must always succeed")
	}
	if b.Allow(1) {
		t.Fatal("zero-capacity bucket must reject")
	}
}
