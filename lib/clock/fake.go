// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time stands
// still until Advance is called; After channels and tickers fire only
// when the clock moves past their deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. Advance moves time
// forward and fires every pending waiter whose deadline has passed,
// in deadline order.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*pendingWaiter
	registered *sync.Cond
}

// pendingWaiter is one registered After channel or ticker.
type pendingWaiter struct {
	deadline time.Time
	ch       chan time.Time

	// interval is non-zero for tickers; after firing, the waiter is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock advances past
// the deadline. If d <= 0, the channel receives immediately without
// registering a waiter.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &pendingWaiter{
		deadline: c.now.Add(d),
		ch:       ch,
	})
	c.registered.Broadcast()
	return ch
}

// NewTicker returns a Ticker that fires each time the clock advances
// across an interval boundary. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	waiter := &pendingWaiter{
		deadline: c.now.Add(d),
		ch:       ch,
		interval: d,
	}
	c.pending = append(c.pending, waiter)
	c.registered.Broadcast()

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.interval = d
			waiter.deadline = c.now.Add(d)
			waiter.stopped = false
		},
	}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Channel
// sends are non-blocking, matching time.Ticker's drop-if-full
// behavior. A ticker whose interval is crossed several times fires
// once per crossing (dropped if the consumer has not drained C).
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		expired := c.takeExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, waiter := range expired {
			select {
			case waiter.ch <- target:
			default:
			}
		}
	}
}

// takeExpired removes expired waiters from the pending list and
// returns them. Tickers are rescheduled for their next interval and
// stay pending; one-shot waiters are dropped.
func (c *FakeClock) takeExpired(target time.Time) []*pendingWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, remaining []*pendingWaiter
	for _, waiter := range c.pending {
		if waiter.stopped {
			continue
		}
		if waiter.deadline.After(target) {
			remaining = append(remaining, waiter)
			continue
		}
		expired = append(expired, waiter)
	}
	for _, waiter := range expired {
		if waiter.interval > 0 {
			waiter.deadline = waiter.deadline.Add(waiter.interval)
			remaining = append(remaining, waiter)
		}
	}
	c.pending = remaining
	return expired
}

// WaitForTimers blocks until at least n waiters (After channels or
// tickers) are pending. Use it to close the race between a goroutine
// registering its timer and the test advancing the clock:
//
//	go server.run(ctx) // registers a heartbeat ticker
//	fake.WaitForTimers(1)
//	fake.Advance(heartbeatInterval)
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of active pending waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, waiter := range c.pending {
		if !waiter.stopped {
			count++
		}
	}
	return count
}
