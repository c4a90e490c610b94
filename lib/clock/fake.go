// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock set to initial. Time stands still until
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.tickersChanged = sync.NewCond(&clock.mutex)
	return clock
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use.
type FakeClock struct {
	mutex          sync.Mutex
	current        time.Time
	tickers        []*fakeTicker
	tickersChanged *sync.Cond
}

type fakeTicker struct {
	next     time.Time
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

// Now returns the current fake time.
func (clock *FakeClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

// NewTicker registers a ticker that fires when Advance crosses its
// next deadline.
func (clock *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	clock.mutex.Lock()
	defer clock.mutex.Unlock()

	ticker := &fakeTicker{
		next:     clock.current.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	clock.tickers = append(clock.tickers, ticker)
	clock.tickersChanged.Broadcast()

	return &Ticker{
		C: ticker.channel,
		stopFunc: func() {
			clock.mutex.Lock()
			defer clock.mutex.Unlock()
			ticker.stopped = true
		},
	}
}

// Set moves the clock to an absolute time without firing tickers. Use
// it to stamp successive events in tests.
func (clock *FakeClock) Set(now time.Time) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = now
}

// Advance moves the clock forward by d and fires every ticker whose
// deadline falls within the new time. Sends never block; a ticker
// whose buffer is full drops the tick.
func (clock *FakeClock) Advance(d time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()

	clock.current = clock.current.Add(d)
	for _, ticker := range clock.tickers {
		for !ticker.stopped && !ticker.next.After(clock.current) {
			select {
			case ticker.channel <- clock.current:
			default:
			}
			ticker.next = ticker.next.Add(ticker.interval)
		}
	}
}

// WaitForTickers blocks until at least n tickers have been created,
// closing the race between a goroutine registering its ticker and the
// test advancing the clock.
func (clock *FakeClock) WaitForTickers(n int) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	for len(clock.tickers) < n {
		clock.tickersChanged.Wait()
	}
}
