// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockable

import (
	"sync"
	"time"
)

// Clock wraps the wall clock so tests can freeze and step time. It is safe
// for concurrent use. The zero value follows the wall clock.
type Clock struct {
	mu    sync.RWMutex
	faked bool
	time  time.Time
}

// Set freezes the clock at t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = true
	c.time = t
}

// Advance moves a frozen clock forward by d. It freezes a wall clock at
// now+d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.faked {
		c.faked = true
		c.time = time.Now()
	}
	c.time = c.time.Add(d)
}

// Sync returns the clock to wall time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = false
}

func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.faked {
		return c.time
	}
	return time.Now()
}

// Since returns the time elapsed on this clock since start.
func (c *Clock) Since(start time.Time) time.Duration {
	return c.Time().Sub(start)
}

// MeasureMicros runs f and returns how many microseconds it took on this
// clock.
func (c *Clock) MeasureMicros(f func()) uint64 {
	start := c.Time()
	f()
	elapsed := c.Since(start)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed.Microseconds())
}
