package vesting

import (
	"sync"
	"time"
)

// Clock supplies the timestamp, in unix seconds, operations are evaluated at.
type Clock interface {
	Now() uint64
}

type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock only moves forward. Tests and replays drive it explicitly.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.now {
		return ErrClockRollback
	}
	c.now = now
	return nil
}

func (c *ManualClock) Advance(secs uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += secs
	return c.now
}
