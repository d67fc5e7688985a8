package svm

import "sync/atomic"

// Clock is the monotonic slot counter that orders processed transactions.
//
// Slots are logical: they advance once per transaction and never read the
// wall clock, so replaying a scenario yields identical slot numbers.
type Clock struct {
	slot atomic.Uint64
}

// NewClock creates a clock positioned before slot 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next slot is start+1.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.slot.Store(start)
	return c
}

// Next advances the clock and returns the new slot.
func (c *Clock) Next() uint64 {
	return c.slot.Add(1)
}

// Current returns the last slot handed out.
func (c *Clock) Current() uint64 {
	return c.slot.Load()
}
