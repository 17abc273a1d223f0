package firefx

import (
	"time"
)

// DefaultMaxStep caps a single tick so a stalled frame does not launch
// every particle at once.
const DefaultMaxStep = 100 * time.Millisecond

type Clock struct {
	Start   time.Time
	Last    time.Time
	Dt      time.Duration
	Total   time.Duration
	MaxStep time.Duration

	now func() time.Time
}

func NewClock() *Clock {
	c := &Clock{MaxStep: DefaultMaxStep, now: time.Now}
	c.Reset()
	return c
}

func (c *Clock) Reset() {
	t := c.now()
	c.Start = t
	c.Last = t
	c.Dt = 0
	c.Total = 0
}

// Tick advances the clock and returns the step and accumulated time in seconds.
func (c *Clock) Tick() (dt, total float32) {
	now := c.now()
	c.Dt = now.Sub(c.Last)
	if c.MaxStep > 0 && c.Dt > c.MaxStep {
		c.Dt = c.MaxStep
	}
	c.Last = now
	c.Total += c.Dt
	return float32(c.Dt.Seconds()), float32(c.Total.Seconds())
}
