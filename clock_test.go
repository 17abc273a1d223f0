package firefx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockTick(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{MaxStep: DefaultMaxStep, now: func() time.Time { return now }}
	c.Reset()

	now = now.Add(16 * time.Millisecond)
	dt, total := c.Tick()
	assert.InDelta(t, 0.016, dt, 1e-6)
	assert.InDelta(t, 0.016, total, 1e-6)

	// A stalled frame is clamped.
	now = now.Add(2 * time.Second)
	dt, total = c.Tick()
	assert.InDelta(t, 0.1, dt, 1e-6)
	assert.InDelta(t, 0.116, total, 1e-6)

	c.Reset()
	assert.Zero(t, c.Total)
	assert.Equal(t, now, c.Start)
}
