package particle

import (
	"errors"
	"fmt"
	"time"

	"github.com/gekko3d/firefx/fxrt/rt/core"
)

var ErrQueryTimeout = errors.New("stream-out query not ready")

// PollPolicy bounds how long Poll waits for a query result. A zero or
// negative MaxAttempts or Budget takes its DefaultPollPolicy value, so a
// poll always stops. Backoff is optional.
type PollPolicy struct {
	MaxAttempts int
	Budget      time.Duration
	Backoff     time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: 4096, Budget: 4 * time.Millisecond}
}

// Counter counts the records written by one simulate pass.
type Counter struct {
	query  core.Query
	policy PollPolicy
	open   bool

	last     core.StreamStats
	attempts int

	now   func() time.Time
	sleep func(time.Duration)
}

func NewCounter(dev core.Device, label string, policy PollPolicy) (*Counter, error) {
	q, err := dev.CreateQuery(label)
	if err != nil {
		return nil, fmt.Errorf("create %s query: %w", label, err)
	}
	return &Counter{query: q, policy: policy.bounded(), now: time.Now, sleep: time.Sleep}, nil
}

func (p PollPolicy) bounded() PollPolicy {
	def := DefaultPollPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Budget <= 0 {
		p.Budget = def.Budget
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// Begin opens the bracket. Only the simulate draw may run before End.
func (c *Counter) Begin(ctx core.Context) {
	ctx.Begin(c.query)
	c.open = true
}

func (c *Counter) End(ctx core.Context) {
	ctx.End(c.query)
	c.open = false
}

// Poll fetches the query result without blocking the GPU queue. When the
// policy runs out it returns the last known stats with ErrQueryTimeout.
func (c *Counter) Poll(ctx core.Context) (core.StreamStats, error) {
	if c.open {
		return c.last, errors.New("particle: poll inside an open query")
	}
	start := c.now()
	c.attempts = 0
	for {
		c.attempts++
		stats, ready, err := ctx.GetData(c.query)
		if err != nil {
			return c.last, err
		}
		if ready {
			c.last = stats
			return stats, nil
		}
		if c.attempts >= c.policy.MaxAttempts || c.now().Sub(start) >= c.policy.Budget {
			break
		}
		if c.policy.Backoff > 0 {
			c.sleep(c.policy.Backoff)
		}
	}
	return c.last, fmt.Errorf("%w after %d attempts in %s", ErrQueryTimeout, c.attempts, c.now().Sub(start))
}

// Last returns the most recent successful result.
func (c *Counter) Last() core.StreamStats { return c.last }

// Attempts is the number of GetData calls made by the last Poll.
func (c *Counter) Attempts() int { return c.attempts }

// Forget drops the last known result.
func (c *Counter) Forget() { c.last = core.StreamStats{} }

func (c *Counter) Release() {
	if c.query != nil {
		c.query.Release()
		c.query = nil
	}
}
