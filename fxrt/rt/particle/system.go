package particle

import (
	"errors"
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/effect"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	ErrNotInitialized = errors.New("particle system not initialized")
	ErrNotConfigured  = errors.New("particle system not configured")
	ErrMissingTarget  = errors.New("missing render target")
)

type State uint8

const (
	StateBootstrap State = iota
	StateSteady
)

func (s State) String() string {
	if s == StateBootstrap {
		return "bootstrap"
	}
	return "steady"
}

// EmitConfig is the emitter setup applied by Configure.
type EmitConfig struct {
	Position mgl32.Vec3
	Dir      mgl32.Vec3
	Accel    mgl32.Vec3
	Interval float32
	Lifetime float32
}

// CompositeTargets are the surfaces of one DrawComposite call. Primary and
// Smoke are drawn into first and then sampled by the composite pass.
type CompositeTargets struct {
	Final   core.RenderTarget
	Primary core.OffscreenTarget
	Smoke   core.OffscreenTarget
}

// TickStats describes one finished Draw or DrawComposite.
type TickStats struct {
	System     string
	State      State
	Generation uint64
	Population core.Population
	Written    uint64
	Dropped    uint64
	TimedOut   bool
	Composite  bool
}

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Observer receives TickStats after every draw entry point.
type Observer interface {
	ObserveTick(TickStats)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

type Option func(*System)

func WithLogger(log Logger) Option {
	return func(s *System) {
		if log != nil {
			s.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *System) { s.observer = o }
}

func WithPollPolicy(p PollPolicy) Option {
	return func(s *System) { s.policy = p }
}

// WithName sets the debug name used for buffer labels and log lines.
func WithName(name string) Option {
	return func(s *System) { s.name = name }
}

// System drives one particle population through the simulate/render loop.
// It is not safe for concurrent use.
type System struct {
	id       string
	name     string
	log      Logger
	observer Observer
	policy   PollPolicy

	buffers *BufferSet
	counter *Counter

	emit       core.EmitParams
	configured bool
	state      State
	timeStep   float32
	gameTime   float32

	input, random, ash core.Texture
}

func NewSystem(opts ...Option) *System {
	s := &System{
		id:    uuid.NewString(),
		log:   nopLogger{},
		state: StateBootstrap,
	}
	s.emit.BgColor = mgl32.Vec4{0, 0, 0, 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = "particles-" + s.id[:8]
	}
	return s
}

// Initialize allocates buffers for maxParticles records and the population
// query. Failures are fatal for the system and nothing stays allocated.
func (s *System) Initialize(dev core.Device, maxParticles uint32) error {
	s.Release()
	bs, err := NewBufferSet(dev, maxParticles)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	c, err := NewCounter(dev, s.name+".Query", s.policy)
	if err != nil {
		bs.Release()
		return fmt.Errorf("%s: %w", s.name, err)
	}
	s.buffers, s.counter = bs, c
	s.buffers.SetDebugName(s.name)
	s.Reset()
	s.log.Debugf("particle system %s (%s) initialized: capacity=%d", s.name, s.id, maxParticles)
	return nil
}

func (s *System) Release() {
	if s.buffers != nil {
		s.buffers.Release()
		s.buffers = nil
	}
	if s.counter != nil {
		s.counter.Release()
		s.counter = nil
	}
}

func (s *System) ID() string   { return s.id }
func (s *System) Name() string { return s.name }

// SetDebugName relabels the GPU buffers.
func (s *System) SetDebugName(name string) {
	s.name = name
	if s.buffers != nil {
		s.buffers.SetDebugName(name)
	}
}

func (s *System) Buffers() *BufferSet { return s.buffers }
func (s *System) State() State        { return s.state }

func (s *System) Capacity() uint32 {
	if s.buffers == nil {
		return 0
	}
	return s.buffers.Capacity()
}

// Configure replaces the emitter setup. It takes effect on the next tick.
func (s *System) Configure(cfg EmitConfig) {
	s.emit.Position = cfg.Position
	s.emit.Dir = cfg.Dir
	s.emit.Accel = cfg.Accel
	s.emit.Interval = cfg.Interval
	s.emit.Lifetime = cfg.Lifetime
	s.configured = true
}

func (s *System) Config() EmitConfig {
	return EmitConfig{
		Position: s.emit.Position,
		Dir:      s.emit.Dir,
		Accel:    s.emit.Accel,
		Interval: s.emit.Interval,
		Lifetime: s.emit.Lifetime,
	}
}

func (s *System) SetEmitPos(p mgl32.Vec3)      { s.emit.Position = p }
func (s *System) SetEmitDir(d mgl32.Vec3)      { s.emit.Dir = d }
func (s *System) SetAcceleration(a mgl32.Vec3) { s.emit.Accel = a }
func (s *System) SetEmitInterval(t float32)    { s.emit.Interval = t }
func (s *System) SetAliveTime(t float32)       { s.emit.Lifetime = t }
func (s *System) SetBgColor(c mgl32.Vec4)      { s.emit.BgColor = c }
func (s *System) BgColor() mgl32.Vec4          { return s.emit.BgColor }

func (s *System) SetTextureInput(t core.Texture)  { s.input = t }
func (s *System) SetTextureRandom(t core.Texture) { s.random = t }
func (s *System) SetTextureAsh(t core.Texture)    { s.ash = t }

// Reset restarts the population from the seed emitter on the next tick.
func (s *System) Reset() {
	s.state = StateBootstrap
	s.emit.Counts = core.Population{}
	if s.buffers != nil {
		s.buffers.Reset()
	}
	if s.counter != nil {
		s.counter.Forget()
	}
}

// Update advances the clock. GPU buffers are only touched by the draw calls.
func (s *System) Update(dt, total float32) {
	s.timeStep = dt
	s.gameTime = total
	if s.buffers != nil {
		s.buffers.advance(dt)
	}
}

// Age is the time accumulated by Update since the last reset.
func (s *System) Age() float32 {
	if s.buffers == nil {
		return 0
	}
	return s.buffers.Age()
}

// PopulationCounts returns the counts of the last DrawComposite.
func (s *System) PopulationCounts() (primary, smoke uint32) {
	return s.emit.Counts.Primary, s.emit.Counts.Smoke
}

func (s *System) ready() error {
	if s.buffers == nil {
		return ErrNotInitialized
	}
	if !s.configured {
		return ErrNotConfigured
	}
	return nil
}

func (s *System) pushParams(eff *effect.Effect) {
	eff.SetGameTime(s.gameTime)
	eff.SetTimeStep(s.timeStep)
	eff.SetEmitParameters(s.emit)
	eff.SetTextureInput(s.input)
	eff.SetTextureRandom(s.random)
	eff.SetTextureAsh(s.ash)
	eff.SetTextureDefaultParticle(nil)
	eff.SetTextureSmokeParticle(nil)
}

// simulate runs the stream-out pass and swaps roles whether or not the
// draw succeeded.
func (s *System) simulate(ctx core.Context, eff *effect.Effect) error {
	in, count := s.buffers.Draw(), uint32(0)
	if s.state == StateBootstrap {
		in, count = s.buffers.Seed(), 1
	}
	err := eff.RenderToVertexBuffer(ctx, in, s.buffers.StreamOut(), count)
	s.buffers.Swap()
	s.buffers.firstRun = false
	s.state = StateSteady
	if err != nil {
		return fmt.Errorf("%s: simulate: %w", s.name, err)
	}
	return nil
}

func (s *System) drawPass(ctx core.Context, eff *effect.Effect, pass string, target core.RenderTarget) error {
	in, err := eff.SelectVisualPass(pass)
	if err != nil {
		return err
	}
	ctx.SetRenderTarget(target)
	ctx.ClearRenderTarget(target, s.emit.BgColor)
	ctx.SetPrimitiveTopology(in.Topology)
	ctx.SetInputLayout(in.Layout)
	defer ctx.SetVertexBuffer(nil, 0, 0)

	if in.IndexCount > 0 {
		ctx.SetVertexBuffer(s.buffers.Quad(), in.Stride, in.Offset)
		ctx.SetIndexBuffer(s.buffers.Index())
		defer ctx.SetIndexBuffer(nil)
		if err := eff.Apply(ctx); err != nil {
			return err
		}
		return ctx.DrawIndexed(in.IndexCount)
	}
	ctx.SetVertexBuffer(s.buffers.Draw(), in.Stride, in.Offset)
	if err := eff.Apply(ctx); err != nil {
		return err
	}
	return ctx.DrawAuto()
}

// Draw runs one single-population tick into target.
func (s *System) Draw(ctx core.Context, eff *effect.Effect, target core.RenderTarget) error {
	if err := s.ready(); err != nil {
		return err
	}
	if target == nil {
		return ErrMissingTarget
	}
	s.pushParams(eff)
	if err := s.simulate(ctx, eff); err != nil {
		return err
	}
	if err := s.drawPass(ctx, eff, effect.PassRender, target); err != nil {
		return fmt.Errorf("%s: render: %w", s.name, err)
	}
	s.observe(TickStats{})
	return nil
}

// DrawComposite runs one dual-population tick. The query brackets only the
// simulate pass; its result drives the staging scan that refreshes the
// population counts before the visual passes.
func (s *System) DrawComposite(ctx core.Context, eff *effect.Effect, targets CompositeTargets) error {
	if err := s.ready(); err != nil {
		return err
	}
	if targets.Final == nil || targets.Primary == nil || targets.Smoke == nil {
		return ErrMissingTarget
	}
	if !eff.WithSmoke() {
		return fmt.Errorf("%w: %s", effect.ErrUnknownPass, effect.PassRenderSmoke)
	}
	s.pushParams(eff)

	s.counter.Begin(ctx)
	simErr := s.simulate(ctx, eff)
	s.counter.End(ctx)
	if simErr != nil {
		return simErr
	}

	tick := TickStats{Composite: true}
	stats, err := s.counter.Poll(ctx)
	switch {
	case errors.Is(err, ErrQueryTimeout):
		tick.TimedOut = true
		s.log.Warnf("%s: %v, keeping counts %d/%d", s.name, err, s.emit.Counts.Primary, s.emit.Counts.Smoke)
	case err != nil:
		return fmt.Errorf("%s: poll: %w", s.name, err)
	default:
		pop, err := s.buffers.SnapshotToStaging(ctx, stats.Written)
		if err != nil {
			return fmt.Errorf("%s: population scan: %w", s.name, err)
		}
		s.emit.Counts = pop
		tick.Written = stats.Written
		tick.Dropped = stats.Dropped()
		if tick.Dropped > 0 {
			s.log.Debugf("%s: capacity %d reached, dropped %d records", s.name, s.buffers.Capacity(), tick.Dropped)
		}
	}
	eff.SetParticleCount(s.emit.Counts)

	if err := s.drawPass(ctx, eff, effect.PassRenderSmoke, targets.Smoke); err != nil {
		return fmt.Errorf("%s: smoke: %w", s.name, err)
	}
	if err := s.drawPass(ctx, eff, effect.PassRender, targets.Primary); err != nil {
		return fmt.Errorf("%s: render: %w", s.name, err)
	}
	eff.SetTextureDefaultParticle(targets.Primary)
	eff.SetTextureSmokeParticle(targets.Smoke)
	if err := s.drawPass(ctx, eff, effect.PassComposite, targets.Final); err != nil {
		return fmt.Errorf("%s: composite: %w", s.name, err)
	}
	s.observe(tick)
	return nil
}

func (s *System) observe(t TickStats) {
	if s.observer == nil {
		return
	}
	t.System = s.name
	t.State = s.state
	t.Generation = s.buffers.Generation()
	t.Population = s.emit.Counts
	s.observer.ObserveTick(t)
}
