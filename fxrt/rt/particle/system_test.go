package particle

import (
	"fmt"
	"testing"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/effect"
	"github.com/gekko3d/firefx/fxrt/rt/gpu/gputest"
	"github.com/gekko3d/firefx/fxrt/rt/shaders"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = float32(1.0 / 60)

var fireConfig = EmitConfig{
	Position: mgl32.Vec3{0, -1, 0},
	Dir:      mgl32.Vec3{0, 1, 0},
	Accel:    mgl32.Vec3{0, 7.8, 0},
	Interval: 0.005,
	Lifetime: 1.0,
}

type recordingLogger struct {
	debug, warn []string
}

func (l *recordingLogger) Debugf(format string, args ...any) {
	l.debug = append(l.debug, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warn = append(l.warn, fmt.Sprintf(format, args...))
}

type recordingObserver struct {
	ticks []TickStats
}

func (o *recordingObserver) ObserveTick(t TickStats) { o.ticks = append(o.ticks, t) }

func newEffect(t *testing.T, dev *gputest.Device, withSmoke bool, flags core.EffectFlags) *effect.Effect {
	t.Helper()
	loader := shaders.NewLoader(shaders.WithValidation(false))
	e, err := effect.New(dev, loader, core.NewRenderStates(), effect.Desc{Name: "fire", WithSmoke: withSmoke, Flags: flags})
	require.NoError(t, err)
	return e
}

func newSystem(t *testing.T, dev *gputest.Device, capacity uint32, cfg EmitConfig, opts ...Option) *System {
	t.Helper()
	s := NewSystem(append([]Option{WithName("fire")}, opts...)...)
	require.NoError(t, s.Initialize(dev, capacity))
	s.Configure(cfg)
	return s
}

func compositeTargets() CompositeTargets {
	return CompositeTargets{
		Final:   gputest.NewTarget("backbuffer", 64, 64),
		Primary: gputest.NewTarget("primary", 64, 64),
		Smoke:   gputest.NewTarget("smoke", 64, 64),
	}
}

func drawBuffer(s *System) *gputest.Buffer {
	return s.Buffers().Draw().(*gputest.Buffer)
}

func kinds(ops []gputest.Op) []gputest.OpKind {
	out := make([]gputest.OpKind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

func TestDrawPreconditions(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	target := gputest.NewTarget("backbuffer", 8, 8)

	s := NewSystem()
	assert.ErrorIs(t, s.Draw(ctx, eff, target), ErrNotInitialized)
	assert.ErrorIs(t, s.DrawComposite(ctx, eff, compositeTargets()), ErrNotInitialized)

	require.NoError(t, s.Initialize(dev, 16))
	assert.ErrorIs(t, s.Draw(ctx, eff, target), ErrNotConfigured)

	s.Configure(fireConfig)
	assert.ErrorIs(t, s.Draw(ctx, eff, nil), ErrMissingTarget)
	targets := compositeTargets()
	targets.Smoke = nil
	assert.ErrorIs(t, s.DrawComposite(ctx, eff, targets), ErrMissingTarget)
	assert.Empty(t, ctx.Ops())
	assert.Equal(t, StateBootstrap, s.State())
}

func TestDrawCompositeNeedsSmokePasses(t *testing.T) {
	dev := gputest.NewDevice()
	s := newSystem(t, dev, 16, fireConfig)
	err := s.DrawComposite(dev.Context(), newEffect(t, dev, false, 0), compositeTargets())
	assert.ErrorIs(t, err, effect.ErrUnknownPass)
}

func TestInitializeOutOfMemory(t *testing.T) {
	dev := gputest.NewDevice(gputest.WithMemoryLimit(10 * core.ParticleStride))
	s := NewSystem()
	err := s.Initialize(dev, 1000)
	require.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.Nil(t, s.Buffers())
	for _, b := range dev.Buffers() {
		assert.True(t, b.Released(), b.Label())
	}
}

func TestDrawBootstrapThenSteady(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, false, 0)
	s := newSystem(t, dev, 100, fireConfig)
	target := gputest.NewTarget("backbuffer", 8, 8)

	s.Update(dt, dt)
	require.NoError(t, s.Draw(ctx, eff, target))
	assert.Equal(t, []gputest.OpKind{gputest.OpApply, gputest.OpSimulate, gputest.OpClear, gputest.OpApply, gputest.OpDraw}, kinds(ctx.Ops()))
	sim := ctx.OpsOf(gputest.OpSimulate)[0]
	assert.Equal(t, "fire.InitVB", sim.Buffer)
	assert.Equal(t, "fire.StreamVB", sim.Output)
	assert.False(t, sim.Auto)
	draw := ctx.OpsOf(gputest.OpDraw)[0]
	assert.Equal(t, "fire.DrawVB", draw.Buffer)
	assert.Equal(t, "backbuffer", draw.Target)
	assert.True(t, draw.Auto)
	assert.Equal(t, StateSteady, s.State())
	assert.Equal(t, 1, target.Clears)

	ctx.ResetOps()
	s.Update(dt, 2*dt)
	require.NoError(t, s.Draw(ctx, eff, target))
	sim = ctx.OpsOf(gputest.OpSimulate)[0]
	assert.Equal(t, "fire.DrawVB", sim.Buffer)
	assert.Equal(t, "fire.StreamVB", sim.Output)
	assert.True(t, sim.Auto)
	assert.Equal(t, effect.PassRender, ctx.Bindings[1].Pass)
}

func TestSwapAlternates(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	s := newSystem(t, dev, 200, fireConfig)
	targets := compositeTargets()

	prevStream := s.Buffers().StreamOut()
	for i := 0; i < 10; i++ {
		s.Update(dt, float32(i+1)*dt)
		if i%2 == 0 {
			require.NoError(t, s.DrawComposite(ctx, eff, targets))
		} else {
			require.NoError(t, s.Draw(ctx, eff, targets.Final))
		}
		assert.Same(t, prevStream, s.Buffers().Draw(), "tick %d", i)
		prevStream = s.Buffers().StreamOut()
		assert.Equal(t, uint64(i+1), s.Buffers().Generation())
	}
	assert.Len(t, ctx.OpsOf(gputest.OpSimulate), 10)
}

func TestResetMatchesFreshSystem(t *testing.T) {
	run := func(s *System, ctx *gputest.Context, eff *effect.Effect, ticks int) {
		for i := 0; i < ticks; i++ {
			s.Update(dt, float32(i+1)*dt)
			require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
		}
	}

	devA := gputest.NewDevice()
	a := newSystem(t, devA, 500, fireConfig)
	run(a, devA.Context(), newEffect(t, devA, true, core.FlagSpawnSmoke), 1)

	devB := gputest.NewDevice()
	effB := newEffect(t, devB, true, core.FlagSpawnSmoke)
	b := newSystem(t, devB, 500, fireConfig)
	run(b, devB.Context(), effB, 90)
	p, sm := b.PopulationCounts()
	require.Greater(t, p+sm, uint32(10))

	b.Reset()
	assert.Equal(t, StateBootstrap, b.State())
	assert.Zero(t, b.Age())
	run(b, devB.Context(), effB, 1)

	assert.Equal(t, drawBuffer(a).Particles(), drawBuffer(b).Particles())
	pa, sa := a.PopulationCounts()
	pb, sb := b.PopulationCounts()
	assert.Equal(t, pa, pb)
	assert.Equal(t, sa, sb)
}

func TestCountsBoundedByCapacity(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, core.FlagSpawnSmoke)
	cfg := fireConfig
	cfg.Interval = 0
	cfg.Lifetime = 0.05
	s := newSystem(t, dev, 50, cfg)

	for i := 0; i < 30; i++ {
		s.Update(dt, float32(i+1)*dt)
		require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
		p, sm := s.PopulationCounts()
		assert.LessOrEqual(t, p+sm, s.Capacity())
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	run := func(times int) []core.Particle {
		dev := gputest.NewDevice()
		eff := newEffect(t, dev, false, 0)
		s := NewSystem()
		require.NoError(t, s.Initialize(dev, 300))
		for i := 0; i < times; i++ {
			s.Configure(fireConfig)
		}
		for i := 0; i < 20; i++ {
			s.Update(dt, float32(i+1)*dt)
			require.NoError(t, s.Draw(dev.Context(), eff, gputest.NewTarget("bb", 8, 8)))
		}
		return drawBuffer(s).Particles()
	}
	assert.Equal(t, run(1), run(5))
}

func TestScenarioSteadyFire(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	s := newSystem(t, dev, 1000, fireConfig)
	targets := compositeTargets()

	var totals []uint32
	for i := 0; i < 200; i++ {
		s.Update(dt, float32(i+1)*dt)
		require.NoError(t, s.DrawComposite(ctx, eff, targets))
		p, sm := s.PopulationCounts()
		assert.LessOrEqual(t, p+sm, uint32(1000))
		totals = append(totals, p+sm)
	}
	for i := 1; i < 40; i++ {
		assert.GreaterOrEqual(t, totals[i], totals[i-1], "rising at tick %d", i)
	}
	// lifetime / interval
	p, sm := s.PopulationCounts()
	assert.InDelta(t, 200, p, 10)
	assert.Zero(t, sm)
}

func TestScenarioResetMidRun(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, core.FlagSpawnSmoke)
	s := newSystem(t, dev, 1000, fireConfig)

	for i := 0; i < 120; i++ {
		s.Update(dt, float32(i+1)*dt)
		require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
	}
	p, sm := s.PopulationCounts()
	require.Greater(t, p+sm, uint32(100))

	s.Reset()
	p, sm = s.PopulationCounts()
	assert.Zero(t, p+sm)

	s.Update(dt, 121*dt)
	require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
	p, sm = s.PopulationCounts()
	// One seed emitter, one tick: floor(dt / interval) children.
	assert.Equal(t, uint32(3), p)
	assert.Zero(t, sm)
	particles := drawBuffer(s).Particles()
	require.Len(t, particles, 4)
	assert.Equal(t, core.TypeEmitter, particles[0].Type)
}

func TestScenarioZeroIntervalPlateaus(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	obs := &recordingObserver{}
	cfg := fireConfig
	cfg.Interval = 0
	cfg.Lifetime = 100
	s := newSystem(t, dev, 1000, cfg, WithObserver(obs))

	var prev uint32
	for i := 0; i < 30; i++ {
		s.Update(dt, float32(i+1)*dt)
		require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
		p, _ := s.PopulationCounts()
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
	// The emitter keeps slot 0.
	assert.Equal(t, uint32(999), prev)
	last := obs.ticks[len(obs.ticks)-1]
	assert.Equal(t, uint64(1000), last.Written)
	assert.Equal(t, uint64(core.MaxEmitBurst), last.Dropped)
	assert.False(t, last.TimedOut)
	assert.Equal(t, core.TypeEmitter, drawBuffer(s).Particles()[0].Type)
}

func TestScenarioBackToBackMatchesReferenceTally(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, core.FlagSpawnSmoke)
	cfg := fireConfig
	cfg.Lifetime = 0.2
	s := newSystem(t, dev, 1000, cfg)

	for i := 0; i < 30; i++ {
		s.Update(dt, float32(i+1)*dt)
		require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))

		var want core.Population
		for _, p := range drawBuffer(s).Particles() {
			switch p.Type {
			case core.TypeParticle:
				want.Primary++
			case core.TypeSmoke:
				want.Smoke++
			}
		}
		p, sm := s.PopulationCounts()
		assert.Equal(t, want.Primary, p)
		assert.Equal(t, want.Smoke, sm)
		assert.Greater(t, sm, uint32(0))
		assert.Equal(t, drawBuffer(s).Written()-1, p+sm)
	}
}

func TestDrawCompositeOrdering(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, core.FlagSpawnSmoke)
	s := newSystem(t, dev, 100, fireConfig)
	targets := compositeTargets()

	s.Update(dt, dt)
	require.NoError(t, s.DrawComposite(ctx, eff, targets))
	assert.Equal(t, []gputest.OpKind{
		gputest.OpBegin, gputest.OpApply, gputest.OpSimulate, gputest.OpEnd,
		gputest.OpCopy, gputest.OpMap, gputest.OpUnmap,
		gputest.OpClear, gputest.OpApply, gputest.OpDraw,
		gputest.OpClear, gputest.OpApply, gputest.OpDraw,
		gputest.OpClear, gputest.OpApply, gputest.OpDrawIndexed,
	}, kinds(ctx.Ops()))

	draws := ctx.OpsOf(gputest.OpDraw)
	assert.Equal(t, effect.PassRenderSmoke, draws[0].Pass)
	assert.Equal(t, "smoke", draws[0].Target)
	assert.Equal(t, effect.PassRender, draws[1].Pass)
	assert.Equal(t, "primary", draws[1].Target)
	quad := ctx.OpsOf(gputest.OpDrawIndexed)[0]
	assert.Equal(t, "backbuffer", quad.Target)
	assert.Equal(t, "fire.QuadVB", quad.Buffer)
	assert.Equal(t, uint64(effect.CompositeIndexCount), quad.Count)

	// Only the composite pass samples the offscreen surfaces.
	bindings := ctx.Bindings
	require.Len(t, bindings, 4)
	for _, b := range bindings[:3] {
		assert.Nil(t, b.Textures[core.SlotPrimary], b.Pass)
		assert.Nil(t, b.Textures[core.SlotSmoke], b.Pass)
	}
	assert.Equal(t, targets.Primary, bindings[3].Textures[core.SlotPrimary])
	assert.Equal(t, targets.Smoke, bindings[3].Textures[core.SlotSmoke])
	// Counts are pushed before the visual passes.
	assert.Equal(t, uint32(3), bindings[1].Uniforms.PrimaryCount)
	assert.Zero(t, bindings[0].Uniforms.PrimaryCount)
	assert.False(t, s.Buffers().Staging().(*gputest.Buffer).Mapped())
}

func TestPollTimeoutKeepsLastCounts(t *testing.T) {
	dev := gputest.NewDevice(gputest.WithQueryNeverReady())
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	log := &recordingLogger{}
	obs := &recordingObserver{}
	s := newSystem(t, dev, 100, fireConfig,
		WithLogger(log), WithObserver(obs), WithPollPolicy(PollPolicy{MaxAttempts: 8}))

	s.Update(dt, dt)
	require.NoError(t, s.DrawComposite(ctx, eff, compositeTargets()))
	p, sm := s.PopulationCounts()
	assert.Zero(t, p+sm)
	require.Len(t, obs.ticks, 1)
	assert.True(t, obs.ticks[0].TimedOut)
	require.Len(t, log.warn, 1)
	assert.Contains(t, log.warn[0], "8 attempts")
	assert.Empty(t, ctx.OpsOf(gputest.OpMap))
	// Visual passes still run.
	assert.Len(t, ctx.OpsOf(gputest.OpDraw), 2)
	assert.Len(t, ctx.OpsOf(gputest.OpDrawIndexed), 1)
	assert.Equal(t, uint32(8), uint32(s.counter.Attempts()))
}

func TestLateReadbackAfterTimeout(t *testing.T) {
	// Written count of one bootstrap tick on a device that answers at once.
	refDev := gputest.NewDevice()
	refObs := &recordingObserver{}
	ref := newSystem(t, refDev, 100, fireConfig, WithObserver(refObs))
	ref.Update(dt, dt)
	require.NoError(t, ref.DrawComposite(refDev.Context(), newEffect(t, refDev, true, 0), compositeTargets()))
	firstWritten := refObs.ticks[0].Written
	require.NotZero(t, firstWritten)

	dev := gputest.NewDevice(gputest.WithQueryNeverReady())
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	obs := &recordingObserver{}
	s := newSystem(t, dev, 100, fireConfig, WithObserver(obs), WithPollPolicy(PollPolicy{MaxAttempts: 4}))
	query := s.counter.query.(*gputest.Query)
	targets := compositeTargets()

	tick := func(i int) {
		s.Update(dt, float32(i)*dt)
		require.NoError(t, s.DrawComposite(ctx, eff, targets))
	}

	tick(1)
	tick(2)
	require.Len(t, obs.ticks, 2)
	assert.True(t, obs.ticks[0].TimedOut)
	assert.True(t, obs.ticks[1].TimedOut)
	// The second bracket found the readback busy and started none.
	assert.Equal(t, 1, query.Readbacks())
	assert.True(t, query.Pending())
	assert.Len(t, ctx.OpsOf(gputest.OpDrawIndexed), 2)

	dev.SetQueryLatency(0)
	tick(3)
	require.Len(t, obs.ticks, 3)
	assert.False(t, obs.ticks[2].TimedOut)
	assert.Equal(t, firstWritten, obs.ticks[2].Written)
	assert.False(t, query.Pending())

	tick(4)
	assert.False(t, obs.ticks[3].TimedOut)
	assert.Equal(t, 2, query.Readbacks())
	assert.Equal(t, uint64(drawBuffer(s).Written()), obs.ticks[3].Written)
	assert.Len(t, ctx.OpsOf(gputest.OpDrawIndexed), 4)
	assert.False(t, s.Buffers().Staging().(*gputest.Buffer).Mapped())
}

func TestSimulateFailureStillSwaps(t *testing.T) {
	dev := gputest.NewDevice()
	ctx := dev.Context()
	eff := newEffect(t, dev, true, 0)
	s := newSystem(t, dev, 100, fireConfig)

	staging := s.Buffers().Staging()
	_, err := ctx.Map(staging)
	require.NoError(t, err)
	err = s.Draw(ctx, eff, gputest.NewTarget("bb", 8, 8))
	assert.ErrorIs(t, err, core.ErrMapped)
	assert.Equal(t, StateSteady, s.State())
	assert.Equal(t, uint64(1), s.Buffers().Generation())
	require.NoError(t, ctx.Unmap(staging))
}

func TestUpdateAdvancesAgeOnly(t *testing.T) {
	dev := gputest.NewDevice()
	s := newSystem(t, dev, 10, fireConfig)
	s.Update(0.5, 0.5)
	s.Update(0.25, 0.75)
	assert.InDelta(t, 0.75, s.Age(), 1e-6)
	assert.Empty(t, dev.Context().Ops())
	assert.Equal(t, StateBootstrap, s.State())
}

func TestSetDebugNameRelabels(t *testing.T) {
	dev := gputest.NewDevice()
	s := newSystem(t, dev, 10, fireConfig)
	s.SetDebugName("boom")
	assert.Equal(t, "boom.InitVB", s.Buffers().Seed().Label())
	assert.Equal(t, "boom.DrawVB", s.Buffers().Draw().Label())
	assert.Equal(t, "boom.StreamVB", s.Buffers().StreamOut().Label())
	assert.Equal(t, "boom", s.Name())
	assert.NotEmpty(t, s.ID())

	// Labels name roles, so an odd number of swaps keeps them right.
	eff := newEffect(t, dev, false, 0)
	s.Update(dt, dt)
	require.NoError(t, s.Draw(dev.Context(), eff, gputest.NewTarget("bb", 8, 8)))
	assert.Equal(t, uint64(1), s.Buffers().Generation())
	assert.Equal(t, "boom.DrawVB", s.Buffers().Draw().Label())
	assert.Equal(t, "boom.StreamVB", s.Buffers().StreamOut().Label())
}
