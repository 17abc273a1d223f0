package gputest

import (
	"testing"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fireUniforms() core.FrameUniforms {
	return core.FrameUniforms{
		EmitPos:      mgl32.Vec3{0, -1, 0},
		EmitDir:      mgl32.Vec3{0, 1, 0},
		Accel:        mgl32.Vec3{0, 7.8, 0},
		EmitInterval: 0.005,
		AliveTime:    1.0,
		TimeStep:     1.0 / 60,
		EmitSpeed:    1,
		ParticleSize: [2]float32{0.5, 0.5},
	}
}

func TestSimulateEmitterBurst(t *testing.T) {
	u := fireUniforms()
	out, needed := Simulate(u, nil, []core.Particle{core.SeedEmitter()}, 100)

	// floor((1/60)/0.005) = 3 children plus the emitter in slot 0.
	require.Len(t, out, 4)
	assert.Equal(t, 4, needed)
	assert.Equal(t, core.TypeEmitter, out[0].Type)
	assert.Equal(t, uint32(3), out[0].EmitCount)
	assert.InDelta(t, 1.0/60-0.015, out[0].Age, 1e-6)
	for i, p := range out[1:] {
		assert.Equal(t, core.TypeParticle, p.Type)
		assert.Equal(t, uint32(i), p.EmitCount)
		assert.Equal(t, [3]float32{0, -1, 0}, p.Pos)
		assert.Equal(t, [2]float32{0.5, 0.5}, p.Size)
	}
}

func TestSimulateZeroIntervalEmitsMaxBurst(t *testing.T) {
	u := fireUniforms()
	u.EmitInterval = 0
	out, needed := Simulate(u, nil, []core.Particle{core.SeedEmitter()}, 1000)
	assert.Equal(t, core.MaxEmitBurst+1, needed)
	assert.Len(t, out, core.MaxEmitBurst+1)
	assert.Equal(t, float32(0), out[0].Age)
}

func TestSimulateCapsAtCapacity(t *testing.T) {
	u := fireUniforms()
	u.EmitInterval = 0
	out, needed := Simulate(u, nil, []core.Particle{core.SeedEmitter()}, 10)
	assert.Len(t, out, 10)
	assert.Equal(t, core.MaxEmitBurst+1, needed)
	assert.Equal(t, core.TypeEmitter, out[0].Type)
}

func TestSimulateAgingAndDeath(t *testing.T) {
	u := fireUniforms()
	u.EmitInterval = 1000
	old := core.Particle{Type: core.TypeParticle, Age: 0.999, Accel: [3]float32{0, 1, 0}}
	young := core.Particle{Type: core.TypeParticle, Age: 0.1, Accel: [3]float32{0, 1, 0}}

	out, _ := Simulate(u, nil, []core.Particle{core.SeedEmitter(), old, young}, 10)
	require.Len(t, out, 2)
	assert.Equal(t, core.TypeEmitter, out[0].Type)
	assert.InDelta(t, 0.1+1.0/60, out[1].Age, 1e-6)
	assert.InDelta(t, 1.0/60, out[1].Vel[1], 1e-6)
	assert.InDelta(t, 1.0/3600, out[1].Pos[1], 1e-6)
}

func TestSimulateSpawnsSmoke(t *testing.T) {
	u := fireUniforms()
	u.EmitInterval = 1000
	u.Flags = core.FlagSpawnSmoke
	dying := core.Particle{Type: core.TypeParticle, Age: 1.0, Vel: [3]float32{0, 4, 0}, EmitCount: 7}
	smoke := core.Particle{Type: core.TypeSmoke, Age: 1.5}

	out, _ := Simulate(u, nil, []core.Particle{core.SeedEmitter(), dying, smoke}, 10)
	require.Len(t, out, 3)
	assert.Equal(t, core.TypeSmoke, out[1].Type)
	assert.Equal(t, uint32(7), out[1].EmitCount)
	assert.InDelta(t, 1.0, out[1].Vel[1], 1e-6)
	// Smoke lives twice as long.
	assert.Equal(t, core.TypeSmoke, out[2].Type)
	assert.InDelta(t, 1.5+1.0/60, out[2].Age, 1e-6)
}

func TestSimulateShellBurst(t *testing.T) {
	u := fireUniforms()
	u.EmitInterval = 1000
	u.Flags = core.FlagShells
	random := core.RandomVectors(core.RandomTexels, 1, core.RandomUniform)
	shell := core.Particle{Type: core.TypeShell, Age: 2, EmitCount: 2}

	out, needed := Simulate(u, random, []core.Particle{core.SeedEmitter(), shell}, 100)
	assert.Equal(t, 1+core.ShellBurst, needed)
	for _, p := range out[1:] {
		assert.Equal(t, core.TypeParticle, p.Type)
	}
	assert.Equal(t, uint32(2*core.ShellBurst), out[1].EmitCount)
	assert.InDelta(t, random[int(out[1].EmitCount)*4], out[1].Vel[0], 1e-6)
}

func TestContextQueryLatency(t *testing.T) {
	dev := NewDevice(WithQueryLatency(2))
	ctx := dev.Context()
	q, err := dev.CreateQuery("q")
	require.NoError(t, err)

	_, _, err = ctx.GetData(q)
	assert.Error(t, err)

	ctx.Begin(q)
	ctx.End(q)
	for i := 0; i < 2; i++ {
		_, ready, err := ctx.GetData(q)
		require.NoError(t, err)
		assert.False(t, ready)
	}
	_, ready, err := ctx.GetData(q)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestContextReadbackStaysBusy(t *testing.T) {
	dev := NewDevice(WithQueryNeverReady())
	ctx := dev.Context()
	q, err := dev.CreateQuery("q")
	require.NoError(t, err)
	qq := q.(*Query)

	ctx.Begin(q)
	ctx.End(q)
	_, ready, err := ctx.GetData(q)
	require.NoError(t, err)
	assert.False(t, ready)

	// A bracket opened while the readback is busy starts no new one.
	ctx.Begin(q)
	ctx.End(q)
	assert.Equal(t, 1, qq.Readbacks())
	assert.True(t, qq.Pending())

	dev.SetQueryLatency(1)
	_, ready, _ = ctx.GetData(q)
	assert.False(t, ready)
	_, ready, err = ctx.GetData(q)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.False(t, qq.Pending())

	ctx.Begin(q)
	ctx.End(q)
	assert.Equal(t, 2, qq.Readbacks())
}

func TestContextMapDiscipline(t *testing.T) {
	dev := NewDevice()
	ctx := dev.Context()
	staging, _ := dev.CreateBuffer(core.BufferDesc{Label: "staging", Usage: core.UsageStaging, Size: 64})
	vertex, _ := dev.CreateBuffer(core.BufferDesc{Label: "vb", Usage: core.UsageVertex, Size: 64})

	_, err := ctx.Map(vertex)
	assert.Error(t, err)

	_, err = ctx.Map(staging)
	require.NoError(t, err)
	_, err = ctx.Map(staging)
	assert.ErrorIs(t, err, core.ErrMapped)
	assert.ErrorIs(t, ctx.CopyBuffer(staging, vertex), core.ErrMapped)

	require.NoError(t, ctx.Unmap(staging))
	assert.ErrorIs(t, ctx.Unmap(staging), core.ErrNotMapped)
}

func TestDeviceMemoryLimit(t *testing.T) {
	dev := NewDevice(WithMemoryLimit(128))
	_, err := dev.CreateBuffer(core.BufferDesc{Label: "big", Size: 1024})
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
}
