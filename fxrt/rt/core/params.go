package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Simulation constants shared with particle_simulate.wgsl.
const (
	MaxEmitBurst   = 64
	ShellBurst     = 16
	SmokeLifeScale = 2
	WorkgroupSize  = 64
	RandomTexels   = 1024
)

// EffectFlags select optional branches of the simulate program.
type EffectFlags uint32

const (
	FlagSpawnSmoke EffectFlags = 1 << iota
	FlagShells
)

func (f EffectFlags) Has(flag EffectFlags) bool { return f&flag != 0 }

// EmitParams is the per-system emission state consumed every tick.
type EmitParams struct {
	Position mgl32.Vec3
	Dir      mgl32.Vec3
	Accel    mgl32.Vec3
	Interval float32
	Lifetime float32
	Counts   Population
	BgColor  mgl32.Vec4
}

// FrameParams carries the camera and clock for one tick.
type FrameParams struct {
	GameTime float32
	TimeStep float32
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	EyePos   mgl32.Vec3
}

// FrameUniforms mirrors struct Frame in the WGSL programs (160 bytes).
type FrameUniforms struct {
	ViewProj     mgl32.Mat4
	EyePos       mgl32.Vec3
	GameTime     float32
	EmitPos      mgl32.Vec3
	TimeStep     float32
	EmitDir      mgl32.Vec3
	EmitInterval float32
	Accel        mgl32.Vec3
	AliveTime    float32
	PrimaryCount uint32
	SmokeCount   uint32
	Flags        EffectFlags
	EmitSpeed    float32
	ParticleSize [2]float32
	_            [2]float32
}

const FrameUniformsSize = 160
