package gputest

import (
	"github.com/chewxy/math32"

	"github.com/gekko3d/firefx/fxrt/rt/core"
)

// Simulate runs particle_simulate.wgsl over src in invocation order and
// returns the records that fit in capacity plus the number that were needed.
func Simulate(u core.FrameUniforms, random []float32, src []core.Particle, capacity int) ([]core.Particle, int) {
	out := make([]core.Particle, capacity)
	needed := 0
	if len(src) > 0 && src[0].Type == core.TypeEmitter {
		needed = 1
	}
	push := func(p core.Particle) {
		slot := needed
		needed++
		if slot < capacity {
			out[slot] = p
		}
	}
	randomVec := func(seed uint32) [3]float32 {
		i := int(seed % core.RandomTexels)
		if (i+1)*4 > len(random) {
			return [3]float32{}
		}
		return [3]float32{random[i*4], random[i*4+1], random[i*4+2]}
	}
	spawn := func(kind core.ParticleType, pos, vel [3]float32, seed uint32) core.Particle {
		return core.Particle{
			Pos:       pos,
			Vel:       vel,
			Accel:     u.Accel,
			Size:      u.ParticleSize,
			Type:      kind,
			EmitCount: seed,
		}
	}
	dt := u.TimeStep

	for i, p := range src {
		p.Age += dt

		if p.Type == core.TypeEmitter {
			n := uint32(core.MaxEmitBurst)
			if u.EmitInterval > 0 {
				n = uint32(math32.Floor(p.Age / u.EmitInterval))
				if n > core.MaxEmitBurst {
					n = core.MaxEmitBurst
				}
				p.Age -= float32(n) * u.EmitInterval
			} else {
				p.Age = 0
			}
			child := core.TypeParticle
			if u.Flags.Has(core.FlagShells) {
				child = core.TypeShell
			}
			for k := uint32(0); k < n; k++ {
				seed := p.EmitCount + k
				r := randomVec(seed)
				var vel [3]float32
				for c := 0; c < 3; c++ {
					vel[c] = u.EmitSpeed * (u.EmitDir[c] + r[c])
				}
				push(spawn(child, u.EmitPos, vel, seed))
			}
			p.EmitCount += n
			if i == 0 && capacity > 0 {
				out[0] = p
			} else {
				push(p)
			}
			continue
		}

		for c := 0; c < 3; c++ {
			p.Vel[c] += p.Accel[c] * dt
			p.Pos[c] += p.Vel[c] * dt
		}
		life := u.AliveTime
		if p.Type == core.TypeSmoke {
			life *= core.SmokeLifeScale
		}
		if p.Age <= life {
			push(p)
			continue
		}
		switch {
		case p.Type == core.TypeParticle && u.Flags.Has(core.FlagSpawnSmoke):
			vel := [3]float32{p.Vel[0] * 0.25, p.Vel[1] * 0.25, p.Vel[2] * 0.25}
			push(spawn(core.TypeSmoke, p.Pos, vel, p.EmitCount))
		case p.Type == core.TypeShell:
			for k := uint32(0); k < core.ShellBurst; k++ {
				seed := p.EmitCount*core.ShellBurst + k
				r := randomVec(seed)
				vel := [3]float32{u.EmitSpeed * r[0], u.EmitSpeed * r[1], u.EmitSpeed * r[2]}
				push(spawn(core.TypeParticle, p.Pos, vel, seed))
			}
		}
	}

	written := needed
	if written > capacity {
		written = capacity
	}
	return out[:written], needed
}
