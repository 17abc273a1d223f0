package core

import (
	"encoding/binary"
	"math"
)

// ParticleType is the tag the simulate program writes into every record.
type ParticleType uint32

const (
	TypeEmitter ParticleType = iota
	TypeParticle
	TypeShell
	TypeSmoke
)

func (t ParticleType) String() string {
	switch t {
	case TypeEmitter:
		return "emitter"
	case TypeParticle:
		return "particle"
	case TypeShell:
		return "shell"
	case TypeSmoke:
		return "smoke"
	}
	return "unknown"
}

func (t ParticleType) Valid() bool {
	return t <= TypeSmoke
}

// Particle matches struct Particle in particle_simulate.wgsl and
// struct ParticleIn in the visual programs. Field order is the wire format.
type Particle struct {
	Pos       [3]float32   `wgsl:"pos"`
	Vel       [3]float32   `wgsl:"vel"`
	Accel     [3]float32   `wgsl:"accel"`
	Size      [2]float32   `wgsl:"size"`
	Age       float32      `wgsl:"age"`
	Type      ParticleType `wgsl:"kind"`
	EmitCount uint32       `wgsl:"emit_count"`
}

const ParticleStride = 56

// SeedEmitter is the single record every population restarts from.
func SeedEmitter() Particle {
	return Particle{Type: TypeEmitter}
}

// QuadCorners are the composite pass vertices. Size carries the uv.
func QuadCorners() [4]Particle {
	return [4]Particle{
		{Pos: [3]float32{-1, -1, 0}, Size: [2]float32{0, 1}},
		{Pos: [3]float32{-1, 1, 0}, Size: [2]float32{0, 0}},
		{Pos: [3]float32{1, -1, 0}, Size: [2]float32{1, 1}},
		{Pos: [3]float32{1, 1, 0}, Size: [2]float32{1, 0}},
	}
}

var QuadIndices = [6]uint32{0, 1, 2, 2, 1, 3}

// QuadIndexBytes is QuadIndices as a little-endian uint32 index buffer.
func QuadIndexBytes() []byte {
	out := make([]byte, 0, len(QuadIndices)*4)
	for _, i := range QuadIndices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}

func putVec(dst []byte, v []float32) []byte {
	for _, f := range v {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// AppendParticle encodes p little-endian onto dst.
func AppendParticle(dst []byte, p Particle) []byte {
	dst = putVec(dst, p.Pos[:])
	dst = putVec(dst, p.Vel[:])
	dst = putVec(dst, p.Accel[:])
	dst = putVec(dst, p.Size[:])
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(p.Age))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Type))
	dst = binary.LittleEndian.AppendUint32(dst, p.EmitCount)
	return dst
}

func EncodeParticles(ps []Particle) []byte {
	out := make([]byte, 0, len(ps)*ParticleStride)
	for _, p := range ps {
		out = AppendParticle(out, p)
	}
	return out
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

// DecodeParticle reads one record from the front of b.
func DecodeParticle(b []byte) Particle {
	var p Particle
	for i := 0; i < 3; i++ {
		p.Pos[i] = f32At(b, i*4)
		p.Vel[i] = f32At(b, 12+i*4)
		p.Accel[i] = f32At(b, 24+i*4)
	}
	p.Size[0] = f32At(b, 36)
	p.Size[1] = f32At(b, 40)
	p.Age = f32At(b, 44)
	p.Type = ParticleType(binary.LittleEndian.Uint32(b[48:]))
	p.EmitCount = binary.LittleEndian.Uint32(b[52:])
	return p
}

// TypeAt reads only the tag of record i. Used by the population scan.
func TypeAt(b []byte, i int) ParticleType {
	return ParticleType(binary.LittleEndian.Uint32(b[i*ParticleStride+48:]))
}

func DecodeParticles(b []byte, n int) []Particle {
	if limit := len(b) / ParticleStride; n > limit {
		n = limit
	}
	out := make([]Particle, n)
	for i := range out {
		out[i] = DecodeParticle(b[i*ParticleStride:])
	}
	return out
}

// Population is the primary/smoke split of one buffer.
type Population struct {
	Primary uint32
	Smoke   uint32
}

func (p Population) Total() uint32 { return p.Primary + p.Smoke }

// Tally counts the first n records of a mapped particle buffer by tag.
func Tally(b []byte, n int) Population {
	if limit := len(b) / ParticleStride; n > limit {
		n = limit
	}
	var pop Population
	for i := 0; i < n; i++ {
		switch TypeAt(b, i) {
		case TypeParticle:
			pop.Primary++
		case TypeSmoke:
			pop.Smoke++
		}
	}
	return pop
}
