package core

import (
	"math/rand"

	"github.com/chewxy/math32"
)

type RandomKind uint8

const (
	// RandomUniform fills every component with a value in [-1, 1].
	RandomUniform RandomKind = iota
	// RandomCone draws directions inside a cone around +Y; w is 1.
	RandomCone
)

func (k RandomKind) String() string {
	if k == RandomCone {
		return "cone"
	}
	return "uniform"
}

// DefaultConeAngle is a 30 degree half-angle.
const DefaultConeAngle = math32.Pi / 6

// RandomVectors returns n RGBA32F texels of random data.
func RandomVectors(n int, seed int64, kind RandomKind) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n*4)
	switch kind {
	case RandomCone:
		for i := 0; i < n; i++ {
			v := RandomDirectionInCone(rng, DefaultConeAngle)
			out[i*4+0] = v[0]
			out[i*4+1] = v[1]
			out[i*4+2] = v[2]
			out[i*4+3] = 1
		}
	default:
		for i := range out {
			out[i] = rng.Float32()*2 - 1
		}
	}
	return out
}

func clip(rng *rand.Rand, lo, hi float32) float32 {
	return lo + rng.Float32()*(hi-lo)
}

// RandomDirectionInCone samples a vector of length <= 1 whose angle to +Y is
// at most coneAngle.
func RandomDirectionInCone(rng *rand.Rand, coneAngle float32) [3]float32 {
	r := clip(rng, 0, 1)
	phi := clip(rng, 0, 2*math32.Pi)
	theta := math32.Acos(clip(rng, math32.Cos(coneAngle), 1))
	sinTheta := math32.Sin(theta)
	return [3]float32{
		r * sinTheta * math32.Cos(phi),
		r * math32.Cos(theta),
		r * sinTheta * math32.Sin(phi),
	}
}
