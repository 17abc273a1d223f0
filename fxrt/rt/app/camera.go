package app

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// OrbitCamera circles a target point. Y is up.
type OrbitCamera struct {
	Target      mgl32.Vec3
	Distance    float32
	Yaw         float32
	Pitch       float32
	Sensitivity float32
	Fov         float32
	Near, Far   float32
}

func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Target:      mgl32.Vec3{0, 0, 0},
		Distance:    15,
		Sensitivity: 0.01,
		Fov:         mgl32.DegToRad(60),
		Near:        1,
		Far:         1000,
	}
}

const maxPitch = math32.Pi/2 - 0.01

// Rotate applies a mouse drag in pixels.
func (c *OrbitCamera) Rotate(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch = mgl32.Clamp(c.Pitch+dy*c.Sensitivity, -maxPitch, maxPitch)
}

// Zoom scales the distance, clamped to [2, 80].
func (c *OrbitCamera) Zoom(steps float32) {
	c.Distance = mgl32.Clamp(c.Distance*math32.Pow(0.9, steps), 2, 80)
}

// Eye starts at -Z looking toward +Z for zero yaw and pitch.
func (c *OrbitCamera) Eye() mgl32.Vec3 {
	cp := math32.Cos(c.Pitch)
	dir := mgl32.Vec3{
		cp * math32.Sin(c.Yaw),
		math32.Sin(c.Pitch),
		-cp * math32.Cos(c.Yaw),
	}
	return c.Target.Add(dir.Mul(c.Distance))
}

func (c *OrbitCamera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye(), c.Target, mgl32.Vec3{0, 1, 0})
}

func (c *OrbitCamera) Proj(width, height uint32) mgl32.Mat4 {
	aspect := float32(1)
	if width > 0 && height > 0 {
		aspect = float32(width) / float32(height)
	}
	return mgl32.Perspective(c.Fov, aspect, c.Near, c.Far)
}
