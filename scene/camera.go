package scene

import (
	mgl "github.com/go-gl/mathgl/mgl32"
)

var worldUp = mgl.Vec3{0, 1, 0}

// Camera is a perspective camera with an orthonormal basis.
type Camera struct {
	Position mgl.Vec3
	Forward  mgl.Vec3
	Right    mgl.Vec3
	Up       mgl.Vec3
	FOV      float32 // vertical, degrees
	Aspect   float32
	Near     float32
	Far      float32
}

func NewCamera(position, target mgl.Vec3, aspect float32) Camera {
	c := Camera{Position: position, FOV: 60, Aspect: aspect, Near: 0.1, Far: 1000}
	c.LookAt(target)
	return c
}

func (c *Camera) LookAt(target mgl.Vec3) {
	c.Forward = target.Sub(c.Position)
	c.orthonormalize()
}

func (c *Camera) orthonormalize() {
	if c.Forward.Len() == 0 {
		c.Forward = mgl.Vec3{0, 0, -1}
	}
	c.Forward = c.Forward.Normalize()
	right := c.Forward.Cross(worldUp)
	if right.Len() < 1e-6 {
		right = mgl.Vec3{1, 0, 0}
	}
	c.Right = right.Normalize()
	c.Up = c.Right.Cross(c.Forward).Normalize()
}

func (c *Camera) View() mgl.Mat4 {
	return mgl.LookAtV(c.Position, c.Position.Add(c.Forward), c.Up)
}

func (c *Camera) Projection() mgl.Mat4 {
	return mgl.Perspective(mgl.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

func (c *Camera) ViewProjection() mgl.Mat4 {
	return c.Projection().Mul4(c.View())
}

// Mirrored returns the camera reflected through the horizontal plane at height.
func (c Camera) Mirrored(height float32) Camera {
	m := c
	m.Position[1] = 2*height - c.Position[1]
	m.Forward[1] = -c.Forward[1]
	m.orthonormalize()
	return m
}
