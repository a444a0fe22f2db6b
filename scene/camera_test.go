package scene

import (
	"testing"

	mgl "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got mgl.Vec3) {
	t.Helper()
	assert.True(t, want.ApproxEqualThreshold(got, 1e-5), "want %v got %v", want, got)
}

func TestCameraBasisIsOrthonormal(t *testing.T) {
	c := NewCamera(mgl.Vec3{3, 4, 5}, mgl.Vec3{0, 1, 0}, 16.0/9)
	assert.InDelta(t, 1, c.Forward.Len(), 1e-5)
	assert.InDelta(t, 1, c.Right.Len(), 1e-5)
	assert.InDelta(t, 1, c.Up.Len(), 1e-5)
	assert.InDelta(t, 0, c.Forward.Dot(c.Right), 1e-5)
	assert.InDelta(t, 0, c.Forward.Dot(c.Up), 1e-5)
	assert.Greater(t, c.Up[1], float32(0))
	assert.Equal(t, float32(0.1), c.Near)
	assert.Equal(t, float32(1000), c.Far)
}

func TestMirroredCamera(t *testing.T) {
	c := NewCamera(mgl.Vec3{1, 3, 4}, mgl.Vec3{0, 0, 0}, 1)
	m := c.Mirrored(0)
	assertVec(t, mgl.Vec3{1, -3, 4}, m.Position)
	assertVec(t, mgl.Vec3{c.Forward[0], -c.Forward[1], c.Forward[2]}, m.Forward)
	assert.InDelta(t, 0, m.Right.Dot(m.Forward), 1e-5)
	assert.InDelta(t, 0, m.Up.Dot(m.Forward), 1e-5)
	assert.Greater(t, m.Up[1], float32(0))

	// Mirroring about a raised plane.
	h := c.Mirrored(1)
	assert.InDelta(t, -1, h.Position[1], 1e-5)

	// A point on the water plane projects to the same place from both cameras.
	p := mgl.Vec4{0.5, 0, -0.25, 1}
	a := c.ViewProjection().Mul4x1(p)
	b := m.ViewProjection().Mul4x1(p)
	require.NotZero(t, a[3])
	assert.InDelta(t, a[0]/a[3], b[0]/b[3], 1e-4)
	assert.InDelta(t, a[1]/a[3], -b[1]/b[3], 1e-4)
}

func TestCameraLookingStraightDown(t *testing.T) {
	c := NewCamera(mgl.Vec3{0, 10, 0}, mgl.Vec3{0, 0, 0}, 1)
	assertVec(t, mgl.Vec3{1, 0, 0}, c.Right)
	assertVec(t, mgl.Vec3{0, 0, -1}, c.Up)
}
