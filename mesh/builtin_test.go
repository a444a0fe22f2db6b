package mesh

import (
	"testing"

	mgl "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vertexAt(v []float32, i uint32, off int) mgl.Vec3 {
	b := int(i)*StandardFloats + off
	return mgl.Vec3{v[b], v[b+1], v[b+2]}
}

// Every triangle must wind counter-clockwise around its stored normal.
func assertOutwardWinding(t *testing.T, m Mesh) {
	t.Helper()
	s := m.SubMeshes[0]
	for i := 0; i+2 < len(s.Indices); i += 3 {
		a := vertexAt(s.Vertices, s.Indices[i], 0)
		b := vertexAt(s.Vertices, s.Indices[i+1], 0)
		c := vertexAt(s.Vertices, s.Indices[i+2], 0)
		n := vertexAt(s.Vertices, s.Indices[i], 3)
		face := b.Sub(a).Cross(c.Sub(a))
		if face.Len() < 1e-6 {
			continue
		}
		assert.Greater(t, face.Dot(n), float32(0), "%s triangle %d", m.Name, i/3)
	}
}

func TestBuiltinShapes(t *testing.T) {
	for _, m := range []Mesh{Quad(), Cube(), Plane(10, 4), Sphere(8, 16)} {
		require.Len(t, m.SubMeshes, 1)
		s := m.SubMeshes[0]
		require.Zero(t, len(s.Vertices)%StandardFloats, m.Name)
		count := uint32(len(s.Vertices) / StandardFloats)
		for _, i := range s.Indices {
			require.Less(t, i, count, m.Name)
		}
		assertOutwardWinding(t, m)
	}
	assert.Len(t, Cube().SubMeshes[0].Indices, 36)
}

func TestGenerateTangents(t *testing.T) {
	q := Quad()
	v := q.SubMeshes[0].Vertices
	for i := 0; i < 4; i++ {
		copy(v[i*StandardFloats+8:], []float32{0, 0, 0})
	}
	GenerateTangents(v, q.SubMeshes[0].Indices)
	for i := uint32(0); i < 4; i++ {
		tan := vertexAt(v, i, 8)
		assert.InDelta(t, 1, tan[0], 1e-5)
		assert.InDelta(t, 0, tan[1], 1e-5)
		assert.InDelta(t, 0, tan[2], 1e-5)
	}
}
