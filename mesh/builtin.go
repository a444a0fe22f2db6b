package mesh

import (
	"math"

	mgl "github.com/go-gl/mathgl/mgl32"
)

func appendVertex(v []float32, pos, normal mgl.Vec3, uv mgl.Vec2, tangent mgl.Vec3) []float32 {
	return append(v,
		pos[0], pos[1], pos[2],
		normal[0], normal[1], normal[2],
		uv[0], uv[1],
		tangent[0], tangent[1], tangent[2])
}

func single(name string, vertices []float32, indices []uint32) Mesh {
	return Mesh{Name: name, SubMeshes: []SubMesh{{Layout: StandardLayout(), Vertices: vertices, Indices: indices}}}
}

// Quad is the [-1,1] square facing +Z, used for screen passes.
func Quad() Mesh {
	var v []float32
	n, t := mgl.Vec3{0, 0, 1}, mgl.Vec3{1, 0, 0}
	v = appendVertex(v, mgl.Vec3{-1, -1, 0}, n, mgl.Vec2{0, 0}, t)
	v = appendVertex(v, mgl.Vec3{1, -1, 0}, n, mgl.Vec2{1, 0}, t)
	v = appendVertex(v, mgl.Vec3{1, 1, 0}, n, mgl.Vec2{1, 1}, t)
	v = appendVertex(v, mgl.Vec3{-1, 1, 0}, n, mgl.Vec2{0, 1}, t)
	return single("quad", v, []uint32{0, 1, 2, 0, 2, 3})
}

// Cube is the [-1,1] cube with outward faces.
func Cube() Mesh {
	faces := [6][2]mgl.Vec3{
		{{1, 0, 0}, {0, 0, -1}},
		{{-1, 0, 0}, {0, 0, 1}},
		{{0, 1, 0}, {1, 0, 0}},
		{{0, -1, 0}, {1, 0, 0}},
		{{0, 0, 1}, {1, 0, 0}},
		{{0, 0, -1}, {-1, 0, 0}},
	}
	var v []float32
	var idx []uint32
	for i, f := range faces {
		n, t := f[0], f[1]
		b := n.Cross(t)
		v = appendVertex(v, n.Sub(t).Sub(b), n, mgl.Vec2{0, 0}, t)
		v = appendVertex(v, n.Add(t).Sub(b), n, mgl.Vec2{1, 0}, t)
		v = appendVertex(v, n.Add(t).Add(b), n, mgl.Vec2{1, 1}, t)
		v = appendVertex(v, n.Sub(t).Add(b), n, mgl.Vec2{0, 1}, t)
		base := uint32(i * 4)
		idx = append(idx, base, base+1, base+2, base, base+2, base+3)
	}
	return single("cube", v, idx)
}

// Plane is a square of half extent size on the XZ plane facing +Y. UVs repeat
// tiling times across it.
func Plane(size, tiling float32) Mesh {
	var v []float32
	n, t := mgl.Vec3{0, 1, 0}, mgl.Vec3{1, 0, 0}
	v = appendVertex(v, mgl.Vec3{-size, 0, -size}, n, mgl.Vec2{0, tiling}, t)
	v = appendVertex(v, mgl.Vec3{-size, 0, size}, n, mgl.Vec2{0, 0}, t)
	v = appendVertex(v, mgl.Vec3{size, 0, size}, n, mgl.Vec2{tiling, 0}, t)
	v = appendVertex(v, mgl.Vec3{size, 0, -size}, n, mgl.Vec2{tiling, tiling}, t)
	return single("plane", v, []uint32{0, 1, 2, 0, 2, 3})
}

// Sphere is a unit UV sphere.
func Sphere(rings, sectors int) Mesh {
	var v []float32
	var idx []uint32
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s <= sectors; s++ {
			theta := 2 * math.Pi * float64(s) / float64(sectors)
			p := mgl.Vec3{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			t := mgl.Vec3{float32(-math.Sin(theta)), 0, float32(math.Cos(theta))}
			uv := mgl.Vec2{float32(s) / float32(sectors), 1 - float32(r)/float32(rings)}
			v = appendVertex(v, p, p, uv, t)
		}
	}
	row := uint32(sectors + 1)
	for r := 0; r < rings; r++ {
		for s := 0; s < sectors; s++ {
			a := uint32(r)*row + uint32(s)
			b := a + row
			idx = append(idx, a, a+1, b, a+1, b+1, b)
		}
	}
	return single("sphere", v, idx)
}
