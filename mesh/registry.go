// Package mesh holds processed geometry, materials and models, and the vertex
// array bindings built for them per shader program.
package mesh

import (
	"encoding/binary"
	"fmt"

	mgl "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"golang.org/x/mobile/exp/f32"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/resource"
)

type VertexBufferAttribute struct {
	Location       uint8
	ComponentCount uint8
	Offset         uint32
}

type VertexBufferLayout struct {
	Attributes []VertexBufferAttribute
	Stride     uint32
}

// Standard attribute locations shared by the imported and builtin meshes.
const (
	LocationPosition = 0
	LocationNormal   = 1
	LocationUV       = 2
	LocationTangent  = 3
)

// StandardFloats is the number of floats per vertex in StandardLayout.
const StandardFloats = 11

// StandardLayout interleaves position, normal, uv and tangent.
func StandardLayout() VertexBufferLayout {
	return VertexBufferLayout{
		Attributes: []VertexBufferAttribute{
			{LocationPosition, 3, 0},
			{LocationNormal, 3, 12},
			{LocationUV, 2, 24},
			{LocationTangent, 3, 32},
		},
		Stride: StandardFloats * 4,
	}
}

type vao struct {
	handle  uint32
	program uint32
}

// SubMesh is a drawable range of its mesh's shared buffers. Offsets are in bytes.
// Vertices and Indices are consumed by AddMesh.
type SubMesh struct {
	Layout       VertexBufferLayout
	Vertices     []float32
	Indices      []uint32
	VertexOffset uint32
	IndexOffset  uint32
	IndexCount   uint32
	vaos         []vao
}

type Mesh struct {
	Name         string
	SubMeshes    []SubMesh
	VertexBuffer uint32
	IndexBuffer  uint32
}

type Material struct {
	Name            string
	Albedo          mgl.Vec3
	Emissive        mgl.Vec3
	Smoothness      float32
	AlbedoTexture   uint32
	EmissiveTexture uint32
	SpecularTexture uint32
	NormalTexture   uint32
	BumpTexture     uint32
}

// NewMaterial returns a material with every texture slot unset.
func NewMaterial(name string, albedo mgl.Vec3) Material {
	return Material{
		Name:            name,
		Albedo:          albedo,
		Smoothness:      0.5,
		AlbedoTexture:   resource.InvalidIndex,
		EmissiveTexture: resource.InvalidIndex,
		SpecularTexture: resource.InvalidIndex,
		NormalTexture:   resource.InvalidIndex,
		BumpTexture:     resource.InvalidIndex,
	}
}

// Model pairs a mesh with one material per submesh.
type Model struct {
	Mesh      uint32
	Materials []uint32
}

// BindingError reports a program input with no matching attribute in a submesh.
type BindingError struct {
	Mesh     uint32
	SubMesh  int
	Program  string
	Location uint8
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("mesh %d submesh %d has no vertex attribute at location %d required by program %s",
		e.Mesh, e.SubMesh, e.Location, e.Program)
}

type Registry struct {
	dev       gpu.Device
	cache     *resource.Cache
	log       *zap.Logger
	importer  Importer
	meshes    []Mesh
	materials []Material
	models    []Model
	loaded    map[string]uint32
	fallback  uint32
}

func NewRegistry(dev gpu.Device, cache *resource.Cache, log *zap.Logger, importer Importer) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if importer == nil {
		importer = GLTFImporter{}
	}
	r := &Registry{
		dev:      dev,
		cache:    cache,
		log:      log,
		importer: importer,
		loaded:   make(map[string]uint32),
		fallback: resource.InvalidIndex,
	}
	if cache != nil {
		cache.OnProgramDeleted(r.ForgetProgram)
	}
	return r
}

// AddMesh packs the submeshes into one vertex and one index buffer and returns
// the mesh index.
func (r *Registry) AddMesh(m Mesh) uint32 {
	var vertices []float32
	var indices []byte
	for i := range m.SubMeshes {
		s := &m.SubMeshes[i]
		s.VertexOffset = uint32(len(vertices) * 4)
		s.IndexOffset = uint32(len(indices))
		s.IndexCount = uint32(len(s.Indices))
		vertices = append(vertices, s.Vertices...)
		for _, idx := range s.Indices {
			indices = binary.LittleEndian.AppendUint32(indices, idx)
		}
		s.Vertices, s.Indices = nil, nil
	}
	vdata := f32.Bytes(binary.LittleEndian, vertices...)
	m.VertexBuffer = r.dev.CreateBuffer(gpu.VertexBuffer, len(vdata), vdata, gpu.StaticDraw)
	m.IndexBuffer = r.dev.CreateBuffer(gpu.IndexBuffer, len(indices), indices, gpu.StaticDraw)
	r.meshes = append(r.meshes, m)
	return uint32(len(r.meshes) - 1)
}

func (r *Registry) AddMaterial(m Material) uint32 {
	r.materials = append(r.materials, m)
	return uint32(len(r.materials) - 1)
}

func (r *Registry) AddModel(m Model) uint32 {
	r.models = append(r.models, m)
	return uint32(len(r.models) - 1)
}

func (r *Registry) Mesh(idx uint32) *Mesh {
	if idx >= uint32(len(r.meshes)) {
		return nil
	}
	return &r.meshes[idx]
}

func (r *Registry) Material(idx uint32) *Material {
	if idx >= uint32(len(r.materials)) {
		return nil
	}
	return &r.materials[idx]
}

func (r *Registry) Model(idx uint32) *Model {
	if idx >= uint32(len(r.models)) {
		return nil
	}
	return &r.models[idx]
}

// FallbackMaterial returns a plain grey material used for submeshes without one.
func (r *Registry) FallbackMaterial() uint32 {
	if r.fallback == resource.InvalidIndex {
		r.fallback = r.AddMaterial(NewMaterial("default", mgl.Vec3{0.8, 0.8, 0.8}))
	}
	return r.fallback
}

// Release deletes every vertex array and buffer. Calling it again is a no-op.
func (r *Registry) Release() {
	for i := range r.meshes {
		m := &r.meshes[i]
		for j := range m.SubMeshes {
			for _, v := range m.SubMeshes[j].vaos {
				r.dev.DeleteVertexArray(v.handle)
			}
			m.SubMeshes[j].vaos = nil
		}
		if m.VertexBuffer != 0 {
			r.dev.DeleteBuffer(m.VertexBuffer)
			m.VertexBuffer = 0
		}
		if m.IndexBuffer != 0 {
			r.dev.DeleteBuffer(m.IndexBuffer)
			m.IndexBuffer = 0
		}
	}
}
