package mesh

import (
	"encoding/binary"
	"errors"
	"testing"
	"testing/fstest"

	mgl "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/resource"
)

type fixture struct {
	rec   *gpu.Recorder
	cache *resource.Cache
	reg   *Registry
}

// The recorder reads attributes from the whole vertex text, so each variant
// gets its own file.
var shaderFS = fstest.MapFS{
	"full.glsl":   {Data: []byte("layout(location = 0) in vec3 aPosition;\nlayout(location = 1) in vec3 aNormal;\nlayout(location = 2) in vec2 aUV;\n")},
	"pos.glsl":    {Data: []byte("layout(location = 0) in vec3 aPosition;\n")},
	"joints.glsl": {Data: []byte("layout(location = 0) in vec3 aPosition;\nlayout(location = 5) in vec4 aJoints;\n")},
}

func newFixture(t *testing.T, imp Importer) *fixture {
	t.Helper()
	rec := gpu.NewRecorder()
	cache := resource.NewCache(rec, resource.WithSource(resource.FSSource{FS: shaderFS}), resource.WithDecoder(stubDecoder{}))
	return &fixture{rec: rec, cache: cache, reg: NewRegistry(rec, cache, nil, imp)}
}

func (f *fixture) program(path, name string) *resource.Program {
	return f.cache.Program(f.cache.LoadProgram(path, name))
}

type stubDecoder struct{}

func (stubDecoder) Decode(path string) (*resource.Image, error) {
	return &resource.Image{Width: 1, Height: 1, Channels: 4, Pix: make([]byte, 4)}, nil
}

func (stubDecoder) DecodeHDR(path string) (*resource.HDRImage, error) {
	return nil, errors.New("unused")
}

func twoTriangles() Mesh {
	q := Quad()
	p := Plane(1, 1)
	return Mesh{Name: "pair", SubMeshes: []SubMesh{q.SubMeshes[0], p.SubMeshes[0]}}
}

func TestAddMeshPacksSubmeshes(t *testing.T) {
	f := newFixture(t, nil)
	idx := f.reg.AddMesh(twoTriangles())
	m := f.reg.Mesh(idx)
	require.NotNil(t, m)
	require.Len(t, m.SubMeshes, 2)

	assert.Equal(t, uint32(0), m.SubMeshes[0].VertexOffset)
	assert.Equal(t, uint32(4*StandardFloats*4), m.SubMeshes[1].VertexOffset)
	assert.Equal(t, uint32(0), m.SubMeshes[0].IndexOffset)
	assert.Equal(t, uint32(6*4), m.SubMeshes[1].IndexOffset)
	assert.Equal(t, uint32(6), m.SubMeshes[1].IndexCount)
	assert.Nil(t, m.SubMeshes[0].Vertices)

	vb := f.rec.Buffers[m.VertexBuffer]
	ib := f.rec.Buffers[m.IndexBuffer]
	require.NotNil(t, vb)
	require.NotNil(t, ib)
	assert.Len(t, vb.Data, 8*StandardFloats*4)
	assert.Len(t, ib.Data, 12*4)
	// Indices stay local to their submesh.
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ib.Data[6*4+2*4:]))
}

func TestFindOrCreateVAOIsCachedPerProgram(t *testing.T) {
	f := newFixture(t, nil)
	idx := f.reg.AddMesh(twoTriangles())
	full := f.program("full.glsl", "FULL")
	pos := f.program("pos.glsl", "POSITION_ONLY")

	a, err := f.reg.FindOrCreateVAO(idx, 0, full)
	require.NoError(t, err)
	again, err := f.reg.FindOrCreateVAO(idx, 0, full)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	b, err := f.reg.FindOrCreateVAO(idx, 0, pos)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c, err := f.reg.FindOrCreateVAO(idx, 1, full)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Len(t, f.rec.VertexArrays, 3)

	for i := 0; i < 5; i++ {
		h, err := f.reg.FindOrCreateVAO(idx, 1, full)
		require.NoError(t, err)
		assert.Equal(t, c, h)
	}
	assert.Len(t, f.rec.VertexArrays, 3)
}

// recyclingDevice hands out deleted program names again, as GL drivers do.
type recyclingDevice struct {
	*gpu.Recorder
	free []uint32
}

func (d *recyclingDevice) DeleteProgram(program uint32) {
	d.Recorder.DeleteProgram(program)
	d.free = append(d.free, program)
}

func (d *recyclingDevice) LinkProgram(shaders ...uint32) (uint32, error) {
	h, err := d.Recorder.LinkProgram(shaders...)
	if err != nil || len(d.free) == 0 {
		return h, err
	}
	reused := d.free[0]
	d.free = d.free[1:]
	d.Programs[reused] = d.Programs[h]
	delete(d.Programs, h)
	return reused, nil
}

func TestReloadDropsBindingsOfDeletedProgram(t *testing.T) {
	dev := &recyclingDevice{Recorder: gpu.NewRecorder()}
	cache := resource.NewCache(dev, resource.WithSource(resource.FSSource{FS: shaderFS}), resource.WithDecoder(stubDecoder{}))
	reg := NewRegistry(dev, cache, nil, nil)
	idx := reg.AddMesh(twoTriangles())
	posIdx := cache.LoadProgram("pos.glsl", "POSITION_ONLY")
	fullIdx := cache.LoadProgram("full.glsl", "FULL")

	pos := cache.Program(posIdx)
	stale, err := reg.FindOrCreateVAO(idx, 0, pos)
	require.NoError(t, err)
	require.Len(t, dev.VertexArrays[stale].Attribs, 1)
	oldPos := pos.Handle

	require.NoError(t, cache.Reload(posIdx))
	assert.NotContains(t, dev.VertexArrays, stale)
	assert.Contains(t, dev.Deleted, stale)

	// The driver gives the rebuilt FULL program the name POSITION_ONLY had.
	require.NoError(t, cache.Reload(fullIdx))
	full := cache.Program(fullIdx)
	require.Equal(t, oldPos, full.Handle)

	h, err := reg.FindOrCreateVAO(idx, 0, full)
	require.NoError(t, err)
	assert.NotEqual(t, stale, h)
	assert.Len(t, dev.VertexArrays[h].Attribs, 3)

	h, err = reg.FindOrCreateVAO(idx, 0, cache.Program(posIdx))
	require.NoError(t, err)
	assert.Len(t, dev.VertexArrays[h].Attribs, 1)
	assert.Len(t, dev.VertexArrays, 2)
}

func TestFindOrCreateVAOWiresSubmeshOffsets(t *testing.T) {
	f := newFixture(t, nil)
	idx := f.reg.AddMesh(twoTriangles())
	m := f.reg.Mesh(idx)
	h, err := f.reg.FindOrCreateVAO(idx, 1, f.program("full.glsl", "FULL"))
	require.NoError(t, err)

	va := f.rec.VertexArrays[h]
	require.NotNil(t, va)
	assert.Equal(t, m.VertexBuffer, va.VertexBuffer)
	assert.Equal(t, m.IndexBuffer, va.IndexBuffer)
	base := m.SubMeshes[1].VertexOffset
	stride := uint32(StandardFloats * 4)
	assert.Equal(t, []gpu.VertexAttribRecord{
		{Location: 0, Components: 3, Stride: stride, Offset: base},
		{Location: 1, Components: 3, Stride: stride, Offset: base + 12},
		{Location: 2, Components: 2, Stride: stride, Offset: base + 24},
	}, va.Attribs)
}

func TestFindOrCreateVAOMissingAttribute(t *testing.T) {
	f := newFixture(t, nil)
	idx := f.reg.AddMesh(Quad())
	prog := f.program("joints.glsl", "NEEDS_JOINTS")

	_, err := f.reg.FindOrCreateVAO(idx, 0, prog)
	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, uint8(5), be.Location)
	assert.Equal(t, "NEEDS_JOINTS", be.Program)
	assert.Empty(t, f.rec.VertexArrays)
	assert.Panics(t, func() { f.reg.MustVAO(idx, 0, prog) })

	_, err = f.reg.FindOrCreateVAO(idx, 3, prog)
	assert.Error(t, err)
}

func TestReleaseDeletesBindingsAndBuffers(t *testing.T) {
	f := newFixture(t, nil)
	idx := f.reg.AddMesh(Cube())
	_, err := f.reg.FindOrCreateVAO(idx, 0, f.program("pos.glsl", "POSITION_ONLY"))
	require.NoError(t, err)

	f.reg.Release()
	assert.Empty(t, f.rec.VertexArrays)
	assert.Empty(t, f.rec.Buffers)
	n := len(f.rec.Deleted)
	f.reg.Release()
	assert.Len(t, f.rec.Deleted, n)
}

type stubImporter struct {
	calls int
	scene *ImportedScene
}

func (s *stubImporter) Import(path string) (*ImportedScene, error) {
	s.calls++
	if s.scene == nil {
		return nil, errors.New("not found")
	}
	return s.scene, nil
}

func TestLoadModel(t *testing.T) {
	q, p := Quad(), Plane(1, 1)
	imp := &stubImporter{scene: &ImportedScene{
		Meshes: []ImportedMesh{
			{Name: "a", Vertices: q.SubMeshes[0].Vertices, Indices: q.SubMeshes[0].Indices, Material: 1},
			{Name: "b", Vertices: p.SubMeshes[0].Vertices, Indices: p.SubMeshes[0].Indices, Material: -1},
		},
		Materials: []ImportedMaterial{
			{Name: "unused"},
			{Name: "rock", Albedo: mgl.Vec3{1, 0, 0}, AlbedoPath: "rock.png", NormalPath: "rock_n.png"},
		},
	}}
	f := newFixture(t, imp)

	idx, err := f.reg.LoadModel("rock.gltf")
	require.NoError(t, err)
	model := f.reg.Model(idx)
	require.NotNil(t, model)
	require.Len(t, model.Materials, 2)
	assert.Len(t, f.reg.Mesh(model.Mesh).SubMeshes, 2)

	rock := f.reg.Material(model.Materials[0])
	assert.Equal(t, "rock", rock.Name)
	assert.NotEqual(t, uint32(resource.InvalidIndex), rock.AlbedoTexture)
	assert.NotEqual(t, uint32(resource.InvalidIndex), rock.NormalTexture)
	assert.Equal(t, uint32(resource.InvalidIndex), rock.BumpTexture)
	assert.Equal(t, "default", f.reg.Material(model.Materials[1]).Name)

	again, err := f.reg.LoadModel("rock.gltf")
	require.NoError(t, err)
	assert.Equal(t, idx, again)
	assert.Equal(t, 1, imp.calls)
}

func TestLoadModelImportFailure(t *testing.T) {
	f := newFixture(t, &stubImporter{})
	idx, err := f.reg.LoadModel("missing.gltf")
	assert.Error(t, err)
	assert.Equal(t, uint32(resource.InvalidIndex), idx)
}
