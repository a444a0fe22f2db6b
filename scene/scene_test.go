package scene

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	mgl "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/uniform"
)

func newScene(t *testing.T) (*Scene, *gpu.Recorder) {
	t.Helper()
	rec := gpu.NewRecorder()
	return New(rec, 4096), rec
}

func bufferData(rec *gpu.Recorder, b *uniform.Buffer) []byte {
	return rec.Buffers[b.Handle].Data
}

func TestEntityRegionsAreAligned(t *testing.T) {
	s, _ := newScene(t)
	for i := 0; i < 3; i++ {
		idx, err := s.CreateEntity(mgl.Translate3D(float32(i), 0, 0), 0, Opaque)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	for i, e := range s.Entities {
		assert.Equal(t, uint32(i*256), e.Offset)
		assert.Equal(t, uint32(128), e.Size)
	}
}

func TestUpdateEntitiesOnlyRewritesSecondMatrix(t *testing.T) {
	s, rec := newScene(t)
	world := mgl.Translate3D(1, 2, 3).Mul4(mgl.Scale3D(2, 2, 2))
	_, err := s.CreateEntity(world, 0, Opaque)
	require.NoError(t, err)
	data := bufferData(rec, s.EntityBuffer())
	created := append([]byte(nil), data[:uniform.Mat4Size]...)

	cam := NewCamera(mgl.Vec3{0, 2, 5}, mgl.Vec3{}, 1.5)
	for i := 0; i < 4; i++ {
		cam.Position[0] += 1
		vp := cam.ViewProjection()
		written, err := s.UpdateEntities(vp)
		require.NoError(t, err)
		assert.True(t, written)
		assert.True(t, bytes.Equal(created, data[:uniform.Mat4Size]))

		want := vp.Mul4(world)
		for j := 0; j < 16; j++ {
			got := math.Float32frombits(binary.LittleEndian.Uint32(data[uniform.Mat4Size+4*j:]))
			assert.InDelta(t, want[j], got, 1e-5)
		}
	}
}

func TestUnchangedCameraSkipsRewrites(t *testing.T) {
	s, rec := newScene(t)
	_, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
	require.NoError(t, err)
	require.NoError(t, s.AddLight(Light{Type: Directional, Color: mgl.Vec3{1, 1, 1}, Direction: mgl.Vec3{0, -1, 0}}))

	cam := NewCamera(mgl.Vec3{0, 2, 5}, mgl.Vec3{}, 1.5)
	written, err := s.UpdateEntities(cam.ViewProjection())
	require.NoError(t, err)
	assert.True(t, written)
	written, err = s.UpdateLights(cam.Position)
	require.NoError(t, err)
	assert.True(t, written)

	entityMaps := rec.Buffers[s.EntityBuffer().Handle].Maps
	globalMaps := rec.Buffers[s.GlobalBuffer().Handle].Maps
	written, err = s.UpdateEntities(cam.ViewProjection())
	require.NoError(t, err)
	assert.False(t, written)
	written, err = s.UpdateLights(cam.Position)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, entityMaps, rec.Buffers[s.EntityBuffer().Handle].Maps)
	assert.Equal(t, globalMaps, rec.Buffers[s.GlobalBuffer().Handle].Maps)

	s.InvalidateLights()
	written, err = s.UpdateLights(cam.Position)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestGlobalLayout(t *testing.T) {
	s, rec := newScene(t)
	require.NoError(t, s.AddLight(Light{Type: Directional, Color: mgl.Vec3{1, 0.5, 0.25}, Direction: mgl.Vec3{0, -1, 0}}))
	require.NoError(t, s.AddLight(Light{Type: Point, Color: mgl.Vec3{2, 2, 2}, Position: mgl.Vec3{4, 5, 6}}))
	_, err := s.UpdateLights(mgl.Vec3{7, 8, 9})
	require.NoError(t, err)

	data := bufferData(rec, s.GlobalBuffer())
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])) }
	u := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }

	assert.Equal(t, float32(9), f(8))
	assert.Equal(t, uint32(2), u(12))
	// Light 0 at 16: type, color, direction, position on 16 byte boundaries.
	assert.Equal(t, uint32(Directional), u(16))
	assert.Equal(t, float32(0.5), f(32+4))
	assert.Equal(t, float32(-1), f(48+4))
	// Light 1 at 80.
	assert.Equal(t, uint32(Point), u(80))
	assert.Equal(t, float32(2), f(96))
	assert.Equal(t, float32(6), f(128+8))
	assert.Equal(t, uint32(140), s.GlobalBuffer().Head())
}

func TestTooManyLights(t *testing.T) {
	s, _ := newScene(t)
	for i := 0; i < MaxLights; i++ {
		require.NoError(t, s.AddLight(Light{}))
	}
	assert.ErrorIs(t, s.AddLight(Light{}), ErrTooManyLights)
}

func TestResetRewindsEntityBuffer(t *testing.T) {
	s, _ := newScene(t)
	for i := 0; i < 3; i++ {
		_, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
		require.NoError(t, err)
	}
	s.Reset()
	assert.Empty(t, s.Entities)
	assert.Zero(t, s.EntityBuffer().Head())

	idx, err := s.CreateEntity(mgl.Ident4(), 1, Water)
	require.NoError(t, err)
	assert.Zero(t, s.Entities[idx].Offset)
	w, ok := s.Water()
	assert.True(t, ok)
	assert.Equal(t, idx, w)
}

func TestEntityBufferOverflow(t *testing.T) {
	rec := gpu.NewRecorder()
	s := New(rec, 300)
	_, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
	require.NoError(t, err)
	_, err = s.CreateEntity(mgl.Ident4(), 0, Opaque)
	assert.ErrorIs(t, err, uniform.ErrOverflow)
	assert.Len(t, s.Entities, 1)
	assert.Equal(t, uint32(entitySize), s.entities.Head())
}

func TestEntityOverflowMidRecordKeepsHead(t *testing.T) {
	rec := gpu.NewRecorder()
	// Room for the second world matrix but not its composed one.
	s := New(rec, 256+100)
	_, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
	require.NoError(t, err)
	_, err = s.CreateEntity(mgl.Ident4(), 0, Opaque)
	assert.ErrorIs(t, err, uniform.ErrOverflow)
	assert.Len(t, s.Entities, 1)
	assert.Equal(t, uint32(entitySize), s.entities.Head())

	s.Reset()
	idx, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
	require.NoError(t, err)
	assert.Zero(t, s.Entities[idx].Offset)
}

func TestFailedUpdateIsRetried(t *testing.T) {
	s, rec := newScene(t)
	_, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
	require.NoError(t, err)
	vp := mgl.Perspective(1, 1, 0.1, 10)

	buf := rec.Buffers[s.entities.Handle]
	delete(rec.Buffers, s.entities.Handle)
	written, err := s.UpdateEntities(vp)
	assert.ErrorIs(t, err, uniform.ErrMapFailed)
	assert.False(t, written)

	rec.Buffers[s.entities.Handle] = buf
	written, err = s.UpdateEntities(vp)
	require.NoError(t, err)
	assert.True(t, written)
	data := bufferData(rec, s.entities)
	for j := 0; j < 16; j++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[uniform.Mat4Size+4*j:]))
		assert.InDelta(t, vp[j], got, 1e-6)
	}
}

func TestBindRanges(t *testing.T) {
	s, rec := newScene(t)
	for i := 0; i < 2; i++ {
		_, err := s.CreateEntity(mgl.Ident4(), 0, Opaque)
		require.NoError(t, err)
	}
	s.BindGlobals()
	s.BindEntity(1)
	rec.DrawArrays(gpu.Triangles, 0, 3)
	d := rec.Draws[0]
	assert.Equal(t, gpu.BufferRange{Buffer: s.GlobalBuffer().Handle, Offset: 0, Size: GlobalsSize}, d.Ranges[uniform.GlobalsBinding])
	assert.Equal(t, gpu.BufferRange{Buffer: s.EntityBuffer().Handle, Offset: 256, Size: 128}, d.Ranges[uniform.LocalParamsBinding])
}
