package ibl

import (
	"errors"
	"testing"
	"testing/fstest"

	mgl "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/mesh"
	"github.com/ikemen-engine/waterdemo/resource"
)

type hdrDecoder struct{}

func (hdrDecoder) Decode(path string) (*resource.Image, error) {
	return nil, errors.New("not an ldr image")
}

func (hdrDecoder) DecodeHDR(path string) (*resource.HDRImage, error) {
	if path != "sky.hdr" {
		return nil, errors.New("missing")
	}
	return &resource.HDRImage{Width: 4, Height: 2, Pix: make([]float32, 4*2*3)}, nil
}

func newEnvironment(t *testing.T) (*Environment, *gpu.Recorder) {
	t.Helper()
	rec := gpu.NewRecorder()
	fsys := fstest.MapFS{
		"env.glsl": {Data: []byte("#ifdef VERTEX\nlayout(location = 0) in vec3 aPosition;\n#endif\n")},
	}
	cache := resource.NewCache(rec, resource.WithSource(resource.FSSource{FS: fsys}), resource.WithDecoder(hdrDecoder{}))
	reg := mesh.NewRegistry(rec, cache, nil, nil)
	return New(rec, cache, reg, "env.glsl", nil), rec
}

func faceLevels(recs []gpu.AttachmentRecord) map[int][]gpu.TextureTarget {
	out := make(map[int][]gpu.TextureTarget)
	for _, a := range recs {
		out[a.Level] = append(out[a.Level], a.Target)
	}
	return out
}

func allFaces() []gpu.TextureTarget {
	faces := make([]gpu.TextureTarget, 6)
	for i := range faces {
		faces[i] = gpu.CubeFace(i)
	}
	return faces
}

func TestLoadBuildsEveryMap(t *testing.T) {
	env, rec := newEnvironment(t)
	var stages []Stage
	env.OnStage = func(s Stage) { stages = append(stages, s) }

	require.NoError(t, env.Load("sky.hdr"))
	assert.Equal(t, StageReady, env.Stage())
	assert.Equal(t, []Stage{StageCubemap, StageIrradiance, StagePrefiltered, StageReady}, stages)

	cube := rec.Textures[env.Cubemap]
	require.NotNil(t, cube)
	assert.Equal(t, gpu.TextureCubeMap, cube.Target)
	assert.Equal(t, CubemapSize, cube.Desc.Width)
	assert.Equal(t, gpu.FormatRGB16F, cube.Desc.Format)
	assert.Equal(t, 2, cube.Mipmapped)
	assert.Equal(t, map[int][]gpu.TextureTarget{0: allFaces()}, faceLevels(rec.AttachmentsTo(env.Cubemap)))

	irr := rec.Textures[env.Irradiance]
	require.NotNil(t, irr)
	assert.Equal(t, 32, irr.Desc.Width)
	assert.Equal(t, 32, irr.Desc.Height)
	assert.Equal(t, map[int][]gpu.TextureTarget{0: allFaces()}, faceLevels(rec.AttachmentsTo(env.Irradiance)))

	pre := rec.Textures[env.Prefiltered]
	require.NotNil(t, pre)
	assert.Equal(t, MaxMipLevels, pre.Desc.Levels)
	levels := faceLevels(rec.AttachmentsTo(env.Prefiltered))
	require.Len(t, levels, 5)
	for mip := 0; mip < 5; mip++ {
		assert.Equal(t, allFaces(), levels[mip])
	}

	lut := rec.Textures[env.BRDFLUT]
	require.NotNil(t, lut)
	assert.Equal(t, gpu.FormatRG16F, lut.Desc.Format)
	assert.Len(t, rec.AttachmentsTo(env.BRDFLUT), 1)

	// Cubemap, irradiance, five prefilter levels and the lookup table.
	var sizes []int
	for _, v := range rec.Viewports {
		sizes = append(sizes, v[2])
	}
	assert.Equal(t, []int{512, 32, 128, 64, 32, 16, 8, 512}, sizes)
	assert.Len(t, rec.Draws, 6*7+1)
	assert.Equal(t, [2]int{512, 512}, rec.Renderbuffers[env.rbo])
	assert.Equal(t, uint32(0), rec.FramebufferBinds[len(rec.FramebufferBinds)-1])
}

func TestPrefilterRoughnessPerLevel(t *testing.T) {
	env, rec := newEnvironment(t)
	require.NoError(t, env.Load("sky.hdr"))
	p := env.cache.Program(env.cache.LoadProgram("env.glsl", PrefilterProgram))
	require.NotNil(t, p)
	// The last level written is the roughest.
	assert.Equal(t, float32(1), rec.Programs[p.Handle].Uniforms["uRoughness"])
	assert.Equal(t, mgl.Mat4(captureViews[5]), rec.Programs[p.Handle].Uniforms["uView"])
}

func TestReloadReplacesMaps(t *testing.T) {
	env, rec := newEnvironment(t)
	require.NoError(t, env.Load("sky.hdr"))
	old := []uint32{env.Cubemap, env.Irradiance, env.Prefiltered, env.BRDFLUT}
	fbo := env.fbo

	require.NoError(t, env.Load("sky.hdr"))
	for _, h := range old {
		assert.NotContains(t, rec.Textures, h)
		assert.Contains(t, rec.Deleted, h)
	}
	assert.NotContains(t, old, env.Irradiance)
	assert.Equal(t, fbo, env.fbo)
	assert.True(t, env.Ready())
}

func TestLoadFailures(t *testing.T) {
	env, _ := newEnvironment(t)
	err := env.Load("missing.hdr")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, StageEmpty, env.Stage())

	env, rec := newEnvironment(t)
	rec.FailCompile = "IRRADIANCE_CONVOLUTION"
	err = env.Load("sky.hdr")
	assert.ErrorIs(t, err, ErrProgramUnavailable)
	assert.Equal(t, StageEmpty, env.Stage())
	assert.Zero(t, env.Cubemap)
	assert.Zero(t, env.Irradiance)
}

func TestLoadRejectsIncompleteCapture(t *testing.T) {
	env, rec := newEnvironment(t)
	rec.Incomplete = true
	err := env.Load("sky.hdr")
	assert.ErrorIs(t, err, ErrCaptureIncomplete)
	assert.Equal(t, StageEmpty, env.Stage())
	assert.Empty(t, rec.Draws)
	assert.Zero(t, env.Cubemap)
	assert.Zero(t, env.Irradiance)
	assert.Zero(t, env.Prefiltered)
	assert.Zero(t, env.BRDFLUT)
	assert.Equal(t, uint32(0), rec.FramebufferBinds[len(rec.FramebufferBinds)-1])
}

func TestBindMaps(t *testing.T) {
	env, rec := newEnvironment(t)
	require.NoError(t, env.Load("sky.hdr"))
	env.SetToneMapping(false, 2.5)
	env.SetReflectionMode(true, false)

	p := env.cache.Program(env.cache.LoadProgram("env.glsl", LUTProgram))
	require.True(t, p.Use())
	next := env.BindMaps(p, 3)
	assert.Equal(t, 6, next)
	rec.DrawArrays(gpu.Triangles, 0, 3)
	d := rec.Draws[len(rec.Draws)-1]
	assert.Equal(t, env.Irradiance, d.Textures[3])
	assert.Equal(t, env.Prefiltered, d.Textures[4])
	assert.Equal(t, env.BRDFLUT, d.Textures[5])

	u := rec.Programs[p.Handle].Uniforms
	assert.Equal(t, int32(4), u["uPrefilteredMap"])
	assert.Equal(t, int32(0), u["uToneMapping"])
	assert.Equal(t, float32(2.5), u["uExposure"])
	assert.Equal(t, int32(1), u["uDiffuseIBL"])
	assert.Equal(t, int32(0), u["uSpecularIBL"])
}

func TestRelease(t *testing.T) {
	env, rec := newEnvironment(t)
	require.NoError(t, env.Load("sky.hdr"))
	env.Release()
	env.Release()
	assert.Empty(t, rec.Framebuffers)
	assert.Empty(t, rec.Renderbuffers)
	// Only the source image is left, owned by the cache.
	assert.Len(t, rec.Textures, 1)
	assert.False(t, env.Ready())
}
