// Package ibl turns an equirectangular HDR image into the cubemaps and lookup
// table used for image based lighting.
package ibl

import (
	"errors"
	"fmt"

	mgl "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/mesh"
	"github.com/ikemen-engine/waterdemo/resource"
)

type Stage int

const (
	StageEmpty Stage = iota
	StageCubemap
	StageIrradiance
	StagePrefiltered
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageCubemap:
		return "cubemap"
	case StageIrradiance:
		return "irradiance"
	case StagePrefiltered:
		return "prefiltered"
	case StageReady:
		return "ready"
	}
	return "empty"
}

const (
	CubemapSize     = 512
	IrradianceSize  = 32
	PrefilteredSize = 128
	MaxMipLevels    = 5
	LUTSize         = 512
)

// Program variants of the environment shader file.
const (
	EquirectProgram   = "EQUIRECT_TO_CUBEMAP"
	IrradianceProgram = "IRRADIANCE_CONVOLUTION"
	PrefilterProgram  = "PREFILTER_CONVOLUTION"
	LUTProgram        = "BRDF_LUT"
)

var (
	ErrSourceUnavailable  = errors.New("environment image could not be loaded")
	ErrProgramUnavailable = errors.New("environment program unavailable")
	ErrCaptureIncomplete  = errors.New("capture framebuffer incomplete")
)

var (
	captureProjection = mgl.Perspective(mgl.DegToRad(90), 1, 0.1, 10)
	captureViews      = [6]mgl.Mat4{
		mgl.LookAtV(mgl.Vec3{}, mgl.Vec3{1, 0, 0}, mgl.Vec3{0, -1, 0}),
		mgl.LookAtV(mgl.Vec3{}, mgl.Vec3{-1, 0, 0}, mgl.Vec3{0, -1, 0}),
		mgl.LookAtV(mgl.Vec3{}, mgl.Vec3{0, 1, 0}, mgl.Vec3{0, 0, 1}),
		mgl.LookAtV(mgl.Vec3{}, mgl.Vec3{0, -1, 0}, mgl.Vec3{0, 0, -1}),
		mgl.LookAtV(mgl.Vec3{}, mgl.Vec3{0, 0, 1}, mgl.Vec3{0, -1, 0}),
		mgl.LookAtV(mgl.Vec3{}, mgl.Vec3{0, 0, -1}, mgl.Vec3{0, -1, 0}),
	}
)

// Environment holds the maps derived from one HDR image. The handles are
// replaced on every Load, so callers look them up each frame.
type Environment struct {
	Path        string
	Source      uint32
	Cubemap     uint32
	Irradiance  uint32
	Prefiltered uint32
	BRDFLUT     uint32

	ToneMapping bool
	Exposure    float32
	DiffuseIBL  bool
	SpecularIBL bool

	// OnStage is called after each completed step of Load.
	OnStage func(Stage)

	stage      Stage
	dev        gpu.Device
	cache      *resource.Cache
	meshes     *mesh.Registry
	log        *zap.Logger
	shaderPath string
	cube, quad uint32
	fbo, rbo   uint32
}

func New(dev gpu.Device, cache *resource.Cache, meshes *mesh.Registry, shaderPath string, log *zap.Logger) *Environment {
	if log == nil {
		log = zap.NewNop()
	}
	return &Environment{
		Source:      resource.InvalidIndex,
		ToneMapping: true,
		Exposure:    1,
		DiffuseIBL:  true,
		SpecularIBL: true,
		dev:         dev,
		cache:       cache,
		meshes:      meshes,
		log:         log,
		shaderPath:  shaderPath,
		cube:        resource.InvalidIndex,
		quad:        resource.InvalidIndex,
	}
}

func (e *Environment) Stage() Stage {
	return e.stage
}

func (e *Environment) Ready() bool {
	return e.stage == StageReady
}

func (e *Environment) SetToneMapping(enabled bool, exposure float32) {
	e.ToneMapping, e.Exposure = enabled, exposure
}

func (e *Environment) SetReflectionMode(diffuse, specular bool) {
	e.DiffuseIBL, e.SpecularIBL = diffuse, specular
}

func (e *Environment) program(name string) (*resource.Program, error) {
	p := e.cache.Program(e.cache.LoadProgram(e.shaderPath, name))
	if p == nil || p.Handle == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProgramUnavailable, name)
	}
	return p, nil
}

func (e *Environment) setStage(s Stage) {
	e.stage = s
	if e.OnStage != nil {
		e.OnStage(s)
	}
}

// Load builds the cubemap, irradiance map, prefiltered map and BRDF lookup
// table from the equirectangular image at path, in that order. Maps from an
// earlier Load are released first. On error the environment is left empty.
func (e *Environment) Load(path string) error {
	src := e.cache.LoadHDRTexture(path)
	if src == resource.InvalidIndex {
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, path)
	}
	e.releaseMaps()
	e.Path, e.Source = path, src
	e.setupCapture()

	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageCubemap, e.renderCubemap},
		{StageIrradiance, e.renderIrradiance},
		{StagePrefiltered, e.renderPrefiltered},
		{StageReady, e.renderLUT},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			e.dev.BindFramebuffer(0)
			e.dev.SetCullFace(false)
			e.releaseMaps()
			return fmt.Errorf("environment %s: %w", path, err)
		}
		e.setStage(s.stage)
	}
	e.dev.BindFramebuffer(0)
	e.dev.SetCullFace(false)
	e.log.Info("environment ready", zap.String("path", path))
	return nil
}

func (e *Environment) setupCapture() {
	if e.cube == resource.InvalidIndex {
		e.cube = e.meshes.AddMesh(mesh.Cube())
		e.quad = e.meshes.AddMesh(mesh.Quad())
	}
	if e.fbo == 0 {
		e.fbo = e.dev.CreateFramebuffer()
		e.rbo = e.dev.CreateRenderbuffer()
		e.dev.BindFramebuffer(e.fbo)
		e.dev.RenderbufferStorage(e.rbo, CubemapSize, CubemapSize)
		e.dev.FramebufferRenderbuffer(e.rbo)
	}
}

// renderFaces draws the unit cube once per face of target at mip level.
func (e *Environment) renderFaces(p *resource.Program, target uint32, size, level int) error {
	vao, err := e.meshes.FindOrCreateVAO(e.cube, 0, p)
	if err != nil {
		return err
	}
	sub := &e.meshes.Mesh(e.cube).SubMeshes[0]
	e.dev.BindFramebuffer(e.fbo)
	e.dev.RenderbufferStorage(e.rbo, size, size)
	e.dev.Viewport(0, 0, size, size)
	e.dev.SetCullFace(true)
	e.dev.BindVertexArray(vao)
	p.SetMat4("uProjection", captureProjection)
	for i := 0; i < 6; i++ {
		e.dev.FramebufferTexture(gpu.ColorAttachment(0), gpu.CubeFace(i), target, level)
		if i == 0 {
			if err := e.checkCapture(size); err != nil {
				e.dev.BindVertexArray(0)
				return err
			}
		}
		e.dev.Clear(true, true)
		p.SetMat4("uView", captureViews[i])
		e.dev.DrawElements(gpu.Triangles, int(sub.IndexCount), int(sub.IndexOffset))
	}
	e.dev.BindVertexArray(0)
	return nil
}

// checkCapture reports whether the capture framebuffer can be drawn into with
// its current attachments.
func (e *Environment) checkCapture(size int) error {
	if !e.dev.FramebufferComplete() {
		return fmt.Errorf("%w at %dx%d", ErrCaptureIncomplete, size, size)
	}
	return nil
}

func (e *Environment) newCubemap(size, levels int, mipmaps bool) uint32 {
	filter := gpu.FilterLinear
	if levels > 1 || mipmaps {
		filter = gpu.FilterLinearMipmapLinear
	}
	return e.dev.CreateTexture(gpu.TextureCubeMap, gpu.TextureDesc{
		Width:   size,
		Height:  size,
		Format:  gpu.FormatRGB16F,
		Filter:  filter,
		Wrap:    gpu.WrapClampToEdge,
		Levels:  levels,
		Mipmaps: mipmaps,
	}, nil)
}

func (e *Environment) renderCubemap() error {
	p, err := e.program(EquirectProgram)
	if err != nil {
		return err
	}
	e.Cubemap = e.newCubemap(CubemapSize, 1, true)
	p.Use()
	p.SetTexture("uEquirectangularMap", 0, gpu.Texture2D, e.cache.TextureHandle(e.Source))
	if err := e.renderFaces(p, e.Cubemap, CubemapSize, 0); err != nil {
		return err
	}
	e.dev.GenerateMipmaps(gpu.TextureCubeMap, e.Cubemap)
	return nil
}

func (e *Environment) renderIrradiance() error {
	p, err := e.program(IrradianceProgram)
	if err != nil {
		return err
	}
	e.Irradiance = e.newCubemap(IrradianceSize, 1, false)
	p.Use()
	p.SetTexture("uEnvironmentMap", 0, gpu.TextureCubeMap, e.Cubemap)
	return e.renderFaces(p, e.Irradiance, IrradianceSize, 0)
}

func (e *Environment) renderPrefiltered() error {
	p, err := e.program(PrefilterProgram)
	if err != nil {
		return err
	}
	e.Prefiltered = e.newCubemap(PrefilteredSize, MaxMipLevels, false)
	p.Use()
	p.SetTexture("uEnvironmentMap", 0, gpu.TextureCubeMap, e.Cubemap)
	p.SetFloat("uResolution", CubemapSize)
	for mip := 0; mip < MaxMipLevels; mip++ {
		p.SetFloat("uRoughness", float32(mip)/float32(MaxMipLevels-1))
		if err := e.renderFaces(p, e.Prefiltered, PrefilteredSize>>mip, mip); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) renderLUT() error {
	p, err := e.program(LUTProgram)
	if err != nil {
		return err
	}
	vao, err := e.meshes.FindOrCreateVAO(e.quad, 0, p)
	if err != nil {
		return err
	}
	e.BRDFLUT = e.dev.CreateTexture(gpu.Texture2D, gpu.TextureDesc{
		Width:  LUTSize,
		Height: LUTSize,
		Format: gpu.FormatRG16F,
		Filter: gpu.FilterLinear,
		Wrap:   gpu.WrapClampToEdge,
	}, nil)
	sub := &e.meshes.Mesh(e.quad).SubMeshes[0]
	e.dev.BindFramebuffer(e.fbo)
	e.dev.RenderbufferStorage(e.rbo, LUTSize, LUTSize)
	e.dev.FramebufferTexture(gpu.ColorAttachment(0), gpu.Texture2D, e.BRDFLUT, 0)
	if err := e.checkCapture(LUTSize); err != nil {
		return err
	}
	e.dev.Viewport(0, 0, LUTSize, LUTSize)
	e.dev.Clear(true, true)
	p.Use()
	e.dev.BindVertexArray(vao)
	e.dev.DrawElements(gpu.Triangles, int(sub.IndexCount), int(sub.IndexOffset))
	e.dev.BindVertexArray(0)
	return nil
}

// BindMaps binds the irradiance map, the prefiltered map and the lookup table
// to three texture units starting at unit, and sets the lighting uniforms of p.
// It returns the next free unit.
func (e *Environment) BindMaps(p *resource.Program, unit int) int {
	ready := e.Ready()
	p.SetBool("uIBLReady", ready)
	p.SetBool("uDiffuseIBL", ready && e.DiffuseIBL)
	p.SetBool("uSpecularIBL", ready && e.SpecularIBL)
	p.SetBool("uToneMapping", e.ToneMapping)
	p.SetFloat("uExposure", e.Exposure)
	p.SetFloat("uPrefilterLevels", MaxMipLevels-1)
	p.SetTexture("uIrradianceMap", unit, gpu.TextureCubeMap, e.Irradiance)
	p.SetTexture("uPrefilteredMap", unit+1, gpu.TextureCubeMap, e.Prefiltered)
	p.SetTexture("uBRDFLUT", unit+2, gpu.Texture2D, e.BRDFLUT)
	return unit + 3
}

func (e *Environment) releaseMaps() {
	for _, h := range []*uint32{&e.Cubemap, &e.Irradiance, &e.Prefiltered, &e.BRDFLUT} {
		if *h != 0 {
			e.dev.DeleteTexture(*h)
			*h = 0
		}
	}
	e.stage = StageEmpty
}

// Release deletes the derived maps and the capture targets. The source image
// belongs to the resource cache.
func (e *Environment) Release() {
	e.releaseMaps()
	if e.rbo != 0 {
		e.dev.DeleteRenderbuffer(e.rbo)
		e.rbo = 0
	}
	if e.fbo != 0 {
		e.dev.DeleteFramebuffer(e.fbo)
		e.fbo = 0
	}
}
