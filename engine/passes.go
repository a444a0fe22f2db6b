package engine

import (
	"fmt"

	mgl "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/framebuffer"
	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/mesh"
	"github.com/ikemen-engine/waterdemo/resource"
	"github.com/ikemen-engine/waterdemo/scene"
)

// disabledClip keeps everything below y=100, which is all of any scene.
var disabledClip = mgl.Vec4{0, -1, 0, 100}

type pass struct {
	target   *framebuffer.FrameBuffer
	camera   scene.Camera
	clip     mgl.Vec4
	deferred bool
	water    bool
}

func (p pass) variant() int {
	if p.deferred {
		return 1
	}
	return 0
}

// Render draws one frame in the current mode.
func (a *App) Render() {
	if !a.ready {
		return
	}
	switch a.mode {
	case ModeTexturedQuad:
		a.renderTexturedQuad()
	case ModeForward:
		a.renderFrame(false)
	case ModeDeferred:
		a.renderFrame(true)
	default:
		panic(fmt.Sprintf("engine: unhandled render mode %v", a.mode))
	}
}

func (a *App) stream(cam scene.Camera) {
	if _, err := a.scene.UpdateEntities(cam.ViewProjection()); err != nil {
		a.log.Error("entity streaming failed", zap.Error(err))
	}
}

// renderFrame runs the reflection and refraction passes when the scene has
// water, then the geometry pass, then the composite or the blit to the screen.
func (a *App) renderFrame(deferred bool) {
	if _, err := a.scene.UpdateLights(a.camera.Position); err != nil {
		a.log.Error("light streaming failed", zap.Error(err))
	}
	t := a.targets
	if w := a.water; w != nil {
		mirrored := a.camera.Mirrored(w.height)
		a.stream(mirrored)
		a.renderPass(pass{target: t.Reflection, camera: mirrored, clip: mgl.Vec4{0, 1, 0, -w.height}, deferred: deferred})
		if deferred {
			a.composite(t.Reflection, t.ReflectionResolve, DisplayDefault)
		}

		a.stream(a.camera)
		a.renderPass(pass{target: t.Refraction, camera: a.camera, clip: mgl.Vec4{0, -1, 0, w.height}, deferred: deferred})
		if deferred {
			a.composite(t.Refraction, t.RefractionResolve, DisplayDefault)
		}
	}

	a.stream(a.camera)
	a.renderPass(pass{target: t.Primary, camera: a.camera, clip: disabledClip, deferred: deferred, water: true})
	if deferred {
		a.composite(t.Primary, nil, a.display)
		return
	}
	a.dev.BlitFramebuffer(t.Primary.Handle, 0, a.cfg.Width, a.cfg.Height)
}

func (a *App) renderPass(p pass) {
	p.target.Bind()
	a.dev.ClearColor(a.cfg.ClearColor)
	a.dev.Clear(true, true)
	a.dev.SetDepthTest(true)

	a.dev.SetClipDistance(0, true)
	a.drawOpaque(p)
	a.dev.SetClipDistance(0, false)
	if p.water && a.water != nil {
		a.drawWater(p)
	}
	if a.env.Ready() {
		a.dev.SetClipDistance(0, true)
		a.drawProbes(p)
		a.dev.SetClipDistance(0, false)
		a.drawSkybox(p.camera)
	}
}

func (a *App) program(idx uint32) *resource.Program {
	p := a.cache.Program(idx)
	if !p.Use() {
		return nil
	}
	return p
}

func (a *App) drawOpaque(p pass) {
	prog := a.program(a.programs.geometry[p.variant()])
	if prog == nil {
		return
	}
	a.scene.BindGlobals()
	prog.SetVec4("uClipPlane", p.clip)
	for i := range a.scene.Entities {
		if a.scene.Entities[i].Kind == scene.Opaque {
			a.drawEntity(prog, i, true)
		}
	}
}

// drawEntity binds the entity's matrices and issues one draw per submesh.
func (a *App) drawEntity(prog *resource.Program, i int, materials bool) {
	model := a.meshes.Model(a.scene.Entities[i].Model)
	if model == nil {
		return
	}
	m := a.meshes.Mesh(model.Mesh)
	a.scene.BindEntity(i)
	for s := range m.SubMeshes {
		vao := a.meshes.MustVAO(model.Mesh, s, prog)
		if materials {
			a.bindMaterial(prog, a.materialOf(model, s))
		}
		sub := &m.SubMeshes[s]
		a.dev.BindVertexArray(vao)
		a.dev.DrawElements(gpu.Triangles, int(sub.IndexCount), int(sub.IndexOffset))
	}
	a.dev.BindVertexArray(0)
}

func (a *App) materialOf(model *mesh.Model, submesh int) *mesh.Material {
	if submesh < len(model.Materials) {
		if mat := a.meshes.Material(model.Materials[submesh]); mat != nil {
			return mat
		}
	}
	return a.meshes.Material(a.meshes.FallbackMaterial())
}

func (a *App) bindMaterial(prog *resource.Program, mat *mesh.Material) {
	prog.SetVec3("uAlbedo", mat.Albedo)
	prog.SetVec3("uEmissive", mat.Emissive)
	prog.SetFloat("uSmoothness", mat.Smoothness)
	slots := [...]struct {
		sampler, flag string
		texture       uint32
	}{
		{"uAlbedoMap", "uHasAlbedoMap", mat.AlbedoTexture},
		{"uEmissiveMap", "uHasEmissiveMap", mat.EmissiveTexture},
		{"uSpecularMap", "uHasSpecularMap", mat.SpecularTexture},
		{"uNormalMap", "uHasNormalMap", mat.NormalTexture},
		{"uBumpMap", "uHasBumpMap", mat.BumpTexture},
	}
	for unit, s := range slots {
		h := a.cache.TextureHandle(s.texture)
		prog.SetTexture(s.sampler, unit, gpu.Texture2D, h)
		prog.SetBool(s.flag, h != 0)
	}
}

// drawWater samples both side passes, so it runs after them in the geometry pass.
func (a *App) drawWater(p pass) {
	prog := a.program(a.programs.water[p.variant()])
	if prog == nil {
		return
	}
	w, t := a.water, a.targets
	a.scene.BindGlobals()
	prog.SetTexture("uReflectionMap", 0, gpu.Texture2D, t.ReflectionColor(p.deferred))
	prog.SetTexture("uRefractionMap", 1, gpu.Texture2D, t.RefractionColor(p.deferred))
	prog.SetTexture("uReflectionDepth", 2, gpu.Texture2D, t.Reflection.Depth)
	prog.SetTexture("uRefractionDepth", 3, gpu.Texture2D, t.Refraction.Depth)
	prog.SetTexture("uDuDvMap", 4, gpu.Texture2D, a.cache.TextureHandle(w.dudv))
	prog.SetTexture("uNormalMap", 5, gpu.Texture2D, a.cache.TextureHandle(w.normal))
	prog.SetFloat("uTime", a.time)
	prog.SetFloat("uWaveSpeed", w.waveSpeed)
	prog.SetFloat("uTiling", w.tiling)
	prog.SetFloat("uNear", p.camera.Near)
	prog.SetFloat("uFar", p.camera.Far)
	a.drawEntity(prog, w.entity, false)
}

func (a *App) drawProbes(p pass) {
	prog := a.program(a.programs.probe[p.variant()])
	if prog == nil {
		return
	}
	a.scene.BindGlobals()
	prog.SetVec4("uClipPlane", p.clip)
	a.env.BindMaps(prog, 0)
	for i := range a.scene.Entities {
		e := &a.scene.Entities[i]
		if e.Kind != scene.Probe {
			continue
		}
		prog.SetVec3("uAlbedo", e.Albedo)
		prog.SetFloat("uSmoothness", e.Smoothness)
		a.drawEntity(prog, i, false)
	}
}

func (a *App) drawSkybox(cam scene.Camera) {
	prog := a.program(a.programs.skybox)
	if prog == nil {
		return
	}
	a.dev.SetDepthFunc(gpu.DepthLessEqual)
	a.dev.SetCullFace(true)
	prog.SetMat4("uView", cam.View())
	prog.SetMat4("uProjection", cam.Projection())
	prog.SetTexture("uSkybox", 0, gpu.TextureCubeMap, a.env.Cubemap)
	prog.SetBool("uToneMapping", a.env.ToneMapping)
	prog.SetFloat("uExposure", a.env.Exposure)
	sub := &a.meshes.Mesh(a.cube).SubMeshes[0]
	a.dev.BindVertexArray(a.meshes.MustVAO(a.cube, 0, prog))
	a.dev.DrawElements(gpu.Triangles, int(sub.IndexCount), int(sub.IndexOffset))
	a.dev.BindVertexArray(0)
	a.dev.SetCullFace(false)
	a.dev.SetDepthFunc(gpu.DepthLess)
}

// composite lights the G-buffer of src onto dst, or onto the default
// framebuffer when dst is nil. Every sampler uniform is set explicitly.
func (a *App) composite(src, dst *framebuffer.FrameBuffer, display DisplayMode) {
	if dst == nil {
		a.dev.BindFramebuffer(0)
		a.dev.Viewport(0, 0, a.cfg.Width, a.cfg.Height)
	} else {
		dst.Bind()
	}
	a.dev.Clear(true, true)
	prog := a.program(a.programs.composite)
	if prog == nil {
		return
	}
	a.dev.SetDepthTest(false)
	a.scene.BindGlobals()
	prog.SetTexture("uAlbedoMap", 0, gpu.Texture2D, src.Color(framebuffer.AlbedoAttachment))
	prog.SetTexture("uNormalMap", 1, gpu.Texture2D, src.Color(framebuffer.NormalAttachment))
	prog.SetTexture("uPositionMap", 2, gpu.Texture2D, src.Color(framebuffer.PositionAttachment))
	prog.SetTexture("uViewDirMap", 3, gpu.Texture2D, src.Color(framebuffer.ViewDirAttachment))
	prog.SetTexture("uDepthMap", 4, gpu.Texture2D, src.Depth)
	prog.SetInt("uDisplayMode", int32(display))
	prog.SetBool("uInvertDepth", a.invertDepth)
	prog.SetFloat("uNear", a.camera.Near)
	prog.SetFloat("uFar", a.camera.Far)
	a.drawQuad(prog)
	a.dev.SetDepthTest(true)
}

func (a *App) drawQuad(prog *resource.Program) {
	sub := &a.meshes.Mesh(a.quad).SubMeshes[0]
	a.dev.BindVertexArray(a.meshes.MustVAO(a.quad, 0, prog))
	a.dev.DrawElements(gpu.Triangles, int(sub.IndexCount), int(sub.IndexOffset))
	a.dev.BindVertexArray(0)
}

func (a *App) renderTexturedQuad() {
	a.dev.BindFramebuffer(0)
	a.dev.Viewport(0, 0, a.cfg.Width, a.cfg.Height)
	a.dev.ClearColor(a.cfg.ClearColor)
	a.dev.Clear(true, true)
	prog := a.program(a.programs.quad)
	if prog == nil {
		return
	}
	a.dev.SetDepthTest(false)
	prog.SetTexture("uTexture", 0, gpu.Texture2D, a.cache.TextureHandle(a.quadTexture))
	a.drawQuad(prog)
	a.dev.SetDepthTest(true)
}
