// Package gpu is the narrow command surface every subsystem issues GL work through.
// GLDevice forwards to an OpenGL 3.3 core context, Recorder keeps the commands in memory.
package gpu

import (
	mgl "github.com/go-gl/mathgl/mgl32"
)

type TextureFormat int

const (
	FormatR8 TextureFormat = iota
	FormatRG8
	FormatRGB8
	FormatRGBA8
	FormatRGB16F
	FormatRGBA16F
	FormatRGB32F
	FormatRGBA32F
	FormatRG16F
	FormatDepth32F
)

// Channels reports how many components a texel of the format carries.
func (f TextureFormat) Channels() int {
	switch f {
	case FormatR8, FormatDepth32F:
		return 1
	case FormatRG8, FormatRG16F:
		return 2
	case FormatRGB8, FormatRGB16F, FormatRGB32F:
		return 3
	}
	return 4
}

// Float reports whether uploads for the format are float32 texels.
func (f TextureFormat) Float() bool {
	switch f {
	case FormatRGB16F, FormatRGBA16F, FormatRGB32F, FormatRGBA32F, FormatRG16F, FormatDepth32F:
		return true
	}
	return false
}

type TextureSamplingParam int

const (
	FilterNearest TextureSamplingParam = iota
	FilterLinear
	FilterLinearMipmapLinear
)

type TextureWrap int

const (
	WrapRepeat TextureWrap = iota
	WrapClampToEdge
	WrapMirroredRepeat
)

type TextureTarget uint32

const (
	Texture2D TextureTarget = iota
	TextureCubeMap
	// Cube face targets follow the GL ordering +X, -X, +Y, -Y, +Z, -Z.
	TextureCubeMapPositiveX
	TextureCubeMapNegativeX
	TextureCubeMapPositiveY
	TextureCubeMapNegativeY
	TextureCubeMapPositiveZ
	TextureCubeMapNegativeZ
)

// CubeFace returns the face target for face index i in [0, 6).
func CubeFace(i int) TextureTarget {
	return TextureCubeMapPositiveX + TextureTarget(i)
}

// TextureDesc describes the storage of a texture. Levels counts mip levels;
// 0 or 1 means a single level. Mipmaps asks for a full generated chain.
type TextureDesc struct {
	Width, Height int
	Format        TextureFormat
	Filter        TextureSamplingParam
	Wrap          TextureWrap
	Levels        int
	Mipmaps       bool
}

type BufferKind int

const (
	VertexBuffer BufferKind = iota
	IndexBuffer
	UniformBuffer
)

type BufferUsage int

const (
	StaticDraw BufferUsage = iota
	DynamicDraw
)

type ShaderStage int

const (
	VertexStage ShaderStage = iota
	FragmentStage
)

func (s ShaderStage) String() string {
	if s == VertexStage {
		return "Vertex"
	}
	return "Fragment"
}

// Attachment identifies a framebuffer attachment point.
type Attachment int

const DepthAttachment Attachment = -1

// ColorAttachment returns the i-th colour attachment point.
func ColorAttachment(i int) Attachment {
	return Attachment(i)
}

type PrimitiveMode byte

const (
	Triangles PrimitiveMode = iota
	TriangleStrip
)

type DepthFunc int

const (
	DepthLess DepthFunc = iota
	DepthLessEqual
)

// AttributeInfo is one active vertex input of a linked program.
type AttributeInfo struct {
	Name       string
	Location   uint8
	Components uint8
}

// Device is the set of GL commands the renderer needs. Every call must happen on
// the thread that owns the context.
type Device interface {
	MaxColorAttachments() int
	UniformBufferOffsetAlignment() int

	CreateTexture(target TextureTarget, desc TextureDesc, pixels any) uint32
	GenerateMipmaps(target TextureTarget, tex uint32)
	BindTexture(unit int, target TextureTarget, tex uint32)
	DeleteTexture(tex uint32)

	CreateBuffer(kind BufferKind, size int, data []byte, usage BufferUsage) uint32
	BindBuffer(kind BufferKind, buf uint32)
	MapBuffer(kind BufferKind, buf uint32, size int) []byte
	UnmapBuffer(kind BufferKind, buf uint32)
	BindBufferRange(binding, buf uint32, offset, size int)
	DeleteBuffer(buf uint32)

	CreateVertexArray() uint32
	BindVertexArray(vao uint32)
	VertexAttrib(location, components uint8, stride, offset uint32)
	DeleteVertexArray(vao uint32)

	CompileShader(stage ShaderStage, src string) (uint32, error)
	DeleteShader(shader uint32)
	LinkProgram(shaders ...uint32) (uint32, error)
	ActiveAttributes(program uint32) []AttributeInfo
	UniformLocation(program uint32, name string) int32
	UniformBlockBinding(program uint32, block string, binding uint32)
	UseProgram(program uint32)
	DeleteProgram(program uint32)
	Uniform1i(loc int32, v int32)
	Uniform1f(loc int32, v float32)
	Uniform3f(loc int32, v mgl.Vec3)
	Uniform4f(loc int32, v mgl.Vec4)
	UniformMatrix4f(loc int32, m mgl.Mat4)

	CreateFramebuffer() uint32
	BindFramebuffer(fbo uint32)
	FramebufferTexture(att Attachment, target TextureTarget, tex uint32, level int)
	DrawBuffers(count int)
	FramebufferComplete() bool
	BlitFramebuffer(src, dst uint32, width, height int)
	DeleteFramebuffer(fbo uint32)
	CreateRenderbuffer() uint32
	RenderbufferStorage(rbo uint32, width, height int)
	FramebufferRenderbuffer(rbo uint32)
	DeleteRenderbuffer(rbo uint32)

	Viewport(x, y, width, height int)
	ClearColor(c mgl.Vec4)
	Clear(color, depth bool)
	SetDepthTest(depthTest bool)
	SetDepthFunc(f DepthFunc)
	SetCullFace(doubleSided bool)
	SetClipDistance(index int, enabled bool)

	DrawElements(mode PrimitiveMode, count, offset int)
	DrawArrays(mode PrimitiveMode, first, count int)
}

// Error carries a driver info log.
type Error string

func (e Error) Error() string {
	return string(e)
}
