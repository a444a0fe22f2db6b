package gpu

import (
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v3.3-core/gl"
	mgl "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

type glState struct {
	depthTest   bool
	depthFunc   DepthFunc
	doubleSided bool
	clip        [8]bool
	program     uint32
}

// GLDevice issues commands to the current OpenGL 3.3 core context.
type GLDevice struct {
	log              *zap.Logger
	maxAttachments   int
	uniformAlignment int
	glState
}

// NewGLDevice loads the GL entry points of the current context and queries its limits.
func NewGLDevice(log *zap.Logger) (*GLDevice, error) {
	if err := gl.Init(); err != nil {
		return nil, err
	}
	d := &GLDevice{log: log}
	var v int32
	gl.GetIntegerv(gl.MAX_COLOR_ATTACHMENTS, &v)
	d.maxAttachments = int(v)
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &v)
	d.uniformAlignment = int(v)
	log.Info("OpenGL context",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("glsl", gl.GoStr(gl.GetString(gl.SHADING_LANGUAGE_VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.String("vendor", gl.GoStr(gl.GetString(gl.VENDOR))),
		zap.Int("maxColorAttachments", d.maxAttachments),
		zap.Int("uniformBufferOffsetAlignment", d.uniformAlignment))

	// Context defaults, mirrored into glState.
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.Enable(gl.TEXTURE_CUBE_MAP_SEAMLESS)
	d.depthTest = true
	return d, nil
}

func (d *GLDevice) MaxColorAttachments() int          { return d.maxAttachments }
func (d *GLDevice) UniformBufferOffsetAlignment() int { return d.uniformAlignment }

func (d *GLDevice) mapTarget(t TextureTarget) uint32 {
	switch t {
	case Texture2D:
		return gl.TEXTURE_2D
	case TextureCubeMap:
		return gl.TEXTURE_CUBE_MAP
	}
	return gl.TEXTURE_CUBE_MAP_POSITIVE_X + uint32(t-TextureCubeMapPositiveX)
}

// MapInternalFormat returns the internal format, pixel format and pixel type for f.
func (d *GLDevice) MapInternalFormat(f TextureFormat) (int32, uint32, uint32) {
	var InternalFormatLUT = map[TextureFormat][3]uint32{
		FormatR8:       {gl.R8, gl.RED, gl.UNSIGNED_BYTE},
		FormatRG8:      {gl.RG8, gl.RG, gl.UNSIGNED_BYTE},
		FormatRGB8:     {gl.RGB8, gl.RGB, gl.UNSIGNED_BYTE},
		FormatRGBA8:    {gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
		FormatRGB16F:   {gl.RGB16F, gl.RGB, gl.FLOAT},
		FormatRGBA16F:  {gl.RGBA16F, gl.RGBA, gl.FLOAT},
		FormatRGB32F:   {gl.RGB32F, gl.RGB, gl.FLOAT},
		FormatRGBA32F:  {gl.RGBA32F, gl.RGBA, gl.FLOAT},
		FormatRG16F:    {gl.RG16F, gl.RG, gl.FLOAT},
		FormatDepth32F: {gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT},
	}
	v := InternalFormatLUT[f]
	return int32(v[0]), v[1], v[2]
}

func (d *GLDevice) MapTextureSamplingParam(p TextureSamplingParam) (min, mag int32) {
	switch p {
	case FilterLinear:
		return gl.LINEAR, gl.LINEAR
	case FilterLinearMipmapLinear:
		return gl.LINEAR_MIPMAP_LINEAR, gl.LINEAR
	}
	return gl.NEAREST, gl.NEAREST
}

func (d *GLDevice) MapTextureWrap(w TextureWrap) int32 {
	switch w {
	case WrapClampToEdge:
		return gl.CLAMP_TO_EDGE
	case WrapMirroredRepeat:
		return gl.MIRRORED_REPEAT
	}
	return gl.REPEAT
}

func pixelPointer(pixels any) unsafe.Pointer {
	switch p := pixels.(type) {
	case []byte:
		if len(p) > 0 {
			return unsafe.Pointer(&p[0])
		}
	case []float32:
		if len(p) > 0 {
			return gl.Ptr(p)
		}
	}
	return nil
}

func (d *GLDevice) CreateTexture(target TextureTarget, desc TextureDesc, pixels any) uint32 {
	var h uint32
	t := d.mapTarget(target)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.GenTextures(1, &h)
	gl.BindTexture(t, h)
	internal, format, xtype := d.MapInternalFormat(desc.Format)
	if desc.Format == FormatRGB8 || desc.Format == FormatR8 || desc.Format == FormatRG8 {
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	}
	levels := desc.Levels
	if levels < 1 {
		levels = 1
	}
	for level := 0; level < levels; level++ {
		w, hgt := int32(desc.Width>>level), int32(desc.Height>>level)
		if target == TextureCubeMap {
			for i := 0; i < 6; i++ {
				gl.TexImage2D(uint32(gl.TEXTURE_CUBE_MAP_POSITIVE_X+i), int32(level), internal, w, hgt, 0, format, xtype, nil)
			}
		} else {
			var p unsafe.Pointer
			if level == 0 {
				p = pixelPointer(pixels)
			}
			gl.TexImage2D(t, int32(level), internal, w, hgt, 0, format, xtype, p)
		}
	}
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	if levels > 1 {
		gl.TexParameteri(t, gl.TEXTURE_BASE_LEVEL, 0)
		gl.TexParameteri(t, gl.TEXTURE_MAX_LEVEL, int32(levels-1))
	}
	minFilter, magFilter := d.MapTextureSamplingParam(desc.Filter)
	gl.TexParameteri(t, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.TexParameteri(t, gl.TEXTURE_MAG_FILTER, magFilter)
	wrap := d.MapTextureWrap(desc.Wrap)
	gl.TexParameteri(t, gl.TEXTURE_WRAP_S, wrap)
	gl.TexParameteri(t, gl.TEXTURE_WRAP_T, wrap)
	if target == TextureCubeMap {
		gl.TexParameteri(t, gl.TEXTURE_WRAP_R, wrap)
	}
	if desc.Mipmaps {
		gl.GenerateMipmap(t)
	}
	return h
}

func (d *GLDevice) GenerateMipmaps(target TextureTarget, tex uint32) {
	t := d.mapTarget(target)
	gl.BindTexture(t, tex)
	gl.GenerateMipmap(t)
}

func (d *GLDevice) BindTexture(unit int, target TextureTarget, tex uint32) {
	gl.ActiveTexture(uint32(gl.TEXTURE0 + unit))
	gl.BindTexture(d.mapTarget(target), tex)
}

func (d *GLDevice) DeleteTexture(tex uint32) {
	gl.DeleteTextures(1, &tex)
}

func (d *GLDevice) mapBufferKind(k BufferKind) uint32 {
	switch k {
	case IndexBuffer:
		return gl.ELEMENT_ARRAY_BUFFER
	case UniformBuffer:
		return gl.UNIFORM_BUFFER
	}
	return gl.ARRAY_BUFFER
}

func (d *GLDevice) CreateBuffer(kind BufferKind, size int, data []byte, usage BufferUsage) uint32 {
	var h uint32
	gl.GenBuffers(1, &h)
	t := d.mapBufferKind(kind)
	gl.BindBuffer(t, h)
	u := uint32(gl.STATIC_DRAW)
	if usage == DynamicDraw {
		u = gl.DYNAMIC_DRAW
	}
	var p unsafe.Pointer
	if len(data) > 0 {
		p = unsafe.Pointer(&data[0])
	}
	gl.BufferData(t, size, p, u)
	return h
}

func (d *GLDevice) BindBuffer(kind BufferKind, buf uint32) {
	gl.BindBuffer(d.mapBufferKind(kind), buf)
}

func (d *GLDevice) MapBuffer(kind BufferKind, buf uint32, size int) []byte {
	t := d.mapBufferKind(kind)
	gl.BindBuffer(t, buf)
	p := gl.MapBufferRange(t, 0, size, gl.MAP_WRITE_BIT)
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), size)
}

func (d *GLDevice) UnmapBuffer(kind BufferKind, buf uint32) {
	t := d.mapBufferKind(kind)
	gl.BindBuffer(t, buf)
	if !gl.UnmapBuffer(t) {
		d.log.Warn("buffer contents lost while mapped", zap.Uint32("buffer", buf))
	}
}

func (d *GLDevice) BindBufferRange(binding, buf uint32, offset, size int) {
	gl.BindBufferRange(gl.UNIFORM_BUFFER, binding, buf, offset, size)
}

func (d *GLDevice) DeleteBuffer(buf uint32) {
	gl.DeleteBuffers(1, &buf)
}

func (d *GLDevice) CreateVertexArray() uint32 {
	var h uint32
	gl.GenVertexArrays(1, &h)
	return h
}

func (d *GLDevice) BindVertexArray(vao uint32) {
	gl.BindVertexArray(vao)
}

func (d *GLDevice) VertexAttrib(location, components uint8, stride, offset uint32) {
	gl.EnableVertexAttribArray(uint32(location))
	gl.VertexAttribPointerWithOffset(uint32(location), int32(components), gl.FLOAT, false, int32(stride), uintptr(offset))
}

func (d *GLDevice) DeleteVertexArray(vao uint32) {
	gl.DeleteVertexArrays(1, &vao)
}

func (d *GLDevice) CompileShader(stage ShaderStage, src string) (uint32, error) {
	kind := uint32(gl.VERTEX_SHADER)
	if stage == FragmentStage {
		kind = gl.FRAGMENT_SHADER
	}
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status != gl.FALSE {
		return shader, nil
	}
	err := statusError(infoLog(shader, gl.GetShaderiv, gl.GetShaderInfoLog), stage.String()+" shader did not compile")
	gl.DeleteShader(shader)
	return 0, err
}

func (d *GLDevice) DeleteShader(shader uint32) {
	gl.DeleteShader(shader)
}

// LinkProgram links the shaders into a program and deletes them whatever the
// outcome.
func (d *GLDevice) LinkProgram(shaders ...uint32) (uint32, error) {
	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)
	for _, s := range shaders {
		gl.DetachShader(program, s)
		gl.DeleteShader(s)
	}

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status != gl.FALSE {
		return program, nil
	}
	err := statusError(infoLog(program, gl.GetProgramiv, gl.GetProgramInfoLog), "program did not link")
	gl.DeleteProgram(program)
	return 0, err
}

// infoLog reads the log of a shader or program object with its pair of getters.
func infoLog(object uint32, getiv func(uint32, uint32, *int32), getLog func(uint32, int32, *int32, *uint8)) []byte {
	var size, n int32
	getiv(object, gl.INFO_LOG_LENGTH, &size)
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	getLog(object, size, &n, &buf[0])
	return buf[:n]
}

// statusError turns a driver log into an Error. Drivers may terminate the log
// with NULs and newlines or leave it empty, in which case fallback is used.
func statusError(log []byte, fallback string) error {
	msg := strings.TrimRight(string(log), "\x00\r\n ")
	if msg == "" {
		return Error(fallback)
	}
	return Error(msg)
}

func attribComponents(xtype uint32) uint8 {
	switch xtype {
	case gl.FLOAT, gl.INT, gl.UNSIGNED_INT:
		return 1
	case gl.FLOAT_VEC2, gl.INT_VEC2, gl.UNSIGNED_INT_VEC2:
		return 2
	case gl.FLOAT_VEC3, gl.INT_VEC3, gl.UNSIGNED_INT_VEC3:
		return 3
	}
	return 4
}

func (d *GLDevice) ActiveAttributes(program uint32) []AttributeInfo {
	var count, maxLen int32
	gl.GetProgramiv(program, gl.ACTIVE_ATTRIBUTES, &count)
	gl.GetProgramiv(program, gl.ACTIVE_ATTRIBUTE_MAX_LENGTH, &maxLen)
	if maxLen < 1 {
		maxLen = 1
	}
	attrs := make([]AttributeInfo, 0, count)
	for i := int32(0); i < count; i++ {
		var length, size int32
		var xtype uint32
		name := make([]byte, maxLen+1)
		gl.GetActiveAttrib(program, uint32(i), maxLen, &length, &size, &xtype, &name[0])
		str := string(name[:length])
		if strings.HasPrefix(str, "gl_") {
			continue
		}
		loc := gl.GetAttribLocation(program, gl.Str(str+"\x00"))
		if loc < 0 {
			continue
		}
		attrs = append(attrs, AttributeInfo{Name: str, Location: uint8(loc), Components: attribComponents(xtype)})
	}
	return attrs
}

func (d *GLDevice) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (d *GLDevice) UniformBlockBinding(program uint32, block string, binding uint32) {
	idx := gl.GetUniformBlockIndex(program, gl.Str(block+"\x00"))
	if idx != gl.INVALID_INDEX {
		gl.UniformBlockBinding(program, idx, binding)
	}
}

func (d *GLDevice) UseProgram(program uint32) {
	if program != d.program {
		d.program = program
		gl.UseProgram(program)
	}
}

func (d *GLDevice) DeleteProgram(program uint32) {
	if program == d.program {
		d.program = 0
	}
	gl.DeleteProgram(program)
}

func (d *GLDevice) Uniform1i(loc int32, v int32)   { gl.Uniform1i(loc, v) }
func (d *GLDevice) Uniform1f(loc int32, v float32) { gl.Uniform1f(loc, v) }
func (d *GLDevice) Uniform3f(loc int32, v mgl.Vec3) {
	gl.Uniform3f(loc, v[0], v[1], v[2])
}
func (d *GLDevice) Uniform4f(loc int32, v mgl.Vec4) {
	gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
}
func (d *GLDevice) UniformMatrix4f(loc int32, m mgl.Mat4) {
	gl.UniformMatrix4fv(loc, 1, false, &m[0])
}

func (d *GLDevice) CreateFramebuffer() uint32 {
	var h uint32
	gl.GenFramebuffers(1, &h)
	return h
}

func (d *GLDevice) BindFramebuffer(fbo uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
}

func (d *GLDevice) FramebufferTexture(att Attachment, target TextureTarget, tex uint32, level int) {
	a := uint32(gl.DEPTH_ATTACHMENT)
	if att != DepthAttachment {
		a = gl.COLOR_ATTACHMENT0 + uint32(att)
	}
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, a, d.mapTarget(target), tex, int32(level))
}

func (d *GLDevice) DrawBuffers(count int) {
	bufs := make([]uint32, count)
	for i := range bufs {
		bufs[i] = gl.COLOR_ATTACHMENT0 + uint32(i)
	}
	if count == 0 {
		gl.DrawBuffer(gl.NONE)
		return
	}
	gl.DrawBuffers(int32(count), &bufs[0])
}

func (d *GLDevice) FramebufferComplete() bool {
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		d.log.Error("framebuffer incomplete", zap.Uint32("status", status))
		return false
	}
	return true
}

func (d *GLDevice) BlitFramebuffer(src, dst uint32, width, height int) {
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, src)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, dst)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	w, h := int32(width), int32(height)
	gl.BlitFramebuffer(0, 0, w, h, 0, 0, w, h, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, dst)
}

func (d *GLDevice) DeleteFramebuffer(fbo uint32) {
	gl.DeleteFramebuffers(1, &fbo)
}

func (d *GLDevice) CreateRenderbuffer() uint32 {
	var h uint32
	gl.GenRenderbuffers(1, &h)
	return h
}

func (d *GLDevice) RenderbufferStorage(rbo uint32, width, height int) {
	gl.BindRenderbuffer(gl.RENDERBUFFER, rbo)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(width), int32(height))
}

func (d *GLDevice) FramebufferRenderbuffer(rbo uint32) {
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, rbo)
}

func (d *GLDevice) DeleteRenderbuffer(rbo uint32) {
	gl.DeleteRenderbuffers(1, &rbo)
}

func (d *GLDevice) Viewport(x, y, width, height int) {
	gl.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (d *GLDevice) ClearColor(c mgl.Vec4) {
	gl.ClearColor(c[0], c[1], c[2], c[3])
}

func (d *GLDevice) Clear(color, depth bool) {
	var mask uint32
	if color {
		mask |= gl.COLOR_BUFFER_BIT
	}
	if depth {
		mask |= gl.DEPTH_BUFFER_BIT
	}
	gl.Clear(mask)
}

func setCapability(capability uint32, on bool) {
	if on {
		gl.Enable(capability)
	} else {
		gl.Disable(capability)
	}
}

func (d *GLDevice) SetDepthTest(depthTest bool) {
	if depthTest != d.depthTest {
		d.depthTest = depthTest
		setCapability(gl.DEPTH_TEST, depthTest)
	}
}

func (d *GLDevice) SetDepthFunc(f DepthFunc) {
	if f == d.depthFunc {
		return
	}
	d.depthFunc = f
	if f == DepthLessEqual {
		gl.DepthFunc(gl.LEQUAL)
	} else {
		gl.DepthFunc(gl.LESS)
	}
}

// SetCullFace turns back face culling off for double sided geometry. The cull
// mode itself stays at BACK from NewGLDevice.
func (d *GLDevice) SetCullFace(doubleSided bool) {
	if doubleSided != d.doubleSided {
		d.doubleSided = doubleSided
		setCapability(gl.CULL_FACE, !doubleSided)
	}
}

func (d *GLDevice) SetClipDistance(index int, enabled bool) {
	if d.clip[index] != enabled {
		d.clip[index] = enabled
		setCapability(gl.CLIP_DISTANCE0+uint32(index), enabled)
	}
}

func (d *GLDevice) mapPrimitiveMode(m PrimitiveMode) uint32 {
	if m == TriangleStrip {
		return gl.TRIANGLE_STRIP
	}
	return gl.TRIANGLES
}

func (d *GLDevice) DrawElements(mode PrimitiveMode, count, offset int) {
	gl.DrawElementsWithOffset(d.mapPrimitiveMode(mode), int32(count), gl.UNSIGNED_INT, uintptr(offset))
}

func (d *GLDevice) DrawArrays(mode PrimitiveMode, first, count int) {
	gl.DrawArrays(d.mapPrimitiveMode(mode), int32(first), int32(count))
}
