package gpu

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	mgl "github.com/go-gl/mathgl/mgl32"
)

// Recorder is a Device that keeps every command and object in memory instead of
// talking to a driver. Buffers are backed by byte slices so mapped writes can be
// inspected. The Recorder is not safe for concurrent use.
type Recorder struct {
	MaxAttachments int
	Alignment      int
	// Incomplete makes every completeness check fail.
	Incomplete bool
	// FailCompile makes compilation fail for any source containing it.
	FailCompile string

	Textures      map[uint32]*TextureRecord
	Buffers       map[uint32]*BufferRecord
	VertexArrays  map[uint32]*VertexArrayRecord
	Programs      map[uint32]*ProgramRecord
	Framebuffers  map[uint32]*FramebufferRecord
	Renderbuffers map[uint32][2]int

	FramebufferBinds []uint32
	Attachments      []AttachmentRecord
	Viewports        [][4]int
	Draws            []DrawCall
	Blits            [][2]uint32
	Deleted          []uint32

	next        uint32
	shaders     map[uint32]string
	locations   map[int32]uniformKey
	framebuffer uint32
	program     uint32
	vao         uint32
	buffers     map[BufferKind]uint32
	units       map[int]uint32
	ranges      map[uint32]BufferRange
	clip        [8]bool
	depthTest   bool
}

type uniformKey struct {
	program uint32
	name    string
}

type TextureRecord struct {
	Target    TextureTarget
	Desc      TextureDesc
	Pixels    any
	Mipmapped int
}

type BufferRecord struct {
	Kind  BufferKind
	Data  []byte
	Maps  int
	Usage BufferUsage
}

type VertexAttribRecord struct {
	Location, Components uint8
	Stride, Offset       uint32
}

type VertexArrayRecord struct {
	VertexBuffer, IndexBuffer uint32
	Attribs                   []VertexAttribRecord
}

type ProgramRecord struct {
	Sources    []string
	Attributes []AttributeInfo
	Blocks     map[string]uint32
	Uniforms   map[string]any
}

type FramebufferRecord struct {
	Attachments  map[Attachment]uint32
	DrawBuffers  int
	Renderbuffer uint32
}

type AttachmentRecord struct {
	Framebuffer uint32
	Attachment  Attachment
	Target      TextureTarget
	Texture     uint32
	Level       int
}

type BufferRange struct {
	Buffer       uint32
	Offset, Size int
}

// DrawCall is the state captured at a draw command.
type DrawCall struct {
	Framebuffer uint32
	Program     uint32
	VertexArray uint32
	Mode        PrimitiveMode
	Count       int
	Offset      int
	Textures    map[int]uint32
	Ranges      map[uint32]BufferRange
	Clip        bool
	Viewport    [4]int
}

func NewRecorder() *Recorder {
	return &Recorder{
		MaxAttachments: 8,
		Alignment:      256,
		Textures:       make(map[uint32]*TextureRecord),
		Buffers:        make(map[uint32]*BufferRecord),
		VertexArrays:   make(map[uint32]*VertexArrayRecord),
		Programs:       make(map[uint32]*ProgramRecord),
		Framebuffers:   make(map[uint32]*FramebufferRecord),
		Renderbuffers:  make(map[uint32][2]int),
		shaders:        make(map[uint32]string),
		locations:      make(map[int32]uniformKey),
		buffers:        make(map[BufferKind]uint32),
		units:          make(map[int]uint32),
		ranges:         make(map[uint32]BufferRange),
		depthTest:      true,
	}
}

func (r *Recorder) handle() uint32 {
	r.next++
	return r.next
}

func (r *Recorder) MaxColorAttachments() int          { return r.MaxAttachments }
func (r *Recorder) UniformBufferOffsetAlignment() int { return r.Alignment }

func (r *Recorder) CreateTexture(target TextureTarget, desc TextureDesc, pixels any) uint32 {
	h := r.handle()
	r.Textures[h] = &TextureRecord{Target: target, Desc: desc, Pixels: pixels}
	if desc.Mipmaps {
		r.Textures[h].Mipmapped++
	}
	return h
}

func (r *Recorder) GenerateMipmaps(target TextureTarget, tex uint32) {
	if t, ok := r.Textures[tex]; ok {
		t.Mipmapped++
	}
}

func (r *Recorder) BindTexture(unit int, target TextureTarget, tex uint32) {
	r.units[unit] = tex
}

func (r *Recorder) DeleteTexture(tex uint32) {
	delete(r.Textures, tex)
	r.Deleted = append(r.Deleted, tex)
}

func (r *Recorder) CreateBuffer(kind BufferKind, size int, data []byte, usage BufferUsage) uint32 {
	h := r.handle()
	b := &BufferRecord{Kind: kind, Data: make([]byte, size), Usage: usage}
	copy(b.Data, data)
	r.Buffers[h] = b
	r.BindBuffer(kind, h)
	return h
}

func (r *Recorder) BindBuffer(kind BufferKind, buf uint32) {
	r.buffers[kind] = buf
	if va, ok := r.VertexArrays[r.vao]; ok {
		switch kind {
		case VertexBuffer:
			va.VertexBuffer = buf
		case IndexBuffer:
			va.IndexBuffer = buf
		}
	}
}

func (r *Recorder) MapBuffer(kind BufferKind, buf uint32, size int) []byte {
	b, ok := r.Buffers[buf]
	if !ok {
		return nil
	}
	b.Maps++
	if size > len(b.Data) {
		size = len(b.Data)
	}
	return b.Data[:size]
}

func (r *Recorder) UnmapBuffer(kind BufferKind, buf uint32) {}

func (r *Recorder) BindBufferRange(binding, buf uint32, offset, size int) {
	r.ranges[binding] = BufferRange{Buffer: buf, Offset: offset, Size: size}
}

func (r *Recorder) DeleteBuffer(buf uint32) {
	delete(r.Buffers, buf)
	r.Deleted = append(r.Deleted, buf)
}

func (r *Recorder) CreateVertexArray() uint32 {
	h := r.handle()
	r.VertexArrays[h] = &VertexArrayRecord{}
	return h
}

func (r *Recorder) BindVertexArray(vao uint32) {
	r.vao = vao
}

func (r *Recorder) VertexAttrib(location, components uint8, stride, offset uint32) {
	if va, ok := r.VertexArrays[r.vao]; ok {
		va.Attribs = append(va.Attribs, VertexAttribRecord{location, components, stride, offset})
	}
}

func (r *Recorder) DeleteVertexArray(vao uint32) {
	delete(r.VertexArrays, vao)
	r.Deleted = append(r.Deleted, vao)
}

func (r *Recorder) CompileShader(stage ShaderStage, src string) (uint32, error) {
	if r.FailCompile != "" && strings.Contains(src, r.FailCompile) {
		return 0, Error(fmt.Sprintf("0:1(1): error: %s stage rejected", stage))
	}
	h := r.handle()
	r.shaders[h] = src
	return h, nil
}

func (r *Recorder) DeleteShader(shader uint32) {
	delete(r.shaders, shader)
}

func (r *Recorder) LinkProgram(shaders ...uint32) (uint32, error) {
	p := &ProgramRecord{Blocks: make(map[string]uint32), Uniforms: make(map[string]any)}
	for _, s := range shaders {
		src, ok := r.shaders[s]
		if !ok {
			return 0, Error("invalid shader object")
		}
		p.Sources = append(p.Sources, src)
		delete(r.shaders, s)
	}
	if len(p.Sources) > 0 {
		p.Attributes = parseAttributes(p.Sources[0])
	}
	h := r.handle()
	r.Programs[h] = p
	return h, nil
}

var attributePattern = regexp.MustCompile(`layout\s*\(\s*location\s*=\s*(\d+)\s*\)\s*in\s+(float|vec2|vec3|vec4)\s+(\w+)`)

// parseAttributes stands in for driver introspection by reading the explicit
// attribute locations declared in a vertex source.
func parseAttributes(src string) []AttributeInfo {
	var attrs []AttributeInfo
	for _, m := range attributePattern.FindAllStringSubmatch(src, -1) {
		loc, _ := strconv.Atoi(m[1])
		comps := uint8(1)
		if m[2] != "float" {
			comps = m[2][3] - '0'
		}
		attrs = append(attrs, AttributeInfo{Name: m[3], Location: uint8(loc), Components: comps})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Location < attrs[j].Location })
	return attrs
}

func (r *Recorder) ActiveAttributes(program uint32) []AttributeInfo {
	if p, ok := r.Programs[program]; ok {
		return append([]AttributeInfo(nil), p.Attributes...)
	}
	return nil
}

func (r *Recorder) UniformLocation(program uint32, name string) int32 {
	loc := int32(len(r.locations))
	r.locations[loc] = uniformKey{program, name}
	return loc
}

func (r *Recorder) UniformBlockBinding(program uint32, block string, binding uint32) {
	if p, ok := r.Programs[program]; ok {
		p.Blocks[block] = binding
	}
}

func (r *Recorder) UseProgram(program uint32) {
	r.program = program
}

func (r *Recorder) DeleteProgram(program uint32) {
	delete(r.Programs, program)
	r.Deleted = append(r.Deleted, program)
}

func (r *Recorder) setUniform(loc int32, v any) {
	k, ok := r.locations[loc]
	if !ok {
		return
	}
	if p, ok := r.Programs[k.program]; ok {
		p.Uniforms[k.name] = v
	}
}

func (r *Recorder) Uniform1i(loc int32, v int32)          { r.setUniform(loc, v) }
func (r *Recorder) Uniform1f(loc int32, v float32)        { r.setUniform(loc, v) }
func (r *Recorder) Uniform3f(loc int32, v mgl.Vec3)       { r.setUniform(loc, v) }
func (r *Recorder) Uniform4f(loc int32, v mgl.Vec4)       { r.setUniform(loc, v) }
func (r *Recorder) UniformMatrix4f(loc int32, m mgl.Mat4) { r.setUniform(loc, m) }

func (r *Recorder) CreateFramebuffer() uint32 {
	h := r.handle()
	r.Framebuffers[h] = &FramebufferRecord{Attachments: make(map[Attachment]uint32)}
	return h
}

func (r *Recorder) BindFramebuffer(fbo uint32) {
	r.framebuffer = fbo
	r.FramebufferBinds = append(r.FramebufferBinds, fbo)
}

func (r *Recorder) FramebufferTexture(att Attachment, target TextureTarget, tex uint32, level int) {
	if fb, ok := r.Framebuffers[r.framebuffer]; ok {
		fb.Attachments[att] = tex
	}
	r.Attachments = append(r.Attachments, AttachmentRecord{r.framebuffer, att, target, tex, level})
}

func (r *Recorder) DrawBuffers(count int) {
	if fb, ok := r.Framebuffers[r.framebuffer]; ok {
		fb.DrawBuffers = count
	}
}

func (r *Recorder) FramebufferComplete() bool {
	return !r.Incomplete
}

func (r *Recorder) BlitFramebuffer(src, dst uint32, width, height int) {
	r.Blits = append(r.Blits, [2]uint32{src, dst})
	r.BindFramebuffer(dst)
}

func (r *Recorder) DeleteFramebuffer(fbo uint32) {
	delete(r.Framebuffers, fbo)
	r.Deleted = append(r.Deleted, fbo)
}

func (r *Recorder) CreateRenderbuffer() uint32 {
	h := r.handle()
	r.Renderbuffers[h] = [2]int{}
	return h
}

func (r *Recorder) RenderbufferStorage(rbo uint32, width, height int) {
	r.Renderbuffers[rbo] = [2]int{width, height}
}

func (r *Recorder) FramebufferRenderbuffer(rbo uint32) {
	if fb, ok := r.Framebuffers[r.framebuffer]; ok {
		fb.Renderbuffer = rbo
	}
}

func (r *Recorder) DeleteRenderbuffer(rbo uint32) {
	delete(r.Renderbuffers, rbo)
	r.Deleted = append(r.Deleted, rbo)
}

func (r *Recorder) Viewport(x, y, width, height int) {
	r.Viewports = append(r.Viewports, [4]int{x, y, width, height})
}

func (r *Recorder) ClearColor(c mgl.Vec4)        {}
func (r *Recorder) Clear(color, depth bool)      {}
func (r *Recorder) SetDepthTest(depthTest bool)  { r.depthTest = depthTest }
func (r *Recorder) SetDepthFunc(f DepthFunc)     {}
func (r *Recorder) SetCullFace(doubleSided bool) {}

func (r *Recorder) SetClipDistance(index int, enabled bool) {
	r.clip[index] = enabled
}

func (r *Recorder) draw(mode PrimitiveMode, count, offset int) {
	d := DrawCall{
		Framebuffer: r.framebuffer,
		Program:     r.program,
		VertexArray: r.vao,
		Mode:        mode,
		Count:       count,
		Offset:      offset,
		Textures:    make(map[int]uint32, len(r.units)),
		Ranges:      make(map[uint32]BufferRange, len(r.ranges)),
		Clip:        r.clip[0],
	}
	for u, t := range r.units {
		d.Textures[u] = t
	}
	for b, rg := range r.ranges {
		d.Ranges[b] = rg
	}
	if n := len(r.Viewports); n > 0 {
		d.Viewport = r.Viewports[n-1]
	}
	r.Draws = append(r.Draws, d)
}

func (r *Recorder) DrawElements(mode PrimitiveMode, count, offset int) { r.draw(mode, count, offset) }
func (r *Recorder) DrawArrays(mode PrimitiveMode, first, count int)    { r.draw(mode, count, first) }

// ResetFrame drops the per-frame command logs and keeps all objects.
func (r *Recorder) ResetFrame() {
	r.FramebufferBinds = nil
	r.Attachments = nil
	r.Viewports = nil
	r.Draws = nil
	r.Blits = nil
}

// AttachmentsTo returns the attachment commands that targeted tex.
func (r *Recorder) AttachmentsTo(tex uint32) []AttachmentRecord {
	var out []AttachmentRecord
	for _, a := range r.Attachments {
		if a.Texture == tex {
			out = append(out, a)
		}
	}
	return out
}
