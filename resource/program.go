package resource

import (
	"fmt"
	"path/filepath"
	"time"

	mgl "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/gpu"
)

type VertexShaderAttribute struct {
	Location       uint8
	ComponentCount uint8
}

type VertexShaderLayout struct {
	Attributes []VertexShaderAttribute
}

// Program is one named variant of a shader source file. Handle is 0 while the
// variant failed to build; Layout is only filled after a successful link.
type Program struct {
	Handle    uint32
	Path      string
	Name      string
	LastWrite time.Time
	Layout    VertexShaderLayout

	dev      gpu.Device
	uniforms map[string]int32
}

// LoadProgram builds the variant name of the shader file at path. Both stages are
// compiled from the same text with the variant and stage defined. Build errors are
// logged and leave the program with a zero handle.
func (c *Cache) LoadProgram(path, name string) uint32 {
	for i, p := range c.programs {
		if p.Path == path && p.Name == name {
			return uint32(i)
		}
	}
	p := &Program{Path: path, Name: name, dev: c.dev, uniforms: make(map[string]int32)}
	if err := c.build(p); err != nil {
		c.log.Error("program build failed", zap.String("path", path), zap.String("name", name), zap.Error(err))
	}
	c.programs = append(c.programs, p)
	return uint32(len(c.programs) - 1)
}

func (c *Cache) build(p *Program) error {
	src, mod, err := c.source.ReadSource(p.Path)
	if err != nil {
		return err
	}
	p.LastWrite = mod
	header := "#version 330 core\n#define " + p.Name + "\n"
	vert, err := c.dev.CompileShader(gpu.VertexStage, header+"#define VERTEX\n"+src)
	if err != nil {
		return fmt.Errorf("Vertex Shader compilation error on %s: %w", p.Name, err)
	}
	frag, err := c.dev.CompileShader(gpu.FragmentStage, header+"#define FRAGMENT\n"+src)
	if err != nil {
		c.dev.DeleteShader(vert)
		return fmt.Errorf("Fragment Shader compilation error on %s: %w", p.Name, err)
	}
	prog, err := c.dev.LinkProgram(vert, frag)
	if err != nil {
		return fmt.Errorf("Link program error on %s: %w", p.Name, err)
	}

	var layout VertexShaderLayout
	for _, a := range c.dev.ActiveAttributes(prog) {
		layout.Attributes = append(layout.Attributes, VertexShaderAttribute{Location: a.Location, ComponentCount: a.Components})
	}
	for block, binding := range c.blocks {
		c.dev.UniformBlockBinding(prog, block, binding)
	}
	c.deleteProgram(p)
	p.Handle = prog
	p.Layout = layout
	p.uniforms = make(map[string]int32)
	return nil
}

// Program returns the program at idx, or nil for an invalid index.
func (c *Cache) Program(idx uint32) *Program {
	if idx >= uint32(len(c.programs)) {
		return nil
	}
	return c.programs[idx]
}

// Reload rebuilds the program at idx. A failed rebuild keeps the previous handle.
func (c *Cache) Reload(idx uint32) error {
	p := c.Program(idx)
	if p == nil {
		return fmt.Errorf("no program at index %d", idx)
	}
	if err := c.build(p); err != nil {
		c.log.Error("program reload failed", zap.String("path", p.Path), zap.String("name", p.Name), zap.Error(err))
		return err
	}
	c.log.Info("program reloaded", zap.String("path", p.Path), zap.String("name", p.Name))
	return nil
}

// ReloadModified rebuilds every program whose source is newer than its last build
// and returns how many were rebuilt.
func (c *Cache) ReloadModified() int {
	n := 0
	checked := make(map[string]time.Time)
	for i, p := range c.programs {
		mod, ok := checked[p.Path]
		if !ok {
			_, m, err := c.source.ReadSource(p.Path)
			if err != nil {
				continue
			}
			mod, checked[p.Path] = m, m
		}
		if mod.After(p.LastWrite) && c.Reload(uint32(i)) == nil {
			n++
		}
	}
	return n
}

// ReloadPaths rebuilds the programs built from any of paths.
func (c *Cache) ReloadPaths(paths []string) int {
	n := 0
	for i, p := range c.programs {
		for _, path := range paths {
			if filepath.Clean(path) == filepath.Clean(p.Path) {
				if c.Reload(uint32(i)) == nil {
					n++
				}
				break
			}
		}
	}
	return n
}

// Use makes p current. It returns false when p has no valid handle.
func (p *Program) Use() bool {
	if p == nil || p.Handle == 0 {
		return false
	}
	p.dev.UseProgram(p.Handle)
	return true
}

// Location returns the cached location of a uniform, -1 if it is inactive.
func (p *Program) Location(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := p.dev.UniformLocation(p.Handle, name)
	p.uniforms[name] = loc
	return loc
}

func (p *Program) SetInt(name string, v int32) {
	if loc := p.Location(name); loc != -1 {
		p.dev.Uniform1i(loc, v)
	}
}

func (p *Program) SetBool(name string, v bool) {
	var i int32
	if v {
		i = 1
	}
	p.SetInt(name, i)
}

func (p *Program) SetFloat(name string, v float32) {
	if loc := p.Location(name); loc != -1 {
		p.dev.Uniform1f(loc, v)
	}
}

func (p *Program) SetVec3(name string, v mgl.Vec3) {
	if loc := p.Location(name); loc != -1 {
		p.dev.Uniform3f(loc, v)
	}
}

func (p *Program) SetVec4(name string, v mgl.Vec4) {
	if loc := p.Location(name); loc != -1 {
		p.dev.Uniform4f(loc, v)
	}
}

func (p *Program) SetMat4(name string, m mgl.Mat4) {
	if loc := p.Location(name); loc != -1 {
		p.dev.UniformMatrix4f(loc, m)
	}
}

// SetTexture binds tex to unit and points the sampler uniform name at it.
func (p *Program) SetTexture(name string, unit int, target gpu.TextureTarget, tex uint32) {
	p.dev.BindTexture(unit, target, tex)
	p.SetInt(name, int32(unit))
}

// OnProgramDeleted registers fn to run with a program handle right before
// the handle is deleted, either by a successful rebuild or by Release.
// GL may hand the same name to a later program.
func (c *Cache) OnProgramDeleted(fn func(handle uint32)) {
	c.onDelete = append(c.onDelete, fn)
}

func (c *Cache) deleteProgram(p *Program) {
	if p.Handle == 0 {
		return
	}
	for _, fn := range c.onDelete {
		fn(p.Handle)
	}
	c.dev.DeleteProgram(p.Handle)
	p.Handle = 0
}
