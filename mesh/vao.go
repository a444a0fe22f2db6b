package mesh

import (
	"fmt"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/resource"
)

// FindOrCreateVAO returns the vertex array binding submesh of mesh to program,
// building it on first use. Attribute locations are assigned per program, so
// each (submesh, program) pair gets its own binding. Bindings live until the
// program handle is deleted, see ForgetProgram.
func (r *Registry) FindOrCreateVAO(mesh uint32, submesh int, program *resource.Program) (uint32, error) {
	m := r.Mesh(mesh)
	if m == nil || submesh < 0 || submesh >= len(m.SubMeshes) {
		return 0, fmt.Errorf("no submesh %d in mesh %d", submesh, mesh)
	}
	s := &m.SubMeshes[submesh]
	for _, v := range s.vaos {
		if v.program == program.Handle {
			return v.handle, nil
		}
	}

	// Check every input before creating anything.
	type binding struct {
		location, components uint8
		offset               uint32
	}
	bindings := make([]binding, 0, len(program.Layout.Attributes))
	for _, in := range program.Layout.Attributes {
		found := false
		for _, a := range s.Layout.Attributes {
			if a.Location == in.Location {
				bindings = append(bindings, binding{a.Location, a.ComponentCount, a.Offset + s.VertexOffset})
				found = true
				break
			}
		}
		if !found {
			return 0, &BindingError{Mesh: mesh, SubMesh: submesh, Program: program.Name, Location: in.Location}
		}
	}

	h := r.dev.CreateVertexArray()
	r.dev.BindVertexArray(h)
	r.dev.BindBuffer(gpu.VertexBuffer, m.VertexBuffer)
	r.dev.BindBuffer(gpu.IndexBuffer, m.IndexBuffer)
	for _, b := range bindings {
		r.dev.VertexAttrib(b.location, b.components, s.Layout.Stride, b.offset)
	}
	r.dev.BindVertexArray(0)
	s.vaos = append(s.vaos, vao{handle: h, program: program.Handle})
	return h, nil
}

// ForgetProgram deletes every vertex array built for the program handle.
// NewRegistry hooks it to the cache so a rebuilt program never picks up a
// binding made for an earlier program with the same name.
func (r *Registry) ForgetProgram(handle uint32) {
	for i := range r.meshes {
		for j := range r.meshes[i].SubMeshes {
			s := &r.meshes[i].SubMeshes[j]
			kept := s.vaos[:0]
			for _, v := range s.vaos {
				if v.program == handle {
					r.dev.DeleteVertexArray(v.handle)
					continue
				}
				kept = append(kept, v)
			}
			s.vaos = kept
		}
	}
}

// MustVAO is FindOrCreateVAO for draw paths where a missing attribute is a
// content error the renderer cannot continue from.
func (r *Registry) MustVAO(mesh uint32, submesh int, program *resource.Program) uint32 {
	h, err := r.FindOrCreateVAO(mesh, submesh, program)
	if err != nil {
		panic(err)
	}
	return h
}
