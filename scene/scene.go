// Package scene holds the entities, lights and camera of the loaded scene and
// streams their data into the global and per-entity uniform buffers.
package scene

import (
	"fmt"

	mgl "github.com/go-gl/mathgl/mgl32"

	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/uniform"
)

type LightType uint32

const (
	Directional LightType = iota
	Point
)

func (t LightType) String() string {
	if t == Point {
		return "point"
	}
	return "directional"
}

// Light direction only applies to directional lights, position to point lights.
type Light struct {
	Type      LightType
	Color     mgl.Vec3
	Direction mgl.Vec3
	Position  mgl.Vec3
}

type EntityKind uint8

const (
	Opaque EntityKind = iota
	Water
	// Probe entities are lit by the environment maps.
	Probe
)

// Entity places a model in the world. Offset and Size locate its two matrices
// in the entity buffer.
type Entity struct {
	World  mgl.Mat4
	Model  uint32
	Kind   EntityKind
	Offset uint32
	Size   uint32

	// Probe material.
	Albedo     mgl.Vec3
	Smoothness float32
}

const (
	MaxLights   = 16
	lightStride = 64
	// GlobalsSize covers the camera position, light count and light array.
	GlobalsSize = 16 + MaxLights*lightStride
	entitySize  = 2 * uniform.Mat4Size
)

var ErrTooManyLights = fmt.Errorf("scene supports at most %d lights", MaxLights)

// Scene owns the two uniform streaming buffers.
type Scene struct {
	Entities []Entity
	Lights   []Light

	globals   *uniform.Buffer
	entities  *uniform.Buffer
	alignment uint32

	viewProj    mgl.Mat4
	viewProjSet bool
	cameraPos   mgl.Vec3
	lightsSet   bool
}

func New(dev gpu.Device, entityBufferSize uint32) *Scene {
	align := uint32(dev.UniformBufferOffsetAlignment())
	if align == 0 {
		align = 16
	}
	return &Scene{
		globals:   uniform.NewBuffer(dev, GlobalsSize),
		entities:  uniform.NewBuffer(dev, entityBufferSize),
		alignment: align,
		viewProj:  mgl.Ident4(),
	}
}

func (s *Scene) GlobalBuffer() *uniform.Buffer { return s.globals }
func (s *Scene) EntityBuffer() *uniform.Buffer { return s.entities }

// CreateEntity appends an entity and writes its world matrix and its matrix
// composed with the last streamed view-projection.
func (s *Scene) CreateEntity(world mgl.Mat4, model uint32, kind EntityKind) (int, error) {
	e := Entity{World: world, Model: model, Kind: kind, Size: entitySize, Smoothness: 0.5, Albedo: mgl.Vec3{1, 1, 1}}
	err := s.entities.Write(func(w *uniform.Writer) error {
		w.Align(s.alignment)
		e.Offset = w.Pos()
		w.PushMat4(world)
		w.PushMat4(s.viewProj.Mul4(world))
		return nil
	})
	if err != nil {
		return -1, fmt.Errorf("create entity: %w", err)
	}
	s.Entities = append(s.Entities, e)
	return len(s.Entities) - 1, nil
}

// UpdateEntities rewrites the view-projection composed matrix of every entity.
// World matrices are never touched. Nothing is written when viewProj is the one
// already streamed; the result reports whether the buffer was written.
func (s *Scene) UpdateEntities(viewProj mgl.Mat4) (bool, error) {
	if s.viewProjSet && viewProj == s.viewProj {
		return false, nil
	}
	if len(s.Entities) == 0 {
		s.viewProj, s.viewProjSet = viewProj, true
		return false, nil
	}
	err := s.entities.Write(func(w *uniform.Writer) error {
		for i := range s.Entities {
			e := &s.Entities[i]
			w.Seek(e.Offset + uniform.Mat4Size)
			w.PushMat4(viewProj.Mul4(e.World))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	s.viewProj, s.viewProjSet = viewProj, true
	return true, nil
}

func (s *Scene) AddLight(l Light) error {
	if len(s.Lights) >= MaxLights {
		return ErrTooManyLights
	}
	s.Lights = append(s.Lights, l)
	s.lightsSet = false
	return nil
}

// InvalidateLights forces the next UpdateLights to rewrite the global buffer,
// for callers that edit Lights in place.
func (s *Scene) InvalidateLights() {
	s.lightsSet = false
}

// UpdateLights rewrites the whole global buffer when the lights or the camera
// position changed since the last write.
func (s *Scene) UpdateLights(cameraPos mgl.Vec3) (bool, error) {
	if s.lightsSet && cameraPos == s.cameraPos {
		return false, nil
	}
	if len(s.Lights) > MaxLights {
		return false, ErrTooManyLights
	}
	s.globals.Reset()
	err := s.globals.Write(func(w *uniform.Writer) error {
		w.PushVec3(cameraPos)
		w.PushUint(uint32(len(s.Lights)))
		for _, l := range s.Lights {
			w.Align(16)
			w.PushUint(uint32(l.Type))
			w.PushVec3(l.Color)
			w.PushVec3(l.Direction)
			w.PushVec3(l.Position)
		}
		w.Align(16)
		return nil
	})
	if err != nil {
		return false, err
	}
	s.cameraPos, s.lightsSet = cameraPos, true
	return true, nil
}

// BindGlobals attaches the global block for the coming pass.
func (s *Scene) BindGlobals() {
	s.globals.Bind(uniform.GlobalsBinding, 0, GlobalsSize)
}

// BindEntity attaches entity i's matrices to the per-entity block.
func (s *Scene) BindEntity(i int) {
	e := &s.Entities[i]
	s.entities.Bind(uniform.LocalParamsBinding, e.Offset, e.Size)
}

// Water returns the index of the first water entity.
func (s *Scene) Water() (int, bool) {
	for i := range s.Entities {
		if s.Entities[i].Kind == Water {
			return i, true
		}
	}
	return -1, false
}

// Reset drops every entity and light. The entity buffer is rewound and old
// regions are overwritten as entities are created again.
func (s *Scene) Reset() {
	s.Entities = s.Entities[:0]
	s.Lights = s.Lights[:0]
	s.entities.Reset()
	s.lightsSet = false
}

func (s *Scene) Release() {
	s.globals.Release()
	s.entities.Release()
}
