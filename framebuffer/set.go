package framebuffer

import (
	"fmt"

	"github.com/ikemen-engine/waterdemo/gpu"
)

// G-buffer attachment order shared by the geometry programs and the composite.
const (
	AlbedoAttachment = iota
	NormalAttachment
	PositionAttachment
	ViewDirAttachment
	GBufferAttachments
)

// Set is the group of targets a frame renders into: the primary G-buffer, the
// reflection and refraction G-buffers seen by the water, and one flat color
// target per side pass that deferred mode composites into.
type Set struct {
	Primary           *FrameBuffer
	Reflection        *FrameBuffer
	Refraction        *FrameBuffer
	ReflectionResolve *FrameBuffer
	RefractionResolve *FrameBuffer

	dev gpu.Device
}

func NewSet(dev gpu.Device, width, height int) (*Set, error) {
	s := &Set{dev: dev}
	if err := s.Resize(width, height); err != nil {
		return nil, err
	}
	return s, nil
}

// Resize releases every target and builds them again at the new size.
func (s *Set) Resize(width, height int) error {
	s.Clean()
	targets := []struct {
		fb     **FrameBuffer
		name   string
		colors int
	}{
		{&s.Primary, "primary", GBufferAttachments},
		{&s.Reflection, "reflection", GBufferAttachments},
		{&s.Refraction, "refraction", GBufferAttachments},
		{&s.ReflectionResolve, "reflection resolve", 1},
		{&s.RefractionResolve, "refraction resolve", 1},
	}
	for _, t := range targets {
		fb, err := New(s.dev, t.colors, width, height)
		if err != nil {
			s.Clean()
			return fmt.Errorf("%s target: %w", t.name, err)
		}
		*t.fb = fb
	}
	return nil
}

// ReflectionColor is the texture the water samples for reflections: the
// composited target in deferred mode, the albedo attachment otherwise.
func (s *Set) ReflectionColor(deferred bool) uint32 {
	if deferred {
		return s.ReflectionResolve.Color(0)
	}
	return s.Reflection.Color(AlbedoAttachment)
}

func (s *Set) RefractionColor(deferred bool) uint32 {
	if deferred {
		return s.RefractionResolve.Color(0)
	}
	return s.Refraction.Color(AlbedoAttachment)
}

func (s *Set) Clean() {
	for _, fb := range []**FrameBuffer{&s.Primary, &s.Reflection, &s.Refraction, &s.ReflectionResolve, &s.RefractionResolve} {
		if *fb != nil {
			(*fb).Clean()
			*fb = nil
		}
	}
}
