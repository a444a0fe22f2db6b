// Package framebuffer creates multi-attachment render targets with a float
// depth texture, and the fixed set of targets the frame renders into.
package framebuffer

import (
	"errors"
	"fmt"

	"github.com/ikemen-engine/waterdemo/gpu"
)

var (
	ErrTooManyAttachments = errors.New("framebuffer: too many color attachments")
	ErrIncomplete         = errors.New("framebuffer: incomplete")
)

type Attachment struct {
	Slot    gpu.Attachment
	Texture uint32
}

// FrameBuffer owns its color textures, its depth texture and the framebuffer
// object. Clean zeroes every handle.
type FrameBuffer struct {
	Handle      uint32
	Attachments []Attachment
	Depth       uint32
	Width       int
	Height      int

	dev gpu.Device
}

var colorDesc = gpu.TextureDesc{Format: gpu.FormatRGBA16F, Filter: gpu.FilterNearest, Wrap: gpu.WrapClampToEdge, Levels: 1}

// New allocates colorCount RGBA16F color textures and a 32-bit depth texture.
// The attachment limit is checked before anything is allocated. On an
// incomplete framebuffer every allocation is released again.
func New(dev gpu.Device, colorCount, width, height int) (*FrameBuffer, error) {
	if limit := dev.MaxColorAttachments(); colorCount > limit {
		return nil, fmt.Errorf("%w: %d requested, limit %d", ErrTooManyAttachments, colorCount, limit)
	}
	if colorCount < 1 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("framebuffer: invalid size %dx%d with %d attachments", width, height, colorCount)
	}

	fb := &FrameBuffer{Width: width, Height: height, dev: dev}
	fb.Handle = dev.CreateFramebuffer()
	dev.BindFramebuffer(fb.Handle)

	desc := colorDesc
	desc.Width, desc.Height = width, height
	for i := 0; i < colorCount; i++ {
		tex := dev.CreateTexture(gpu.Texture2D, desc, nil)
		slot := gpu.ColorAttachment(i)
		dev.FramebufferTexture(slot, gpu.Texture2D, tex, 0)
		fb.Attachments = append(fb.Attachments, Attachment{Slot: slot, Texture: tex})
	}

	depth := colorDesc
	depth.Width, depth.Height, depth.Format = width, height, gpu.FormatDepth32F
	fb.Depth = dev.CreateTexture(gpu.Texture2D, depth, nil)
	dev.FramebufferTexture(gpu.DepthAttachment, gpu.Texture2D, fb.Depth, 0)
	dev.DrawBuffers(colorCount)

	complete := dev.FramebufferComplete()
	dev.BindFramebuffer(0)
	if !complete {
		fb.Clean()
		return nil, ErrIncomplete
	}
	return fb, nil
}

// Color returns the texture of color attachment i.
func (fb *FrameBuffer) Color(i int) uint32 {
	return fb.Attachments[i].Texture
}

func (fb *FrameBuffer) Bind() {
	fb.dev.BindFramebuffer(fb.Handle)
	fb.dev.Viewport(0, 0, fb.Width, fb.Height)
}

func (fb *FrameBuffer) Clean() {
	if fb == nil || fb.dev == nil {
		return
	}
	for i := range fb.Attachments {
		if fb.Attachments[i].Texture != 0 {
			fb.dev.DeleteTexture(fb.Attachments[i].Texture)
			fb.Attachments[i].Texture = 0
		}
	}
	fb.Attachments = nil
	if fb.Depth != 0 {
		fb.dev.DeleteTexture(fb.Depth)
		fb.Depth = 0
	}
	if fb.Handle != 0 {
		fb.dev.DeleteFramebuffer(fb.Handle)
		fb.Handle = 0
	}
}
