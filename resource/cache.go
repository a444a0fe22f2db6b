// Package resource owns the GPU textures and shader programs of the renderer.
package resource

import (
	"math"

	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/gpu"
)

// InvalidIndex marks a missing texture or program slot.
const InvalidIndex = math.MaxUint32

type Texture struct {
	Handle        uint32
	Path          string
	Width, Height int
	HDR           bool
}

// Cache de-duplicates texture loads by path and kind and keeps every program variant.
// Indices handed out stay valid until Release.
type Cache struct {
	dev      gpu.Device
	log      *zap.Logger
	decoder  ImageDecoder
	source   SourceReader
	blocks   map[string]uint32
	textures []Texture
	programs []*Program
	onDelete []func(handle uint32)
	released bool
}

type Option func(*Cache)

func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

func WithDecoder(d ImageDecoder) Option {
	return func(c *Cache) { c.decoder = d }
}

func WithSource(s SourceReader) Option {
	return func(c *Cache) { c.source = s }
}

// WithBlockBindings binds uniform blocks with these names to fixed slots after every link.
func WithBlockBindings(blocks map[string]uint32) Option {
	return func(c *Cache) { c.blocks = blocks }
}

func NewCache(dev gpu.Device, opts ...Option) *Cache {
	c := &Cache{
		dev:     dev,
		log:     zap.NewNop(),
		decoder: FileDecoder{},
		source:  FileSource{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) find(path string, hdr bool) (uint32, bool) {
	for i := range c.textures {
		if c.textures[i].Path == path && c.textures[i].HDR == hdr {
			return uint32(i), true
		}
	}
	return InvalidIndex, false
}

// LoadTexture returns the index of the texture at path, decoding and uploading
// it with mipmaps on first use. It returns InvalidIndex if decoding fails.
func (c *Cache) LoadTexture(path string) uint32 {
	if idx, ok := c.find(path, false); ok {
		return idx
	}
	img, err := c.decoder.Decode(path)
	if err != nil {
		c.log.Error("texture load failed", zap.String("path", path), zap.Error(err))
		return InvalidIndex
	}
	format := gpu.FormatRGBA8
	switch img.Channels {
	case 1:
		format = gpu.FormatR8
	case 2:
		format = gpu.FormatRG8
	case 3:
		format = gpu.FormatRGB8
	}
	h := c.dev.CreateTexture(gpu.Texture2D, gpu.TextureDesc{
		Width:   img.Width,
		Height:  img.Height,
		Format:  format,
		Filter:  gpu.FilterLinearMipmapLinear,
		Wrap:    gpu.WrapRepeat,
		Mipmaps: true,
	}, img.Pix)
	c.textures = append(c.textures, Texture{Handle: h, Path: path, Width: img.Width, Height: img.Height})
	c.log.Debug("texture loaded", zap.String("path", path), zap.Int("width", img.Width), zap.Int("height", img.Height))
	return uint32(len(c.textures) - 1)
}

// LoadHDRTexture loads a float RGB image as a linear, clamped texture without mipmaps.
func (c *Cache) LoadHDRTexture(path string) uint32 {
	if idx, ok := c.find(path, true); ok {
		return idx
	}
	img, err := c.decoder.DecodeHDR(path)
	if err != nil {
		c.log.Error("hdr texture load failed", zap.String("path", path), zap.Error(err))
		return InvalidIndex
	}
	h := c.dev.CreateTexture(gpu.Texture2D, gpu.TextureDesc{
		Width:  img.Width,
		Height: img.Height,
		Format: gpu.FormatRGB32F,
		Filter: gpu.FilterLinear,
		Wrap:   gpu.WrapClampToEdge,
	}, img.Pix)
	c.textures = append(c.textures, Texture{Handle: h, Path: path, Width: img.Width, Height: img.Height, HDR: true})
	return uint32(len(c.textures) - 1)
}

// Texture returns the record at idx, or nil for an invalid index.
func (c *Cache) Texture(idx uint32) *Texture {
	if idx >= uint32(len(c.textures)) {
		return nil
	}
	return &c.textures[idx]
}

// TextureHandle returns the GPU handle at idx, 0 when idx is invalid.
func (c *Cache) TextureHandle(idx uint32) uint32 {
	if t := c.Texture(idx); t != nil {
		return t.Handle
	}
	return 0
}

func (c *Cache) TextureCount() int {
	return len(c.textures)
}

// Release deletes every texture and program. Calling it again is a no-op.
func (c *Cache) Release() {
	if c.released {
		return
	}
	c.released = true
	for i := range c.textures {
		if c.textures[i].Handle != 0 {
			c.dev.DeleteTexture(c.textures[i].Handle)
			c.textures[i].Handle = 0
		}
	}
	for _, p := range c.programs {
		c.deleteProgram(p)
		p.Layout = VertexShaderLayout{}
	}
}
