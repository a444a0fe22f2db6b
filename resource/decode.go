package resource

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/mdouchement/hdr/hdrcolor"
	_ "github.com/mdouchement/hdr/codec/rgbe"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded 8-bit image, rows bottom to top.
type Image struct {
	Width, Height int
	Channels      int
	Pix           []byte
}

// HDRImage is a decoded float RGB image, rows bottom to top.
type HDRImage struct {
	Width, Height int
	Pix           []float32
}

// ImageDecoder turns a path into pixels. Both results must already be flipped
// so the first row is the bottom of the picture.
type ImageDecoder interface {
	Decode(path string) (*Image, error)
	DecodeHDR(path string) (*HDRImage, error)
}

// FileDecoder decodes PNG, JPEG, BMP, TIFF and WebP images and Radiance HDR
// files from disk.
type FileDecoder struct{}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func (FileDecoder) Decode(path string) (*Image, error) {
	m, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return FlipImage(m), nil
}

type hdrImage interface {
	HDRAt(x, y int) hdrcolor.Color
}

func (FileDecoder) DecodeHDR(path string) (*HDRImage, error) {
	m, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	hm, ok := m.(hdrImage)
	if !ok {
		return nil, fmt.Errorf("decode %s: not a high dynamic range image", path)
	}
	b := m.Bounds()
	out := &HDRImage{Width: b.Dx(), Height: b.Dy(), Pix: make([]float32, 0, b.Dx()*b.Dy()*3)}
	for y := b.Max.Y - 1; y >= b.Min.Y; y-- {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := hm.HDRAt(x, y).HDRRGBA()
			out.Pix = append(out.Pix, float32(r), float32(g), float32(bl))
		}
	}
	return out, nil
}

// FlipImage converts m to tightly packed RGB or RGBA bytes with the bottom row first.
// Opaque images lose their alpha channel.
func FlipImage(m image.Image) *Image {
	b := m.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), m, b.Min, draw.Src)

	channels := 4
	if rgba.Opaque() {
		channels = 3
	}
	w, h := b.Dx(), b.Dy()
	out := &Image{Width: w, Height: h, Channels: channels, Pix: make([]byte, 0, w*h*channels)}
	for y := h - 1; y >= 0; y-- {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			out.Pix = append(out.Pix, row[x*4:x*4+channels]...)
		}
	}
	return out
}
