// Package uniform implements host-written uniform buffers with bump allocation
// and std140 packing.
package uniform

import (
	"encoding/binary"
	"errors"
	"math"

	mgl "github.com/go-gl/mathgl/mgl32"
	"golang.org/x/mobile/exp/f32"

	"github.com/ikemen-engine/waterdemo/gpu"
)

// Fixed binding slots of the two uniform blocks every program shares.
const (
	GlobalsBinding     = 0
	LocalParamsBinding = 1
)

// Mat4Size is the byte size of a column-major 4x4 float matrix.
const Mat4Size = 64

var (
	ErrOverflow  = errors.New("uniform buffer overflow")
	ErrMapFailed = errors.New("uniform buffer could not be mapped")
	ErrReleased  = errors.New("uniform buffer released")
)

// Buffer is a fixed-size uniform buffer written front to back. The head only
// moves back to zero on Reset.
type Buffer struct {
	Handle uint32
	Size   uint32
	dev    gpu.Device
	head   uint32
}

func NewBuffer(dev gpu.Device, size uint32) *Buffer {
	return &Buffer{
		Handle: dev.CreateBuffer(gpu.UniformBuffer, int(size), nil, gpu.DynamicDraw),
		Size:   size,
		dev:    dev,
	}
}

func (b *Buffer) Head() uint32 {
	return b.head
}

// Reset moves the head back to the start. Existing contents are left in place.
func (b *Buffer) Reset() {
	b.head = 0
}

// Write maps the buffer for fn and unmaps it when fn returns, whatever the outcome.
// The writer starts at the head. On success the head advances to the furthest
// byte written; a failed write leaves it where it was.
func (b *Buffer) Write(fn func(w *Writer) error) error {
	if b.Handle == 0 {
		return ErrReleased
	}
	data := b.dev.MapBuffer(gpu.UniformBuffer, b.Handle, int(b.Size))
	if data == nil {
		return ErrMapFailed
	}
	defer b.dev.UnmapBuffer(gpu.UniformBuffer, b.Handle)

	w := &Writer{data: data, pos: b.head}
	err := fn(w)
	w.data = nil
	if err == nil {
		err = w.err
	}
	if err != nil {
		return err
	}
	if w.end > b.head {
		b.head = w.end
	}
	return nil
}

// Bind attaches [offset, offset+size) of the buffer to a uniform block slot.
func (b *Buffer) Bind(binding, offset, size uint32) {
	b.dev.BindBufferRange(binding, b.Handle, int(offset), int(size))
}

func (b *Buffer) Release() {
	if b.Handle != 0 {
		b.dev.DeleteBuffer(b.Handle)
		b.Handle = 0
	}
	b.head = 0
}

// Writer pushes std140 values into a mapped buffer. It is only valid inside Write.
// The first write past the end of the buffer sets a sticky ErrOverflow and nothing
// more is written.
type Writer struct {
	data []byte
	pos  uint32
	end  uint32
	err  error
}

func alignUp(v, a uint32) uint32 {
	if a == 0 {
		return v
	}
	return (v + a - 1) / a * a
}

// Align advances the cursor to the next multiple of a.
func (w *Writer) Align(a uint32) {
	w.pos = alignUp(w.pos, a)
}

// Seek moves the cursor to an absolute offset.
func (w *Writer) Seek(off uint32) {
	w.pos = off
}

func (w *Writer) Pos() uint32 {
	return w.pos
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) push(b []byte) {
	if w.err != nil {
		return
	}
	if uint64(w.pos)+uint64(len(b)) > uint64(len(w.data)) {
		w.err = ErrOverflow
		return
	}
	copy(w.data[w.pos:], b)
	w.pos += uint32(len(b))
	if w.pos > w.end {
		w.end = w.pos
	}
}

func (w *Writer) PushUint(v uint32) {
	w.Align(4)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.push(b[:])
}

func (w *Writer) PushFloat(v float32) {
	w.PushUint(math.Float32bits(v))
}

// PushVec3 writes 12 bytes at a 16 byte boundary, leaving the tail for a scalar.
func (w *Writer) PushVec3(v mgl.Vec3) {
	w.Align(16)
	w.push(f32.Bytes(binary.LittleEndian, v[0], v[1], v[2]))
}

func (w *Writer) PushVec4(v mgl.Vec4) {
	w.Align(16)
	w.push(f32.Bytes(binary.LittleEndian, v[:]...))
}

func (w *Writer) PushMat4(m mgl.Mat4) {
	w.Align(16)
	w.push(f32.Bytes(binary.LittleEndian, m[:]...))
}
