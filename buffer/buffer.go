// Package buffer implements the server side of client pixel buffers.
//
// A Buffer stays usable for as long as anything in the compositor holds
// a Ref to it, even after the client has destroyed the wl_buffer. When
// the last Ref is released the client is told that it may reuse the
// buffer.
package buffer

import (
	"fmt"
	"image"

	"deedles.dev/wlcommit/internal/debug"
	"deedles.dev/wlcommit/shm"
	"deedles.dev/wlcommit/syncobj"
	"deedles.dev/ximage/format"
	"golang.org/x/sys/unix"
)

// DRM fourcc codes of the formats the compositor cares about.
const (
	FormatARGB8888 uint32 = 0x34325241
	FormatXRGB8888 uint32 = 0x34325258
	FormatABGR8888 uint32 = 0x34324241
	FormatXBGR8888 uint32 = 0x34324258
	FormatNV12     uint32 = 0x3231564E
	FormatP010     uint32 = 0x30313050
)

// FormatFromShm converts a wl_shm format code to a fourcc. wl_shm uses
// 0 and 1 for ARGB8888 and XRGB8888 and fourcc codes for everything
// else.
func FormatFromShm(format uint32) uint32 {
	switch format {
	case 0:
		return FormatARGB8888
	case 1:
		return FormatXRGB8888
	default:
		return format
	}
}

func formatHasAlpha(format uint32) bool {
	switch format {
	case FormatARGB8888, FormatABGR8888:
		return true
	default:
		return false
	}
}

// Plane is one memory plane of a dma-buf.
type Plane struct {
	FD     int
	Offset uint32
	Stride uint32
}

// DmabufAttributes describe a buffer imported through
// zwp_linux_dmabuf_v1.
type DmabufAttributes struct {
	Width, Height int
	Format        uint32
	Modifier      uint64
	Planes        []Plane
}

type shmData struct {
	pool   *shm.Pool
	offset int
	stride int
}

// Buffer is a client pixel buffer.
type Buffer struct {
	// Release is called when the compositor no longer uses the buffer
	// and the client may reuse it. It is not called for buffers that
	// the client has already destroyed.
	Release func()

	size   image.Point
	format uint32
	dmabuf *DmabufAttributes
	shm    *shmData

	refs          int
	dropped       bool
	destroyed     bool
	releasePoints []syncobj.ReleasePoint
	onDestroy     []func()
}

// NewShm creates a buffer backed by a region of pool. It takes a
// reference to the pool.
func NewShm(pool *shm.Pool, offset, width, height, stride int, format uint32) (*Buffer, error) {
	if (width <= 0) || (height <= 0) {
		return nil, fmt.Errorf("invalid buffer size %vx%v", width, height)
	}
	if (offset < 0) || (stride < width) || (offset+stride*height > pool.Size()) {
		return nil, fmt.Errorf("buffer (offset %v, stride %v, height %v) outside of pool of size %v", offset, stride, height, pool.Size())
	}

	pool.Ref()
	return &Buffer{
		size:   image.Pt(width, height),
		format: FormatFromShm(format),
		shm: &shmData{
			pool:   pool,
			offset: offset,
			stride: stride,
		},
	}, nil
}

// NewDmabuf creates a buffer from dma-buf attributes. The buffer takes
// ownership of the plane file descriptors.
func NewDmabuf(attrs DmabufAttributes) (*Buffer, error) {
	if (attrs.Width <= 0) || (attrs.Height <= 0) {
		return nil, fmt.Errorf("invalid buffer size %vx%v", attrs.Width, attrs.Height)
	}
	if len(attrs.Planes) == 0 {
		return nil, fmt.Errorf("dma-buf has no planes")
	}

	return &Buffer{
		size:   image.Pt(attrs.Width, attrs.Height),
		format: attrs.Format,
		dmabuf: &attrs,
	}, nil
}

// Size returns the size of the buffer in pixels.
func (b *Buffer) Size() image.Point {
	return b.size
}

// Format returns the fourcc format of the buffer.
func (b *Buffer) Format() uint32 {
	return b.format
}

// HasAlphaChannel reports whether the buffer's pixels carry alpha.
func (b *Buffer) HasAlphaChannel() bool {
	return formatHasAlpha(b.format)
}

// Dmabuf returns the dma-buf attributes of the buffer, or nil if it is
// not a dma-buf.
func (b *Buffer) Dmabuf() *DmabufAttributes {
	return b.dmabuf
}

// Image returns a view of the pixels of an ARGB8888 or XRGB8888 shm
// buffer. It returns nil for any other kind of buffer.
func (b *Buffer) Image() image.Image {
	if (b.shm == nil) || (b.shm.stride != 4*b.size.X) {
		return nil
	}

	var f format.Format
	switch b.format {
	case FormatARGB8888:
		f = format.ARGB8888
	case FormatXRGB8888:
		f = format.XRGB8888
	default:
		return nil
	}

	pix := b.shm.pool.Bytes(b.shm.offset, b.shm.stride*b.size.Y)
	if pix == nil {
		return nil
	}

	return &format.Image{
		Format: f,
		Rect:   image.Rectangle{Max: b.size},
		Pix:    pix,
	}
}

// AddReleasePoint registers a point to be signalled once the buffer is
// released.
func (b *Buffer) AddReleasePoint(p syncobj.ReleasePoint) {
	if !p.IsSet() {
		return
	}
	b.releasePoints = append(b.releasePoints, p)
}

// IsReferenced reports whether anything holds a Ref to b.
func (b *Buffer) IsReferenced() bool {
	return b.refs > 0
}

// IsDropped reports whether the client has destroyed the buffer.
func (b *Buffer) IsDropped() bool {
	return b.dropped
}

// Drop marks the buffer as destroyed by the client. Its resources are
// freed once it is no longer referenced.
func (b *Buffer) Drop() {
	if b.dropped {
		return
	}
	b.dropped = true

	if b.refs == 0 {
		b.destroy()
	}
}

// OnDestroy registers f to be called when the buffer's resources are
// freed.
func (b *Buffer) OnDestroy(f func()) {
	b.onDestroy = append(b.onDestroy, f)
}

func (b *Buffer) ref() {
	b.refs++
}

func (b *Buffer) unref() {
	if b.refs <= 0 {
		panic(fmt.Errorf("unref of unreferenced buffer %p", b))
	}

	b.refs--
	if b.refs > 0 {
		return
	}

	for _, p := range b.releasePoints {
		err := p.Signal()
		if err != nil {
			debug.Printf("signal %v: %v", p, err)
		}
	}
	b.releasePoints = nil

	if b.dropped {
		b.destroy()
		return
	}
	if b.Release != nil {
		b.Release()
	}
}

func (b *Buffer) destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true

	for _, f := range b.onDestroy {
		f()
	}
	b.onDestroy = nil

	if b.shm != nil {
		b.shm.pool.Unref()
	}
	if b.dmabuf != nil {
		for _, p := range b.dmabuf.Planes {
			unix.Close(p.FD)
		}
	}
}

// Ref is a counted reference to a Buffer. The zero value refers to
// nothing. A Ref must not be copied; use Clone.
type Ref struct {
	buf *Buffer
}

// NewRef returns a reference to b, which may be nil.
func NewRef(b *Buffer) Ref {
	if b != nil {
		b.ref()
	}
	return Ref{buf: b}
}

// Buffer returns the referenced buffer or nil.
func (r *Ref) Buffer() *Buffer {
	return r.buf
}

// Clone returns a new reference to the same buffer.
func (r *Ref) Clone() Ref {
	return NewRef(r.buf)
}

// Set makes r refer to b, releasing the buffer it referred to before.
func (r *Ref) Set(b *Buffer) {
	if r.buf == b {
		return
	}
	if b != nil {
		b.ref()
	}
	old := r.buf
	r.buf = b
	if old != nil {
		old.unref()
	}
}

// Reset releases the reference.
func (r *Ref) Reset() {
	r.Set(nil)
}
