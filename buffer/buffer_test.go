package buffer

import (
	"encoding/binary"
	"image/color"
	"testing"

	"deedles.dev/wlcommit/shm"
	"deedles.dev/wlcommit/syncobj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testTimeline struct{ signalled []uint64 }

func (t *testTimeline) EventFD(uint64) (int, error) { return -1, unix.ENOSYS }
func (t *testTimeline) Signal(point uint64) error {
	t.signalled = append(t.signalled, point)
	return nil
}
func (t *testTimeline) Close() error { return nil }

func newPool(t *testing.T, size int) *shm.Pool {
	file, err := shm.Create("buffer-test", int64(size))
	require.NoError(t, err)
	fd, err := unix.Dup(int(file.Fd()))
	require.NoError(t, err)
	file.Close()

	pool, err := shm.NewPool(fd, size)
	require.NoError(t, err)
	return pool
}

func TestRefRelease(t *testing.T) {
	pool := newPool(t, 64*64*4)
	defer pool.Unref()

	buf, err := NewShm(pool, 0, 64, 64, 64*4, 0)
	require.NoError(t, err)

	var released int
	buf.Release = func() { released++ }

	r1 := NewRef(buf)
	r2 := r1.Clone()
	assert.True(t, buf.IsReferenced())

	r1.Reset()
	assert.Equal(t, 0, released)
	r2.Reset()
	assert.Equal(t, 1, released)
	assert.False(t, buf.IsReferenced())

	r2.Reset()
	assert.Equal(t, 1, released)
}

func TestRefSetSame(t *testing.T) {
	pool := newPool(t, 16)
	defer pool.Unref()

	buf, err := NewShm(pool, 0, 2, 2, 8, 0)
	require.NoError(t, err)

	var released int
	buf.Release = func() { released++ }

	r := NewRef(buf)
	r.Set(buf)
	assert.Equal(t, 0, released)
	r.Set(nil)
	assert.Equal(t, 1, released)
}

func TestDroppedBufferIsNotReleased(t *testing.T) {
	pool := newPool(t, 16)
	defer pool.Unref()

	buf, err := NewShm(pool, 0, 2, 2, 8, 0)
	require.NoError(t, err)

	var released int
	buf.Release = func() { released++ }

	r := NewRef(buf)
	buf.Drop()
	assert.True(t, buf.IsDropped())
	r.Reset()
	assert.Equal(t, 0, released)
}

func TestReleasePointsSignalled(t *testing.T) {
	pool := newPool(t, 16)
	defer pool.Unref()

	buf, err := NewShm(pool, 0, 2, 2, 8, 0)
	require.NoError(t, err)

	tl := &testTimeline{}
	r := NewRef(buf)
	buf.AddReleasePoint(syncobj.ReleasePoint{Timeline: tl, Point: 7})
	buf.AddReleasePoint(syncobj.ReleasePoint{})
	r.Reset()
	assert.Equal(t, []uint64{7}, tl.signalled)
}

func TestShmBounds(t *testing.T) {
	pool := newPool(t, 64)
	defer pool.Unref()

	_, err := NewShm(pool, 0, 4, 4, 16, 0)
	assert.NoError(t, err)
	_, err = NewShm(pool, 4, 4, 4, 16, 0)
	assert.Error(t, err)
	_, err = NewShm(pool, 0, 4, 4, 8, 0)
	assert.Error(t, err)
	_, err = NewShm(pool, 0, 0, 4, 16, 0)
	assert.Error(t, err)
}

func TestAlpha(t *testing.T) {
	pool := newPool(t, 64)
	defer pool.Unref()

	argb, err := NewShm(pool, 0, 4, 4, 16, 0)
	require.NoError(t, err)
	xrgb, err := NewShm(pool, 0, 4, 4, 16, 1)
	require.NoError(t, err)

	assert.True(t, argb.HasAlphaChannel())
	assert.False(t, xrgb.HasAlphaChannel())
	assert.Equal(t, FormatXRGB8888, xrgb.Format())
}

func TestImage(t *testing.T) {
	pool := newPool(t, 128)
	defer pool.Unref()

	argb, err := NewShm(pool, 0, 4, 4, 16, 0)
	require.NoError(t, err)
	xrgb, err := NewShm(pool, 64, 4, 4, 16, 1)
	require.NoError(t, err)

	pix := pool.Bytes(0, 128)
	require.NotNil(t, pix)
	binary.LittleEndian.PutUint32(pix[4*5:], 0xFF102030)
	binary.LittleEndian.PutUint32(pix[64+4*5:], 0x00102030)

	img := argb.Image()
	require.NotNil(t, img)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
	assert.Equal(t, rgba(0x1010, 0x2020, 0x3030, 0xFFFF), rgba(img.At(1, 1).RGBA()))
	assert.Equal(t, rgba(0, 0, 0, 0), rgba(img.At(0, 0).RGBA()))

	img = xrgb.Image()
	require.NotNil(t, img)
	assert.Equal(t, rgba(0x1010, 0x2020, 0x3030, 0xFFFF), rgba(img.At(1, 1).RGBA()))
	assert.Equal(t, rgba(0, 0, 0, 0xFFFF), rgba(img.At(0, 0).RGBA()))

	padded, err := NewShm(pool, 0, 2, 2, 16, 0)
	require.NoError(t, err)
	assert.Nil(t, padded.Image())
}

func rgba(r, g, b, a uint32) color.RGBA64 {
	return color.RGBA64{uint16(r), uint16(g), uint16(b), uint16(a)}
}

func TestOnDestroy(t *testing.T) {
	pool := newPool(t, 16)
	defer pool.Unref()

	buf, err := NewShm(pool, 0, 2, 2, 8, 0)
	require.NoError(t, err)

	var destroyed bool
	buf.OnDestroy(func() { destroyed = true })

	r := NewRef(buf)
	buf.Drop()
	assert.False(t, destroyed)
	r.Reset()
	assert.True(t, destroyed)
}
