package compositor

import (
	"image"
	"testing"

	"deedles.dev/wlcommit/geom"
	"deedles.dev/wlcommit/region"
	"github.com/stretchr/testify/assert"
)

type testCallback struct {
	done      []uint32
	cancelled bool
}

func (cb *testCallback) Done(msec uint32) { cb.done = append(cb.done, msec) }
func (cb *testCallback) Cancel()          { cb.cancelled = true }

func TestMergeEmptyState(t *testing.T) {
	target := NewState()
	target.BufferScale = 3
	target.BufferTransform = geom.Rotate90
	target.Damage = region.Rect(image.Rect(0, 0, 5, 5))
	target.Above = []SurfaceID{4, 5}
	target.Positions = map[SurfaceID]image.Point{4: image.Pt(1, 1)}
	target.Committed = FieldBufferScale | FieldBufferTransform | FieldDamage
	target.Serial = 7

	before := *target
	before.Positions = map[SurfaceID]image.Point{4: image.Pt(1, 1)}

	var empty State
	empty.reset()
	empty.MergeInto(target)

	assert.Equal(t, before, *target)
}

func TestMergeOverlay(t *testing.T) {
	target := NewState()
	target.BufferTransform = geom.Rotate90
	target.BufferScale = 2
	target.Committed = FieldBufferTransform | FieldBufferScale

	src := NewState()
	src.BufferScale = 4
	src.Opaque = region.Rect(image.Rect(0, 0, 2, 2))
	src.Committed = FieldBufferScale | FieldOpaque
	src.Serial = 3

	src.MergeInto(target)

	assert.Equal(t, 4, target.BufferScale)
	assert.Equal(t, geom.Rotate90, target.BufferTransform)
	assert.True(t, target.Opaque.Equal(region.Rect(image.Rect(0, 0, 2, 2))))
	assert.Equal(t, FieldBufferTransform|FieldBufferScale|FieldOpaque, target.Committed)
	assert.Equal(t, uint64(3), target.Serial)

	assert.Equal(t, Field(0), src.Committed)
	assert.Equal(t, 1, src.BufferScale)
	assert.True(t, src.Opaque.IsEmpty())
	assert.Equal(t, uint64(3), src.Serial)
}

func TestMergeAccumulates(t *testing.T) {
	cb1, cb2 := &testCallback{}, &testCallback{}

	target := NewState()
	target.Damage = region.Rect(image.Rect(0, 0, 10, 10))
	target.FifoBarrier = true
	target.FrameCallbacks = []FrameCallback{cb1}
	target.Positions = map[SurfaceID]image.Point{1: image.Pt(1, 1), 2: image.Pt(2, 2)}
	target.Committed = FieldDamage | FieldFifoBarrier | FieldFrameCallbacks | FieldSubsurfacePosition

	src := NewState()
	src.Damage = region.Rect(image.Rect(10, 0, 20, 10))
	src.FrameCallbacks = []FrameCallback{cb2}
	src.Positions = map[SurfaceID]image.Point{2: image.Pt(5, 5)}
	src.FifoBarrier = false
	src.Committed = FieldDamage | FieldFifoBarrier | FieldFrameCallbacks | FieldSubsurfacePosition

	src.MergeInto(target)

	assert.True(t, target.Damage.Equal(region.Rect(image.Rect(0, 0, 20, 10))))
	assert.True(t, target.FifoBarrier)
	assert.Equal(t, []FrameCallback{cb1, cb2}, target.FrameCallbacks)
	assert.Equal(t, map[SurfaceID]image.Point{1: image.Pt(1, 1), 2: image.Pt(5, 5)}, target.Positions)
	assert.Empty(t, src.FrameCallbacks)
}

func TestMergeKeepsStacking(t *testing.T) {
	target := NewState()

	src := NewState()
	src.Above = []SurfaceID{1, 2}
	src.Below = []SurfaceID{3}
	src.Committed = FieldSubsurfaceOrder

	src.MergeInto(target)

	assert.Equal(t, []SurfaceID{1, 2}, target.Above)
	assert.Equal(t, []SurfaceID{3}, target.Below)
	assert.Equal(t, []SurfaceID{1, 2}, src.Above)
	assert.Equal(t, []SurfaceID{3}, src.Below)

	src.Above[0] = 9
	assert.Equal(t, SurfaceID(1), target.Above[0])
}

func TestDiscardCancelsCallbacks(t *testing.T) {
	cb := &testCallback{}
	s := NewState()
	s.FrameCallbacks = []FrameCallback{cb}
	s.discard()
	assert.True(t, cb.cancelled)
	assert.Empty(t, cb.done)
}

func TestChangeString(t *testing.T) {
	assert.Equal(t, "none", Change(0).String())
	assert.Equal(t, "buffer|mapped", (ChangeBuffer | ChangeMapped).String())
}
