package compositor

import (
	"image"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/geom"
	"deedles.dev/wlcommit/region"
	"deedles.dev/wlcommit/syncobj"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Field identifies a part of a State that has been set.
type Field uint32

const (
	FieldBuffer Field = 1 << iota
	FieldOffset
	FieldDamage
	FieldBufferDamage
	FieldOpaque
	FieldInput
	FieldBufferScale
	FieldBufferTransform
	FieldViewport
	FieldSubsurfaceOrder
	FieldSubsurfacePosition
	FieldColorDescription
	FieldYUVCoefficients
	FieldContentType
	FieldPresentationModeHint
	FieldAlphaMultiplier
	FieldBlur
	FieldContrast
	FieldShadow
	FieldSlide
	FieldFifoBarrier
	FieldFifoWait
	FieldFrameCallbacks
)

// Viewport crops and scales a surface's buffer. An invalid Source or
// a zero Destination means that part is unset.
type Viewport struct {
	Source      geom.RectF
	Destination image.Point
}

// FrameCallback is notified when the state it was queued with has been
// presented.
type FrameCallback interface {
	Done(msec uint32)

	// Cancel is called instead of Done if the state is thrown away.
	Cancel()
}

// State is a snapshot of everything that can be committed on a
// surface. Committed records which fields carry a value; the others
// are ignored when the state is merged into another one.
//
// A State holds a buffer reference and must not be copied.
type State struct {
	Committed Field
	Serial    uint64

	Buffer       buffer.Ref
	AcquirePoint syncobj.AcquirePoint
	ReleasePoint syncobj.ReleasePoint

	Offset       image.Point
	Damage       region.Region
	BufferDamage region.Region
	Opaque       region.Region
	Input        region.Region

	BufferScale     int
	BufferTransform geom.Transform
	Viewport        Viewport

	// Above and Below list child surfaces stacked above and below the
	// surface, bottom to top.
	Above     []SurfaceID
	Below     []SurfaceID
	Positions map[SurfaceID]image.Point

	ColorDescription     ColorDescription
	RenderingIntent      RenderingIntent
	YUVCoefficients      YUVCoefficients
	Range                EncodingRange
	ContentType          ContentType
	PresentationModeHint PresentationModeHint
	AlphaMultiplier      float64

	Blur     *Blur
	Contrast *Contrast
	Shadow   *Shadow
	Slide    *Slide

	FifoBarrier bool
	FifoWait    bool

	FrameCallbacks []FrameCallback
}

// NewState returns a state holding the defaults of a new surface.
func NewState() *State {
	var s State
	s.reset()
	return &s
}

func (s *State) reset() {
	s.Committed = 0
	s.Buffer.Reset()
	s.AcquirePoint = syncobj.AcquirePoint{}
	s.ReleasePoint = syncobj.ReleasePoint{}
	s.Offset = image.Point{}
	s.Damage = region.Region{}
	s.BufferDamage = region.Region{}
	s.Opaque = region.Region{}
	s.Input = region.Infinite()
	s.BufferScale = 1
	s.BufferTransform = geom.Normal
	s.Viewport = Viewport{}
	s.Positions = nil
	s.ColorDescription = SRGB
	s.RenderingIntent = IntentPerceptual
	s.YUVCoefficients = YUVIdentity
	s.Range = RangeFull
	s.ContentType = ContentNone
	s.PresentationModeHint = PresentationVSync
	s.AlphaMultiplier = 1
	s.Blur = nil
	s.Contrast = nil
	s.Shadow = nil
	s.Slide = nil
	s.FifoBarrier = false
	s.FifoWait = false
	s.FrameCallbacks = nil
}

// MergeInto copies every committed field of s into target and then
// resets s. The serial and the stacking lists of s survive the reset
// so that further stacking requests keep editing the latest order.
func (s *State) MergeInto(target *State) {
	c := s.Committed

	if c&FieldBuffer != 0 {
		target.Buffer.Set(s.Buffer.Buffer())
		target.AcquirePoint = s.AcquirePoint
		target.ReleasePoint = s.ReleasePoint
	}
	if c&FieldOffset != 0 {
		target.Offset = s.Offset
	}
	if c&FieldDamage != 0 {
		target.Damage = target.Damage.Union(s.Damage)
	}
	if c&FieldBufferDamage != 0 {
		target.BufferDamage = target.BufferDamage.Union(s.BufferDamage)
	}
	if c&FieldOpaque != 0 {
		target.Opaque = s.Opaque
	}
	if c&FieldInput != 0 {
		target.Input = s.Input
	}
	if c&FieldBufferScale != 0 {
		target.BufferScale = s.BufferScale
	}
	if c&FieldBufferTransform != 0 {
		target.BufferTransform = s.BufferTransform
	}
	if c&FieldViewport != 0 {
		target.Viewport = s.Viewport
	}
	if c&FieldSubsurfaceOrder != 0 {
		target.Above = slices.Clone(s.Above)
		target.Below = slices.Clone(s.Below)
	}
	if c&FieldSubsurfacePosition != 0 {
		if target.Positions == nil {
			target.Positions = maps.Clone(s.Positions)
		} else {
			for id, p := range s.Positions {
				target.Positions[id] = p
			}
		}
	}
	if c&FieldColorDescription != 0 {
		target.ColorDescription = s.ColorDescription
		target.RenderingIntent = s.RenderingIntent
	}
	if c&FieldYUVCoefficients != 0 {
		target.YUVCoefficients = s.YUVCoefficients
		target.Range = s.Range
	}
	if c&FieldContentType != 0 {
		target.ContentType = s.ContentType
	}
	if c&FieldPresentationModeHint != 0 {
		target.PresentationModeHint = s.PresentationModeHint
	}
	if c&FieldAlphaMultiplier != 0 {
		target.AlphaMultiplier = s.AlphaMultiplier
	}
	if c&FieldBlur != 0 {
		target.Blur = s.Blur
	}
	if c&FieldContrast != 0 {
		target.Contrast = s.Contrast
	}
	if c&FieldShadow != 0 {
		target.Shadow = s.Shadow
	}
	if c&FieldSlide != 0 {
		target.Slide = s.Slide
	}
	if c&FieldFifoBarrier != 0 {
		target.FifoBarrier = target.FifoBarrier || s.FifoBarrier
	}
	if c&FieldFifoWait != 0 {
		target.FifoWait = s.FifoWait
	}
	if c&FieldFrameCallbacks != 0 {
		target.FrameCallbacks = append(target.FrameCallbacks, s.FrameCallbacks...)
		s.FrameCallbacks = nil
	}

	if s.Serial > target.Serial {
		target.Serial = s.Serial
	}
	target.Committed |= c

	above, below, serial := s.Above, s.Below, s.Serial
	s.reset()
	s.Above, s.Below, s.Serial = above, below, serial
}

// discard drops everything the state holds on to.
func (s *State) discard() {
	for _, cb := range s.FrameCallbacks {
		cb.Cancel()
	}
	s.FrameCallbacks = nil
	s.Buffer.Reset()
}

// takeFrameCallbacks removes the frame callbacks from s and returns
// them.
func (s *State) takeFrameCallbacks() []FrameCallback {
	cbs := s.FrameCallbacks
	s.FrameCallbacks = nil
	return cbs
}
