package compositor

import (
	"fmt"
	"image"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/geom"
	"deedles.dev/wlcommit/internal/xslices"
	"deedles.dev/wlcommit/region"
	"deedles.dev/wlcommit/syncobj"
)

// SurfaceID identifies a surface for as long as the Compositor exists.
// IDs are never reused.
type SurfaceID uint64

// offsetSinceVersion is the wl_surface version that moved the offset
// out of attach.
const offsetSinceVersion = 5

// Surface is a wl_surface. Requests modify the pending state, which
// only becomes the current state once it has been committed and the
// transaction it ended up in has applied.
type Surface struct {
	Listener SurfaceListener

	comp    *Compositor
	client  *Client
	id      SurfaceID
	version uint32

	pending *State
	current *State

	size            geom.PointF
	bufferSourceBox geom.RectF
	bufferDamage    region.Region
	inputRegion     region.Region
	opaqueRegion    region.Region
	mapped          bool

	sub    *SubSurface
	parked *Transaction
	group  *TransactionGroup

	// queue holds the committed transactions that touch the surface in
	// commit order. Only the first one may apply.
	queue []TransactionID

	explicitSync        bool
	colorManaged        bool
	colorRepresentation bool
	destroyed           bool
}

func (s *Surface) ID() SurfaceID {
	return s.id
}

func (s *Surface) Client() *Client {
	return s.client
}

func (s *Surface) Version() uint32 {
	return s.version
}

func (s *Surface) String() string {
	return fmt.Sprintf("surface#%v", s.id)
}

func (s *Surface) notify(c Change) {
	if (c == 0) || (s.Listener == nil) || s.destroyed {
		return
	}
	s.Listener.Changed(s, c)
}

// Attach sets the pending buffer. A nil buffer detaches the current
// one on the next commit. Older surfaces pass an offset here as well.
func (s *Surface) Attach(buf *buffer.Buffer, x, y int32) error {
	if s.version >= offsetSinceVersion {
		if (x != 0) || (y != 0) {
			return protocolError(InterfaceSurface, SurfaceErrorInvalidOffset, "wl_surface.attach offset must be 0")
		}
	} else {
		s.pending.Offset = image.Pt(int(x), int(y))
		s.pending.Committed |= FieldOffset
	}

	s.pending.Buffer.Set(buf)
	s.pending.Committed |= FieldBuffer
	return nil
}

// Damage adds r, in surface coordinates, to the pending damage.
func (s *Surface) Damage(r image.Rectangle) {
	s.pending.Damage = s.pending.Damage.UnionRect(r)
	s.pending.Committed |= FieldDamage
}

// DamageBuffer adds r, in buffer coordinates, to the pending buffer
// damage.
func (s *Surface) DamageBuffer(r image.Rectangle) {
	s.pending.BufferDamage = s.pending.BufferDamage.UnionRect(r)
	s.pending.Committed |= FieldBufferDamage
}

// SetOpaqueRegion sets the pending opaque region. nil means that no
// part of the surface is known to be opaque.
func (s *Surface) SetOpaqueRegion(r *region.Region) {
	s.pending.Opaque = region.Region{}
	if r != nil {
		s.pending.Opaque = *r
	}
	s.pending.Committed |= FieldOpaque
}

// SetInputRegion sets the pending input region. nil means the whole
// surface accepts input.
func (s *Surface) SetInputRegion(r *region.Region) {
	s.pending.Input = region.Infinite()
	if r != nil {
		s.pending.Input = *r
	}
	s.pending.Committed |= FieldInput
}

func (s *Surface) SetBufferTransform(t geom.Transform) error {
	if !t.Valid() {
		return protocolError(InterfaceSurface, SurfaceErrorInvalidTransform, "buffer transform must be a valid transform (%d specified)", int32(t))
	}

	s.pending.BufferTransform = t
	s.pending.Committed |= FieldBufferTransform
	return nil
}

func (s *Surface) SetBufferScale(scale int32) error {
	if scale < 1 {
		return protocolError(InterfaceSurface, SurfaceErrorInvalidScale, "buffer scale must be at least one (%d specified)", scale)
	}

	s.pending.BufferScale = int(scale)
	s.pending.Committed |= FieldBufferScale
	return nil
}

func (s *Surface) SetOffset(x, y int32) {
	s.pending.Offset = image.Pt(int(x), int(y))
	s.pending.Committed |= FieldOffset
}

// Frame queues cb to be notified once the next committed state has
// been presented.
func (s *Surface) Frame(cb FrameCallback) {
	s.pending.FrameCallbacks = append(s.pending.FrameCallbacks, cb)
	s.pending.Committed |= FieldFrameCallbacks
}

func (s *Surface) SetViewport(vp Viewport) {
	s.pending.Viewport = vp
	s.pending.Committed |= FieldViewport
}

func (s *Surface) SetContentType(t ContentType) {
	s.pending.ContentType = t
	s.pending.Committed |= FieldContentType
}

func (s *Surface) SetPresentationModeHint(hint PresentationModeHint) {
	s.pending.PresentationModeHint = hint
	s.pending.Committed |= FieldPresentationModeHint
}

func (s *Surface) SetAlphaMultiplier(alpha float64) {
	s.pending.AlphaMultiplier = alpha
	s.pending.Committed |= FieldAlphaMultiplier
}

func (s *Surface) SetColorDescription(d ColorDescription, intent RenderingIntent) {
	s.pending.ColorDescription = d
	s.pending.RenderingIntent = intent
	s.pending.Committed |= FieldColorDescription
}

func (s *Surface) SetYUVCoefficients(c YUVCoefficients, r EncodingRange) {
	s.pending.YUVCoefficients = c
	s.pending.Range = r
	s.pending.Committed |= FieldYUVCoefficients
}

// SetColorProtocols records whether the client manages the surface's
// color description and YUV conversion itself. If it doesn't, commits
// fill in defaults based on the buffer format.
func (s *Surface) SetColorProtocols(management, representation bool) {
	s.colorManaged = management
	s.colorRepresentation = representation
}

func (s *Surface) SetBlur(b *Blur) {
	s.pending.Blur = b
	s.pending.Committed |= FieldBlur
}

func (s *Surface) SetContrast(c *Contrast) {
	s.pending.Contrast = c
	s.pending.Committed |= FieldContrast
}

func (s *Surface) SetShadow(shadow *Shadow) {
	s.pending.Shadow = shadow
	s.pending.Committed |= FieldShadow
}

func (s *Surface) SetSlide(slide *Slide) {
	s.pending.Slide = slide
	s.pending.Committed |= FieldSlide
}

// EnableExplicitSync switches the surface to explicit synchronization.
// Every buffer committed after this needs an acquire and a release
// point.
func (s *Surface) EnableExplicitSync() error {
	if s.explicitSync {
		return protocolError(InterfaceSyncobjManager, SyncobjManagerErrorSurfaceExists, "surface already has a syncobj surface")
	}
	s.explicitSync = true
	return nil
}

// DisableExplicitSync returns the surface to implicit synchronization
// and drops the pending points.
func (s *Surface) DisableExplicitSync() {
	s.explicitSync = false
	s.pending.AcquirePoint = syncobj.AcquirePoint{}
	s.pending.ReleasePoint = syncobj.ReleasePoint{}
}

func (s *Surface) SetAcquirePoint(p syncobj.AcquirePoint) {
	s.pending.AcquirePoint = p
}

func (s *Surface) SetReleasePoint(p syncobj.ReleasePoint) {
	s.pending.ReleasePoint = p
}

// SetFifoBarrier makes the next commit set a barrier that a later
// commit with a fifo wait condition has to wait for.
func (s *Surface) SetFifoBarrier() {
	s.pending.FifoBarrier = true
	s.pending.Committed |= FieldFifoBarrier
}

// SetFifoWait makes the next commit wait until the surface has no
// fifo barrier.
func (s *Surface) SetFifoWait() {
	s.pending.FifoWait = true
	s.pending.Committed |= FieldFifoWait
}

func (s *Surface) validateExplicitSync() error {
	if !s.explicitSync {
		return nil
	}

	p := s.pending
	attached := (p.Committed&FieldBuffer != 0) && (p.Buffer.Buffer() != nil)
	if !attached {
		if p.AcquirePoint.IsSet() || p.ReleasePoint.IsSet() {
			return protocolError(InterfaceSyncobjSurface, SyncobjSurfaceErrorNoBuffer, "acquire or release point set but no buffer attached")
		}
		return nil
	}

	if !p.AcquirePoint.IsSet() {
		return protocolError(InterfaceSyncobjSurface, SyncobjSurfaceErrorNoAcquirePoint, "buffer attached without an acquire point")
	}
	if !p.ReleasePoint.IsSet() {
		return protocolError(InterfaceSyncobjSurface, SyncobjSurfaceErrorNoReleasePoint, "buffer attached without a release point")
	}
	if syncobj.Conflicts(p.AcquirePoint, p.ReleasePoint) {
		return protocolError(InterfaceSyncobjSurface, SyncobjSurfaceErrorConflictingPoints, "acquire point %v is not before release point %v", p.AcquirePoint.Point, p.ReleasePoint.Point)
	}
	if p.Buffer.Buffer().Dmabuf() == nil {
		return protocolError(InterfaceSyncobjSurface, SyncobjSurfaceErrorUnsupportedBuffer, "explicit sync requires a dma-buf buffer")
	}
	return nil
}

// applyColorDefaults fills in the color description and YUV conversion
// implied by the pending buffer's format for clients that don't set
// them.
func (s *Surface) applyColorDefaults() {
	p := s.pending

	coeffs, rng := YUVIdentity, RangeFull
	desc := SRGB
	if buf := p.Buffer.Buffer(); buf != nil && buf.Dmabuf() != nil {
		switch buf.Dmabuf().Format {
		case buffer.FormatNV12:
			coeffs, rng = YUVBT709, RangeLimited
		case buffer.FormatP010:
			coeffs, rng = YUVBT2020, RangeLimited
			desc = ColorDescription{
				Colorimetry: ColorimetryBT2020,
				Transfer:    TransferPerceptualQuantizer,
			}
		}
	}

	if !s.colorRepresentation {
		p.YUVCoefficients, p.Range = coeffs, rng
		p.Committed |= FieldYUVCoefficients
	}
	if !s.colorManaged {
		p.ColorDescription, p.RenderingIntent = desc, IntentPerceptual
		p.Committed |= FieldColorDescription
	}
}

// Commit commits the pending state. Depending on the surface it is
// applied as soon as it is ready, parked until the parent surface
// commits or collected into a transaction group.
//
// A ProtocolError leaves the pending state untouched. Any other error
// means the commit was dropped.
func (s *Surface) Commit() error {
	err := s.validateExplicitSync()
	if err != nil {
		return err
	}

	p := s.pending
	if (p.Committed&FieldBuffer != 0) && (p.Buffer.Buffer() == nil) {
		p.Damage = region.Region{}
		p.BufferDamage = region.Region{}
	}
	s.applyColorDefaults()
	p.Serial++

	sync := (s.sub != nil) && s.sub.IsSynchronized()

	var tx *Transaction
	switch {
	case sync:
		// Fifo waits don't apply to effectively synchronized surfaces.
		p.FifoWait = false
		p.Committed &^= FieldFifoWait
		if s.parked == nil {
			s.parked = newTransaction(s.comp)
		}
		tx = s.parked
	case s.group != nil:
		tx = s.group.transaction()
	default:
		tx = newTransaction(s.comp)
	}

	for _, id := range p.Below {
		s.mergeParked(tx, id)
	}
	for _, id := range p.Above {
		s.mergeParked(tx, id)
	}

	tx.Add(s)
	if sync || (s.group != nil) {
		return nil
	}
	return tx.Commit()
}

func (s *Surface) mergeParked(tx *Transaction, child SurfaceID) {
	cs := s.comp.Surface(child)
	if (cs == nil) || (cs.parked == nil) {
		return
	}
	tx.Merge(cs.parked)
	cs.parked = nil
}

// amendAll applies f to the surface's state in every transaction that
// has not applied yet.
func (s *Surface) amendAll(f func(*State)) {
	if s.parked != nil {
		s.parked.Amend(s, f)
	}
	if (s.group != nil) && (s.group.tx != nil) {
		s.group.tx.Amend(s, f)
	}
	for _, id := range s.queue {
		if tx := s.comp.Transaction(id); tx != nil {
			tx.Amend(s, f)
		}
	}
}

func (s *Surface) computeBufferSourceBox() geom.RectF {
	cur := s.current
	buf := cur.Buffer.Buffer()
	bufSize := geom.PtF(buf.Size())

	if !cur.Viewport.Source.Valid() {
		return geom.RectF{W: bufSize.X, H: bufSize.Y}
	}

	scale := float64(cur.BufferScale)
	bounds := cur.BufferTransform.MapSizeF(bufSize)
	return cur.BufferTransform.MapRect(cur.Viewport.Source.Scale(scale, scale), bounds)
}

// mapToBuffer maps r from surface to buffer coordinates.
func (s *Surface) mapToBuffer(r region.Region) region.Region {
	if r.IsEmpty() {
		return region.Region{}
	}

	t := s.current.BufferTransform
	bufSize := geom.PtF(s.current.Buffer.Buffer().Size())
	sourceBox := t.Inverted().MapRect(s.bufferSourceBox, bufSize)
	xScale := sourceBox.W / s.size.X
	yScale := sourceBox.H / s.size.Y

	return r.Map(func(rect image.Rectangle) image.Rectangle {
		scaled := geom.RectFOf(rect).Scale(xScale, yScale)
		return t.MapRect(scaled, sourceBox.Size()).Translate(s.bufferSourceBox.Min()).Aligned()
	})
}

// applyState makes next part of the current state.
func (s *Surface) applyState(next *State) {
	cur := s.current
	c := next.Committed

	bufferChanged := (c&FieldBuffer != 0) && (cur.Buffer.Buffer() != next.Buffer.Buffer())
	visibilityChanged := (c&FieldBuffer != 0) && ((cur.Buffer.Buffer() == nil) != (next.Buffer.Buffer() == nil))
	transformChanged := (c&FieldBufferTransform != 0) && (cur.BufferTransform != next.BufferTransform)
	colorChanged := (c&FieldColorDescription != 0) &&
		((cur.ColorDescription != next.ColorDescription.WithYUV(cur.YUVCoefficients, cur.Range)) || (cur.RenderingIntent != next.RenderingIntent))
	yuvChanged := (c&FieldYUVCoefficients != 0) &&
		((cur.YUVCoefficients != next.YUVCoefficients) || (cur.Range != next.Range))
	releasePointChanged := (c&FieldBuffer != 0) && (cur.ReleasePoint != next.ReleasePoint)

	oldSize := s.size
	oldBufferSourceBox := s.bufferSourceBox
	oldInput := s.inputRegion

	next.MergeInto(cur)

	buf := cur.Buffer.Buffer()
	if (buf != nil) && (c&FieldBuffer != 0) {
		buf.AddReleasePoint(cur.ReleasePoint)
	}

	if buf != nil {
		s.bufferSourceBox = s.computeBufferSourceBox()

		switch {
		case cur.Viewport.Destination != image.Point{}:
			s.size = geom.PtF(cur.Viewport.Destination)
		case cur.Viewport.Source.Valid():
			s.size = cur.Viewport.Source.Size()
		default:
			s.size = cur.BufferTransform.MapSizeF(geom.PtF(buf.Size()).Div(float64(cur.BufferScale)))
		}

		surfaceRect := geom.RectF{W: s.size.X, H: s.size.Y}.Aligned()
		bufferRect := image.Rectangle{Max: buf.Size()}

		s.inputRegion = cur.Input.IntersectRect(surfaceRect)
		if buf.HasAlphaChannel() {
			s.opaqueRegion = cur.Opaque.IntersectRect(surfaceRect)
		} else {
			s.opaqueRegion = region.Rect(surfaceRect)
		}

		s.bufferDamage = cur.BufferDamage.
			Union(s.mapToBuffer(cur.Damage.IntersectRect(surfaceRect))).
			IntersectRect(bufferRect)
	} else {
		s.size = geom.PointF{}
		s.bufferSourceBox = geom.RectF{}
		s.bufferDamage = region.Region{}
		s.inputRegion = region.Region{}
		s.opaqueRegion = region.Region{}
	}
	cur.Damage = region.Region{}
	cur.BufferDamage = region.Region{}

	changes := ChangeCommitted
	if c&FieldOpaque != 0 {
		changes |= ChangeOpaque
	}
	if !oldInput.Equal(s.inputRegion) {
		changes |= ChangeInput
	}
	if transformChanged {
		changes |= ChangeTransform
	}
	if visibilityChanged {
		changes |= s.refreshMapped()
	}
	if s.bufferSourceBox != oldBufferSourceBox {
		changes |= ChangeBufferSourceBox
	}
	if bufferChanged {
		changes |= ChangeBuffer
	}
	if s.size != oldSize {
		changes |= ChangeSize
	}
	if c&FieldBlur != 0 {
		changes |= ChangeBlur
	}
	if c&FieldContrast != 0 {
		changes |= ChangeContrast
	}
	if c&FieldShadow != 0 {
		changes |= ChangeShadow
	}
	if c&FieldSlide != 0 {
		changes |= ChangeSlide
	}
	if c&FieldSubsurfaceOrder != 0 {
		changes |= ChangeChildren
	}
	if colorChanged || yuvChanged {
		cur.ColorDescription = cur.ColorDescription.WithYUV(cur.YUVCoefficients, cur.Range)
		changes |= ChangeColorDescription
	}
	if c&FieldPresentationModeHint != 0 {
		changes |= ChangePresentationModeHint
	}
	if releasePointChanged {
		changes |= ChangeReleasePoint
	}
	if c&FieldAlphaMultiplier != 0 {
		changes |= ChangeAlphaMultiplier
	}
	if !s.bufferDamage.IsEmpty() {
		changes |= ChangeDamaged
	}

	s.comp.logger().Debug("applied state",
		"surface", s.id,
		"serial", cur.Serial,
		"changes", changes,
	)
	s.notify(changes)

	if changes&(ChangeMapped|ChangeUnmapped) != 0 {
		s.propagateMapped()
	}

	// Sub-surface positions are part of the parent's state.
	for _, child := range s.childSubSurfaces() {
		child.parentApplyState()
	}
}

func (s *Surface) computeMapped() bool {
	if s.current.Buffer.Buffer() == nil {
		return false
	}
	if s.sub != nil {
		parent := s.sub.Parent()
		return (parent != nil) && parent.mapped
	}
	return true
}

// refreshMapped recomputes whether the surface is mapped and returns
// the corresponding change, if any.
func (s *Surface) refreshMapped() Change {
	mapped := s.computeMapped()
	if mapped == s.mapped {
		return 0
	}

	s.mapped = mapped
	if mapped {
		return ChangeMapped
	}
	return ChangeUnmapped
}

// propagateMapped updates the mapped state of every descendant after
// the surface's own has changed.
func (s *Surface) propagateMapped() {
	for _, child := range s.childSubSurfaces() {
		cs := child.surface
		if c := cs.refreshMapped(); c != 0 {
			cs.notify(c)
			cs.propagateMapped()
		}
	}
}

// childSubSurfaces returns the current children, bottom to top.
func (s *Surface) childSubSurfaces() []*SubSurface {
	children := make([]*SubSurface, 0, len(s.current.Below)+len(s.current.Above))
	for _, list := range [][]SurfaceID{s.current.Below, s.current.Above} {
		for _, id := range list {
			cs := s.comp.Surface(id)
			if (cs == nil) || (cs.sub == nil) {
				continue
			}
			children = append(children, cs.sub)
		}
	}
	return children
}

func (s *Surface) subSurfaces(ids []SurfaceID) []*SubSurface {
	subs := make([]*SubSurface, 0, len(ids))
	for _, id := range ids {
		if cs := s.comp.Surface(id); (cs != nil) && (cs.sub != nil) {
			subs = append(subs, cs.sub)
		}
	}
	return subs
}

func (s *Surface) addChild(child *SubSurface) {
	id := child.surface.id
	s.current.Above = append(s.current.Above, id)
	s.pending.Above = append(s.pending.Above, id)
	s.amendAll(func(state *State) {
		state.Above = append(state.Above, id)
	})

	s.notify(ChangeChildren)
}

func (s *Surface) removeChild(child *SubSurface) {
	id := child.surface.id
	remove := func(state *State) {
		xslices.RemoveAll(&state.Above, id)
		xslices.RemoveAll(&state.Below, id)
		delete(state.Positions, id)
	}

	remove(s.current)
	remove(s.pending)
	s.amendAll(remove)

	s.notify(ChangeChildren)
}

// Buffer returns the current buffer.
func (s *Surface) Buffer() *buffer.Buffer {
	return s.current.Buffer.Buffer()
}

// Size returns the size of the surface in surface coordinates.
func (s *Surface) Size() geom.PointF {
	return s.size
}

func (s *Surface) Offset() image.Point {
	return s.current.Offset
}

// BufferSourceBox returns the part of the buffer that is shown, in
// buffer coordinates.
func (s *Surface) BufferSourceBox() geom.RectF {
	return s.bufferSourceBox
}

// BufferDamage returns the damage of the last applied state in buffer
// coordinates.
func (s *Surface) BufferDamage() region.Region {
	return s.bufferDamage
}

func (s *Surface) InputRegion() region.Region {
	return s.inputRegion
}

func (s *Surface) OpaqueRegion() region.Region {
	return s.opaqueRegion
}

func (s *Surface) BufferScale() int {
	return s.current.BufferScale
}

func (s *Surface) BufferTransform() geom.Transform {
	return s.current.BufferTransform
}

func (s *Surface) Viewport() Viewport {
	return s.current.Viewport
}

func (s *Surface) ColorDescription() ColorDescription {
	return s.current.ColorDescription
}

func (s *Surface) RenderingIntent() RenderingIntent {
	return s.current.RenderingIntent
}

func (s *Surface) ContentType() ContentType {
	return s.current.ContentType
}

func (s *Surface) PresentationModeHint() PresentationModeHint {
	return s.current.PresentationModeHint
}

func (s *Surface) AlphaMultiplier() float64 {
	return s.current.AlphaMultiplier
}

func (s *Surface) Blur() *Blur {
	return s.current.Blur
}

func (s *Surface) Contrast() *Contrast {
	return s.current.Contrast
}

func (s *Surface) Shadow() *Shadow {
	return s.current.Shadow
}

func (s *Surface) Slide() *Slide {
	return s.current.Slide
}

func (s *Surface) ReleasePoint() syncobj.ReleasePoint {
	return s.current.ReleasePoint
}

// Serial returns the serial of the last applied commit.
func (s *Surface) Serial() uint64 {
	return s.current.Serial
}

// IsMapped reports whether the surface should be shown.
func (s *Surface) IsMapped() bool {
	return s.mapped
}

// Above returns the sub-surfaces stacked above s, bottom to top.
func (s *Surface) Above() []*SubSurface {
	return s.subSurfaces(s.current.Above)
}

// Below returns the sub-surfaces stacked below s, bottom to top.
func (s *Surface) Below() []*SubSurface {
	return s.subSurfaces(s.current.Below)
}

// SubSurface returns the sub-surface role of s or nil.
func (s *Surface) SubSurface() *SubSurface {
	return s.sub
}

// MainSurface returns the root of the sub-surface tree s is in.
func (s *Surface) MainSurface() *Surface {
	if s.sub == nil {
		return s
	}
	return s.sub.MainSurface()
}

// depth returns the number of ancestors of s.
func (s *Surface) depth() int {
	var d int
	for cur := s; cur.sub != nil; d++ {
		parent := cur.sub.Parent()
		if parent == nil {
			return d + 1
		}
		cur = parent
	}
	return d
}

// BoundingRect returns the rectangle covering s and all of its
// descendants.
func (s *Surface) BoundingRect() geom.RectF {
	rect := geom.RectF{W: s.size.X, H: s.size.Y}
	for _, child := range s.childSubSurfaces() {
		childRect := child.surface.BoundingRect().Translate(geom.PtF(child.position))
		rect = rect.Union(childRect)
	}
	return rect
}

func (s *Surface) contains(p geom.PointF) bool {
	return s.mapped && (p.X >= 0) && (p.Y >= 0) && (p.X < s.size.X) && (p.Y < s.size.Y)
}

func (s *Surface) inputContains(p geom.PointF) bool {
	return s.contains(p) && s.inputRegion.Contains(p.Floor())
}

func (s *Surface) hitTest(p geom.PointF, test func(*Surface, geom.PointF) bool) *Surface {
	if !s.mapped {
		return nil
	}

	above := s.Above()
	for i := len(above) - 1; i >= 0; i-- {
		child := above[i]
		if hit := child.surface.hitTest(p.Sub(geom.PtF(child.position)), test); hit != nil {
			return hit
		}
	}

	if test(s, p) {
		return s
	}

	below := s.Below()
	for i := len(below) - 1; i >= 0; i-- {
		child := below[i]
		if hit := child.surface.hitTest(p.Sub(geom.PtF(child.position)), test); hit != nil {
			return hit
		}
	}

	return nil
}

// SurfaceAt returns the topmost mapped surface in the tree of s at p,
// which is relative to s.
func (s *Surface) SurfaceAt(p geom.PointF) *Surface {
	return s.hitTest(p, (*Surface).contains)
}

// InputSurfaceAt is like SurfaceAt but also takes input regions into
// account.
func (s *Surface) InputSurfaceAt(p geom.PointF) *Surface {
	return s.hitTest(p, (*Surface).inputContains)
}

// MapToChild maps p from the coordinates of s to those of child, which
// must be a descendant of s.
func (s *Surface) MapToChild(child *Surface, p geom.PointF) geom.PointF {
	local := p
	for cur := child; cur != s; {
		if cur.sub == nil {
			return geom.PointF{}
		}
		local = local.Sub(geom.PtF(cur.sub.position))
		cur = cur.sub.Parent()
		if cur == nil {
			return geom.PointF{}
		}
	}
	return local
}

// TraverseTree calls f for s and then for every descendant, below
// before above.
func (s *Surface) TraverseTree(f func(*Surface)) {
	f(s)
	for _, child := range s.childSubSurfaces() {
		child.surface.TraverseTree(f)
	}
}

// FrameRendered tells everyone waiting on the current state that it
// has been presented.
func (s *Surface) FrameRendered(msec uint32) {
	for _, cb := range s.current.takeFrameCallbacks() {
		cb.Done(msec)
	}
}

func (s *Surface) HasFifoBarrier() bool {
	return s.current.FifoBarrier
}

// ClearFifoBarrier clears the barrier set by the current state and lets
// the next transaction apply if it was waiting for it.
func (s *Surface) ClearFifoBarrier() {
	if !s.current.FifoBarrier {
		return
	}
	s.current.FifoBarrier = false

	if len(s.queue) > 0 {
		if tx := s.comp.Transaction(s.queue[0]); tx != nil {
			tx.TryApply()
		}
	}
}

// IsDestroyed reports whether Destroy has been called.
func (s *Surface) IsDestroyed() bool {
	return s.destroyed
}

// Destroy destroys the surface. States of the surface that are still
// waiting in transactions are dropped without being applied, and
// transactions that were only waiting on the surface are retried.
func (s *Surface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true

	if s.Listener != nil {
		s.Listener.Destroyed(s)
	}

	if s.sub != nil {
		s.sub.Destroy()
	}

	children := append(s.subSurfaces(s.pending.Below), s.subSurfaces(s.pending.Above)...)

	if s.parked != nil {
		s.parked.discard()
		s.parked = nil
	}
	if s.group != nil {
		s.group.removeSurface(s)
	}

	c := s.comp
	delete(c.surfaces, s.id)
	s.client.surfaces.Delete(s.id)

	for _, child := range children {
		child.parentDestroyed()
	}

	queue := s.queue
	s.queue = nil
	for _, id := range queue {
		if tx := c.Transaction(id); tx != nil {
			tx.discardSurface(s.id)
		}
	}
	for _, id := range queue {
		if tx := c.Transaction(id); tx != nil {
			tx.TryApply()
		}
	}

	s.pending.discard()
	s.current.discard()

	c.logger().Debug("surface destroyed", "surface", s.id)
}
