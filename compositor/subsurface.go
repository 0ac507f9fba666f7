package compositor

import (
	"fmt"
	"image"

	"golang.org/x/exp/slices"
)

// Mode is the commit mode of a sub-surface.
type Mode int

const (
	// Synchronized sub-surfaces apply their commits together with the
	// next commit of their parent.
	Synchronized Mode = iota

	// Desynchronized sub-surfaces apply their commits on their own,
	// unless an ancestor is synchronized.
	Desynchronized
)

func (m Mode) String() string {
	switch m {
	case Synchronized:
		return "synchronized"
	case Desynchronized:
		return "desynchronized"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// SubSurface is the wl_subsurface role. It places a surface relative
// to a parent surface.
type SubSurface struct {
	Listener SubSurfaceListener

	surface  *Surface
	parent   SurfaceID
	mode     Mode
	position image.Point
}

// NewSubSurface gives surface the sub-surface role with the given
// parent.
func (c *Compositor) NewSubSurface(surface, parent *Surface) (*SubSurface, error) {
	if surface.sub != nil {
		return nil, protocolError(InterfaceSubcompositor, SubcompositorErrorBadSurface, "%v already has a role", surface)
	}
	for p := parent; p != nil; {
		if p == surface {
			return nil, protocolError(InterfaceSubcompositor, SubcompositorErrorBadParent, "%v is an ancestor of %v", surface, parent)
		}
		if p.sub == nil {
			break
		}
		p = p.sub.Parent()
	}

	sub := SubSurface{
		surface: surface,
		parent:  parent.id,
	}
	surface.sub = &sub
	parent.addChild(&sub)

	if ch := surface.refreshMapped(); ch != 0 {
		surface.notify(ch)
		surface.propagateMapped()
	}

	c.logger().Debug("sub-surface created", "surface", surface.id, "parent", parent.id)
	return &sub, nil
}

// Surface returns the surface that has the role.
func (sub *SubSurface) Surface() *Surface {
	return sub.surface
}

// Parent returns the parent surface or nil if it has been destroyed.
func (sub *SubSurface) Parent() *Surface {
	if sub.parent == 0 {
		return nil
	}
	return sub.surface.comp.Surface(sub.parent)
}

// MainSurface returns the root of the tree the sub-surface is in.
func (sub *SubSurface) MainSurface() *Surface {
	parent := sub.Parent()
	if parent == nil {
		return sub.surface
	}
	return parent.MainSurface()
}

// Position returns the applied position relative to the parent.
func (sub *SubSurface) Position() image.Point {
	return sub.position
}

func (sub *SubSurface) Mode() Mode {
	return sub.mode
}

// IsSynchronized reports whether commits of the surface wait for the
// parent. That is the case when the sub-surface or any of its
// ancestors is in synchronized mode.
func (sub *SubSurface) IsSynchronized() bool {
	if sub.mode == Synchronized {
		return true
	}

	parent := sub.Parent()
	if parent == nil {
		return true
	}
	if parent.sub == nil {
		return false
	}
	return parent.sub.IsSynchronized()
}

// SetPosition sets the position in the parent's pending state.
func (sub *SubSurface) SetPosition(x, y int32) {
	parent := sub.Parent()
	if parent == nil {
		return
	}

	p := parent.pending
	if p.Positions == nil {
		p.Positions = make(map[SurfaceID]image.Point)
	}
	p.Positions[sub.surface.id] = image.Pt(int(x), int(y))
	p.Committed |= FieldSubsurfacePosition
}

func (sub *SubSurface) anchor(sibling *Surface) (parent *Surface, err error) {
	parent = sub.Parent()
	if parent == nil {
		return nil, protocolError(InterfaceSubsurface, SubsurfaceErrorBadSurface, "%v has no parent", sub.surface)
	}
	if sibling == sub.surface {
		return nil, protocolError(InterfaceSubsurface, SubsurfaceErrorBadSurface, "cannot place %v relative to itself", sub.surface)
	}
	if sibling == parent {
		return parent, nil
	}

	p := parent.pending
	if !slices.Contains(p.Above, sibling.id) && !slices.Contains(p.Below, sibling.id) {
		return nil, protocolError(InterfaceSubsurface, SubsurfaceErrorBadSurface, "%v is not a sibling or the parent of %v", sibling, sub.surface)
	}
	return parent, nil
}

// PlaceAbove restacks the surface directly above sibling, which is
// either a sibling or the parent, in the parent's pending state.
func (sub *SubSurface) PlaceAbove(sibling *Surface) error {
	parent, err := sub.anchor(sibling)
	if err != nil {
		return err
	}

	p := parent.pending
	id := sub.surface.id
	removeID(&p.Above, id)
	removeID(&p.Below, id)

	switch {
	case sibling == parent:
		p.Above = slices.Insert(p.Above, 0, id)
	case slices.Contains(p.Above, sibling.id):
		p.Above = slices.Insert(p.Above, slices.Index(p.Above, sibling.id)+1, id)
	default:
		p.Below = slices.Insert(p.Below, slices.Index(p.Below, sibling.id)+1, id)
	}
	p.Committed |= FieldSubsurfaceOrder
	return nil
}

// PlaceBelow restacks the surface directly below sibling, which is
// either a sibling or the parent, in the parent's pending state.
func (sub *SubSurface) PlaceBelow(sibling *Surface) error {
	parent, err := sub.anchor(sibling)
	if err != nil {
		return err
	}

	p := parent.pending
	id := sub.surface.id
	removeID(&p.Above, id)
	removeID(&p.Below, id)

	switch {
	case sibling == parent:
		p.Below = append(p.Below, id)
	case slices.Contains(p.Above, sibling.id):
		p.Above = slices.Insert(p.Above, slices.Index(p.Above, sibling.id), id)
	default:
		p.Below = slices.Insert(p.Below, slices.Index(p.Below, sibling.id), id)
	}
	p.Committed |= FieldSubsurfaceOrder
	return nil
}

// removeID removes id from a stacking list without modifying the
// backing array, which may be shared with another state.
func removeID(list *[]SurfaceID, id SurfaceID) {
	i := slices.Index(*list, id)
	if i < 0 {
		return
	}
	*list = slices.Delete(slices.Clone(*list), i, i+1)
}

func (sub *SubSurface) SetSync() {
	if sub.mode == Synchronized {
		return
	}
	sub.mode = Synchronized
	sub.modeChanged()
}

// SetDesync switches the sub-surface to desynchronized mode. If that
// makes it effectively desynchronized, the commits it has been holding
// back are committed right away.
func (sub *SubSurface) SetDesync() error {
	if sub.mode == Desynchronized {
		return nil
	}
	sub.mode = Desynchronized

	var err error
	if !sub.IsSynchronized() {
		err = sub.surface.flushParked()
	}
	sub.modeChanged()
	return err
}

func (sub *SubSurface) modeChanged() {
	if sub.Listener != nil {
		sub.Listener.ModeChanged(sub)
	}
}

// flushParked commits the parked transaction of s and then those of
// every descendant that became effectively desynchronized along with
// it.
func (s *Surface) flushParked() error {
	var err error
	if tx := s.parked; tx != nil {
		s.parked = nil
		err = tx.Commit()
	}

	for _, child := range s.subSurfaces(append(slices.Clone(s.pending.Below), s.pending.Above...)) {
		if child.mode != Desynchronized {
			continue
		}
		if cerr := child.surface.flushParked(); (cerr != nil) && (err == nil) {
			err = cerr
		}
	}
	return err
}

// parentApplyState picks up the position from the parent's newly
// applied state.
func (sub *SubSurface) parentApplyState() {
	parent := sub.Parent()
	if parent == nil {
		return
	}

	pos, ok := parent.current.Positions[sub.surface.id]
	if !ok || (pos == sub.position) {
		return
	}
	sub.position = pos

	if sub.Listener != nil {
		sub.Listener.PositionChanged(sub)
	}
}

// parentDestroyed is called when the parent surface goes away.
func (sub *SubSurface) parentDestroyed() {
	s := sub.surface
	if c := s.refreshMapped(); c != 0 {
		s.notify(c)
		s.propagateMapped()
	}
}

// Destroy removes the sub-surface role. Commits that were parked
// waiting for the parent are dropped.
func (sub *SubSurface) Destroy() {
	s := sub.surface
	if s.sub != sub {
		return
	}

	if parent := sub.Parent(); parent != nil {
		parent.removeChild(sub)
	}
	s.sub = nil

	if s.parked != nil {
		s.parked.discard()
		s.parked = nil
	}

	if c := s.refreshMapped(); c != 0 {
		s.notify(c)
		s.propagateMapped()
	}
}
