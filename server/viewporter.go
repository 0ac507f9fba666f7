package wl

import (
	"image"

	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/geom"
	"deedles.dev/wlcommit/wire"
)

const (
	viewporterInterface = "wp_viewporter"
	viewportInterface   = "wp_viewport"
)

// wp_viewporter errors.
const (
	ViewporterErrorViewportExists uint32 = 0
)

// wp_viewport errors.
const (
	ViewportErrorBadValue uint32 = iota
	ViewportErrorBadSize
	ViewportErrorOutOfBuffer
	ViewportErrorNoSurface
)

var viewporterRequests = []string{"destroy", "get_viewport"}

type viewporterObject struct {
	object
}

func bindViewporter(client *Client, id, version uint32) error {
	obj := viewporterObject{object: object{client: client, version: version}}
	return client.add(&obj, id)
}

func (obj *viewporterObject) Interface() string {
	return viewporterInterface
}

func (obj *viewporterObject) MethodName(op uint16) string {
	return methodName(viewporterRequests, op)
}

func (obj *viewporterObject) Delete() {}

func (obj *viewporterObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		id := msg.ReadNewID()
		surfaceID := msg.ReadObject()
		if err := msg.Err(); err != nil {
			return err
		}
		surface, err := lookup[*surfaceObject](obj.client, surfaceID, "wl_surface")
		if err != nil {
			return err
		}
		if surface.viewport != nil {
			return protocolError(viewporterInterface, ViewporterErrorViewportExists, "surface already has a viewport")
		}

		vp := viewportObject{object: object{client: obj.client, version: obj.version}, surface: surface}
		err = obj.client.add(&vp, id)
		if err != nil {
			return err
		}
		surface.viewport = &vp
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

var viewportRequests = []string{"destroy", "set_source", "set_destination"}

// viewportObject is a wp_viewport. It remembers both halves of the
// viewport because the protocol sets them separately.
type viewportObject struct {
	object
	surface  *surfaceObject
	viewport compositor.Viewport
}

func (obj *viewportObject) Interface() string {
	return viewportInterface
}

func (obj *viewportObject) MethodName(op uint16) string {
	return methodName(viewportRequests, op)
}

func (obj *viewportObject) Delete() {
	if obj.surface.viewport != obj {
		return
	}
	obj.surface.viewport = nil
	if !obj.surface.surface.IsDestroyed() {
		obj.surface.surface.SetViewport(compositor.Viewport{})
	}
}

func (obj *viewportObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		x, y := msg.ReadFixed(), msg.ReadFixed()
		w, h := msg.ReadFixed(), msg.ReadFixed()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.setSource(x, y, w, h)

	case 2:
		w, h := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.setDestination(w, h)

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *viewportObject) checkSurface() error {
	if obj.surface.surface.IsDestroyed() {
		return protocolError(viewportInterface, ViewportErrorNoSurface, "the wl_surface was destroyed")
	}
	return nil
}

func (obj *viewportObject) setSource(x, y, w, h wire.Fixed) error {
	err := obj.checkSurface()
	if err != nil {
		return err
	}

	unset := wire.FixedInt(-1)
	switch {
	case (x == unset) && (y == unset) && (w == unset) && (h == unset):
		obj.viewport.Source = geom.RectF{}
	case (x < 0) || (y < 0) || (w <= 0) || (h <= 0):
		return protocolError(viewportInterface, ViewportErrorBadValue, "invalid source rectangle %v,%v %vx%v", x, y, w, h)
	default:
		obj.viewport.Source = geom.RectF{X: x.Float(), Y: y.Float(), W: w.Float(), H: h.Float()}
	}

	obj.surface.surface.SetViewport(obj.viewport)
	return nil
}

func (obj *viewportObject) setDestination(w, h int32) error {
	err := obj.checkSurface()
	if err != nil {
		return err
	}

	switch {
	case (w == -1) && (h == -1):
		obj.viewport.Destination = image.Point{}
	case (w <= 0) || (h <= 0):
		return protocolError(viewportInterface, ViewportErrorBadValue, "invalid destination size %vx%v", w, h)
	default:
		obj.viewport.Destination = image.Pt(int(w), int(h))
	}

	obj.surface.surface.SetViewport(obj.viewport)
	return nil
}
