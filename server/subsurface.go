package wl

import (
	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/wire"
)

var subcompositorRequests = []string{"destroy", "get_subsurface"}

type subcompositorObject struct {
	object
}

func bindSubcompositor(client *Client, id, version uint32) error {
	obj := subcompositorObject{object: object{client: client, version: version}}
	return client.add(&obj, id)
}

func (obj *subcompositorObject) Interface() string {
	return compositor.InterfaceSubcompositor
}

func (obj *subcompositorObject) MethodName(op uint16) string {
	return methodName(subcompositorRequests, op)
}

func (obj *subcompositorObject) Delete() {}

func (obj *subcompositorObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		id := msg.ReadNewID()
		surfaceID, parentID := msg.ReadObject(), msg.ReadObject()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.getSubsurface(id, surfaceID, parentID)

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *subcompositorObject) getSubsurface(id, surfaceID, parentID uint32) error {
	client := obj.client
	surface, err := lookup[*surfaceObject](client, surfaceID, "wl_surface")
	if err != nil {
		return err
	}
	parent, err := lookup[*surfaceObject](client, parentID, "wl_surface")
	if err != nil {
		return err
	}

	sub, err := client.server.comp.NewSubSurface(surface.surface, parent.surface)
	if err != nil {
		return err
	}

	s := subsurfaceObject{object: object{client: client, version: obj.version}, sub: sub}
	err = client.add(&s, id)
	if err != nil {
		sub.Destroy()
		return err
	}
	return nil
}

var subsurfaceRequests = []string{
	"destroy",
	"set_position",
	"place_above",
	"place_below",
	"set_sync",
	"set_desync",
}

type subsurfaceObject struct {
	object
	sub *compositor.SubSurface
}

func (obj *subsurfaceObject) Interface() string {
	return compositor.InterfaceSubsurface
}

func (obj *subsurfaceObject) MethodName(op uint16) string {
	return methodName(subsurfaceRequests, op)
}

func (obj *subsurfaceObject) Delete() {
	obj.sub.Destroy()
}

// inert reports whether the surface the role belongs to is gone, in
// which case requests other than destroy are ignored.
func (obj *subsurfaceObject) inert() bool {
	s := obj.sub.Surface()
	return s.IsDestroyed() || (s.SubSurface() != obj.sub)
}

func (obj *subsurfaceObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		x, y := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if !obj.inert() {
			obj.sub.SetPosition(x, y)
		}
		return nil

	case 2, 3:
		siblingID := msg.ReadObject()
		if err := msg.Err(); err != nil {
			return err
		}
		sibling, err := lookup[*surfaceObject](obj.client, siblingID, "wl_surface")
		if err != nil {
			return err
		}
		if obj.inert() {
			return nil
		}

		if msg.Op() == 2 {
			return obj.sub.PlaceAbove(sibling.surface)
		}
		return obj.sub.PlaceBelow(sibling.surface)

	case 4:
		if !obj.inert() {
			obj.sub.SetSync()
		}
		return nil

	case 5:
		if obj.inert() {
			return nil
		}
		return obj.sub.SetDesync()

	default:
		return unknownOp(obj, msg.Op())
	}
}
