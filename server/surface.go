package wl

import (
	"image"

	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/geom"
	"deedles.dev/wlcommit/region"
	"deedles.dev/wlcommit/wire"
)

func rect(x, y, width, height int32) image.Rectangle {
	return image.Rect(int(x), int(y), int(x)+int(width), int(y)+int(height))
}

var compositorRequests = []string{"create_surface", "create_region"}

type compositorObject struct {
	object
}

func bindCompositor(client *Client, id, version uint32) error {
	obj := compositorObject{object: object{client: client, version: version}}
	return client.add(&obj, id)
}

func (obj *compositorObject) Interface() string {
	return compositorInterface
}

func (obj *compositorObject) MethodName(op uint16) string {
	return methodName(compositorRequests, op)
}

func (obj *compositorObject) Delete() {}

func (obj *compositorObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.createSurface(id)

	case 1:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		r := regionObject{object: object{client: obj.client, version: obj.version}}
		return obj.client.add(&r, id)

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *compositorObject) createSurface(id uint32) error {
	client := obj.client
	s := surfaceObject{object: object{client: client, version: obj.version}}
	err := client.add(&s, id)
	if err != nil {
		return err
	}
	s.surface = client.comp.CreateSurface(obj.version)

	if l := client.server.Listener; l != nil {
		l.Surface(client, s.surface)
	}
	return nil
}

var regionRequests = []string{"destroy", "add", "subtract"}

type regionObject struct {
	object
	region region.Region
}

func (obj *regionObject) Interface() string {
	return "wl_region"
}

func (obj *regionObject) MethodName(op uint16) string {
	return methodName(regionRequests, op)
}

func (obj *regionObject) Delete() {}

func (obj *regionObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1, 2:
		x, y := msg.ReadInt(), msg.ReadInt()
		w, h := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}

		if msg.Op() == 1 {
			obj.region = obj.region.UnionRect(rect(x, y, w, h))
			return nil
		}
		obj.region = obj.region.SubtractRect(rect(x, y, w, h))
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

var surfaceRequests = []string{
	"destroy",
	"attach",
	"damage",
	"frame",
	"set_opaque_region",
	"set_input_region",
	"commit",
	"set_buffer_transform",
	"set_buffer_scale",
	"damage_buffer",
	"offset",
}

type surfaceObject struct {
	object
	surface *compositor.Surface

	syncobj  *syncobjSurfaceObject
	fifo     *fifoObject
	viewport *viewportObject
}

func (obj *surfaceObject) Interface() string {
	return compositor.InterfaceSurface
}

func (obj *surfaceObject) MethodName(op uint16) string {
	return methodName(surfaceRequests, op)
}

func (obj *surfaceObject) Delete() {
	if obj.surface != nil {
		obj.surface.Destroy()
	}
}

func (obj *surfaceObject) related(iface string) wire.Object {
	if (iface == compositor.InterfaceSyncobjSurface) && (obj.syncobj != nil) {
		return obj.syncobj
	}
	return nil
}

func (obj *surfaceObject) Dispatch(msg *wire.MessageBuffer) error {
	s := obj.surface

	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		bufID := msg.ReadObject()
		x, y := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		buf, err := lookupNullable[*bufferObject](obj.client, bufID, "wl_buffer")
		if err != nil {
			return err
		}
		if buf == nil {
			return s.Attach(nil, x, y)
		}
		return s.Attach(buf.buffer, x, y)

	case 2, 9:
		x, y := msg.ReadInt(), msg.ReadInt()
		w, h := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if msg.Op() == 2 {
			s.Damage(rect(x, y, w, h))
			return nil
		}
		s.DamageBuffer(rect(x, y, w, h))
		return nil

	case 3:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		cb := callbackObject{object: object{client: obj.client, version: 1}}
		err := obj.client.add(&cb, id)
		if err != nil {
			return err
		}
		s.Frame(&cb)
		return nil

	case 4, 5:
		regionID := msg.ReadObject()
		if err := msg.Err(); err != nil {
			return err
		}
		r, err := lookupNullable[*regionObject](obj.client, regionID, "wl_region")
		if err != nil {
			return err
		}

		var rgn *region.Region
		if r != nil {
			v := r.region
			rgn = &v
		}
		if msg.Op() == 4 {
			s.SetOpaqueRegion(rgn)
			return nil
		}
		s.SetInputRegion(rgn)
		return nil

	case 6:
		if err := msg.Err(); err != nil {
			return err
		}
		return s.Commit()

	case 7:
		transform := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		return s.SetBufferTransform(geom.Transform(transform))

	case 8:
		scale := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		return s.SetBufferScale(scale)

	case 10:
		x, y := msg.ReadInt(), msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		s.SetOffset(x, y)
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}
