package wl

import (
	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/wire"
)

var fifoManagerRequests = []string{"destroy", "get_fifo"}

type fifoManagerObject struct {
	object
}

func bindFifoManager(client *Client, id, version uint32) error {
	obj := fifoManagerObject{object: object{client: client, version: version}}
	return client.add(&obj, id)
}

func (obj *fifoManagerObject) Interface() string {
	return compositor.InterfaceFifoManager
}

func (obj *fifoManagerObject) MethodName(op uint16) string {
	return methodName(fifoManagerRequests, op)
}

func (obj *fifoManagerObject) Delete() {}

func (obj *fifoManagerObject) Dispatch(msg *wire.MessageBuffer) error {
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
		if surface.fifo != nil {
			return protocolError(compositor.InterfaceFifoManager, compositor.FifoManagerErrorAlreadyExists, "surface already has a fifo object")
		}

		fifo := fifoObject{object: object{client: obj.client, version: obj.version}, surface: surface}
		err = obj.client.add(&fifo, id)
		if err != nil {
			return err
		}
		surface.fifo = &fifo
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

var fifoRequests = []string{"set_barrier", "wait_barrier", "destroy"}

type fifoObject struct {
	object
	surface *surfaceObject
}

func (obj *fifoObject) Interface() string {
	return compositor.InterfaceFifo
}

func (obj *fifoObject) MethodName(op uint16) string {
	return methodName(fifoRequests, op)
}

func (obj *fifoObject) Delete() {
	if obj.surface.fifo == obj {
		obj.surface.fifo = nil
	}
}

func (obj *fifoObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0, 1:
		s := obj.surface.surface
		if s.IsDestroyed() {
			return protocolError(compositor.InterfaceFifo, compositor.FifoErrorSurfaceDestroyed, "surface destroyed")
		}

		if msg.Op() == 0 {
			s.SetFifoBarrier()
			return nil
		}
		s.SetFifoWait()
		return nil

	case 2:
		obj.client.remove(obj)
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}
