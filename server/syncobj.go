package wl

import (
	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/syncobj"
	"deedles.dev/wlcommit/wire"
	"golang.org/x/sys/unix"
)

var syncobjManagerRequests = []string{"destroy", "get_surface", "import_timeline"}

type syncobjManagerObject struct {
	object
}

func bindSyncobjManager(client *Client, id, version uint32) error {
	obj := syncobjManagerObject{object: object{client: client, version: version}}
	return client.add(&obj, id)
}

func (obj *syncobjManagerObject) Interface() string {
	return compositor.InterfaceSyncobjManager
}

func (obj *syncobjManagerObject) MethodName(op uint16) string {
	return methodName(syncobjManagerRequests, op)
}

func (obj *syncobjManagerObject) Delete() {}

func (obj *syncobjManagerObject) Dispatch(msg *wire.MessageBuffer) error {
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
		return obj.getSurface(id, surfaceID)

	case 2:
		id := msg.ReadNewID()
		fd := msg.ReadFD()
		if err := msg.Err(); err != nil {
			if fd >= 0 {
				unix.Close(fd)
			}
			return err
		}
		defer unix.Close(fd)
		return obj.importTimeline(id, fd)

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *syncobjManagerObject) getSurface(id, surfaceID uint32) error {
	client := obj.client
	surface, err := lookup[*surfaceObject](client, surfaceID, "wl_surface")
	if err != nil {
		return err
	}

	err = surface.surface.EnableExplicitSync()
	if err != nil {
		return err
	}

	s := syncobjSurfaceObject{object: object{client: client, version: obj.version}, surface: surface}
	err = client.add(&s, id)
	if err != nil {
		surface.surface.DisableExplicitSync()
		return err
	}
	surface.syncobj = &s
	return nil
}

func (obj *syncobjManagerObject) importTimeline(id uint32, fd int) error {
	client := obj.client
	timeline, err := client.server.drm.ImportTimeline(fd)
	if err != nil {
		return protocolError(compositor.InterfaceSyncobjManager, compositor.SyncobjManagerErrorInvalidTimeline, "failed to import timeline: %v", err)
	}

	t := timelineObject{object: object{client: client, version: obj.version}, timeline: timeline}
	err = client.add(&t, id)
	if err != nil {
		timeline.Close()
		return err
	}
	client.timelines = append(client.timelines, timeline)
	return nil
}

var timelineRequests = []string{"destroy"}

// timelineObject is a wp_linux_drm_syncobj_timeline_v1. Points on the
// timeline can outlive the object, so the timeline is only closed once
// the client is gone.
type timelineObject struct {
	object
	timeline syncobj.Timeline
}

func (obj *timelineObject) Interface() string {
	return "wp_linux_drm_syncobj_timeline_v1"
}

func (obj *timelineObject) MethodName(op uint16) string {
	return methodName(timelineRequests, op)
}

func (obj *timelineObject) Delete() {}

func (obj *timelineObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

var syncobjSurfaceRequests = []string{"destroy", "set_acquire_point", "set_release_point"}

type syncobjSurfaceObject struct {
	object
	surface *surfaceObject
}

func (obj *syncobjSurfaceObject) Interface() string {
	return compositor.InterfaceSyncobjSurface
}

func (obj *syncobjSurfaceObject) MethodName(op uint16) string {
	return methodName(syncobjSurfaceRequests, op)
}

func (obj *syncobjSurfaceObject) Delete() {
	if obj.surface.syncobj != obj {
		return
	}
	obj.surface.syncobj = nil
	if !obj.surface.surface.IsDestroyed() {
		obj.surface.surface.DisableExplicitSync()
	}
}

func (obj *syncobjSurfaceObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1, 2:
		timelineID := msg.ReadObject()
		hi, lo := msg.ReadUint(), msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		timeline, err := lookup[*timelineObject](obj.client, timelineID, "wp_linux_drm_syncobj_timeline_v1")
		if err != nil {
			return err
		}

		s := obj.surface.surface
		if s.IsDestroyed() {
			return protocolError(compositor.InterfaceSyncobjSurface, compositor.SyncobjSurfaceErrorNoSurface, "surface no longer exists")
		}

		point := uint64(hi)<<32 | uint64(lo)
		if msg.Op() == 1 {
			s.SetAcquirePoint(syncobj.AcquirePoint{Timeline: timeline.timeline, Point: point})
			return nil
		}
		s.SetReleasePoint(syncobj.ReleasePoint{Timeline: timeline.timeline, Point: point})
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}
