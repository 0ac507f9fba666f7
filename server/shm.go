package wl

import (
	"fmt"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/shm"
	"deedles.dev/wlcommit/wire"
	"golang.org/x/sys/unix"
)

// wl_shm errors.
const (
	ShmErrorInvalidFormat uint32 = iota
	ShmErrorInvalidStride
	ShmErrorInvalidFD
)

// wl_shm formats. Every other format uses its DRM fourcc code.
const (
	ShmFormatARGB8888 uint32 = 0
	ShmFormatXRGB8888 uint32 = 1
)

var shmRequests = []string{"create_pool", "release"}

type shmObject struct {
	object
}

func bindShm(client *Client, id, version uint32) error {
	obj := shmObject{object: object{client: client, version: version}}
	err := client.add(&obj, id)
	if err != nil {
		return err
	}

	for _, format := range []uint32{ShmFormatARGB8888, ShmFormatXRGB8888} {
		msg := wire.NewMessage(&obj, 0, "format", format)
		msg.WriteUint(format)
		client.send(msg)
	}
	return nil
}

func (obj *shmObject) Interface() string {
	return shmInterface
}

func (obj *shmObject) MethodName(op uint16) string {
	return methodName(shmRequests, op)
}

func (obj *shmObject) Delete() {}

func (obj *shmObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadNewID()
		fd := msg.ReadFD()
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			if fd >= 0 {
				unix.Close(fd)
			}
			return err
		}
		return obj.createPool(id, fd, size)

	case 1:
		obj.client.remove(obj)
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *shmObject) createPool(id uint32, fd int, size int32) error {
	if size <= 0 {
		unix.Close(fd)
		return protocolError(shmInterface, ShmErrorInvalidStride, "invalid size (%v)", size)
	}

	pool, err := shm.NewPool(fd, int(size))
	if err != nil {
		unix.Close(fd)
		return protocolError(shmInterface, ShmErrorInvalidFD, "failed mmap fd %v: %v", fd, err)
	}

	p := shmPoolObject{object: object{client: obj.client, version: obj.version}, pool: pool}
	err = obj.client.add(&p, id)
	if err != nil {
		pool.Unref()
		return err
	}
	return nil
}

var shmPoolRequests = []string{"create_buffer", "destroy", "resize"}

type shmPoolObject struct {
	object
	pool *shm.Pool
}

func (obj *shmPoolObject) Interface() string {
	return "wl_shm_pool"
}

func (obj *shmPoolObject) MethodName(op uint16) string {
	return methodName(shmPoolRequests, op)
}

func (obj *shmPoolObject) Delete() {
	obj.pool.Unref()
}

func (obj *shmPoolObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadNewID()
		offset := msg.ReadInt()
		width, height := msg.ReadInt(), msg.ReadInt()
		stride := msg.ReadInt()
		format := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.createBuffer(id, offset, width, height, stride, format)

	case 1:
		obj.client.remove(obj)
		return nil

	case 2:
		size := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if int(size) < obj.pool.Size() {
			return protocolError(shmInterface, ShmErrorInvalidStride, "shrinking pool invalid")
		}
		err := obj.pool.Resize(int(size))
		if err != nil {
			return fmt.Errorf("resize pool: %w", err)
		}
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *shmPoolObject) createBuffer(id uint32, offset, width, height, stride int32, format uint32) error {
	if (format != ShmFormatARGB8888) && (format != ShmFormatXRGB8888) {
		return protocolError(shmInterface, ShmErrorInvalidFormat, "invalid format 0x%x", format)
	}
	if (width <= 0) || (height <= 0) || (stride/4 < width) {
		return protocolError(shmInterface, ShmErrorInvalidStride, "invalid width, height or stride (%vx%v, %v)", width, height, stride)
	}

	buf, err := buffer.NewShm(obj.pool, int(offset), int(width), int(height), int(stride), format)
	if err != nil {
		return protocolError(shmInterface, ShmErrorInvalidStride, "%v", err)
	}

	b := newBufferObject(obj.client, buf)
	err = obj.client.add(b, id)
	if err != nil {
		buf.Drop()
		return err
	}
	return nil
}

var bufferRequests = []string{"destroy"}

// bufferObject is a wl_buffer of any kind.
type bufferObject struct {
	object
	buffer *buffer.Buffer
}

func newBufferObject(client *Client, buf *buffer.Buffer) *bufferObject {
	obj := bufferObject{object: object{client: client, version: 1}, buffer: buf}
	buf.Release = obj.release
	return &obj
}

func (obj *bufferObject) Interface() string {
	return "wl_buffer"
}

func (obj *bufferObject) MethodName(op uint16) string {
	return methodName(bufferRequests, op)
}

// Delete drops the client's hold on the buffer. The buffer itself
// lives on until no state refers to it anymore.
func (obj *bufferObject) Delete() {
	obj.buffer.Drop()
}

func (obj *bufferObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *bufferObject) release() {
	if obj.client.store.Get(obj.id) != obj {
		return
	}
	obj.client.send(wire.NewMessage(obj, 0, "release"))
}
