package wl

import (
	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/wire"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

const bufferParamsInterface = "zwp_linux_buffer_params_v1"

// zwp_linux_buffer_params_v1 errors.
const (
	ParamsErrorAlreadyUsed uint32 = iota
	ParamsErrorPlaneIdx
	ParamsErrorPlaneSet
	ParamsErrorIncomplete
	ParamsErrorInvalidFormat
	ParamsErrorInvalidDimensions
	ParamsErrorOutOfBounds
	ParamsErrorInvalidWlBuffer
)

const (
	maxPlanes = 4

	modifierLinear  uint64 = 0
	modifierInvalid uint64 = 0x00ffffffffffffff
)

var dmabufFormats = []uint32{
	buffer.FormatARGB8888,
	buffer.FormatXRGB8888,
	buffer.FormatABGR8888,
	buffer.FormatXBGR8888,
	buffer.FormatNV12,
	buffer.FormatP010,
}

var linuxDmabufRequests = []string{"destroy", "create_params"}

type linuxDmabufObject struct {
	object
}

func bindLinuxDmabuf(client *Client, id, version uint32) error {
	obj := linuxDmabufObject{object: object{client: client, version: version}}
	err := client.add(&obj, id)
	if err != nil {
		return err
	}

	for _, format := range dmabufFormats {
		if version < 3 {
			msg := wire.NewMessage(&obj, 0, "format", format)
			msg.WriteUint(format)
			client.send(msg)
			continue
		}

		for _, mod := range []uint64{modifierLinear, modifierInvalid} {
			msg := wire.NewMessage(&obj, 1, "modifier", format, mod)
			msg.WriteUint(format)
			msg.WriteUint(uint32(mod >> 32))
			msg.WriteUint(uint32(mod))
			client.send(msg)
		}
	}
	return nil
}

func (obj *linuxDmabufObject) Interface() string {
	return linuxDmabufInterface
}

func (obj *linuxDmabufObject) MethodName(op uint16) string {
	return methodName(linuxDmabufRequests, op)
}

func (obj *linuxDmabufObject) Delete() {}

func (obj *linuxDmabufObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		params := bufferParamsObject{
			object: object{client: obj.client, version: obj.version},
			planes: make(map[uint32]buffer.Plane),
		}
		return obj.client.add(&params, id)

	default:
		return unknownOp(obj, msg.Op())
	}
}

var bufferParamsRequests = []string{"destroy", "add", "create", "create_immed"}

type bufferParamsObject struct {
	object
	planes   map[uint32]buffer.Plane
	modifier uint64
	used     bool
}

func (obj *bufferParamsObject) Interface() string {
	return bufferParamsInterface
}

func (obj *bufferParamsObject) MethodName(op uint16) string {
	return methodName(bufferParamsRequests, op)
}

// Delete closes the plane descriptors that never made it into a
// buffer.
func (obj *bufferParamsObject) Delete() {
	for _, p := range obj.planes {
		unix.Close(p.FD)
	}
	obj.planes = nil
}

func (obj *bufferParamsObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		fd := msg.ReadFD()
		idx := msg.ReadUint()
		offset, stride := msg.ReadUint(), msg.ReadUint()
		modHi, modLo := msg.ReadUint(), msg.ReadUint()
		if err := msg.Err(); err != nil {
			if fd >= 0 {
				unix.Close(fd)
			}
			return err
		}

		err := obj.add(idx, buffer.Plane{FD: fd, Offset: offset, Stride: stride}, uint64(modHi)<<32|uint64(modLo))
		if err != nil {
			unix.Close(fd)
		}
		return err

	case 2:
		width, height := msg.ReadInt(), msg.ReadInt()
		format, flags := msg.ReadUint(), msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		buf, err := obj.create(width, height, format, flags)
		if err != nil {
			return err
		}
		if buf == nil {
			obj.client.send(wire.NewMessage(obj, 1, "failed"))
			return nil
		}

		b := newBufferObject(obj.client, buf)
		obj.client.addServer(b)
		created := wire.NewMessage(obj, 0, "created", b.ID())
		created.WriteObject(b)
		obj.client.send(created)
		return nil

	case 3:
		id := msg.ReadNewID()
		width, height := msg.ReadInt(), msg.ReadInt()
		format, flags := msg.ReadUint(), msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}

		buf, err := obj.create(width, height, format, flags)
		if err != nil {
			return err
		}
		if buf == nil {
			return protocolError(bufferParamsInterface, ParamsErrorInvalidWlBuffer, "importing the supplied dmabufs failed")
		}

		err = obj.client.add(newBufferObject(obj.client, buf), id)
		if err != nil {
			buf.Drop()
			return err
		}
		return nil

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *bufferParamsObject) add(idx uint32, plane buffer.Plane, modifier uint64) error {
	if obj.used {
		return protocolError(bufferParamsInterface, ParamsErrorAlreadyUsed, "params was already used to create a wl_buffer")
	}
	if idx >= maxPlanes {
		return protocolError(bufferParamsInterface, ParamsErrorPlaneIdx, "plane index %v is too high", idx)
	}
	if _, ok := obj.planes[idx]; ok {
		return protocolError(bufferParamsInterface, ParamsErrorPlaneSet, "plane %v was already set", idx)
	}
	if (len(obj.planes) > 0) && (modifier != obj.modifier) {
		return protocolError(bufferParamsInterface, ParamsErrorInvalidFormat, "planes have different modifiers")
	}

	obj.planes[idx] = plane
	obj.modifier = modifier
	return nil
}

// create validates the parameters and imports the buffer. A nil
// buffer without an error means that the import failed in a way the
// client is allowed to recover from.
func (obj *bufferParamsObject) create(width, height int32, format, flags uint32) (*buffer.Buffer, error) {
	if obj.used {
		return nil, protocolError(bufferParamsInterface, ParamsErrorAlreadyUsed, "params was already used to create a wl_buffer")
	}
	obj.used = true

	if len(obj.planes) == 0 {
		return nil, protocolError(bufferParamsInterface, ParamsErrorIncomplete, "no dmabuf has been added to the params")
	}
	indices := make([]uint32, 0, len(obj.planes))
	for idx := range obj.planes {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	if int(indices[len(indices)-1]) != len(indices)-1 {
		return nil, protocolError(bufferParamsInterface, ParamsErrorIncomplete, "missing dmabuf plane")
	}
	if (width <= 0) || (height <= 0) {
		return nil, protocolError(bufferParamsInterface, ParamsErrorInvalidDimensions, "invalid width %v or height %v", width, height)
	}
	if !slices.Contains(dmabufFormats, format) {
		return nil, protocolError(bufferParamsInterface, ParamsErrorInvalidFormat, "unsupported format 0x%x", format)
	}

	planes := make([]buffer.Plane, 0, len(indices))
	for _, idx := range indices {
		p := obj.planes[idx]
		if uint64(p.Offset)+uint64(p.Stride) > 1<<32-1 {
			return nil, protocolError(bufferParamsInterface, ParamsErrorOutOfBounds, "size overflow for plane %v", idx)
		}
		planes = append(planes, p)
	}

	buf, err := buffer.NewDmabuf(buffer.DmabufAttributes{
		Width:    int(width),
		Height:   int(height),
		Format:   format,
		Modifier: obj.modifier,
		Planes:   planes,
	})
	if err != nil {
		obj.client.logger().Debug("dmabuf import failed", "err", err)
		return nil, nil
	}

	// The buffer owns the descriptors now.
	obj.planes = make(map[uint32]buffer.Plane)
	return buf, nil
}
