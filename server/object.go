package wl

import (
	"fmt"

	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/internal/objstore"
	"deedles.dev/wlcommit/wire"
)

// object holds what every protocol object has in common. Concrete
// objects embed it and implement the rest of wire.Object.
type object struct {
	client  *Client
	id      uint32
	version uint32
}

func (obj *object) ID() uint32 {
	return obj.id
}

func (obj *object) SetID(id uint32) {
	obj.id = id
}

// relatedObject is implemented by objects that can name another object
// of a given interface that a protocol error raised while handling one
// of their requests belongs to.
type relatedObject interface {
	related(iface string) wire.Object
}

func methodName(names []string, op uint16) string {
	if int(op) >= len(names) {
		return fmt.Sprintf("unknown(%v)", op)
	}
	return names[op]
}

func unknownOp(obj wire.Object, op uint16) error {
	return wire.UnknownOpError{
		Interface: obj.Interface(),
		Type:      "request",
		Op:        op,
	}
}

func protocolError(iface string, code uint32, format string, args ...any) error {
	return &compositor.ProtocolError{
		Interface: iface,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
	}
}

// lookup returns the object with the given ID, which has to exist and
// be of type T.
func lookup[T wire.Object](client *Client, id uint32, iface string) (T, error) {
	obj, ok := objstore.Lookup[T](client.store, id)
	if !ok {
		return obj, wire.UnknownObjectError{ID: id, Interface: iface}
	}
	return obj, nil
}

// lookupNullable is like lookup but allows the null object, for which
// it returns the zero value of T.
func lookupNullable[T wire.Object](client *Client, id uint32, iface string) (T, error) {
	if id == 0 {
		var zero T
		return zero, nil
	}
	return lookup[T](client, id, iface)
}
