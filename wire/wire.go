// Package wire defines types helpful for dealing with the Wayland
// wire protocol. It is used by the hand-written request decoders in
// the server package.
package wire

import (
	"encoding/binary"
	"io"
	"unsafe"
)

// byteOrder is the host byte order.
var byteOrder binary.ByteOrder = binary.LittleEndian

func init() {
	n := uint32(1)
	b := (*[4]byte)(unsafe.Pointer(&n))
	if b[0] == 0 {
		byteOrder = binary.BigEndian
	}
}

func read[T ~int32 | ~uint32](r io.Reader) (T, error) {
	var data [4]byte
	_, err := io.ReadFull(r, data[:])
	if err != nil {
		return 0, err
	}

	return T(byteOrder.Uint32(data[:])), nil
}

func write[T ~int32 | ~uint32](w io.Writer, v T) error {
	var data [4]byte
	byteOrder.PutUint32(data[:], uint32(v))
	n, err := w.Write(data[:])
	if (err == nil) && (n < len(data)) {
		return io.ErrShortWrite
	}
	return err
}

func padding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}

// Object represents a Wayland protocol object.
type Object interface {
	// ID returns the object's ID in its client's object space.
	ID() uint32

	// SetID is called when the object is inserted into an object
	// store.
	SetID(id uint32)

	// Interface returns the name of the protocol interface that the
	// object implements, such as "wl_surface".
	Interface() string

	// Dispatch performs the operation requested by the message in the
	// buffer.
	Dispatch(msg *MessageBuffer) error

	// MethodName returns the name of the request with the given
	// opcode. It is used for debugging output.
	MethodName(op uint16) string

	// Delete is called when the object is removed from the object
	// store, either because it was destroyed or because the client
	// disconnected.
	Delete()
}

// NewID is an untyped new_id argument, as used by wl_registry.bind.
type NewID struct {
	Interface string
	Version   uint32
	ID        uint32
}
