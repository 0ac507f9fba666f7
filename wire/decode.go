package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// headerSize is the size of a message header: the sender ID followed
// by the size and opcode packed into one word.
const headerSize = 8

// MessageBuffer holds message data that has been read from the socket
// but not yet decoded.
type MessageBuffer struct {
	conn   *Conn
	sender uint32
	op     uint16
	size   uint16
	data   bytes.Reader
	err    error
	args   []any
}

// ReadMessage reads message data from the socket into a buffer. File
// descriptors received with the data are queued on c and claimed by
// ReadFile as the message is decoded.
func ReadMessage(c *Conn) (*MessageBuffer, error) {
	mr := MessageBuffer{conn: c}

	var header [headerSize]byte
	err := c.readFull(header[:])
	if err != nil {
		return nil, fmt.Errorf("read message header: %w", err)
	}

	hr := bytes.NewReader(header[:])
	mr.sender, _ = read[uint32](hr)
	so, _ := read[uint32](hr)
	mr.size = uint16(so >> 16)
	mr.op = uint16(so & 0xFFFF)
	if mr.size < headerSize {
		return nil, fmt.Errorf("message size %v is smaller than its header", mr.size)
	}

	data := make([]byte, int(mr.size)-headerSize)
	err = c.readFull(data)
	if err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}
	mr.data.Reset(data)

	return &mr, nil
}

// Sender is the object ID of the sender of the message.
func (r *MessageBuffer) Sender() uint32 {
	return r.sender
}

// Op is the opcode of the message.
func (r *MessageBuffer) Op() uint16 {
	return r.op
}

// Size is the total size of the message, including the 8 byte header.
func (r *MessageBuffer) Size() uint16 {
	return r.size
}

// Err returns the first error encountered while decoding arguments.
func (r *MessageBuffer) Err() error {
	if errors.Is(r.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return r.err
}

func (r *MessageBuffer) ReadInt() (v int32) {
	if r.err != nil {
		return
	}

	v, r.err = read[int32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadUint() (v uint32) {
	if r.err != nil {
		return
	}

	v, r.err = read[uint32](&r.data)
	r.args = append(r.args, v)
	return v
}

// ReadObject reads an object ID. Zero means null.
func (r *MessageBuffer) ReadObject() uint32 {
	return r.ReadUint()
}

// ReadNewID reads a typed new_id argument.
func (r *MessageBuffer) ReadNewID() uint32 {
	return r.ReadUint()
}

// ReadUntypedNewID reads a new_id argument whose interface is not
// fixed by the protocol, as with wl_registry.bind.
func (r *MessageBuffer) ReadUntypedNewID() NewID {
	return NewID{
		Interface: r.ReadString(),
		Version:   r.ReadUint(),
		ID:        r.ReadUint(),
	}
}

func (r *MessageBuffer) ReadFixed() (v Fixed) {
	if r.err != nil {
		return
	}

	v, r.err = read[Fixed](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadString() string {
	if r.err != nil {
		return ""
	}

	length, err := read[uint32](&r.data)
	if err != nil {
		r.err = err
		return ""
	}
	if length == 0 {
		r.args = append(r.args, nil)
		return ""
	}
	pad := padding(length)

	var str strings.Builder
	str.Grow(int(length + pad))
	_, r.err = io.CopyN(&str, &r.data, int64(length+pad))
	if r.err != nil {
		return ""
	}
	v := str.String()
	if v[length-1] != 0 {
		r.err = errors.New("string is not null-terminated")
		return ""
	}

	r.args = append(r.args, v[:length-1])
	return v[:length-1]
}

func (r *MessageBuffer) ReadArray() []byte {
	if r.err != nil {
		return nil
	}

	length, err := read[uint32](&r.data)
	if err != nil {
		r.err = err
		return nil
	}
	pad := padding(length)

	buf := make([]byte, length+pad)
	_, r.err = io.ReadFull(&r.data, buf)
	if r.err != nil {
		return nil
	}

	r.args = append(r.args, buf[:length])
	return buf[:length]
}

// ReadFD claims the next file descriptor received on the connection.
// The caller owns the returned descriptor.
func (r *MessageBuffer) ReadFD() int {
	if r.err != nil {
		return -1
	}

	fd, ok := r.conn.popFD()
	if !ok {
		r.err = errors.New("no more file descriptors")
		return -1
	}

	r.args = append(r.args, fd)
	return fd
}

func (r *MessageBuffer) ReadFile() *os.File {
	fd := r.ReadFD()
	if fd < 0 {
		return nil
	}
	return os.NewFile(uintptr(fd), "")
}

func (r *MessageBuffer) Debug(sender Object) string {
	args := make([]string, 0, len(r.args))
	for _, arg := range r.args {
		switch arg := arg.(type) {
		case nil:
			args = append(args, "nil")
		case string:
			args = append(args, strconv.Quote(arg))
		case int:
			args = append(args, fmt.Sprintf("fd %v", arg))
		default:
			args = append(args, fmt.Sprint(arg))
		}
	}

	method := sender.MethodName(r.op)
	return fmt.Sprintf("%v@%v.%v(%v)", sender.Interface(), sender.ID(), method, strings.Join(args, ", "))
}
