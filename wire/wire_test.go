package wire

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testObject struct {
	id uint32
}

func (obj *testObject) ID() uint32 { return obj.id }
func (obj *testObject) SetID(id uint32) { obj.id = id }
func (obj *testObject) Interface() string { return "test" }
func (obj *testObject) Dispatch(*MessageBuffer) error { return nil }
func (obj *testObject) MethodName(op uint16) string { return "method" }
func (obj *testObject) Delete() {}

func socketpair(t *testing.T) (*Conn, *Conn) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	conn := func(fd int) *Conn {
		file := os.NewFile(uintptr(fd), "socketpair")
		defer file.Close()
		c, err := net.FileConn(file)
		require.NoError(t, err)

		conn := NewConn(c.(*net.UnixConn))
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	return conn(fds[0]), conn(fds[1])
}

func TestFixed(t *testing.T) {
	assert.Equal(t, 3.0, FixedInt(3).Float())
	assert.Equal(t, 3, FixedInt(3).Int())

	f := FixedFloat(-1.5)
	assert.Equal(t, -2, f.Int())
	assert.Equal(t, 128, f.Frac())
	assert.Equal(t, "-1.5", f.String())
	assert.Equal(t, "2.25", FixedFloat(2.25).String())
}

func TestPadding(t *testing.T) {
	assert.Equal(t, uint32(0), padding(0))
	assert.Equal(t, uint32(3), padding(1))
	assert.Equal(t, uint32(1), padding(7))
	assert.Equal(t, uint32(0), padding(8))
}

func TestMessageRoundTrip(t *testing.T) {
	a, b := socketpair(t)

	var pipe [2]int
	require.NoError(t, unix.Pipe2(pipe[:], unix.O_CLOEXEC))
	defer unix.Close(pipe[0])
	defer unix.Close(pipe[1])

	sender := &testObject{id: 5}
	msg := NewMessage(sender, 3, "method")
	msg.WriteInt(-7)
	msg.WriteUint(9)
	msg.WriteString("hello")
	msg.WriteArray([]byte{1, 2, 3})
	msg.WriteFixed(FixedFloat(1.25))
	msg.WriteObject(nil)
	msg.WriteFD(pipe[0])
	msg.WriteString("wl_surface")
	msg.WriteUint(4)
	msg.WriteUint(12)
	require.NoError(t, msg.Build(a))

	r, err := ReadMessage(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), r.Sender())
	assert.Equal(t, uint16(3), r.Op())

	assert.Equal(t, int32(-7), r.ReadInt())
	assert.Equal(t, uint32(9), r.ReadUint())
	assert.Equal(t, "hello", r.ReadString())
	assert.Equal(t, []byte{1, 2, 3}, r.ReadArray())
	assert.Equal(t, 1.25, r.ReadFixed().Float())
	assert.Equal(t, uint32(0), r.ReadObject())
	fd := r.ReadFD()
	assert.Equal(t, NewID{Interface: "wl_surface", Version: 4, ID: 12}, r.ReadUntypedNewID())
	require.NoError(t, r.Err())
	require.GreaterOrEqual(t, fd, 0)
	defer unix.Close(fd)

	_, err = unix.Write(pipe[1], []byte("x"))
	require.NoError(t, err)
	var buf [1]byte
	n, err := unix.Read(fd, buf[:])
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf[:n]))

	assert.Contains(t, r.Debug(sender), "test@5.method(-7, 9, \"hello\"")
}

func TestMessageShortBody(t *testing.T) {
	a, b := socketpair(t)

	msg := NewMessage(&testObject{id: 1}, 0, "method")
	msg.WriteUint(1)
	require.NoError(t, msg.Build(a))

	r, err := ReadMessage(b)
	require.NoError(t, err)
	r.ReadUint()
	r.ReadString()
	assert.ErrorIs(t, r.Err(), io.ErrUnexpectedEOF)
	assert.Equal(t, -1, r.ReadFD())
}

func TestMissingFD(t *testing.T) {
	a, b := socketpair(t)

	require.NoError(t, NewMessage(&testObject{id: 1}, 0, "method").Build(a))
	r, err := ReadMessage(b)
	require.NoError(t, err)
	assert.Equal(t, -1, r.ReadFD())
	assert.Error(t, r.Err())
}

func TestErrors(t *testing.T) {
	assert.EqualError(t, UnknownOpError{Interface: "wl_surface", Type: "request", Op: 12}, "unknown request opcode for wl_surface: 12")
	assert.EqualError(t, UnknownObjectError{ID: 3, Interface: "wl_buffer"}, "object 3 is not a live wl_buffer")
}
