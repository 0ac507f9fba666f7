package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"deedles.dev/wlcommit/internal/set"
	"golang.org/x/sys/unix"
)

// maxFDs is the largest number of file descriptors that libwayland
// will attach to a single sendmsg call.
const maxFDs = 28

func pop[T any, S ~[]T](s *S) (v T, ok bool) {
	if len(*s) == 0 {
		return v, false
	}

	v = (*s)[0]
	*s = (*s)[1:]
	return v, true
}

func xdgRuntimeDir() string {
	dir, ok := os.LookupEnv("XDG_RUNTIME_DIR")
	if ok {
		return dir
	}
	return fmt.Sprintf("/var/run/user/%v", os.Getuid())
}

// NewSocketPath attempts to generate a valid path for opening a new
// socket to listen on.
func NewSocketPath() (string, error) {
	dir := xdgRuntimeDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	names := make(set.Set[int], len(entries))
	for _, ent := range entries {
		after, ok := strings.CutPrefix(ent.Name(), "wayland-")
		if !ok {
			continue
		}
		after, _ = strings.CutSuffix(after, ".lock")
		n, err := strconv.ParseInt(after, 10, 0)
		if err != nil {
			continue
		}
		names.Add(int(n))
	}

	var num int
	for names.Has(num) {
		num++
	}

	return filepath.Join(dir, fmt.Sprintf("wayland-%v", num)), nil
}

// Listen opens a new listening socket at the first free path returned
// by NewSocketPath.
func Listen() (*net.UnixListener, error) {
	path, err := NewSocketPath()
	if err != nil {
		return nil, fmt.Errorf("find socket path: %w", err)
	}
	return ListenPath(path)
}

// ListenPath opens a listening socket at path. The socket file is
// removed when the listener is closed.
func ListenPath(path string) (*net.UnixListener, error) {
	lis, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", path, err)
	}
	lis.SetUnlinkOnClose(true)
	return lis, nil
}

// Conn represents a low-level Wayland connection.
type Conn struct {
	conn *net.UnixConn

	m   sync.Mutex
	fds []int
}

// NewConn creates a new Conn that wraps c. After this is called, use
// the provided Close method to close c instead of calling its own
// Close method.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{
		conn: c,
	}
}

// Close closes the underlying connection and any received file
// descriptors that were never claimed by a message.
func (c *Conn) Close() error {
	c.m.Lock()
	fds := c.fds
	c.fds = nil
	c.m.Unlock()

	for _, fd := range fds {
		unix.Close(fd)
	}
	return c.conn.Close()
}

func (c *Conn) readFDs(data []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(data)
	if err != nil {
		return fmt.Errorf("parse socket control messages: %w", err)
	}

	c.m.Lock()
	defer c.m.Unlock()

	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			if errors.Is(err, unix.EINVAL) {
				continue
			}
			return fmt.Errorf("parse unix control message: %w", err)
		}
		c.fds = append(c.fds, fds...)
	}
	return nil
}

// readFull fills buf from the socket, collecting any file descriptors
// that arrive alongside the data.
func (c *Conn) readFull(buf []byte) error {
	oob := make([]byte, unix.CmsgSpace(maxFDs*4))
	for len(buf) > 0 {
		n, oobn, _, _, err := c.conn.ReadMsgUnix(buf, oob)
		if oobn > 0 {
			ferr := c.readFDs(oob[:oobn])
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}
		buf = buf[n:]
	}
	return nil
}

// popFD removes the oldest received file descriptor from the queue.
func (c *Conn) popFD() (int, bool) {
	c.m.Lock()
	defer c.m.Unlock()

	return pop(&c.fds)
}
