//go:build linux

package fdwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func pipe(t *testing.T) (r, w int) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newPoller(t *testing.T) (*Poller, chan func()) {
	posted := make(chan func(), 16)
	p, err := New(func(f func()) bool {
		posted <- f
		return true
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, posted
}

func TestReadable(t *testing.T) {
	r, w := pipe(t)
	assert.False(t, Readable(r))

	_, err := unix.Write(w, []byte{1})
	require.NoError(t, err)
	assert.True(t, Readable(r))
}

func TestWatchReadable(t *testing.T) {
	p, posted := newPoller(t)
	r, w := pipe(t)

	var fired int
	_, err := p.WatchReadable(r, func() { fired++ })
	require.NoError(t, err)

	select {
	case <-posted:
		t.Fatal("watch fired before the pipe was written")
	case <-time.After(20 * time.Millisecond):
	}

	_, err = unix.Write(w, []byte{1})
	require.NoError(t, err)

	select {
	case f := <-posted:
		f()
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}
	assert.Equal(t, 1, fired)
}

func TestCancel(t *testing.T) {
	p, posted := newPoller(t)
	r, w := pipe(t)

	var fired int
	cancel, err := p.WatchReadable(r, func() { fired++ })
	require.NoError(t, err)
	cancel()

	_, err = unix.Write(w, []byte{1})
	require.NoError(t, err)

	select {
	case f := <-posted:
		f()
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, fired)
}

func TestCancelAfterPost(t *testing.T) {
	p, posted := newPoller(t)
	r, w := pipe(t)

	var fired int
	cancel, err := p.WatchReadable(r, func() { fired++ })
	require.NoError(t, err)

	_, err = unix.Write(w, []byte{1})
	require.NoError(t, err)

	f := <-posted
	cancel()
	f()
	assert.Equal(t, 0, fired)
}

func TestClosed(t *testing.T) {
	p, _ := newPoller(t)
	require.NoError(t, p.Close())

	r, _ := pipe(t)
	_, err := p.WatchReadable(r, func() {})
	assert.ErrorIs(t, err, ErrClosed)
}
