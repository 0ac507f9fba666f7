package compositor

import (
	"testing"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/shm"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeWatch struct {
	fn func()
}

type fakeWatcher struct {
	watches map[int]*fakeWatch
}

func (w *fakeWatcher) WatchReadable(fd int, fn func()) (func(), error) {
	watch := &fakeWatch{fn: fn}
	w.watches[fd] = watch
	return func() {
		if w.watches[fd] == watch {
			delete(w.watches, fd)
		}
	}, nil
}

func (w *fakeWatcher) fire(t *testing.T, fd int) {
	watch, ok := w.watches[fd]
	require.True(t, ok, "no watch on fd %v", fd)
	delete(w.watches, fd)
	watch.fn()
}

type record struct {
	surface SurfaceID
	change  Change
}

type recorder struct {
	changes   []record
	destroyed []SurfaceID
}

func (r *recorder) Changed(s *Surface, c Change) {
	r.changes = append(r.changes, record{surface: s.ID(), change: c})
}

func (r *recorder) Destroyed(s *Surface) {
	r.destroyed = append(r.destroyed, s.ID())
}

// count returns how many notifications for s included c.
func (r *recorder) count(s *Surface, c Change) int {
	var n int
	for _, rec := range r.changes {
		if (rec.surface == s.ID()) && rec.change.Has(c) {
			n++
		}
	}
	return n
}

// first returns the index of the first notification for s or -1.
func (r *recorder) first(s *Surface) int {
	for i, rec := range r.changes {
		if rec.surface == s.ID() {
			return i
		}
	}
	return -1
}

type testTimeline struct {
	t         *testing.T
	fds       map[uint64]int
	signalled []uint64
}

func newTestTimeline(t *testing.T) *testTimeline {
	return &testTimeline{t: t, fds: make(map[uint64]int)}
}

func (tl *testTimeline) EventFD(point uint64) (int, error) {
	var fds [2]int
	err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK)
	if err != nil {
		return -1, err
	}
	tl.t.Cleanup(func() { unix.Close(fds[1]) })
	tl.fds[point] = fds[0]
	return fds[0], nil
}

func (tl *testTimeline) Signal(point uint64) error {
	tl.signalled = append(tl.signalled, point)
	return nil
}

func (tl *testTimeline) Close() error { return nil }

type testEnv struct {
	comp    *Compositor
	client  *Client
	watcher *fakeWatcher
	rec     *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	watcher := &fakeWatcher{watches: make(map[int]*fakeWatch)}
	comp := New(WithWatcher(watcher))
	return &testEnv{
		comp:    comp,
		client:  comp.NewClient(),
		watcher: watcher,
		rec:     &recorder{},
	}
}

func (env *testEnv) surface() *Surface {
	s := env.client.CreateSurface(6)
	s.Listener = env.rec
	return s
}

func (env *testEnv) subsurface(t *testing.T, parent *Surface) (*Surface, *SubSurface) {
	s := env.surface()
	sub, err := env.comp.NewSubSurface(s, parent)
	require.NoError(t, err)
	return s, sub
}

func shmBuffer(t *testing.T, w, h int, format uint32) *buffer.Buffer {
	size := w * h * 4
	file, err := shm.Create("compositor-test", int64(size))
	require.NoError(t, err)
	fd, err := unix.Dup(int(file.Fd()))
	require.NoError(t, err)
	file.Close()

	pool, err := shm.NewPool(fd, size)
	require.NoError(t, err)
	defer pool.Unref()

	buf, err := buffer.NewShm(pool, 0, w, h, w*4, format)
	require.NoError(t, err)
	return buf
}

// dmabuf returns a single plane dma-buf backed by a pipe and the plane
// fd. The plane is readable if ready is true.
func dmabuf(t *testing.T, w, h int, format uint32, ready bool) (*buffer.Buffer, int) {
	buf, planes := dmabufPlanes(t, w, h, format, ready)
	return buf, planes[0]
}

// dmabufPlanes returns a dma-buf with a pipe backed plane for each
// entry of ready, and the plane fds.
func dmabufPlanes(t *testing.T, w, h int, format uint32, ready ...bool) (*buffer.Buffer, []int) {
	planes := make([]buffer.Plane, 0, len(ready))
	fds := make([]int, 0, len(ready))
	for _, r := range ready {
		var p [2]int
		require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
		t.Cleanup(func() { unix.Close(p[1]) })

		if r {
			_, err := unix.Write(p[1], []byte{1})
			require.NoError(t, err)
		}

		planes = append(planes, buffer.Plane{FD: p[0], Stride: uint32(w * 4)})
		fds = append(fds, p[0])
	}

	buf, err := buffer.NewDmabuf(buffer.DmabufAttributes{
		Width:  w,
		Height: h,
		Format: format,
		Planes: planes,
	})
	require.NoError(t, err)
	return buf, fds
}

// present attaches buf to s and commits.
func present(t *testing.T, s *Surface, buf *buffer.Buffer) {
	require.NoError(t, s.Attach(buf, 0, 0))
	require.NoError(t, s.Commit())
}
