package compositor

import (
	"image"
	"testing"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/geom"
	"deedles.dev/wlcommit/syncobj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

func TestCommitsCoalesceWhileBlocked(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	buf, plane := dmabuf(t, 64, 32, buffer.FormatARGB8888, false)
	require.NoError(t, s.Attach(buf, 0, 0))
	require.NoError(t, s.SetBufferScale(2))
	require.NoError(t, s.Commit())

	require.NoError(t, s.SetBufferTransform(geom.Rotate90))
	s.SetAlphaMultiplier(0.5)
	require.NoError(t, s.Commit())

	assert.Equal(t, 2, env.comp.PendingTransactions())
	assert.Nil(t, s.Buffer())

	env.watcher.fire(t, plane)

	assert.Equal(t, 0, env.comp.PendingTransactions())
	assert.Equal(t, buf, s.Buffer())
	assert.Equal(t, 2, s.BufferScale())
	assert.Equal(t, geom.Rotate90, s.BufferTransform())
	assert.Equal(t, 0.5, s.AlphaMultiplier())
	assert.Equal(t, geom.PointF{X: 16, Y: 32}, s.Size())
	assert.Equal(t, uint64(2), s.Serial())
}

func TestDmabufFenceGating(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	buf, plane := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	present(t, s, buf)

	require.Len(t, s.queue, 1)
	tx := env.comp.Transaction(s.queue[0])
	require.NotNil(t, tx)
	assert.True(t, tx.Locked())
	for i := 0; i < 3; i++ {
		assert.False(t, tx.TryApply())
	}
	assert.Nil(t, s.Buffer())

	env.watcher.fire(t, plane)
	assert.Equal(t, buf, s.Buffer())
	assert.Nil(t, env.comp.Transaction(tx.ID()))
}

func TestDmabufWaitsForEveryPlane(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	buf, planes := dmabufPlanes(t, 16, 16, buffer.FormatNV12, false, false)
	present(t, s, buf)
	assert.Len(t, env.watcher.watches, 2)

	env.watcher.fire(t, planes[1])
	assert.Nil(t, s.Buffer())
	assert.Equal(t, 1, env.comp.PendingTransactions())

	env.watcher.fire(t, planes[0])
	assert.Equal(t, buf, s.Buffer())
	assert.Zero(t, env.comp.PendingTransactions())

	partial, planes := dmabufPlanes(t, 16, 16, buffer.FormatNV12, true, false)
	present(t, s, partial)
	assert.Len(t, env.watcher.watches, 1)
	assert.NotContains(t, env.watcher.watches, planes[0])
	assert.Equal(t, buf, s.Buffer())

	env.watcher.fire(t, planes[1])
	assert.Equal(t, partial, s.Buffer())
	assert.Zero(t, env.comp.PendingTransactions())
}

func TestReadyDmabufDoesNotLock(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	buf, _ := dmabuf(t, 16, 16, buffer.FormatARGB8888, true)
	present(t, s, buf)

	assert.Equal(t, buf, s.Buffer())
	assert.Empty(t, env.watcher.watches)
}

func TestDmabufLockerShared(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.surface()
	s2 := env.surface()

	buf, plane := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	present(t, s1, buf)
	present(t, s2, buf)

	assert.Len(t, env.watcher.watches, 1)
	assert.Len(t, env.comp.lockers, 1)
	assert.Equal(t, 2, env.comp.PendingTransactions())

	env.watcher.fire(t, plane)
	assert.Equal(t, buf, s1.Buffer())
	assert.Equal(t, buf, s2.Buffer())
}

func TestTimelineFenceGating(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()
	require.NoError(t, s.EnableExplicitSync())

	acquire := newTestTimeline(t)
	release := newTestTimeline(t)
	buf, _ := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)

	require.NoError(t, s.Attach(buf, 0, 0))
	s.SetAcquirePoint(syncobj.AcquirePoint{Timeline: acquire, Point: 3})
	s.SetReleasePoint(syncobj.ReleasePoint{Timeline: release, Point: 4})
	require.NoError(t, s.Commit())

	tx := env.comp.Transaction(s.queue[0])
	require.NotNil(t, tx)
	assert.False(t, tx.TryApply())
	assert.Len(t, env.watcher.watches, 1)

	env.watcher.fire(t, acquire.fds[3])
	assert.Equal(t, buf, s.Buffer())
	assert.Equal(t, 1, env.rec.count(s, ChangeReleasePoint))
	assert.Equal(t, 0, env.client.lockers.Len())

	present(t, s, nil)
	assert.Equal(t, []uint64{4}, release.signalled)
}

func TestClientDestroyUnlocksTimeline(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()
	require.NoError(t, s.EnableExplicitSync())

	tl := newTestTimeline(t)
	buf, _ := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	require.NoError(t, s.Attach(buf, 0, 0))
	s.SetAcquirePoint(syncobj.AcquirePoint{Timeline: tl, Point: 1})
	s.SetReleasePoint(syncobj.ReleasePoint{Timeline: tl, Point: 2})
	require.NoError(t, s.Commit())
	require.Equal(t, 1, env.comp.PendingTransactions())

	env.client.Destroy()

	assert.Equal(t, 0, env.comp.PendingTransactions())
	assert.Empty(t, env.watcher.watches)
	assert.Nil(t, env.comp.Surface(s.ID()))
}

type failingTimeline struct{ testTimeline }

func (failingTimeline) EventFD(uint64) (int, error) {
	return -1, assert.AnError
}

func TestCommitFenceFailure(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()
	require.NoError(t, s.EnableExplicitSync())

	tl := &failingTimeline{}
	buf, _ := dmabuf(t, 16, 16, buffer.FormatARGB8888, true)
	require.NoError(t, s.Attach(buf, 0, 0))
	s.SetAcquirePoint(syncobj.AcquirePoint{Timeline: tl, Point: 1})
	s.SetReleasePoint(syncobj.ReleasePoint{Timeline: tl, Point: 2})

	err := s.Commit()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, env.comp.PendingTransactions())
	assert.Empty(t, s.queue)
	assert.Nil(t, s.Buffer())
	assert.False(t, buf.IsReferenced())
}

func TestAtomicity(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.surface()
	s2 := env.surface()

	g := env.comp.NewTransactionGroup()
	require.NoError(t, g.AddSurface(s1))
	require.NoError(t, g.AddSurface(s2))

	locked, plane := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	b2 := shmBuffer(t, 16, 16, 0)
	present(t, s1, locked)
	present(t, s2, b2)

	assert.Nil(t, s1.Buffer())
	assert.Nil(t, s2.Buffer())
	assert.Equal(t, 0, env.comp.PendingTransactions())

	require.NoError(t, g.Commit())
	assert.Nil(t, s1.Buffer())
	assert.Nil(t, s2.Buffer())

	env.watcher.fire(t, plane)
	assert.Equal(t, locked, s1.Buffer())
	assert.Equal(t, b2, s2.Buffer())
}

func TestTransactionGroupMembership(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	g1 := env.comp.NewTransactionGroup()
	g2 := env.comp.NewTransactionGroup()
	require.NoError(t, g1.AddSurface(s))
	require.NoError(t, g1.AddSurface(s))
	requireProtocolError(t, g2.AddSurface(s), InterfaceTransaction, TransactionErrorAlreadyUsed)

	present(t, s, shmBuffer(t, 4, 4, 0))
	g1.Destroy()
	assert.Nil(t, s.Buffer())

	present(t, s, shmBuffer(t, 4, 4, 0))
	assert.NotNil(t, s.Buffer())

	requireProtocolError(t, g1.AddSurface(s), InterfaceTransaction, TransactionErrorDefunct)
	requireProtocolError(t, g1.Commit(), InterfaceTransaction, TransactionErrorDefunct)
}

func TestDestroyedSurfaceUnblocksQueue(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.surface()
	s2 := env.surface()

	locked, plane := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	present(t, s1, locked)

	g := env.comp.NewTransactionGroup()
	require.NoError(t, g.AddSurface(s1))
	require.NoError(t, g.AddSurface(s2))
	s1.Damage(image.Rect(0, 0, 1, 1))
	require.NoError(t, s1.Commit())
	b2 := shmBuffer(t, 4, 4, 0)
	present(t, s2, b2)
	require.NoError(t, g.Commit())

	assert.Nil(t, s2.Buffer())
	assert.Equal(t, 2, env.comp.PendingTransactions())

	s1.Destroy()
	assert.Equal(t, b2, s2.Buffer())
	assert.Equal(t, 1, env.comp.PendingTransactions())

	env.watcher.fire(t, plane)
	assert.Equal(t, 0, env.comp.PendingTransactions())
}

func TestFifoBarrier(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	s.SetFifoBarrier()
	present(t, s, shmBuffer(t, 4, 4, 0))
	require.True(t, s.HasFifoBarrier())

	b2 := shmBuffer(t, 4, 4, 0)
	s.SetFifoWait()
	present(t, s, b2)
	assert.NotEqual(t, b2, s.Buffer())
	assert.Equal(t, 1, env.comp.PendingTransactions())

	s.ClearFifoBarrier()
	assert.Equal(t, b2, s.Buffer())
	assert.False(t, s.HasFifoBarrier())
	assert.Equal(t, 0, env.comp.PendingTransactions())
}

func TestEntryOrder(t *testing.T) {
	entries := []*entry{
		{surface: 1, main: 1, depth: 0},
		{surface: 9, discarded: true},
		{surface: 3, main: 1, depth: 2},
		{surface: 5, main: 4, depth: 0},
		{surface: 2, main: 1, depth: 1},
		{surface: 6, main: 4, depth: 1},
	}

	slices.SortFunc(entries, compareEntries)

	var order []SurfaceID
	for _, e := range entries {
		order = append(order, e.surface)
	}
	assert.Equal(t, []SurfaceID{3, 2, 6, 1, 5, 9}, order)
}

// failingWatcher refuses to watch one fd.
type failingWatcher struct {
	*fakeWatcher
	fd int
}

func (w *failingWatcher) WatchReadable(fd int, fn func()) (func(), error) {
	if fd == w.fd {
		return nil, unix.EMFILE
	}
	return w.fakeWatcher.WatchReadable(fd, fn)
}

func TestCommitDmabufWatchFailure(t *testing.T) {
	env := newTestEnv(t)
	s := env.surface()

	buf, planes := dmabufPlanes(t, 16, 16, buffer.FormatNV12, false, false)
	env.comp.watcher = &failingWatcher{fakeWatcher: env.watcher, fd: planes[1]}
	require.NoError(t, s.Attach(buf, 0, 0))

	err := s.Commit()
	assert.ErrorIs(t, err, unix.EMFILE)
	assert.Zero(t, env.comp.PendingTransactions())
	assert.Empty(t, s.queue)
	assert.Empty(t, env.watcher.watches)
	assert.Nil(t, s.Buffer())
	assert.False(t, buf.IsReferenced())
}

func TestCommitDmabufFailureReleasesTimeline(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.surface()
	s2 := env.surface()
	require.NoError(t, s1.EnableExplicitSync())

	g := env.comp.NewTransactionGroup()
	require.NoError(t, g.AddSurface(s1))
	require.NoError(t, g.AddSurface(s2))

	tl := newTestTimeline(t)
	b1, _ := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	require.NoError(t, s1.Attach(b1, 0, 0))
	s1.SetAcquirePoint(syncobj.AcquirePoint{Timeline: tl, Point: 1})
	s1.SetReleasePoint(syncobj.ReleasePoint{Timeline: tl, Point: 2})
	require.NoError(t, s1.Commit())

	b2, plane := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	env.comp.watcher = &failingWatcher{fakeWatcher: env.watcher, fd: plane}
	present(t, s2, b2)

	err := g.Commit()
	assert.ErrorIs(t, err, unix.EMFILE)
	assert.Zero(t, env.comp.PendingTransactions())
	assert.Empty(t, env.watcher.watches)
	assert.Zero(t, env.client.lockers.Len())
	assert.Nil(t, s1.Buffer())
	assert.Nil(t, s2.Buffer())
}

// destroyingListener destroys victim from the first change it sees.
type destroyingListener struct {
	*recorder
	victim *Surface
}

func (l *destroyingListener) Changed(s *Surface, c Change) {
	l.recorder.Changed(s, c)
	if victim := l.victim; victim != nil {
		l.victim = nil
		victim.Destroy()
	}
}

func TestDestroyDuringApply(t *testing.T) {
	env := newTestEnv(t)
	a := env.surface()
	b := env.surface()
	c := env.surface()

	listener := &destroyingListener{recorder: env.rec, victim: b}
	g := env.comp.NewTransactionGroup()
	for _, s := range []*Surface{a, b, c} {
		s.Listener = listener
		require.NoError(t, g.AddSurface(s))
	}

	ba := shmBuffer(t, 4, 4, 0)
	bb := shmBuffer(t, 4, 4, 0)
	bc := shmBuffer(t, 4, 4, 0)
	present(t, a, ba)
	present(t, b, bb)
	present(t, c, bc)
	require.NoError(t, g.Commit())

	assert.Equal(t, 1, env.rec.count(a, ChangeCommitted))
	assert.Equal(t, 0, env.rec.count(b, ChangeCommitted))
	assert.Equal(t, 1, env.rec.count(c, ChangeCommitted))
	assert.Equal(t, []SurfaceID{b.ID()}, env.rec.destroyed)
	assert.Equal(t, ba, a.Buffer())
	assert.Equal(t, bc, c.Buffer())
	assert.False(t, bb.IsReferenced())
	assert.Zero(t, env.comp.PendingTransactions())
	assert.Empty(t, a.queue)
	assert.Empty(t, c.queue)

	b2 := shmBuffer(t, 4, 4, 0)
	present(t, c, b2)
	assert.Equal(t, b2, c.Buffer())
}
