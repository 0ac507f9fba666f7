package compositor

import (
	"image"
	"testing"

	"deedles.dev/wlcommit/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subRecorder struct {
	positions []image.Point
	modes     []Mode
}

func (r *subRecorder) PositionChanged(sub *SubSurface) {
	r.positions = append(r.positions, sub.Position())
}

func (r *subRecorder) ModeChanged(sub *SubSurface) {
	r.modes = append(r.modes, sub.Mode())
}

func TestSynchronizedChildDeferred(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	present(t, p, shmBuffer(t, 32, 32, 0))

	c, sub := env.subsurface(t, p)
	require.True(t, sub.IsSynchronized())

	b1 := shmBuffer(t, 8, 8, 0)
	present(t, c, b1)
	assert.Nil(t, c.Buffer())
	assert.False(t, c.IsMapped())

	require.NoError(t, p.Commit())
	assert.Equal(t, b1, c.Buffer())
	assert.True(t, c.IsMapped())

	require.NoError(t, sub.SetDesync())
	b2 := shmBuffer(t, 8, 8, 0)
	present(t, c, b2)
	assert.Equal(t, b2, c.Buffer())
}

func TestSynchronizedSiblings(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c1, sub1 := env.subsurface(t, p)
	c2, sub2 := env.subsurface(t, p)

	rec := &subRecorder{}
	sub2.Listener = rec

	sub1.SetPosition(0, 0)
	sub2.SetPosition(10, 10)
	b1 := shmBuffer(t, 8, 8, 0)
	b2 := shmBuffer(t, 8, 8, 0)
	present(t, c1, b1)
	present(t, c2, b2)

	assert.Nil(t, c1.Buffer())
	assert.Nil(t, c2.Buffer())
	assert.Equal(t, image.Point{}, sub2.Position())

	present(t, p, shmBuffer(t, 32, 32, 0))
	assert.Equal(t, b1, c1.Buffer())
	assert.Equal(t, b2, c2.Buffer())
	assert.Equal(t, image.Pt(10, 10), sub2.Position())
	assert.Equal(t, []image.Point{image.Pt(10, 10)}, rec.positions)
	assert.True(t, c1.IsMapped())
	assert.True(t, c2.IsMapped())
}

func TestDescendantsApplyFirst(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c, _ := env.subsurface(t, p)
	g, _ := env.subsurface(t, c)

	present(t, g, shmBuffer(t, 4, 4, 0))
	present(t, c, shmBuffer(t, 8, 8, 0))
	env.rec.changes = nil
	present(t, p, shmBuffer(t, 16, 16, 0))

	gi, ci, pi := env.rec.first(g), env.rec.first(c), env.rec.first(p)
	require.NotEqual(t, -1, gi)
	assert.Less(t, gi, ci)
	assert.Less(t, ci, pi)
	assert.True(t, g.IsMapped())
}

func TestUnmapPropagates(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c, _ := env.subsurface(t, p)
	g, _ := env.subsurface(t, c)

	present(t, g, shmBuffer(t, 4, 4, 0))
	present(t, c, shmBuffer(t, 8, 8, 0))
	present(t, p, shmBuffer(t, 16, 16, 0))
	require.True(t, g.IsMapped())

	present(t, p, nil)
	assert.False(t, p.IsMapped())
	assert.False(t, c.IsMapped())
	assert.False(t, g.IsMapped())
	assert.Equal(t, 1, env.rec.count(c, ChangeUnmapped))
	assert.Equal(t, 1, env.rec.count(g, ChangeUnmapped))

	present(t, p, shmBuffer(t, 16, 16, 0))
	assert.True(t, g.IsMapped())
}

func TestDesyncFlushesParked(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	present(t, p, shmBuffer(t, 16, 16, 0))
	c, sub := env.subsurface(t, p)

	rec := &subRecorder{}
	sub.Listener = rec

	buf := shmBuffer(t, 8, 8, 0)
	present(t, c, buf)
	require.Nil(t, c.Buffer())

	require.NoError(t, sub.SetDesync())
	assert.Equal(t, buf, c.Buffer())
	assert.Equal(t, []Mode{Desynchronized}, rec.modes)

	require.NoError(t, sub.SetDesync())
	sub.SetSync()
	sub.SetSync()
	assert.Equal(t, []Mode{Desynchronized, Synchronized}, rec.modes)
}

func TestDesyncPropagatesToDesyncChildren(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	present(t, p, shmBuffer(t, 16, 16, 0))
	c, csub := env.subsurface(t, p)
	g, gsub := env.subsurface(t, c)

	require.NoError(t, gsub.SetDesync())
	assert.True(t, gsub.IsSynchronized())

	cb := shmBuffer(t, 8, 8, 0)
	gb := shmBuffer(t, 4, 4, 0)
	present(t, g, gb)
	assert.Nil(t, g.Buffer())

	require.NoError(t, c.Attach(cb, 0, 0))
	require.NoError(t, csub.SetDesync())
	assert.False(t, gsub.IsSynchronized())
	assert.Equal(t, gb, g.Buffer())
	assert.Nil(t, c.Buffer())
}

func TestSubSurfaceValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c, _ := env.subsurface(t, p)
	g, _ := env.subsurface(t, c)

	_, err := env.comp.NewSubSurface(p, p)
	requireProtocolError(t, err, InterfaceSubcompositor, SubcompositorErrorBadParent)
	_, err = env.comp.NewSubSurface(p, g)
	requireProtocolError(t, err, InterfaceSubcompositor, SubcompositorErrorBadParent)
	_, err = env.comp.NewSubSurface(c, p)
	requireProtocolError(t, err, InterfaceSubcompositor, SubcompositorErrorBadSurface)
}

func TestRestacking(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c1, sub1 := env.subsurface(t, p)
	c2, _ := env.subsurface(t, p)
	other := env.surface()

	subs := func(list []*SubSurface) (s []*Surface) {
		for _, sub := range list {
			s = append(s, sub.Surface())
		}
		return s
	}

	assert.Equal(t, []*Surface{c1, c2}, subs(p.Above()))

	require.NoError(t, sub1.PlaceAbove(c2))
	assert.Equal(t, []*Surface{c1, c2}, subs(p.Above()))
	require.NoError(t, p.Commit())
	assert.Equal(t, []*Surface{c2, c1}, subs(p.Above()))
	assert.Equal(t, 1, env.rec.count(p, ChangeChildren|ChangeCommitted))

	require.NoError(t, sub1.PlaceBelow(p))
	require.NoError(t, p.Commit())
	assert.Equal(t, []*Surface{c2}, subs(p.Above()))
	assert.Equal(t, []*Surface{c1}, subs(p.Below()))

	require.NoError(t, sub1.PlaceAbove(p))
	require.NoError(t, p.Commit())
	assert.Equal(t, []*Surface{c1, c2}, subs(p.Above()))
	assert.Empty(t, p.Below())

	requireProtocolError(t, sub1.PlaceAbove(other), InterfaceSubsurface, SubsurfaceErrorBadSurface)
	requireProtocolError(t, sub1.PlaceBelow(c1), InterfaceSubsurface, SubsurfaceErrorBadSurface)
}

func TestChildAddedWhileQueued(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c1, sub1 := env.subsurface(t, p)

	buf, plane := dmabuf(t, 16, 16, buffer.FormatARGB8888, false)
	require.NoError(t, sub1.PlaceBelow(p))
	present(t, p, buf)
	require.Equal(t, 1, env.comp.PendingTransactions())

	c2, _ := env.subsurface(t, p)
	require.Len(t, p.Above(), 1)
	assert.Equal(t, c2, p.Above()[0].Surface())

	env.watcher.fire(t, plane)
	assert.Zero(t, env.comp.PendingTransactions())
	require.Len(t, p.Above(), 1)
	assert.Equal(t, c2, p.Above()[0].Surface())
	require.Len(t, p.Below(), 1)
	assert.Equal(t, c1, p.Below()[0].Surface())
}

func TestSubSurfaceDestroy(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	present(t, p, shmBuffer(t, 16, 16, 0))
	c, sub := env.subsurface(t, p)

	present(t, c, shmBuffer(t, 8, 8, 0))
	require.NoError(t, p.Commit())
	require.True(t, c.IsMapped())

	parked := shmBuffer(t, 8, 8, 0)
	present(t, c, parked)
	require.True(t, parked.IsReferenced())

	sub.Destroy()
	assert.Nil(t, c.SubSurface())
	assert.Empty(t, p.Above())
	assert.False(t, parked.IsReferenced())
	assert.True(t, c.IsMapped())
}

func TestParentDestroyed(t *testing.T) {
	env := newTestEnv(t)
	p := env.surface()
	c, sub := env.subsurface(t, p)

	present(t, c, shmBuffer(t, 8, 8, 0))
	present(t, p, shmBuffer(t, 16, 16, 0))
	require.True(t, c.IsMapped())

	p.Destroy()
	assert.False(t, c.IsMapped())
	assert.Nil(t, sub.Parent())
	assert.True(t, sub.IsSynchronized())
	assert.Equal(t, c, sub.MainSurface())
}
