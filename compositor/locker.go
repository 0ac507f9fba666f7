package compositor

import (
	"fmt"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/syncobj"
	"golang.org/x/sys/unix"
)

// dmabufLocker holds back transactions until the GPU has finished
// rendering into a dma-buf, which is signalled by every plane becoming
// readable. There is one per buffer, shared by all transactions that
// use it.
type dmabufLocker struct {
	comp    *Compositor
	buf     *buffer.Buffer
	pending map[int]func()
	waiting []*Transaction
}

func (c *Compositor) dmabufLocker(buf *buffer.Buffer) *dmabufLocker {
	if l, ok := c.lockers[buf]; ok {
		return l
	}

	l := dmabufLocker{
		comp:    c,
		buf:     buf,
		pending: make(map[int]func()),
	}
	c.lockers[buf] = &l
	buf.OnDestroy(l.destroy)

	return &l
}

// arm starts watching every plane that is not readable yet and
// reports whether any is being waited on. If a plane can't be watched,
// the watches started so far are cancelled and nothing is armed.
func (l *dmabufLocker) arm() (bool, error) {
	if len(l.pending) > 0 {
		return true, nil
	}

	for i, plane := range l.buf.Dmabuf().Planes {
		if l.comp.readable(plane.FD) {
			continue
		}

		cancel, err := l.comp.watcher.WatchReadable(plane.FD, func() { l.planeReady(i) })
		if err != nil {
			l.disarm()
			return false, fmt.Errorf("plane %v: %w", i, err)
		}
		l.pending[i] = cancel
	}

	return len(l.pending) > 0, nil
}

// disarm cancels every plane watch.
func (l *dmabufLocker) disarm() {
	for plane, cancel := range l.pending {
		cancel()
		delete(l.pending, plane)
	}
}

// wait locks tx until the armed planes are all readable.
func (l *dmabufLocker) wait(tx *Transaction) {
	tx.lock()
	l.waiting = append(l.waiting, tx)
}

func (l *dmabufLocker) planeReady(plane int) {
	if _, ok := l.pending[plane]; !ok {
		return
	}
	delete(l.pending, plane)
	if len(l.pending) > 0 {
		return
	}

	waiting := l.waiting
	l.waiting = nil
	for _, tx := range waiting {
		tx.unlock()
	}
}

func (l *dmabufLocker) destroy() {
	l.disarm()
	delete(l.comp.lockers, l.buf)
}

// timelineLocker holds back a single transaction until an acquire
// point has been signalled.
type timelineLocker struct {
	tx     *Transaction
	client *Client
	point  syncobj.AcquirePoint

	fd     int
	cancel func()
	done   bool
}

// newTimelineLocker prepares a wait on point without locking tx yet.
func newTimelineLocker(tx *Transaction, client *Client, point syncobj.AcquirePoint) (*timelineLocker, error) {
	fd, err := point.Timeline.EventFD(point.Point)
	if err != nil {
		return nil, err
	}

	l := timelineLocker{
		tx:     tx,
		client: client,
		point:  point,
		fd:     fd,
	}

	l.cancel, err = tx.comp.watcher.WatchReadable(fd, l.signalled)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &l, nil
}

// arm locks the transaction.
func (l *timelineLocker) arm() {
	l.tx.lock()
	if l.client != nil {
		l.client.lockers.Add(l)
	}
}

func (l *timelineLocker) signalled() {
	if l.done {
		return
	}
	l.close()
	l.tx.unlock()
}

// abort stops waiting because the client that owns the timeline went
// away.
func (l *timelineLocker) abort() {
	if l.done {
		return
	}
	l.tx.comp.logger().Debug("abandoning acquire point", "transaction", l.tx.id, "point", l.point)
	l.close()
	l.tx.unlock()
}

func (l *timelineLocker) close() {
	if l.done {
		return
	}
	l.done = true

	l.cancel()
	unix.Close(l.fd)
	if l.client != nil {
		l.client.lockers.Delete(l)
	}
}
