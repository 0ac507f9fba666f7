// Package compositor implements the surface state machine of a Wayland
// compositor: double-buffered surface state, atomic transactions that
// apply the state of several surfaces at once, sub-surface
// synchronization and fences that delay transactions until the GPU is
// done with a buffer.
//
// Nothing in this package is safe for concurrent use. Everything is
// expected to run on a single event loop, with Watcher callbacks
// delivered on that same loop.
package compositor

import (
	"errors"
	"log/slog"

	"deedles.dev/wlcommit/buffer"
	"deedles.dev/wlcommit/internal/debug"
	"deedles.dev/wlcommit/internal/fdwatch"
	"deedles.dev/wlcommit/internal/set"
	"golang.org/x/exp/slices"
)

// ErrNoWatcher is returned when a fence has to be waited on but the
// Compositor was created without a Watcher.
var ErrNoWatcher = errors.New("no fd watcher configured")

// Watcher calls fn on the event loop once fd becomes readable. After
// cancel has been called fn is never called.
type Watcher interface {
	WatchReadable(fd int, fn func()) (cancel func(), err error)
}

type noWatcher struct{}

func (noWatcher) WatchReadable(int, func()) (func(), error) {
	return nil, ErrNoWatcher
}

type Option func(*Compositor)

// WithWatcher sets the Watcher used to wait for fences.
func WithWatcher(w Watcher) Option {
	return func(c *Compositor) {
		c.watcher = w
	}
}

// WithReadable replaces the function used to check whether a dma-buf
// plane is already readable.
func WithReadable(readable func(fd int) bool) Option {
	return func(c *Compositor) {
		c.readable = readable
	}
}

// Compositor owns every surface and every committed transaction.
type Compositor struct {
	watcher  Watcher
	readable func(fd int) bool

	surfaces     map[SurfaceID]*Surface
	transactions map[TransactionID]*Transaction
	lockers      map[*buffer.Buffer]*dmabufLocker

	nextSurface     SurfaceID
	nextTransaction TransactionID
}

func New(opts ...Option) *Compositor {
	c := Compositor{
		watcher:      noWatcher{},
		readable:     fdwatch.Readable,
		surfaces:     make(map[SurfaceID]*Surface),
		transactions: make(map[TransactionID]*Transaction),
		lockers:      make(map[*buffer.Buffer]*dmabufLocker),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Surface returns the surface with the given ID or nil if it has been
// destroyed.
func (c *Compositor) Surface(id SurfaceID) *Surface {
	return c.surfaces[id]
}

// Transaction returns a committed transaction that has not applied yet
// or nil.
func (c *Compositor) Transaction(id TransactionID) *Transaction {
	return c.transactions[id]
}

// PendingTransactions returns the number of committed transactions
// that are waiting to be applied.
func (c *Compositor) PendingTransactions() int {
	return len(c.transactions)
}

// NewClient returns a new client. Surfaces and fences belong to the
// client that created them.
func (c *Compositor) NewClient() *Client {
	return &Client{
		comp:     c,
		surfaces: set.New[SurfaceID](),
		lockers:  set.New[*timelineLocker](),
	}
}

func (c *Compositor) logger() *slog.Logger {
	return debug.Logger().With("component", "compositor")
}

// Client is the compositor side of a client connection.
type Client struct {
	comp      *Compositor
	surfaces  set.Set[SurfaceID]
	lockers   set.Set[*timelineLocker]
	destroyed bool
}

func (client *Client) Compositor() *Compositor {
	return client.comp
}

// CreateSurface creates a surface. version is the version of the
// wl_surface object, which changes how some requests are validated.
func (client *Client) CreateSurface(version uint32) *Surface {
	c := client.comp
	c.nextSurface++
	s := Surface{
		comp:    c,
		client:  client,
		id:      c.nextSurface,
		version: version,
		pending: NewState(),
		current: NewState(),
	}
	c.surfaces[s.id] = &s
	client.surfaces.Add(s.id)

	c.logger().Debug("surface created", "surface", s.id)
	return &s
}

// Destroy tears down everything the client owns. Transactions that
// are waiting on fences from the client stop waiting.
func (client *Client) Destroy() {
	if client.destroyed {
		return
	}
	client.destroyed = true

	for l := range client.lockers.All() {
		l.abort()
	}

	ids := make([]SurfaceID, 0, client.surfaces.Len())
	for id := range client.surfaces.All() {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if s := client.comp.Surface(id); s != nil {
			s.Destroy()
		}
	}
}
