// Package wl implements the server side of the Wayland protocol
// objects that feed the compositor package: surfaces, sub-surfaces,
// shm and dma-buf buffers, explicit synchronization, fifo barriers
// and transactions.
//
// A Server runs every request and every fence callback on a single
// event loop. Use Run to drive it, or Flush from a loop of your own.
package wl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/internal/debug"
	"deedles.dev/wlcommit/internal/ev"
	"deedles.dev/wlcommit/internal/fdwatch"
	"deedles.dev/wlcommit/internal/set"
	"deedles.dev/wlcommit/syncobj"
	"deedles.dev/wlcommit/wire"
)

// ServerListener is notified about things happening on the server. Its
// methods are called on the event loop.
type ServerListener interface {
	Client(*Client)
	ClientRemove(*Client)

	// Surface is called when a client creates a surface. It is the
	// place to set the surface's Listener.
	Surface(*Client, *compositor.Surface)
}

type ServerOption func(*Server)

// WithListener makes the server accept clients on lis.
func WithListener(lis *net.UnixListener) ServerOption {
	return func(server *Server) {
		server.lis = lis
	}
}

// WithSocketPath makes the server listen on a new socket at path.
func WithSocketPath(path string) ServerOption {
	return func(server *Server) {
		server.socketPath = path
	}
}

// WithDRMDevice enables wp_linux_drm_syncobj_manager_v1, importing
// timelines through the DRM device at path.
func WithDRMDevice(path string) ServerOption {
	return func(server *Server) {
		server.drmPath = path
	}
}

type Server struct {
	Listener ServerListener

	done       chan struct{}
	close      sync.Once
	lis        *net.UnixListener
	socketPath string
	drmPath    string
	drm        *syncobj.Device
	loop       *ev.Loop
	poller     *fdwatch.Poller
	comp       *compositor.Compositor
	globals    []global
	clients    set.Set[*Client]
	nextClient uint64
}

// ListenAndServe starts a server listening on the first free socket
// in $XDG_RUNTIME_DIR.
func ListenAndServe(opts ...ServerOption) (*Server, error) {
	lis, err := wire.Listen()
	if err != nil {
		return nil, err
	}
	return NewServer(append(opts, WithListener(lis))...)
}

// NewServer creates a server. Without WithListener or WithSocketPath
// it doesn't accept connections by itself and clients have to be
// added with AddConn.
func NewServer(opts ...ServerOption) (*Server, error) {
	server := Server{
		done:    make(chan struct{}),
		loop:    ev.NewLoop(),
		clients: make(set.Set[*Client]),
	}
	for _, opt := range opts {
		opt(&server)
	}

	poller, err := fdwatch.New(server.loop.Do)
	if err != nil {
		return nil, fmt.Errorf("start fd watcher: %w", err)
	}
	server.poller = poller
	server.comp = compositor.New(compositor.WithWatcher(poller))

	if server.drmPath != "" {
		server.drm, err = syncobj.OpenDevice(server.drmPath)
		if err != nil {
			poller.Close()
			return nil, err
		}
	}

	if (server.lis == nil) && (server.socketPath != "") {
		server.lis, err = wire.ListenPath(server.socketPath)
		if err != nil {
			server.closeResources()
			return nil, err
		}
	}

	server.globals = server.defaultGlobals()
	if server.lis != nil {
		go server.listen()
	}

	return &server, nil
}

func (server *Server) logger() *slog.Logger {
	return debug.Logger().With("component", "server")
}

// Compositor returns the compositor that holds the state of every
// client's surfaces.
func (server *Server) Compositor() *compositor.Compositor {
	return server.comp
}

// Addr returns the address the server is listening on, if any.
func (server *Server) Addr() net.Addr {
	if server.lis == nil {
		return nil
	}
	return server.lis.Addr()
}

func (server *Server) listen() {
	for {
		c, err := server.lis.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if !server.loop.Post(func() error { return fmt.Errorf("accept: %w", err) }) {
				return
			}
			continue
		}

		server.AddConn(c)
	}
}

// AddConn adds a client connected over c. It may be called from any
// goroutine.
func (server *Server) AddConn(c *net.UnixConn) {
	ok := server.loop.Do(func() { server.addClient(c) })
	if !ok {
		c.Close()
	}
}

func (server *Server) addClient(c *net.UnixConn) {
	server.nextClient++
	client := newClient(server, server.nextClient, wire.NewConn(c))
	server.clients.Add(client)

	server.logger().Debug("client connected", "client", client.id)
	if server.Listener != nil {
		server.Listener.Client(client)
	}
}

func (server *Server) removeClient(client *Client) {
	if !server.clients.Has(client) {
		return
	}
	server.clients.Delete(client)

	if server.Listener != nil {
		server.Listener.ClientRemove(client)
	}
}

// Do runs f on the event loop. It returns false if the server has been
// closed.
func (server *Server) Do(f func()) bool {
	return server.loop.Do(f)
}

// Flush handles everything that has happened since the last call
// without blocking.
func (server *Server) Flush() error {
	return server.loop.Flush()
}

// Run runs the event loop until ctx is canceled or the server is
// closed. Errors caused by misbehaving clients are logged, not
// returned.
func (server *Server) Run(ctx context.Context) error {
	for {
		err := server.loop.Wait(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			server.logger().Debug("event failed", "err", err)
		}

		select {
		case <-server.done:
			return nil
		default:
		}
	}
}

// Close disconnects every client and stops the server. It must be
// called on the event loop, for example through Do, or once Run has
// returned.
func (server *Server) Close() error {
	var err error
	server.close.Do(func() {
		close(server.done)
		if server.lis != nil {
			err = server.lis.Close()
		}

		for client := range server.clients.All() {
			client.destroy()
		}
		server.closeResources()
	})
	return err
}

func (server *Server) closeResources() {
	server.loop.Stop()
	server.poller.Close()
	if server.drm != nil {
		server.drm.Close()
	}
}
