package wl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/internal/debug"
	"deedles.dev/wlcommit/internal/objstore"
	"deedles.dev/wlcommit/syncobj"
	"deedles.dev/wlcommit/wire"
	"golang.org/x/sys/unix"
)

// Client is a connected Wayland client. Apart from Close, its methods
// must only be called on the server's event loop.
type Client struct {
	server    *Server
	id        uint64
	done      chan struct{}
	close     sync.Once
	conn      *wire.Conn
	store     *objstore.Store
	comp      *compositor.Client
	display   *displayObject
	timelines []syncobj.Timeline
	destroyed bool
}

func newClient(server *Server, id uint64, conn *wire.Conn) *Client {
	client := Client{
		server: server,
		id:     id,
		done:   make(chan struct{}),
		conn:   conn,
		store:  objstore.New(),
		comp:   server.comp.NewClient(),
	}

	client.display = &displayObject{object: object{client: &client, id: 1, version: 1}}
	client.store.Add(client.display)

	go client.listen()

	return &client
}

func (client *Client) String() string {
	return fmt.Sprintf("client %v", client.id)
}

// Compositor returns the compositor side of the client, which owns its
// surfaces.
func (client *Client) Compositor() *compositor.Client {
	return client.comp
}

func (client *Client) logger() *slog.Logger {
	return client.server.logger().With("client", client.id)
}

func (client *Client) listen() {
	loop := client.server.loop
	for {
		msg, err := wire.ReadMessage(client.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				client.logger().Debug("read failed", "err", err)
			}
			loop.Do(client.destroy)
			return
		}

		if !loop.Post(func() error { return client.dispatch(msg) }) {
			return
		}
	}
}

func (client *Client) dispatch(msg *wire.MessageBuffer) error {
	if client.destroyed {
		return nil
	}

	obj := client.store.Get(msg.Sender())
	if obj == nil {
		client.fail(client.display, wire.UnknownSenderIDError{Msg: msg})
		return nil
	}

	err := obj.Dispatch(msg)
	debug.Printf("<- %v", msg.Debug(obj))
	if err != nil {
		client.fail(obj, err)
		return fmt.Errorf("%v: %v: %w", client, msg.Debug(obj), err)
	}
	return nil
}

// fail sends the wl_display.error that corresponds to err and
// disconnects the client.
func (client *Client) fail(obj wire.Object, err error) {
	var (
		perr   *compositor.ProtocolError
		objErr wire.UnknownObjectError
		opErr  wire.UnknownOpError
		idErr  wire.UnknownSenderIDError
	)

	switch {
	case errors.As(err, &perr):
		target := obj
		if r, ok := obj.(relatedObject); ok && (perr.Interface != obj.Interface()) {
			if o := r.related(perr.Interface); o != nil {
				target = o
			}
		}
		client.display.error(target, perr.Code, perr.Message)
	case errors.As(err, &objErr), errors.As(err, &idErr):
		client.display.error(client.display, compositor.DisplayErrorInvalidObject, err.Error())
	case errors.As(err, &opErr):
		client.display.error(obj, compositor.DisplayErrorInvalidMethod, err.Error())
	case errors.Is(err, unix.ENOMEM), errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
		client.display.error(client.display, compositor.DisplayErrorNoMemory, err.Error())
	default:
		client.display.error(client.display, compositor.DisplayErrorImplementation, err.Error())
	}

	client.destroy()
}

// send writes an event to the client.
func (client *Client) send(msg *wire.MessageBuilder) {
	if client.destroyed {
		return
	}

	debug.Printf(" -> %v", msg)
	err := msg.Build(client.conn)
	if err != nil {
		client.logger().Debug("send failed", "event", msg.Method, "err", err)
	}
}

// add registers an object created by the client under id.
func (client *Client) add(obj wire.Object, id uint32) error {
	if (id == 0) || (id >= objstore.ServerIDStart) {
		return protocolError(compositor.InterfaceDisplay, compositor.DisplayErrorInvalidObject, "invalid new id %v", id)
	}

	obj.SetID(id)
	err := client.store.Add(obj)
	if err != nil {
		return protocolError(compositor.InterfaceDisplay, compositor.DisplayErrorInvalidObject, "%v", err)
	}
	return nil
}

// addServer registers an object created by the server, such as a
// buffer created by zwp_linux_buffer_params_v1.create.
func (client *Client) addServer(obj wire.Object) {
	obj.SetID(0)
	client.store.Add(obj)
}

// remove destroys obj and, if the client created it, tells the client
// that its ID can be reused.
func (client *Client) remove(obj wire.Object) {
	id := obj.ID()
	if client.store.Get(id) != obj {
		return
	}

	client.store.Delete(id)
	if id < objstore.ServerIDStart {
		client.display.deleteID(id)
	}
}

// Close disconnects the client. It may be called from any goroutine.
func (client *Client) Close() {
	client.server.loop.Do(client.destroy)
}

func (client *Client) destroy() {
	if client.destroyed {
		return
	}
	client.destroyed = true
	client.close.Do(func() { close(client.done) })

	// Timeline fences and surfaces go first so that nothing is left
	// waiting on this client.
	client.comp.Destroy()
	for obj := range client.store.All() {
		client.store.Delete(obj.ID())
	}
	for _, t := range client.timelines {
		err := t.Close()
		if err != nil {
			client.logger().Debug("close timeline", "err", err)
		}
	}
	client.timelines = nil

	client.conn.Close()
	client.server.removeClient(client)
	client.logger().Debug("client destroyed")
}

// Done is closed once the client has been disconnected.
func (client *Client) Done() <-chan struct{} {
	return client.done
}
