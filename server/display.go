package wl

import (
	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/wire"
)

const (
	compositorInterface     = "wl_compositor"
	subcompositorInterface  = "wl_subcompositor"
	shmInterface            = "wl_shm"
	linuxDmabufInterface    = "zwp_linux_dmabuf_v1"
	transactionMgrInterface = "wp_transaction_manager_v1"
)

// global is an object advertised through wl_registry.
type global struct {
	name    uint32
	iface   string
	version uint32
	bind    func(client *Client, id, version uint32) error
}

func (server *Server) defaultGlobals() []global {
	globals := []global{
		{iface: compositorInterface, version: 6, bind: bindCompositor},
		{iface: subcompositorInterface, version: 1, bind: bindSubcompositor},
		{iface: shmInterface, version: 2, bind: bindShm},
		{iface: linuxDmabufInterface, version: 3, bind: bindLinuxDmabuf},
		{iface: viewporterInterface, version: 1, bind: bindViewporter},
		{iface: compositor.InterfaceFifoManager, version: 1, bind: bindFifoManager},
		{iface: transactionMgrInterface, version: 1, bind: bindTransactionManager},
	}
	if server.drm != nil {
		globals = append(globals, global{iface: compositor.InterfaceSyncobjManager, version: 1, bind: bindSyncobjManager})
	}

	for i := range globals {
		globals[i].name = uint32(i + 1)
	}
	return globals
}

var displayRequests = []string{"sync", "get_registry"}

type displayObject struct {
	object
}

func (obj *displayObject) Interface() string {
	return compositor.InterfaceDisplay
}

func (obj *displayObject) MethodName(op uint16) string {
	return methodName(displayRequests, op)
}

func (obj *displayObject) Delete() {}

func (obj *displayObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.sync(id)

	case 1:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.getRegistry(id)

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *displayObject) sync(id uint32) error {
	cb := callbackObject{object: object{client: obj.client, version: 1}}
	err := obj.client.add(&cb, id)
	if err != nil {
		return err
	}

	cb.Done(0)
	return nil
}

func (obj *displayObject) getRegistry(id uint32) error {
	registry := registryObject{object: object{client: obj.client, version: 1}}
	err := obj.client.add(&registry, id)
	if err != nil {
		return err
	}

	for _, g := range obj.client.server.globals {
		registry.global(g)
	}
	return nil
}

func (obj *displayObject) error(target wire.Object, code uint32, message string) {
	msg := wire.NewMessage(obj, 0, "error", target.ID(), code, message)
	msg.WriteObject(target)
	msg.WriteUint(code)
	msg.WriteString(message)
	obj.client.send(msg)
}

func (obj *displayObject) deleteID(id uint32) {
	msg := wire.NewMessage(obj, 1, "delete_id", id)
	msg.WriteUint(id)
	obj.client.send(msg)
}

var registryRequests = []string{"bind"}

type registryObject struct {
	object
}

func (obj *registryObject) Interface() string {
	return "wl_registry"
}

func (obj *registryObject) MethodName(op uint16) string {
	return methodName(registryRequests, op)
}

func (obj *registryObject) Delete() {}

func (obj *registryObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		name := msg.ReadUint()
		id := msg.ReadUntypedNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		return obj.bind(name, id)

	default:
		return unknownOp(obj, msg.Op())
	}
}

func (obj *registryObject) bind(name uint32, id wire.NewID) error {
	for _, g := range obj.client.server.globals {
		if g.name != name {
			continue
		}

		if g.iface != id.Interface {
			return protocolError(compositor.InterfaceDisplay, compositor.DisplayErrorInvalidObject, "invalid interface for global %v: have %v, wanted %v", name, id.Interface, g.iface)
		}
		if (id.Version == 0) || (id.Version > g.version) {
			return protocolError(compositor.InterfaceDisplay, compositor.DisplayErrorInvalidObject, "invalid version for global %v (%v): have %v, wanted at most %v", name, g.iface, id.Version, g.version)
		}
		return g.bind(obj.client, id.ID, id.Version)
	}

	return protocolError(compositor.InterfaceDisplay, compositor.DisplayErrorInvalidObject, "invalid global %v", name)
}

func (obj *registryObject) global(g global) {
	msg := wire.NewMessage(obj, 0, "global", g.name, g.iface, g.version)
	msg.WriteUint(g.name)
	msg.WriteString(g.iface)
	msg.WriteUint(g.version)
	obj.client.send(msg)
}

// callbackObject is a wl_callback. It is destroyed as soon as it is
// done.
type callbackObject struct {
	object
}

func (obj *callbackObject) Interface() string {
	return "wl_callback"
}

func (obj *callbackObject) MethodName(op uint16) string {
	return methodName(nil, op)
}

func (obj *callbackObject) Delete() {}

func (obj *callbackObject) Dispatch(msg *wire.MessageBuffer) error {
	return unknownOp(obj, msg.Op())
}

// Done sends the done event and destroys the callback.
func (obj *callbackObject) Done(data uint32) {
	if obj.client.store.Get(obj.id) != obj {
		return
	}

	msg := wire.NewMessage(obj, 0, "done", data)
	msg.WriteUint(data)
	obj.client.send(msg)
	obj.client.remove(obj)
}

// Cancel destroys the callback without sending done.
func (obj *callbackObject) Cancel() {
	obj.client.remove(obj)
}
