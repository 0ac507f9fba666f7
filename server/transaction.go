package wl

import (
	"deedles.dev/wlcommit/compositor"
	"deedles.dev/wlcommit/wire"
)

var transactionManagerRequests = []string{"destroy", "get_transaction"}

type transactionManagerObject struct {
	object
}

func bindTransactionManager(client *Client, id, version uint32) error {
	obj := transactionManagerObject{object: object{client: client, version: version}}
	return client.add(&obj, id)
}

func (obj *transactionManagerObject) Interface() string {
	return transactionMgrInterface
}

func (obj *transactionManagerObject) MethodName(op uint16) string {
	return methodName(transactionManagerRequests, op)
}

func (obj *transactionManagerObject) Delete() {}

func (obj *transactionManagerObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		id := msg.ReadNewID()
		if err := msg.Err(); err != nil {
			return err
		}
		tx := transactionObject{
			object: object{client: obj.client, version: obj.version},
			group:  obj.client.server.comp.NewTransactionGroup(),
		}
		return obj.client.add(&tx, id)

	default:
		return unknownOp(obj, msg.Op())
	}
}

var transactionRequests = []string{"destroy", "add_surface", "commit"}

// transactionObject is a wp_transaction_v1. Surfaces added to it have
// their commits collected until the transaction is committed.
type transactionObject struct {
	object
	group *compositor.TransactionGroup
}

func (obj *transactionObject) Interface() string {
	return compositor.InterfaceTransaction
}

func (obj *transactionObject) MethodName(op uint16) string {
	return methodName(transactionRequests, op)
}

// Delete drops the collected commits unless the transaction was
// committed.
func (obj *transactionObject) Delete() {
	obj.group.Destroy()
}

func (obj *transactionObject) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		obj.client.remove(obj)
		return nil

	case 1:
		surfaceID := msg.ReadObject()
		if err := msg.Err(); err != nil {
			return err
		}
		surface, err := lookup[*surfaceObject](obj.client, surfaceID, "wl_surface")
		if err != nil {
			return err
		}
		return obj.group.AddSurface(surface.surface)

	case 2:
		return obj.group.Commit()

	default:
		return unknownOp(obj, msg.Op())
	}
}
