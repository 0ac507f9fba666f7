package compositor

import (
	"deedles.dev/wlcommit/internal/xslices"
)

// TransactionGroup collects the commits of several surfaces and
// applies them as one transaction.
type TransactionGroup struct {
	comp     *Compositor
	surfaces []SurfaceID
	tx       *Transaction
	done     bool
}

func (c *Compositor) NewTransactionGroup() *TransactionGroup {
	return &TransactionGroup{comp: c}
}

// AddSurface makes commits of s go into the group until the group is
// committed or destroyed.
func (g *TransactionGroup) AddSurface(s *Surface) error {
	if g.done {
		return protocolError(InterfaceTransaction, TransactionErrorDefunct, "transaction has already been committed")
	}
	if s.group == g {
		return nil
	}
	if s.group != nil {
		return protocolError(InterfaceTransaction, TransactionErrorAlreadyUsed, "%v is already part of another transaction", s)
	}

	s.group = g
	g.surfaces = append(g.surfaces, s.id)
	return nil
}

func (g *TransactionGroup) transaction() *Transaction {
	if g.tx == nil {
		g.tx = newTransaction(g.comp)
	}
	return g.tx
}

func (g *TransactionGroup) removeSurface(s *Surface) {
	xslices.RemoveAll(&g.surfaces, s.id)
	s.group = nil
	if g.tx != nil {
		g.tx.discardSurface(s.id)
	}
}

func (g *TransactionGroup) release() {
	for _, id := range g.surfaces {
		if s := g.comp.Surface(id); (s != nil) && (s.group == g) {
			s.group = nil
		}
	}
	g.surfaces = nil
	g.done = true
}

// Commit commits everything the member surfaces have committed since
// they were added, as a single transaction.
func (g *TransactionGroup) Commit() error {
	if g.done {
		return protocolError(InterfaceTransaction, TransactionErrorDefunct, "transaction has already been committed")
	}
	g.release()

	tx := g.tx
	g.tx = nil
	if tx == nil {
		return nil
	}
	return tx.Commit()
}

// Destroy drops the group without committing it. Member surfaces go
// back to committing on their own.
func (g *TransactionGroup) Destroy() {
	if g.done {
		return
	}
	g.release()

	if g.tx != nil {
		g.tx.discard()
		g.tx = nil
	}
}
