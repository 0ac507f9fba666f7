package compositor

import (
	"cmp"
	"fmt"

	"golang.org/x/exp/slices"
)

// TransactionID identifies a committed transaction.
type TransactionID uint64

type entry struct {
	surface   SurfaceID
	discarded bool
	state     *State

	// Filled in right before applying.
	depth int
	main  SurfaceID
}

// Transaction is a set of surface states that are applied together.
// After it has been committed, it applies once no fence holds it back
// and every earlier transaction touching one of its surfaces has
// applied.
type Transaction struct {
	comp    *Compositor
	id      TransactionID
	entries  []*entry
	locks    int
	applying bool
}

func newTransaction(c *Compositor) *Transaction {
	return &Transaction{comp: c}
}

// ID returns the ID of the transaction or 0 if it has not been
// committed.
func (tx *Transaction) ID() TransactionID {
	return tx.id
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("transaction#%v", tx.id)
}

func (tx *Transaction) committed() bool {
	return tx.id != 0
}

func (tx *Transaction) entry(id SurfaceID) *entry {
	for _, e := range tx.entries {
		if (e.surface == id) && !e.discarded {
			return e
		}
	}
	return nil
}

// Add moves the pending state of s into the transaction.
func (tx *Transaction) Add(s *Surface) {
	e := tx.entry(s.id)
	if e == nil {
		e = &entry{surface: s.id, state: NewState()}
		tx.entries = append(tx.entries, e)
	}

	s.pending.MergeInto(e.state)
}

// Amend modifies the state of s in the transaction, if it has one.
func (tx *Transaction) Amend(s *Surface, f func(*State)) {
	if e := tx.entry(s.id); e != nil {
		f(e.state)
	}
}

// Merge moves every entry of other into tx. States for surfaces that
// already have an entry are merged into it.
func (tx *Transaction) Merge(other *Transaction) {
	if other.committed() {
		panic(fmt.Errorf("merging committed %v", other))
	}

	for _, oe := range other.entries {
		if oe.discarded {
			tx.entries = append(tx.entries, oe)
			continue
		}
		if e := tx.entry(oe.surface); e != nil {
			oe.state.MergeInto(e.state)
			continue
		}
		tx.entries = append(tx.entries, oe)
	}
	other.entries = nil
}

// Commit hands the transaction over to the Compositor. It arms fences
// for every new buffer that isn't known to be ready and then tries to
// apply it.
//
// If a fence can't be set up the transaction is dropped and an error
// is returned.
func (tx *Transaction) Commit() error {
	if tx.committed() {
		panic(fmt.Errorf("%v committed twice", tx))
	}
	c := tx.comp

	var timelines []*timelineLocker
	var dmabufs []*dmabufLocker
	fail := func(err error) error {
		for _, l := range timelines {
			l.close()
		}
		for _, l := range dmabufs {
			if len(l.waiting) == 0 {
				l.disarm()
			}
		}
		tx.discard()
		return err
	}

	for _, e := range tx.entries {
		if e.state.Committed&FieldBuffer == 0 {
			continue
		}
		buf := e.state.Buffer.Buffer()
		if buf == nil {
			continue
		}

		if e.state.AcquirePoint.IsSet() {
			var client *Client
			if s := c.Surface(e.surface); s != nil {
				client = s.client
			}
			l, err := newTimelineLocker(tx, client, e.state.AcquirePoint)
			if err != nil {
				return fail(fmt.Errorf("wait for %v: %w", e.state.AcquirePoint, err))
			}
			timelines = append(timelines, l)
			continue
		}

		if buf.Dmabuf() == nil {
			continue
		}
		l := c.dmabufLocker(buf)
		if slices.Contains(dmabufs, l) {
			continue
		}
		armed, err := l.arm()
		if err != nil {
			return fail(fmt.Errorf("wait for dma-buf of surface %v: %w", e.surface, err))
		}
		if armed {
			dmabufs = append(dmabufs, l)
		}
	}

	c.nextTransaction++
	tx.id = c.nextTransaction
	c.transactions[tx.id] = tx

	for _, e := range tx.entries {
		if e.discarded {
			continue
		}
		if s := c.Surface(e.surface); s != nil {
			s.queue = append(s.queue, tx.id)
		}
	}

	for _, l := range timelines {
		l.arm()
	}
	for _, l := range dmabufs {
		l.wait(tx)
	}

	c.logger().Debug("transaction committed",
		"transaction", tx.id,
		"entries", len(tx.entries),
		"locks", tx.locks,
	)

	tx.TryApply()
	return nil
}

func (tx *Transaction) lock() {
	tx.locks++
}

func (tx *Transaction) unlock() {
	if tx.locks <= 0 {
		panic(fmt.Errorf("unlocking unlocked %v", tx))
	}

	tx.locks--
	if tx.locks == 0 {
		tx.TryApply()
	}
}

// Locked reports whether a fence is holding the transaction back.
func (tx *Transaction) Locked() bool {
	return tx.locks > 0
}

func (tx *Transaction) isReady() bool {
	if !tx.committed() || tx.applying || (tx.locks > 0) {
		return false
	}
	if tx.comp.Transaction(tx.id) != tx {
		return false
	}

	for _, e := range tx.entries {
		if e.discarded {
			continue
		}
		s := tx.comp.Surface(e.surface)
		if s == nil {
			continue
		}
		if (len(s.queue) == 0) || (s.queue[0] != tx.id) {
			return false
		}
		if e.state.FifoWait && s.HasFifoBarrier() {
			return false
		}
	}

	return true
}

// TryApply applies the transaction if it is ready and reports whether
// it did.
func (tx *Transaction) TryApply() bool {
	if !tx.isReady() {
		return false
	}
	tx.apply()
	return true
}

// compareEntries orders descendants before their ancestors. Entries
// of unrelated trees are ordered by ID only to keep the order stable.
func compareEntries(a, b *entry) int {
	if a.discarded != b.discarded {
		if a.discarded {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(b.depth, a.depth); c != 0 {
		return c
	}
	if c := cmp.Compare(a.main, b.main); c != 0 {
		return c
	}
	return cmp.Compare(a.surface, b.surface)
}

func (tx *Transaction) apply() {
	if !tx.isReady() {
		panic(fmt.Errorf("applying %v before it is ready", tx))
	}
	tx.applying = true
	c := tx.comp

	for _, e := range tx.entries {
		s := c.Surface(e.surface)
		if s == nil {
			e.discarded = true
		}
		if e.discarded {
			continue
		}
		e.depth = s.depth()
		e.main = s.MainSurface().id
	}
	slices.SortFunc(tx.entries, compareEntries)

	for _, e := range tx.entries {
		s := c.Surface(e.surface)
		if e.discarded || (s == nil) {
			e.state.discard()
			continue
		}
		s.applyState(e.state)
		e.state.discard()
	}

	delete(c.transactions, tx.id)

	var next []*Transaction
	for _, e := range tx.entries {
		if e.discarded {
			continue
		}
		s := c.Surface(e.surface)
		if s == nil {
			continue
		}
		if (len(s.queue) == 0) || (s.queue[0] != tx.id) {
			panic(fmt.Errorf("%v is not first in the queue of %v", tx, s))
		}
		s.queue = s.queue[1:]
		if len(s.queue) > 0 {
			if n := c.Transaction(s.queue[0]); n != nil {
				next = append(next, n)
			}
		}
	}

	c.logger().Debug("transaction applied", "transaction", tx.id)
	tx.entries = nil

	for _, n := range next {
		n.TryApply()
	}
}

// discardSurface marks the entries for a destroyed surface so that
// they are never applied.
func (tx *Transaction) discardSurface(id SurfaceID) {
	for _, e := range tx.entries {
		if e.surface == id {
			e.discarded = true
		}
	}
}

// discard drops an uncommitted transaction.
func (tx *Transaction) discard() {
	for _, e := range tx.entries {
		e.state.discard()
	}
	tx.entries = nil
}
