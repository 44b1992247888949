package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type txKey struct{}

// Tx is a running transaction. It is only valid inside the function passed
// to Exec.
type Tx struct {
	chain *Chain
	ctx   context.Context
	time  time.Time
	block uint64

	undo    []func()
	events  []pendingEvent
	commits []func()
}

type pendingEvent struct {
	address common.Address
	event   Event
}

func fromContext(ctx context.Context, c *Chain) *Tx {
	if ctx == nil {
		return nil
	}
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok || tx.chain != c {
		return nil
	}
	return tx
}

// Context returns a context carrying this transaction. Calls into other
// contracts must use it so they join the transaction.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Time returns the block timestamp.
func (tx *Tx) Time() time.Time { return tx.time }

// Unix returns the block timestamp in seconds.
func (tx *Tx) Unix() uint64 { return uint64(tx.time.Unix()) }

// Block returns the block height this transaction commits into.
func (tx *Tx) Block() uint64 { return tx.block }

// OnRevert registers fn to undo a mutation if the transaction, or the nested
// call that made the mutation, fails.
func (tx *Tx) OnRevert(fn func()) { tx.undo = append(tx.undo, fn) }

// OnCommit registers fn to run after the transaction committed.
func (tx *Tx) OnCommit(fn func()) { tx.commits = append(tx.commits, fn) }

// Emit records an event emitted by the contract at addr.
func (tx *Tx) Emit(addr common.Address, ev Event) {
	tx.events = append(tx.events, pendingEvent{address: addr, event: ev})
}

func (tx *Tx) nested(fn func(tx *Tx) error) error {
	undoMark, eventMark, commitMark := len(tx.undo), len(tx.events), len(tx.commits)
	if err := fn(tx); err != nil {
		tx.rollback(undoMark, eventMark)
		tx.commits = tx.commits[:commitMark]
		return err
	}
	return nil
}

func (tx *Tx) rollback(undoMark, eventMark int) {
	for i := len(tx.undo) - 1; i >= undoMark; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:undoMark]
	tx.events = tx.events[:eventMark]
}

// ─── Journaled mutations ────────────────────────────────────────────────────

// Put sets m[k] = v and restores the previous entry on revert.
func Put[K comparable, V any](tx *Tx, m map[K]V, k K, v V) {
	old, existed := m[k]
	tx.OnRevert(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// Delete removes m[k] and restores it on revert.
func Delete[K comparable, V any](tx *Tx, m map[K]V, k K) {
	old, existed := m[k]
	if !existed {
		return
	}
	tx.OnRevert(func() { m[k] = old })
	delete(m, k)
}

// Assign sets *p = v and restores the previous value on revert.
func Assign[T any](tx *Tx, p *T, v T) {
	old := *p
	tx.OnRevert(func() { *p = old })
	*p = v
}

// Append appends v to *s and truncates it again on revert.
func Append[T any](tx *Tx, s *[]T, v T) {
	n := len(*s)
	tx.OnRevert(func() { *s = (*s)[:n] })
	*s = append(*s, v)
}
