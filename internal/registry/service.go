// Package registry implements the worker membership ledger: who may borrow.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/registry/entity"
)

var (
	ErrAlreadyRegistered = chain.NewRevert("AlreadyRegistered")
	ErrInvalidName       = chain.NewRevert("InvalidName")
	ErrNotRegistered     = chain.NewRevert("NotRegistered")
)

// WorkerRegistered is emitted once per address.
type WorkerRegistered struct {
	Worker    common.Address `json:"worker"`
	Name      string         `json:"name"`
	Timestamp uint64         `json:"timestamp"`
}

func (WorkerRegistered) EventName() string { return "WorkerRegistered" }

// WorkerDeactivated is emitted on every deactivate call.
type WorkerDeactivated struct {
	Worker common.Address `json:"worker"`
}

func (WorkerDeactivated) EventName() string { return "WorkerDeactivated" }

// WorkerReactivated is emitted on every reactivate call.
type WorkerReactivated struct {
	Worker common.Address `json:"worker"`
}

func (WorkerReactivated) EventName() string { return "WorkerReactivated" }

// Registry is the WorkerRegistry contract.
type Registry struct {
	access.Ownable
	chain   *chain.Chain
	address common.Address

	workers map[common.Address]entity.Worker
	list    []common.Address
}

// New deploys a registry owned by owner.
func New(c *chain.Chain, owner common.Address) *Registry {
	r := &Registry{
		Ownable: access.NewOwnable(owner),
		chain:   c,
		address: c.Deploy(owner),
		workers: make(map[common.Address]entity.Worker),
	}
	c.Attach(r)
	return r
}

// Address returns the contract address.
func (r *Registry) Address() common.Address { return r.address }

// Register creates the caller's worker record.
func (r *Registry) Register(ctx context.Context, caller common.Address, name string) error {
	return r.chain.Exec(ctx, func(tx *chain.Tx) error {
		if name == "" {
			return ErrInvalidName
		}
		if _, ok := r.workers[caller]; ok {
			return ErrAlreadyRegistered
		}
		chain.Put(tx, r.workers, caller, entity.Worker{
			Address:      caller,
			Name:         name,
			RegisteredAt: tx.Time(),
			Active:       true,
		})
		chain.Append(tx, &r.list, caller)
		tx.Emit(r.address, WorkerRegistered{Worker: caller, Name: name, Timestamp: tx.Unix()})
		return nil
	})
}

// Deactivate marks a worker inactive. Deactivating an inactive worker is a
// no-op that still succeeds.
func (r *Registry) Deactivate(ctx context.Context, caller, worker common.Address) error {
	return r.setActive(ctx, caller, worker, false)
}

// Reactivate marks a worker active again.
func (r *Registry) Reactivate(ctx context.Context, caller, worker common.Address) error {
	return r.setActive(ctx, caller, worker, true)
}

func (r *Registry) setActive(ctx context.Context, caller, worker common.Address, active bool) error {
	return r.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := r.OnlyOwner(caller); err != nil {
			return err
		}
		w, ok := r.workers[worker]
		if !ok {
			return ErrNotRegistered
		}
		w.Active = active
		chain.Put(tx, r.workers, worker, w)
		if active {
			tx.Emit(r.address, WorkerReactivated{Worker: worker})
		} else {
			tx.Emit(r.address, WorkerDeactivated{Worker: worker})
		}
		return nil
	})
}

// IsActiveWorker reports whether addr is registered and active. Unknown and
// deactivated addresses both return false; use Status to tell them apart.
func (r *Registry) IsActiveWorker(ctx context.Context, addr common.Address) bool {
	var ok bool
	r.chain.View(ctx, func() { ok = r.workers[addr].Active })
	return ok
}

// Status returns the tri-state membership of addr.
func (r *Registry) Status(ctx context.Context, addr common.Address) entity.Status {
	st := entity.StatusUnregistered
	r.chain.View(ctx, func() {
		w, ok := r.workers[addr]
		switch {
		case !ok:
		case w.Active:
			st = entity.StatusActive
		default:
			st = entity.StatusInactive
		}
	})
	return st
}

// GetWorker returns the record for addr. Unknown addresses yield the zero
// record and false.
func (r *Registry) GetWorker(ctx context.Context, addr common.Address) (entity.Worker, bool) {
	var (
		w  entity.Worker
		ok bool
	)
	r.chain.View(ctx, func() { w, ok = r.workers[addr] })
	return w, ok
}

// WorkerCount returns the number of registered workers.
func (r *Registry) WorkerCount(ctx context.Context) int {
	var n int
	r.chain.View(ctx, func() { n = len(r.list) })
	return n
}

// Workers returns registered workers in registration order.
func (r *Registry) Workers(ctx context.Context, offset, limit int) []entity.Worker {
	var out []entity.Worker
	r.chain.View(ctx, func() {
		if offset < 0 || offset >= len(r.list) {
			return
		}
		end := len(r.list)
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		for _, a := range r.list[offset:end] {
			out = append(out, r.workers[a])
		}
	})
	return out
}
