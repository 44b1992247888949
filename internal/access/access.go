// Package access holds the authorization primitives shared by the contracts:
// a fixed owner and journaled address sets.
package access

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
)

// ErrNotOwner is returned when an owner-only operation is called by anyone
// else.
var ErrNotOwner = chain.NewRevert("NotOwner")

// Ownable pins the operator of a contract at deployment.
type Ownable struct {
	owner common.Address
}

// NewOwnable returns an Ownable owned by owner.
func NewOwnable(owner common.Address) Ownable { return Ownable{owner: owner} }

// Owner returns the owner address.
func (o Ownable) Owner() common.Address { return o.owner }

// OnlyOwner fails with ErrNotOwner unless caller is the owner.
func (o Ownable) OnlyOwner(caller common.Address) error {
	if caller != o.owner {
		return ErrNotOwner
	}
	return nil
}

// Set is an address set whose mutations are undone when the surrounding
// transaction reverts. It is not safe for concurrent use on its own; the
// chain lock serializes access.
type Set struct {
	members map[common.Address]bool
	order   []common.Address
}

// NewSet returns a set seeded with initial.
func NewSet(initial ...common.Address) *Set {
	s := &Set{members: make(map[common.Address]bool)}
	for _, a := range initial {
		if !s.members[a] {
			s.members[a] = true
			s.order = append(s.order, a)
		}
	}
	return s
}

// Grant adds a. It reports false, changing nothing, when a is already a
// member.
func (s *Set) Grant(tx *chain.Tx, a common.Address) bool {
	if s.members[a] {
		return false
	}
	chain.Put(tx, s.members, a, true)
	chain.Append(tx, &s.order, a)
	return true
}

// Revoke removes a. It reports false when a is not a member.
func (s *Set) Revoke(tx *chain.Tx, a common.Address) bool {
	if !s.members[a] {
		return false
	}
	chain.Delete(tx, s.members, a)
	return true
}

// Has reports whether a is a member.
func (s *Set) Has(a common.Address) bool { return s.members[a] }

// Members returns the current members in the order they were first granted.
func (s *Set) Members() []common.Address {
	out := make([]common.Address, 0, len(s.members))
	seen := make(map[common.Address]bool, len(s.members))
	for _, a := range s.order {
		if s.members[a] && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// Load replaces the members outside any transaction. It is used when a
// contract's state is restored from a snapshot.
func (s *Set) Load(members []common.Address) {
	*s = *NewSet(members...)
}
