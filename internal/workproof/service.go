// Package workproof implements the append-only ledger of verifier-attested
// work events.
package workproof

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/workproof/entity"
)

var (
	ErrNotAuthorizedVerifier = chain.NewRevert("NotAuthorizedVerifier")
	ErrAlreadyAuthorized     = chain.NewRevert("AlreadyAuthorized")
	ErrNotAuthorized         = chain.NewRevert("NotAuthorized")
	ErrInvalidWorker         = chain.NewRevert("InvalidWorker")
	ErrProofNotFound         = chain.NewRevert("ProofNotFound")
	ErrInvalidAmount         = chain.NewRevert("InvalidAmount")
)

// WorkProofSubmitted carries every field of a recorded proof.
type WorkProofSubmitted struct {
	ProofID      uint64         `json:"proofId"`
	Worker       common.Address `json:"worker"`
	ProofHash    common.Hash    `json:"proofHash"`
	WorkUnits    *big.Int       `json:"workUnits"`
	EarnedAmount *big.Int       `json:"earnedAmount"`
	Timestamp    uint64         `json:"timestamp"`
	ProofURI     string         `json:"proofURI"`
}

func (WorkProofSubmitted) EventName() string { return "WorkProofSubmitted" }

type VerifierAuthorized struct {
	Verifier common.Address `json:"verifier"`
}

func (VerifierAuthorized) EventName() string { return "VerifierAuthorized" }

type VerifierRevoked struct {
	Verifier common.Address `json:"verifier"`
}

func (VerifierRevoked) EventName() string { return "VerifierRevoked" }

// Ledger is the WorkProof contract.
type Ledger struct {
	access.Ownable
	chain     *chain.Chain
	address   common.Address
	verifiers *access.Set

	proofs   map[uint64]entity.Proof
	byWorker map[common.Address][]uint64
	count    uint64
}

// New deploys a ledger owned by deployer. The deployer starts out as an
// authorized verifier.
func New(c *chain.Chain, deployer common.Address) *Ledger {
	l := &Ledger{
		Ownable:   access.NewOwnable(deployer),
		chain:     c,
		address:   c.Deploy(deployer),
		verifiers: access.NewSet(deployer),
		proofs:    make(map[uint64]entity.Proof),
		byWorker:  make(map[common.Address][]uint64),
	}
	c.Attach(l)
	return l
}

// Address returns the contract address.
func (l *Ledger) Address() common.Address { return l.address }

// AuthorizeVerifier adds v to the verifier set.
func (l *Ledger) AuthorizeVerifier(ctx context.Context, caller, v common.Address) error {
	return l.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := l.OnlyOwner(caller); err != nil {
			return err
		}
		if !l.verifiers.Grant(tx, v) {
			return ErrAlreadyAuthorized
		}
		tx.Emit(l.address, VerifierAuthorized{Verifier: v})
		return nil
	})
}

// RevokeVerifier removes v from the verifier set.
func (l *Ledger) RevokeVerifier(ctx context.Context, caller, v common.Address) error {
	return l.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := l.OnlyOwner(caller); err != nil {
			return err
		}
		if !l.verifiers.Revoke(tx, v) {
			return ErrNotAuthorized
		}
		tx.Emit(l.address, VerifierRevoked{Verifier: v})
		return nil
	})
}

// IsVerifier reports whether v may submit proofs.
func (l *Ledger) IsVerifier(ctx context.Context, v common.Address) bool {
	var ok bool
	l.chain.View(ctx, func() { ok = l.verifiers.Has(v) })
	return ok
}

// Verifiers lists the authorized verifiers.
func (l *Ledger) Verifiers(ctx context.Context) []common.Address {
	var out []common.Address
	l.chain.View(ctx, func() { out = l.verifiers.Members() })
	return out
}

// SubmitProof records a proof for worker and returns its id. The worker does
// not need to be registered.
func (l *Ledger) SubmitProof(ctx context.Context, caller, worker common.Address, proofHash common.Hash, workUnits, earnedAmount *big.Int, proofURI string) (uint64, error) {
	var id uint64
	err := l.chain.Exec(ctx, func(tx *chain.Tx) error {
		if !l.verifiers.Has(caller) {
			return ErrNotAuthorizedVerifier
		}
		if worker == (common.Address{}) {
			return ErrInvalidWorker
		}
		if !uint256(workUnits) || !uint256(earnedAmount) {
			return ErrInvalidAmount
		}
		id = l.count + 1
		p := entity.Proof{
			ID:           id,
			Worker:       worker,
			ProofHash:    proofHash,
			WorkUnits:    amount(workUnits),
			EarnedAmount: amount(earnedAmount),
			CreatedAt:    tx.Time(),
			ProofURI:     proofURI,
		}
		chain.Assign(tx, &l.count, id)
		chain.Put(tx, l.proofs, id, p)
		chain.Put(tx, l.byWorker, worker, appendID(l.byWorker[worker], id))
		tx.Emit(l.address, WorkProofSubmitted{
			ProofID:      id,
			Worker:       worker,
			ProofHash:    proofHash,
			WorkUnits:    new(big.Int).Set(p.WorkUnits),
			EarnedAmount: new(big.Int).Set(p.EarnedAmount),
			Timestamp:    tx.Unix(),
			ProofURI:     proofURI,
		})
		tx.OnCommit(metrics.ProofsSubmitted.Inc)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetProof returns the proof with the given id.
func (l *Ledger) GetProof(ctx context.Context, id uint64) (entity.Proof, error) {
	var (
		p  entity.Proof
		ok bool
	)
	l.chain.View(ctx, func() { p, ok = l.proofs[id] })
	if !ok {
		return entity.Proof{}, ErrProofNotFound
	}
	return p.Clone(), nil
}

// WorkerProofIDs returns the ids of worker's proofs in submission order.
func (l *Ledger) WorkerProofIDs(ctx context.Context, worker common.Address) []uint64 {
	var out []uint64
	l.chain.View(ctx, func() {
		out = append([]uint64(nil), l.byWorker[worker]...)
	})
	return out
}

// ProofCount returns the number of recorded proofs, which is also the
// highest assigned id.
func (l *Ledger) ProofCount(ctx context.Context) uint64 {
	var n uint64
	l.chain.View(ctx, func() { n = l.count })
	return n
}

// WorkerStats sums a worker's proofs. It walks the worker's whole index; the
// indexer keeps the same aggregate in SQL for large histories.
func (l *Ledger) WorkerStats(ctx context.Context, worker common.Address) entity.Stats {
	st := entity.Stats{TotalUnits: new(big.Int), TotalEarned: new(big.Int)}
	l.chain.View(ctx, func() {
		for _, id := range l.byWorker[worker] {
			p := l.proofs[id]
			st.Count++
			st.TotalUnits.Add(st.TotalUnits, p.WorkUnits)
			st.TotalEarned.Add(st.TotalEarned, p.EarnedAmount)
		}
	})
	return st
}

// uint256 accepts nil as zero.
func uint256(v *big.Int) bool {
	return v == nil || (v.Sign() >= 0 && v.BitLen() <= 256)
}

func amount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// appendID returns a fresh slice so the journaled previous value stays intact.
func appendID(ids []uint64, id uint64) []uint64 {
	out := make([]uint64, len(ids), len(ids)+1)
	copy(out, ids)
	return append(out, id)
}
