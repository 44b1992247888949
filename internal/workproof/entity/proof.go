package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Proof is one attested unit of completed work. Proofs are immutable once
// recorded.
type Proof struct {
	ID           uint64         `json:"id"`
	Worker       common.Address `json:"worker"`
	ProofHash    common.Hash    `json:"proof_hash"`
	WorkUnits    *big.Int       `json:"work_units"`
	EarnedAmount *big.Int       `json:"earned_amount"`
	CreatedAt    time.Time      `json:"created_at"`
	ProofURI     string         `json:"proof_uri"`
}

// Clone returns a copy of p that shares no amounts with it.
func (p Proof) Clone() Proof {
	if p.WorkUnits != nil {
		p.WorkUnits = new(big.Int).Set(p.WorkUnits)
	}
	if p.EarnedAmount != nil {
		p.EarnedAmount = new(big.Int).Set(p.EarnedAmount)
	}
	return p
}

// Stats aggregates a worker's proofs.
type Stats struct {
	Count       uint64   `json:"count"`
	TotalUnits  *big.Int `json:"total_units"`
	TotalEarned *big.Int `json:"total_earned"`
}
