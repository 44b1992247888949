// Package attestation implements the EIP-712 credit attestation scheme: the
// typed-data hashing shared with the off-chain signer, the on-chain verifier
// that consumes nonces, and a Signer for the scoring side.
package attestation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CreditAttestation is a signed, time-bounded credit offer for one worker.
// Field widths follow the EIP-712 type string.
type CreditAttestation struct {
	Worker      common.Address
	TrustScore  uint32
	PD          uint32
	CreditLimit *big.Int
	AprBps      uint16
	TenureDays  uint16
	FraudFlags  uint32
	IssuedAt    uint64
	ExpiresAt   uint64
	Nonce       uint64
}

type attestationJSON struct {
	Worker      common.Address `json:"worker"`
	TrustScore  uint32         `json:"trustScore"`
	PD          uint32         `json:"pd"`
	CreditLimit json.Number    `json:"creditLimit"`
	AprBps      uint16         `json:"aprBps"`
	TenureDays  uint16         `json:"tenureDays"`
	FraudFlags  uint32         `json:"fraudFlags"`
	IssuedAt    uint64         `json:"issuedAt"`
	ExpiresAt   uint64         `json:"expiresAt"`
	Nonce       uint64         `json:"nonce"`
}

var errCreditLimit = errors.New("attestation: creditLimit must be a non-negative integer below 2^256")

// MarshalJSON writes creditLimit as a decimal string so large values survive
// JavaScript clients.
func (a CreditAttestation) MarshalJSON() ([]byte, error) {
	limit := "0"
	if a.CreditLimit != nil {
		limit = a.CreditLimit.String()
	}
	return json.Marshal(struct {
		attestationJSON
		CreditLimit string `json:"creditLimit"`
	}{
		attestationJSON: attestationJSON{
			Worker:     a.Worker,
			TrustScore: a.TrustScore,
			PD:         a.PD,
			AprBps:     a.AprBps,
			TenureDays: a.TenureDays,
			FraudFlags: a.FraudFlags,
			IssuedAt:   a.IssuedAt,
			ExpiresAt:  a.ExpiresAt,
			Nonce:      a.Nonce,
		},
		CreditLimit: limit,
	})
}

// UnmarshalJSON accepts creditLimit as a JSON number or a decimal string.
func (a *CreditAttestation) UnmarshalJSON(data []byte) error {
	var raw attestationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	limit := new(big.Int)
	if raw.CreditLimit != "" {
		if _, ok := limit.SetString(raw.CreditLimit.String(), 10); !ok {
			return fmt.Errorf("%w: %q", errCreditLimit, raw.CreditLimit)
		}
	}
	if !validLimit(limit) {
		return errCreditLimit
	}
	*a = CreditAttestation{
		Worker:      raw.Worker,
		TrustScore:  raw.TrustScore,
		PD:          raw.PD,
		CreditLimit: limit,
		AprBps:      raw.AprBps,
		TenureDays:  raw.TenureDays,
		FraudFlags:  raw.FraudFlags,
		IssuedAt:    raw.IssuedAt,
		ExpiresAt:   raw.ExpiresAt,
		Nonce:       raw.Nonce,
	}
	return nil
}

// Limit returns the credit limit, treating nil as zero.
func (a CreditAttestation) Limit() *big.Int {
	if a.CreditLimit == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.CreditLimit)
}

// Validate reports whether every field fits its EIP-712 type. Only
// creditLimit can be out of range in Go.
func (a CreditAttestation) Validate() error {
	if !validLimit(a.CreditLimit) {
		return errCreditLimit
	}
	return nil
}

func validLimit(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}
