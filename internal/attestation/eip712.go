package attestation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	DomainName    = "UnEmpower"
	DomainVersion = "1"

	domainType      = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	attestationType = "CreditAttestation(address worker,uint32 trustScore,uint32 pd,uint256 creditLimit,uint16 aprBps,uint16 tenureDays,uint32 fraudFlags,uint64 issuedAt,uint64 expiresAt,uint64 nonce)"
)

var (
	DomainTypeHash      = keccak([]byte(domainType))
	AttestationTypeHash = keccak([]byte(attestationType))
)

// Domain is the EIP-712 signing domain of one verifier deployment.
type Domain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator returns the domain separator.
func (d Domain) Separator() common.Hash {
	return keccak(
		DomainTypeHash[:],
		keccak([]byte(DomainName)).Bytes(),
		keccak([]byte(DomainVersion)).Bytes(),
		word(d.ChainID),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// StructHash returns hashStruct(att). Fields are encoded in declaration order
// of the type string.
func StructHash(att CreditAttestation) common.Hash {
	return keccak(
		AttestationTypeHash[:],
		common.LeftPadBytes(att.Worker.Bytes(), 32),
		uintWord(uint64(att.TrustScore)),
		uintWord(uint64(att.PD)),
		word(att.CreditLimit),
		uintWord(uint64(att.AprBps)),
		uintWord(uint64(att.TenureDays)),
		uintWord(uint64(att.FraudFlags)),
		uintWord(att.IssuedAt),
		uintWord(att.ExpiresAt),
		uintWord(att.Nonce),
	)
}

// HashAttestation returns the digest that is signed:
// keccak256("\x19\x01" ‖ domainSeparator ‖ structHash).
func HashAttestation(d Domain, att CreditAttestation) common.Hash {
	sep := d.Separator()
	sh := StructHash(att)
	return keccak([]byte{0x19, 0x01}, sep[:], sh[:])
}

// Hashes bundles the intermediate values for debugging signer mismatches.
type Hashes struct {
	DomainSeparator common.Hash `json:"domain_hash"`
	StructHash      common.Hash `json:"struct_hash"`
	Digest          common.Hash `json:"message_digest"`
}

// Debug returns every hash involved in signing att under d.
func Debug(d Domain, att CreditAttestation) Hashes {
	return Hashes{
		DomainSeparator: d.Separator(),
		StructHash:      StructHash(att),
		Digest:          HashAttestation(d, att),
	}
}

func keccak(parts ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// word encodes v as a uint256. Values outside the uint256 range are not
// truncated: they get a longer encoding that no in-range value shares.
func word(v *big.Int) []byte {
	out := make([]byte, 32)
	switch {
	case v == nil:
		return out
	case v.Sign() < 0:
		return append([]byte{0x80}, common.LeftPadBytes(v.Bytes(), 32)...)
	case v.BitLen() > 256:
		return v.Bytes()
	}
	return v.FillBytes(out)
}

func uintWord(v uint64) []byte {
	return word(new(big.Int).SetUint64(v))
}
