package attestation

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/metrics"
)

var (
	ErrInvalidSigner         = chain.NewRevert("InvalidSigner")
	ErrNonceUsed             = chain.NewRevert("NonceUsed")
	ErrNotYetValid           = chain.NewRevert("NotYetValid")
	ErrExpired               = chain.NewRevert("Expired")
	ErrSignerAlreadyApproved = chain.NewRevert("SignerAlreadyApproved")
	ErrSignerNotApproved     = chain.NewRevert("SignerNotApproved")
	ErrInvalidCreditLimit    = chain.NewRevert("InvalidCreditLimit")
	ErrIssuedBeforeLedger    = chain.NewRevert("IssuedBeforeLedger")
)

type SignerApproved struct {
	Signer common.Address `json:"signer"`
}

func (SignerApproved) EventName() string { return "SignerApproved" }

type SignerRevoked struct {
	Signer common.Address `json:"signer"`
}

func (SignerRevoked) EventName() string { return "SignerRevoked" }

// AttestationVerified is emitted when a nonce is consumed.
type AttestationVerified struct {
	Worker   common.Address `json:"worker"`
	Nonce    uint64         `json:"nonce"`
	Signer   common.Address `json:"signer"`
	Consumer common.Address `json:"consumer"`
}

func (AttestationVerified) EventName() string { return "AttestationVerified" }

// Verifier is the CreditAttestationVerifier contract.
type Verifier struct {
	access.Ownable
	chain   *chain.Chain
	address common.Address
	domain  Domain

	signers   *access.Set
	used      map[uint64]bool
	notBefore uint64
}

// NewVerifier deploys a verifier owned by owner. Its EIP-712 domain binds the
// chain id and the deployed address.
func NewVerifier(c *chain.Chain, owner common.Address) *Verifier {
	addr := c.Deploy(owner)
	v := &Verifier{
		Ownable: access.NewOwnable(owner),
		chain:   c,
		address: addr,
		domain:  Domain{ChainID: c.ChainID(), VerifyingContract: addr},
		signers: access.NewSet(),
		used:    make(map[uint64]bool),
	}
	c.Attach(v)
	return v
}

// Address returns the contract address.
func (v *Verifier) Address() common.Address { return v.address }

// Domain returns the signing domain for this deployment.
func (v *Verifier) Domain() Domain { return v.domain }

// HashAttestation returns the digest a signer must sign for att.
func (v *Verifier) HashAttestation(att CreditAttestation) common.Hash {
	return HashAttestation(v.domain, att)
}

func (v *Verifier) ApproveSigner(ctx context.Context, caller, signer common.Address) error {
	return v.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := v.OnlyOwner(caller); err != nil {
			return err
		}
		if !v.signers.Grant(tx, signer) {
			return ErrSignerAlreadyApproved
		}
		tx.Emit(v.address, SignerApproved{Signer: signer})
		return nil
	})
}

func (v *Verifier) RevokeSigner(ctx context.Context, caller, signer common.Address) error {
	return v.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := v.OnlyOwner(caller); err != nil {
			return err
		}
		if !v.signers.Revoke(tx, signer) {
			return ErrSignerNotApproved
		}
		tx.Emit(v.address, SignerRevoked{Signer: signer})
		return nil
	})
}

func (v *Verifier) IsApprovedSigner(ctx context.Context, signer common.Address) bool {
	var ok bool
	v.chain.View(ctx, func() { ok = v.signers.Has(signer) })
	return ok
}

func (v *Verifier) Signers(ctx context.Context) []common.Address {
	var out []common.Address
	v.chain.View(ctx, func() { out = v.signers.Members() })
	return out
}

// RejectIssuedBefore makes attestations with issuedAt < ts invalid. A ledger
// that does not persist its nonces sets this to its start time, so offers
// consumed by an earlier process cannot be replayed.
func (v *Verifier) RejectIssuedBefore(ctx context.Context, caller common.Address, ts uint64) error {
	return v.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := v.OnlyOwner(caller); err != nil {
			return err
		}
		chain.Assign(tx, &v.notBefore, ts)
		return nil
	})
}

// IsNonceUsed reports whether nonce has been consumed.
func (v *Verifier) IsNonceUsed(ctx context.Context, nonce uint64) bool {
	var used bool
	v.chain.View(ctx, func() { used = v.used[nonce] })
	return used
}

// VerifyAttestation checks att and sig against committed state without
// consuming the nonce and returns the recovered signer.
func (v *Verifier) VerifyAttestation(ctx context.Context, att CreditAttestation, sig []byte) (common.Address, error) {
	var (
		signer common.Address
		err    error
	)
	v.chain.View(ctx, func() {
		signer, err = v.check(att, sig, uint64(v.chain.Now(ctx).Unix()))
	})
	return signer, err
}

// VerifyAndConsumeAttestation performs the same checks and then marks the
// nonce used. Called from inside another contract's transaction, the nonce
// is released again if that transaction reverts.
func (v *Verifier) VerifyAndConsumeAttestation(ctx context.Context, caller common.Address, att CreditAttestation, sig []byte) (common.Address, error) {
	var signer common.Address
	err := v.chain.Exec(ctx, func(tx *chain.Tx) error {
		s, err := v.check(att, sig, tx.Unix())
		if err != nil {
			return err
		}
		chain.Put(tx, v.used, att.Nonce, true)
		tx.Emit(v.address, AttestationVerified{
			Worker:   att.Worker,
			Nonce:    att.Nonce,
			Signer:   s,
			Consumer: caller,
		})
		tx.OnCommit(metrics.AttestationsConsumed.Inc)
		signer = s
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

// check runs the guards in a fixed order: a consumed nonce is reported
// before the signature is even looked at, and the limit is range-checked
// before it is hashed.
func (v *Verifier) check(att CreditAttestation, sig []byte, now uint64) (common.Address, error) {
	if v.used[att.Nonce] {
		return common.Address{}, ErrNonceUsed
	}
	if att.Validate() != nil {
		return common.Address{}, ErrInvalidCreditLimit
	}
	signer, err := Recover(v.HashAttestation(att), sig)
	if err != nil || !v.signers.Has(signer) {
		return common.Address{}, ErrInvalidSigner
	}
	if att.IssuedAt < v.notBefore {
		return common.Address{}, ErrIssuedBeforeLedger
	}
	if now < att.IssuedAt {
		return common.Address{}, ErrNotYetValid
	}
	if now > att.ExpiresAt {
		return common.Address{}, ErrExpired
	}
	return signer, nil
}
