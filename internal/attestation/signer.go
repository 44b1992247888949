package attestation

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a freshly issued attestation stays valid.
const DefaultTTL = 15 * time.Minute

// Terms are the scoring outputs an attestation carries.
type Terms struct {
	Worker      common.Address `json:"worker"`
	TrustScore  uint32         `json:"trustScore"`
	PD          uint32         `json:"pd"`
	CreditLimit *big.Int       `json:"creditLimit"`
	AprBps      uint16         `json:"aprBps"`
	TenureDays  uint16         `json:"tenureDays"`
	FraudFlags  uint32         `json:"fraudFlags"`
}

// Signed is an attestation together with its signature.
type Signed struct {
	Attestation CreditAttestation `json:"attestation"`
	Signature   hexutil.Bytes     `json:"signature"`
	Signer      common.Address    `json:"signer"`
}

// Signer issues attestations on behalf of an approved signing key.
type Signer struct {
	key    *ecdsa.PrivateKey
	domain Domain
	clock  clockwork.Clock
	nonces *snowflake.Node
	ttl    time.Duration
}

// SignerOption customizes a Signer.
type SignerOption func(*Signer)

// WithClock sets the clock used for issuedAt.
func WithClock(c clockwork.Clock) SignerOption { return func(s *Signer) { s.clock = c } }

// WithTTL sets the validity window.
func WithTTL(d time.Duration) SignerOption { return func(s *Signer) { s.ttl = d } }

// NewSigner returns a signer for domain. node must be unique among the
// processes issuing attestations for the same verifier so nonces never
// collide.
func NewSigner(key *ecdsa.PrivateKey, domain Domain, node int64, opts ...SignerOption) (*Signer, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("attestation: nonce generator: %w", err)
	}
	s := &Signer{
		key:    key,
		domain: domain,
		clock:  clockwork.NewRealClock(),
		nonces: n,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address returns the signing address.
func (s *Signer) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

// Issue builds an attestation valid from now for the configured TTL and
// signs it.
func (s *Signer) Issue(t Terms) (Signed, error) {
	now := uint64(s.clock.Now().Unix())
	att := CreditAttestation{
		Worker:      t.Worker,
		TrustScore:  t.TrustScore,
		PD:          t.PD,
		CreditLimit: new(big.Int),
		AprBps:      t.AprBps,
		TenureDays:  t.TenureDays,
		FraudFlags:  t.FraudFlags,
		IssuedAt:    now,
		ExpiresAt:   now + uint64(s.ttl/time.Second),
		Nonce:       uint64(s.nonces.Generate().Int64()),
	}
	if t.CreditLimit != nil {
		att.CreditLimit.Set(t.CreditLimit)
	}
	return s.SignAttestation(att)
}

// SignAttestation signs a fully specified attestation.
func (s *Signer) SignAttestation(att CreditAttestation) (Signed, error) {
	if err := att.Validate(); err != nil {
		return Signed{}, err
	}
	sig, err := Sign(HashAttestation(s.domain, att), s.key)
	if err != nil {
		return Signed{}, fmt.Errorf("attestation: sign: %w", err)
	}
	return Signed{Attestation: att, Signature: sig, Signer: s.Address()}, nil
}

// Hashes returns the debugging hashes for att under the signer's domain.
func (s *Signer) Hashes(att CreditAttestation) Hashes { return Debug(s.domain, att) }
