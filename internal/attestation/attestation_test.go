package attestation

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	worker = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	vault  = common.HexToAddress("0x000000000000000000000000000000000000beef")

	genesis = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
)

func mustKey(t *testing.T, hex string) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.HexToECDSA(hex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	return k
}

// Well-known development keys.
func signerKey(t *testing.T) *ecdsa.PrivateKey {
	return mustKey(t, "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
}

func otherKey(t *testing.T) *ecdsa.PrivateKey {
	return mustKey(t, "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
}

type fixture struct {
	chain    *chain.Chain
	clock    *clockwork.FakeClock
	verifier *Verifier
	key      *ecdsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(genesis)
	c := chain.New(chain.Config{Clock: clock})
	v := NewVerifier(c, owner)
	key := signerKey(t)
	if err := v.ApproveSigner(context.Background(), owner, crypto.PubkeyToAddress(key.PublicKey)); err != nil {
		t.Fatalf("ApproveSigner() error: %v", err)
	}
	return &fixture{chain: c, clock: clock, verifier: v, key: key}
}

func sampleAttestation(nonce uint64) CreditAttestation {
	now := uint64(genesis.Unix())
	return CreditAttestation{
		Worker:      worker,
		TrustScore:  7500,
		PD:          1200,
		CreditLimit: big.NewInt(500_000_000),
		AprBps:      1200,
		TenureDays:  30,
		FraudFlags:  0,
		IssuedAt:    now,
		ExpiresAt:   now + 900,
		Nonce:       nonce,
	}
}

func (f *fixture) sign(t *testing.T, att CreditAttestation, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	sig, err := Sign(f.verifier.HashAttestation(att), key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return sig
}

// ─── hashing ────────────────────────────────────────────────────────────────

func TestTypeHashes(t *testing.T) {
	want := common.HexToHash("0x8b73c3c69bb8fe3d512ecc4cf759cc79239f7b179b0ffacaa9a75d522b39400f")
	if DomainTypeHash != want {
		t.Errorf("DomainTypeHash = %s, want %s", DomainTypeHash.Hex(), want.Hex())
	}
	if got := crypto.Keccak256Hash([]byte(attestationType)); AttestationTypeHash != got {
		t.Errorf("AttestationTypeHash = %s, want %s", AttestationTypeHash.Hex(), got.Hex())
	}
}

func TestHashAttestation_MatchesTypedDataEncoder(t *testing.T) {
	domain := Domain{ChainID: big.NewInt(31337), VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")}
	att := sampleAttestation(42)

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"CreditAttestation": {
				{Name: "worker", Type: "address"},
				{Name: "trustScore", Type: "uint32"},
				{Name: "pd", Type: "uint32"},
				{Name: "creditLimit", Type: "uint256"},
				{Name: "aprBps", Type: "uint16"},
				{Name: "tenureDays", Type: "uint16"},
				{Name: "fraudFlags", Type: "uint32"},
				{Name: "issuedAt", Type: "uint64"},
				{Name: "expiresAt", Type: "uint64"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: "CreditAttestation",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(31337),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"worker":      att.Worker.Hex(),
			"trustScore":  "7500",
			"pd":          "1200",
			"creditLimit": "500000000",
			"aprBps":      "1200",
			"tenureDays":  "30",
			"fraudFlags":  "0",
			"issuedAt":    new(big.Int).SetUint64(att.IssuedAt).String(),
			"expiresAt":   new(big.Int).SetUint64(att.ExpiresAt).String(),
			"nonce":       "42",
		},
	}
	want, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		t.Fatalf("TypedDataAndHash: %v", err)
	}
	if got := HashAttestation(domain, att); got != common.BytesToHash(want) {
		t.Errorf("HashAttestation() = %s, want %s", got.Hex(), common.BytesToHash(want).Hex())
	}
}

func TestHashAttestation_Deterministic(t *testing.T) {
	d := Domain{ChainID: big.NewInt(31337), VerifyingContract: vault}
	a, b := sampleAttestation(1), sampleAttestation(1)
	if HashAttestation(d, a) != HashAttestation(d, b) {
		t.Fatal("identical attestations hashed differently")
	}
}

func TestHashAttestation_EveryFieldMatters(t *testing.T) {
	d := Domain{ChainID: big.NewInt(31337), VerifyingContract: vault}
	base := HashAttestation(d, sampleAttestation(1))

	mutations := map[string]func(*CreditAttestation){
		"worker":      func(a *CreditAttestation) { a.Worker = owner },
		"trustScore":  func(a *CreditAttestation) { a.TrustScore++ },
		"pd":          func(a *CreditAttestation) { a.PD++ },
		"creditLimit": func(a *CreditAttestation) { a.CreditLimit = big.NewInt(500_000_001) },
		"aprBps":      func(a *CreditAttestation) { a.AprBps++ },
		"tenureDays":  func(a *CreditAttestation) { a.TenureDays++ },
		"fraudFlags":  func(a *CreditAttestation) { a.FraudFlags = 1 },
		"issuedAt":    func(a *CreditAttestation) { a.IssuedAt++ },
		"expiresAt":   func(a *CreditAttestation) { a.ExpiresAt++ },
		"nonce":       func(a *CreditAttestation) { a.Nonce++ },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			att := sampleAttestation(1)
			mutate(&att)
			if HashAttestation(d, att) == base {
				t.Errorf("changing %s did not change the digest", name)
			}
		})
	}

	other := Domain{ChainID: big.NewInt(1), VerifyingContract: vault}
	if HashAttestation(other, sampleAttestation(1)) == base {
		t.Error("changing the chain id did not change the digest")
	}
}

// ─── signatures ─────────────────────────────────────────────────────────────

func TestSignRecover(t *testing.T) {
	key := signerKey(t)
	want := crypto.PubkeyToAddress(key.PublicKey)
	digest := crypto.Keccak256Hash([]byte("payload"))

	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Errorf("v = %d, want 27 or 28", v)
	}
	got, err := Recover(digest, sig)
	if err != nil || got != want {
		t.Fatalf("Recover() = %s, %v; want %s", got.Hex(), err, want.Hex())
	}

	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	if got, err := Recover(digest, raw); err != nil || got != want {
		t.Errorf("Recover(v in {0,1}) = %s, %v", got.Hex(), err)
	}
}

func TestRecover_RejectsMalformed(t *testing.T) {
	key := signerKey(t)
	digest := crypto.Keccak256Hash([]byte("payload"))
	sig, _ := Sign(digest, key)

	// Flip s into the upper half of the curve order.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	highS := append([]byte(nil), sig...)
	new(big.Int).Sub(n, s).FillBytes(highS[32:64])
	highS[64] ^= 1

	badV := append([]byte(nil), sig...)
	badV[64] = 30

	for name, in := range map[string][]byte{
		"short":  sig[:64],
		"high s": highS,
		"bad v":  badV,
		"zero":   make([]byte, 65),
	} {
		if _, err := Recover(digest, in); !errors.Is(err, ErrMalformedSignature) {
			t.Errorf("%s: Recover() = %v, want ErrMalformedSignature", name, err)
		}
	}
}

// ─── verifier ───────────────────────────────────────────────────────────────

func TestVerifyAndConsume_NonceSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	att := sampleAttestation(7)
	sig := f.sign(t, att, f.key)

	signer, err := f.verifier.VerifyAndConsumeAttestation(ctx, vault, att, sig)
	if err != nil {
		t.Fatalf("first consume error: %v", err)
	}
	if signer != crypto.PubkeyToAddress(f.key.PublicKey) {
		t.Errorf("signer = %s", signer.Hex())
	}
	if !f.verifier.IsNonceUsed(ctx, 7) {
		t.Error("nonce should be marked used")
	}

	if _, err := f.verifier.VerifyAndConsumeAttestation(ctx, vault, att, sig); !errors.Is(err, ErrNonceUsed) {
		t.Errorf("second consume = %v, want NonceUsed", err)
	}
	// A replay is rejected on the nonce regardless of the signature.
	if _, err := f.verifier.VerifyAndConsumeAttestation(ctx, vault, att, []byte{1, 2, 3}); !errors.Is(err, ErrNonceUsed) {
		t.Errorf("replay with junk signature = %v, want NonceUsed", err)
	}
	changed := att
	changed.CreditLimit = big.NewInt(1)
	if _, err := f.verifier.VerifyAndConsumeAttestation(ctx, vault, changed, f.sign(t, changed, f.key)); !errors.Is(err, ErrNonceUsed) {
		t.Errorf("replay with different terms = %v, want NonceUsed", err)
	}
}

func TestVerifyAndConsume_Event(t *testing.T) {
	f := newFixture(t)
	att := sampleAttestation(9)
	after := f.chain.Logs(0, 0)

	if _, err := f.verifier.VerifyAndConsumeAttestation(context.Background(), vault, att, f.sign(t, att, f.key)); err != nil {
		t.Fatal(err)
	}
	logs := f.chain.Logs(uint64(len(after)), 0)
	if len(logs) != 1 {
		t.Fatalf("expected 1 new event, got %d", len(logs))
	}
	ev, ok := logs[0].Event.(AttestationVerified)
	if !ok || ev.Nonce != 9 || ev.Worker != worker || ev.Consumer != vault {
		t.Errorf("event = %+v", logs[0].Event)
	}
}

func TestVerifyAttestation_DoesNotConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	att := sampleAttestation(3)
	sig := f.sign(t, att, f.key)

	for i := 0; i < 2; i++ {
		if _, err := f.verifier.VerifyAttestation(ctx, att, sig); err != nil {
			t.Fatalf("VerifyAttestation() #%d error: %v", i, err)
		}
	}
	if f.verifier.IsNonceUsed(ctx, 3) {
		t.Error("view verification must not consume the nonce")
	}
}

func TestVerifyAttestation_InvalidSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	att := sampleAttestation(4)

	if _, err := f.verifier.VerifyAttestation(ctx, att, f.sign(t, att, otherKey(t))); !errors.Is(err, ErrInvalidSigner) {
		t.Errorf("unapproved signer = %v, want InvalidSigner", err)
	}
	if _, err := f.verifier.VerifyAttestation(ctx, att, []byte("junk")); !errors.Is(err, ErrInvalidSigner) {
		t.Errorf("malformed signature = %v, want InvalidSigner", err)
	}

	// A signature over different terms recovers some other address.
	sig := f.sign(t, att, f.key)
	tampered := att
	tampered.AprBps = 1
	if _, err := f.verifier.VerifyAttestation(ctx, tampered, sig); !errors.Is(err, ErrInvalidSigner) {
		t.Errorf("tampered attestation = %v, want InvalidSigner", err)
	}
}

func TestVerifyAttestation_ValidityWindow(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		issued  int64
		want    error
	}{
		{"before issuedAt", 0, 60, ErrNotYetValid},
		{"at issuedAt", 0, 0, nil},
		{"at expiresAt", 900 * time.Second, 0, nil},
		{"after expiresAt", 901 * time.Second, 0, ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			att := sampleAttestation(5)
			att.IssuedAt = uint64(genesis.Unix() + tt.issued)
			att.ExpiresAt = uint64(genesis.Unix() + 900)
			sig := f.sign(t, att, f.key)
			f.clock.Advance(tt.advance)

			_, err := f.verifier.VerifyAttestation(context.Background(), att, sig)
			if tt.want == nil && err != nil {
				t.Errorf("VerifyAttestation() error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("VerifyAttestation() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyAndConsume_RevertReleasesNonce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	att := sampleAttestation(11)
	sig := f.sign(t, att, f.key)
	boom := chain.NewRevert("Boom")

	err := f.chain.Exec(ctx, func(tx *chain.Tx) error {
		if _, err := f.verifier.VerifyAndConsumeAttestation(tx.Context(), vault, att, sig); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Exec() = %v, want Boom", err)
	}
	if f.verifier.IsNonceUsed(ctx, 11) {
		t.Fatal("nonce should be released when the outer transaction reverts")
	}
	if _, err := f.verifier.VerifyAndConsumeAttestation(ctx, vault, att, sig); err != nil {
		t.Errorf("retry after revert error: %v", err)
	}
}

func TestSignerManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addr := crypto.PubkeyToAddress(f.key.PublicKey)

	if err := f.verifier.ApproveSigner(ctx, worker, addr); !errors.Is(err, access.ErrNotOwner) {
		t.Errorf("ApproveSigner() by non-owner = %v, want NotOwner", err)
	}
	if err := f.verifier.ApproveSigner(ctx, owner, addr); !errors.Is(err, ErrSignerAlreadyApproved) {
		t.Errorf("repeat ApproveSigner() = %v, want SignerAlreadyApproved", err)
	}
	if err := f.verifier.RevokeSigner(ctx, owner, addr); err != nil {
		t.Fatalf("RevokeSigner() error: %v", err)
	}
	if err := f.verifier.RevokeSigner(ctx, owner, addr); !errors.Is(err, ErrSignerNotApproved) {
		t.Errorf("repeat RevokeSigner() = %v, want SignerNotApproved", err)
	}
	if f.verifier.IsApprovedSigner(ctx, addr) {
		t.Error("signer should be revoked")
	}

	att := sampleAttestation(12)
	if _, err := f.verifier.VerifyAttestation(ctx, att, f.sign(t, att, f.key)); !errors.Is(err, ErrInvalidSigner) {
		t.Errorf("revoked signer = %v, want InvalidSigner", err)
	}
}

// ─── signer ─────────────────────────────────────────────────────────────────

func TestSigner_Issue(t *testing.T) {
	f := newFixture(t)
	s, err := NewSigner(f.key, f.verifier.Domain(), 1, WithClock(f.clock))
	if err != nil {
		t.Fatal(err)
	}
	terms := Terms{Worker: worker, TrustScore: 8000, PD: 500, CreditLimit: big.NewInt(1_000_000), AprBps: 900, TenureDays: 14}

	a, err := s.Issue(terms)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	b, _ := s.Issue(terms)
	if a.Attestation.Nonce == b.Attestation.Nonce {
		t.Error("consecutive attestations share a nonce")
	}
	if a.Attestation.IssuedAt != uint64(genesis.Unix()) || a.Attestation.ExpiresAt-a.Attestation.IssuedAt != 900 {
		t.Errorf("validity window = [%d, %d]", a.Attestation.IssuedAt, a.Attestation.ExpiresAt)
	}
	if a.Signer != s.Address() {
		t.Errorf("Signer = %s, want %s", a.Signer.Hex(), s.Address().Hex())
	}

	if _, err := f.verifier.VerifyAndConsumeAttestation(context.Background(), vault, a.Attestation, a.Signature); err != nil {
		t.Errorf("issued attestation rejected: %v", err)
	}
	h := s.Hashes(a.Attestation)
	if h.Digest != f.verifier.HashAttestation(a.Attestation) || h.DomainSeparator != f.verifier.Domain().Separator() {
		t.Errorf("Hashes() = %+v disagrees with the verifier", h)
	}
}

func TestCreditAttestation_JSON(t *testing.T) {
	att := sampleAttestation(1)
	att.CreditLimit, _ = new(big.Int).SetString("123456789012345678901234567890", 10)

	data, err := json.Marshal(att)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["creditLimit"] != "123456789012345678901234567890" {
		t.Errorf("creditLimit encoded as %#v, want decimal string", raw["creditLimit"])
	}

	var numeric CreditAttestation
	in := `{"worker":"0x00000000000000000000000000000000000a11ce","creditLimit":5000,"nonce":3}`
	if err := json.Unmarshal([]byte(in), &numeric); err != nil {
		t.Fatalf("Unmarshal(numeric limit) error: %v", err)
	}
	if numeric.CreditLimit.Int64() != 5000 || numeric.Nonce != 3 || numeric.Worker != worker {
		t.Errorf("Unmarshal() = %+v", numeric)
	}

	for _, bad := range []string{`{"creditLimit":"-1"}`, `{"creditLimit":"1.5"}`, `{"creditLimit":"abc"}`} {
		var a CreditAttestation
		if err := json.Unmarshal([]byte(bad), &a); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", bad)
		}
	}
}
