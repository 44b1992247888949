package vault

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/registry"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/token"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	genesis = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
)

const poolSize = 500_000

type fixture struct {
	t        *testing.T
	ctx      context.Context
	chain    *chain.Chain
	clock    *clockwork.FakeClock
	token    *token.Token
	verifier *attestation.Verifier
	registry *registry.Registry
	vault    *Vault
	key      *ecdsa.PrivateKey
	nonce    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(genesis)
	c := chain.New(chain.Config{Clock: clock})

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{t: t, ctx: ctx, chain: c, clock: clock, key: key}
	f.token = token.New(c, operator, "Mock USDC", "USDC", 6)
	f.verifier = attestation.NewVerifier(c, operator)
	f.registry = registry.New(c, operator)
	f.vault = New(c, Config{
		Owner:    operator,
		Token:    f.token,
		Verifier: f.verifier,
		Workers:  f.registry,
	})

	must(t, f.verifier.ApproveSigner(ctx, operator, crypto.PubkeyToAddress(key.PublicKey)))
	must(t, f.token.Mint(ctx, operator, operator, big.NewInt(1_000_000)))
	must(t, f.token.Approve(ctx, operator, f.vault.Address(), big.NewInt(poolSize)))
	must(t, f.vault.Deposit(ctx, operator, big.NewInt(poolSize)))
	must(t, f.registry.Register(ctx, alice, "Alice"))
	return f
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// offer returns a signed attestation for worker with a fresh nonce.
func (f *fixture) offer(worker common.Address, limit int64, aprBps, tenureDays uint16, flags uint32) (attestation.CreditAttestation, []byte) {
	f.t.Helper()
	f.nonce++
	now := uint64(f.clock.Now().Unix())
	att := attestation.CreditAttestation{
		Worker:      worker,
		TrustScore:  8000,
		PD:          300,
		CreditLimit: big.NewInt(limit),
		AprBps:      aprBps,
		TenureDays:  tenureDays,
		FraudFlags:  flags,
		IssuedAt:    now,
		ExpiresAt:   now + 900,
		Nonce:       f.nonce,
	}
	sig, err := attestation.Sign(f.verifier.HashAttestation(att), f.key)
	if err != nil {
		f.t.Fatal(err)
	}
	return att, sig
}

func (f *fixture) borrow(worker common.Address, amount int64, aprBps, tenureDays uint16) {
	f.t.Helper()
	att, sig := f.offer(worker, amount, aprBps, tenureDays, 0)
	if _, err := f.vault.RequestLoan(f.ctx, worker, big.NewInt(amount), att, sig); err != nil {
		f.t.Fatalf("RequestLoan() error: %v", err)
	}
}

func (f *fixture) balance(a common.Address) int64 {
	return f.token.BalanceOf(f.ctx, a).Int64()
}

func (f *fixture) events() []chain.Log { return f.chain.Logs(0, 0) }

func lastEvent[E chain.Event](logs []chain.Log) (E, bool) {
	var zero E
	for i := len(logs) - 1; i >= 0; i-- {
		if e, ok := logs[i].Event.(E); ok {
			return e, true
		}
	}
	return zero, false
}

// ─── interest ───────────────────────────────────────────────────────────────

func TestInterest(t *testing.T) {
	tests := []struct {
		principal   int64
		apr, tenure uint16
		want        int64
	}{
		{100000, 1200, 30, 986},
		{1000, 1200, 30, 9},
		{10, 100, 1, 0},
		{3650000, 10000, 365, 3650000},
		{1000, 0, 30, 0},
	}
	for _, tt := range tests {
		got := Interest(big.NewInt(tt.principal), tt.apr, tt.tenure)
		if got.Int64() != tt.want {
			t.Errorf("Interest(%d, %d, %d) = %s, want %d", tt.principal, tt.apr, tt.tenure, got, tt.want)
		}
	}
}

// ─── deposit / withdraw ─────────────────────────────────────────────────────

func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t)

	if got := f.vault.AvailableLiquidity(f.ctx).Int64(); got != poolSize {
		t.Fatalf("AvailableLiquidity() = %d, want %d", got, poolSize)
	}
	if err := f.vault.Deposit(f.ctx, alice, big.NewInt(1)); !errors.Is(err, access.ErrNotOwner) {
		t.Errorf("Deposit() by non-owner = %v, want NotOwner", err)
	}
	if err := f.vault.Deposit(f.ctx, operator, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Deposit(0) = %v, want InvalidAmount", err)
	}
	if err := f.vault.Withdraw(f.ctx, operator, big.NewInt(poolSize+1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("Withdraw(too much) = %v, want InsufficientLiquidity", err)
	}
	if err := f.vault.Withdraw(f.ctx, operator, big.NewInt(100_000)); err != nil {
		t.Fatalf("Withdraw() error: %v", err)
	}
	if got := f.vault.AvailableLiquidity(f.ctx).Int64(); got != poolSize-100_000 {
		t.Errorf("AvailableLiquidity() = %d", got)
	}
	if got := f.vault.Totals(f.ctx).TotalDeposited.Int64(); got != poolSize-100_000 {
		t.Errorf("TotalDeposited = %d", got)
	}
}

func TestWithdraw_IncludesInterestAndFloorsDeposited(t *testing.T) {
	f := newFixture(t)
	f.borrow(alice, 100000, 1200, 30)
	must(t, f.token.Mint(f.ctx, operator, alice, big.NewInt(986)))
	must(t, f.token.Approve(f.ctx, alice, f.vault.Address(), big.NewInt(100986)))
	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(100986)); err != nil {
		t.Fatal(err)
	}

	liquidity := f.vault.AvailableLiquidity(f.ctx)
	if liquidity.Int64() != poolSize+986 {
		t.Fatalf("AvailableLiquidity() = %s, want pool plus interest", liquidity)
	}
	if err := f.vault.Withdraw(f.ctx, operator, liquidity); err != nil {
		t.Fatalf("Withdraw(all) error: %v", err)
	}
	if got := f.vault.Totals(f.ctx).TotalDeposited.Sign(); got != 0 {
		t.Errorf("TotalDeposited should floor at zero, sign = %d", got)
	}
}

// ─── origination ────────────────────────────────────────────────────────────

func TestRequestLoan(t *testing.T) {
	f := newFixture(t)
	att, sig := f.offer(alice, 200000, 1200, 30, 0)

	loan, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(100000), att, sig)
	if err != nil {
		t.Fatalf("RequestLoan() error: %v", err)
	}
	if loan.InterestAmount.Int64() != 986 || loan.TotalDue.Int64() != 100986 {
		t.Errorf("interest/total = %s/%s, want 986/100986", loan.InterestAmount, loan.TotalDue)
	}
	if want := genesis.Add(30 * 24 * time.Hour); !loan.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", loan.DueDate, want)
	}
	if !f.vault.HasActiveLoan(f.ctx, alice) {
		t.Error("HasActiveLoan() = false")
	}
	if f.balance(alice) != 100000 || f.vault.AvailableLiquidity(f.ctx).Int64() != poolSize-100000 {
		t.Errorf("principal not disbursed: alice=%d", f.balance(alice))
	}
	if got := f.vault.Totals(f.ctx).TotalBorrowed.Int64(); got != 100000 {
		t.Errorf("TotalBorrowed = %d, want principal only", got)
	}
	if !f.verifier.IsNonceUsed(f.ctx, att.Nonce) {
		t.Error("attestation nonce should be consumed")
	}
	if got := f.vault.Outstanding(f.ctx, alice).Int64(); got != 100986 {
		t.Errorf("Outstanding() = %d", got)
	}

	ev, ok := lastEvent[LoanApproved](f.events())
	if !ok {
		t.Fatal("LoanApproved not emitted")
	}
	if ev.Borrower != alice || ev.Principal.Int64() != 100000 || ev.InterestAmount.Int64() != 986 ||
		ev.DueDate != uint64(loan.DueDate.Unix()) || ev.Nonce != att.Nonce {
		t.Errorf("LoanApproved = %+v", ev)
	}
}

func TestRequestLoan_Guards(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte)
		want  error
	}{
		{
			name: "someone else's attestation",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				must(f.t, f.registry.Register(f.ctx, bob, "Bob"))
				att, sig := f.offer(bob, 1000, 1200, 30, 0)
				return alice, 100, att, sig
			},
			want: ErrNotAttestationOwner,
		},
		{
			name: "unregistered worker",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				att, sig := f.offer(bob, 1000, 1200, 30, 0)
				return bob, 100, att, sig
			},
			want: ErrNotActiveWorker,
		},
		{
			name: "deactivated worker",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				must(f.t, f.registry.Deactivate(f.ctx, operator, alice))
				att, sig := f.offer(alice, 1000, 1200, 30, 0)
				return alice, 100, att, sig
			},
			want: ErrNotActiveWorker,
		},
		{
			name: "zero amount",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				att, sig := f.offer(alice, 1000, 1200, 30, 0)
				return alice, 0, att, sig
			},
			want: ErrInvalidAmount,
		},
		{
			name: "above credit limit",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				att, sig := f.offer(alice, 1000, 1200, 30, 0)
				return alice, 1001, att, sig
			},
			want: ErrInvalidAmount,
		},
		{
			name: "above vault liquidity",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				att, sig := f.offer(alice, 10*poolSize, 1200, 30, 0)
				return alice, poolSize + 1, att, sig
			},
			want: ErrInsufficientVaultLiquidity,
		},
		{
			name: "fraud flagged",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				att, sig := f.offer(alice, 1000, 1200, 30, 4)
				return alice, 100, att, sig
			},
			want: ErrFraudFlagged,
		},
		{
			name: "expired attestation",
			setup: func(f *fixture) (common.Address, int64, attestation.CreditAttestation, []byte) {
				att, sig := f.offer(alice, 1000, 1200, 30, 0)
				f.clock.Advance(901 * time.Second)
				return alice, 100, att, sig
			},
			want: attestation.ErrExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			caller, amount, att, sig := tt.setup(f)
			before := len(f.events())

			_, err := f.vault.RequestLoan(f.ctx, caller, big.NewInt(amount), att, sig)
			if !errors.Is(err, tt.want) {
				t.Fatalf("RequestLoan() = %v, want %v", err, tt.want)
			}
			if chain.Reason(err) != tt.want.Error() {
				t.Errorf("Reason() = %q", chain.Reason(err))
			}
			if f.verifier.IsNonceUsed(f.ctx, att.Nonce) {
				t.Error("a rejected request must not burn the attestation")
			}
			if f.vault.HasActiveLoan(f.ctx, caller) {
				t.Error("a rejected request must not create a loan")
			}
			if f.vault.AvailableLiquidity(f.ctx).Int64() != poolSize {
				t.Error("a rejected request must not move funds")
			}
			if len(f.events()) != before {
				t.Error("a rejected request must not emit events")
			}
		})
	}
}

func TestRequestLoan_LiquidityBoundary(t *testing.T) {
	f := newFixture(t)
	att, sig := f.offer(alice, poolSize, 1200, 30, 0)
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(poolSize), att, sig); err != nil {
		t.Fatalf("RequestLoan(min(limit, liquidity)) error: %v", err)
	}
}

func TestRequestLoan_RetryAfterFailure(t *testing.T) {
	f := newFixture(t)
	att, sig := f.offer(alice, 1000, 1200, 30, 0)

	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(5000), att, sig); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("first attempt = %v, want InvalidAmount", err)
	}
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(1000), att, sig); err != nil {
		t.Fatalf("retry with the same attestation error: %v", err)
	}
}

func TestRequestLoan_AttestationSingleUse(t *testing.T) {
	f := newFixture(t)
	att, sig := f.offer(alice, 1000, 1200, 30, 0)
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(1000), att, sig); err != nil {
		t.Fatal(err)
	}
	must(t, f.token.Approve(f.ctx, alice, f.vault.Address(), big.NewInt(2000)))
	must(t, f.token.Mint(f.ctx, operator, alice, big.NewInt(9)))
	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(2000)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(1000), att, sig); !errors.Is(err, attestation.ErrNonceUsed) {
		t.Errorf("replayed attestation = %v, want NonceUsed", err)
	}
}

func TestRequestLoan_OneActiveLoan(t *testing.T) {
	f := newFixture(t)
	f.borrow(alice, 1000, 0, 30)

	att, sig := f.offer(alice, 1000, 0, 30, 0)
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(10), att, sig); !errors.Is(err, ErrLoanAlreadyActive) {
		t.Fatalf("second RequestLoan() = %v, want LoanAlreadyActive", err)
	}

	must(t, f.token.Approve(f.ctx, alice, f.vault.Address(), big.NewInt(1000)))
	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	att, sig = f.offer(alice, 1000, 0, 30, 0)
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(10), att, sig); err != nil {
		t.Errorf("RequestLoan() after full repayment error: %v", err)
	}
}

func TestRequestLoan_ConcurrentSameBorrower(t *testing.T) {
	f := newFixture(t)
	const n = 16

	type req struct {
		att attestation.CreditAttestation
		sig []byte
	}
	reqs := make([]req, n)
	for i := range reqs {
		reqs[i].att, reqs[i].sig = f.offer(alice, 1000, 1200, 30, 0)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, r := range reqs {
		wg.Add(1)
		go func(r req) {
			defer wg.Done()
			_, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(100), r.att, r.sig)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, ErrLoanAlreadyActive) {
				t.Errorf("unexpected error: %v", err)
			}
		}(r)
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("%d concurrent requests succeeded, want exactly 1", success)
	}
	if got := f.vault.Totals(f.ctx).TotalBorrowed.Int64(); got != 100 {
		t.Errorf("TotalBorrowed = %d, want 100", got)
	}
}

// ─── repayment ──────────────────────────────────────────────────────────────

func TestRepay_Clamps(t *testing.T) {
	f := newFixture(t)
	f.borrow(alice, 1000, 0, 30)
	must(t, f.token.Mint(f.ctx, operator, alice, big.NewInt(5000)))
	must(t, f.token.Approve(f.ctx, alice, f.vault.Address(), big.NewInt(5000)))

	paid, err := f.vault.Repay(f.ctx, alice, big.NewInt(800))
	if err != nil || paid.Int64() != 800 {
		t.Fatalf("Repay(800) = %v, %v", paid, err)
	}
	if got := f.vault.Totals(f.ctx).TotalBorrowed.Int64(); got != 1000 {
		t.Errorf("partial repayment changed TotalBorrowed to %d", got)
	}
	if ev, _ := lastEvent[Repaid](f.events()); ev.Amount.Int64() != 800 || ev.Remaining.Int64() != 200 {
		t.Errorf("Repaid = %+v", ev)
	}

	before := f.balance(alice)
	paid, err = f.vault.Repay(f.ctx, alice, big.NewInt(500))
	if err != nil {
		t.Fatalf("Repay(500) error: %v", err)
	}
	if paid.Int64() != 200 || before-f.balance(alice) != 200 {
		t.Errorf("pulled %d (balance delta %d), want 200", paid.Int64(), before-f.balance(alice))
	}

	loan, _ := f.vault.GetLoan(f.ctx, alice)
	if loan.Active || loan.AmountRepaid.Int64() != 1000 {
		t.Errorf("loan = active %v repaid %s", loan.Active, loan.AmountRepaid)
	}
	full, ok := lastEvent[LoanFullyRepaid](f.events())
	if !ok || full.TotalPaid.Int64() != 1000 || full.Borrower != alice {
		t.Errorf("LoanFullyRepaid = %+v, %v", full, ok)
	}
	if got := f.vault.Totals(f.ctx).TotalBorrowed.Sign(); got != 0 {
		t.Error("TotalBorrowed should drop by the principal on full repayment")
	}
	if f.vault.Outstanding(f.ctx, alice).Sign() != 0 {
		t.Error("Outstanding() should be zero after repayment")
	}

	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(1)); !errors.Is(err, ErrNoActiveLoan) {
		t.Errorf("Repay() after payoff = %v, want NoActiveLoan", err)
	}
}

func TestRepay_Guards(t *testing.T) {
	f := newFixture(t)

	if _, err := f.vault.Repay(f.ctx, bob, big.NewInt(1)); !errors.Is(err, ErrNoActiveLoan) {
		t.Errorf("Repay() without loan = %v, want NoActiveLoan", err)
	}

	f.borrow(alice, 1000, 1200, 30)
	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Repay(0) = %v, want InvalidAmount", err)
	}
	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(10)); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Errorf("Repay() without allowance = %v, want ERC20InsufficientAllowance", err)
	}
	if loan, _ := f.vault.GetLoan(f.ctx, alice); loan.AmountRepaid.Sign() != 0 {
		t.Error("failed pull must not record a repayment")
	}
}

// ─── default ────────────────────────────────────────────────────────────────

func TestMarkDefault(t *testing.T) {
	f := newFixture(t)
	f.borrow(alice, 1000, 1200, 30)
	loan, _ := f.vault.GetLoan(f.ctx, alice)

	if err := f.vault.MarkDefault(f.ctx, alice, alice); !errors.Is(err, access.ErrNotOwner) {
		t.Errorf("MarkDefault() by non-owner = %v, want NotOwner", err)
	}
	if err := f.vault.MarkDefault(f.ctx, operator, bob); !errors.Is(err, ErrNoActiveLoan) {
		t.Errorf("MarkDefault(no loan) = %v, want NoActiveLoan", err)
	}

	f.clock.Advance(30*24*time.Hour - time.Second)
	if err := f.vault.MarkDefault(f.ctx, operator, alice); !errors.Is(err, ErrNotPastDueDate) {
		t.Fatalf("MarkDefault() before due = %v, want NotPastDueDate", err)
	}

	f.clock.Advance(time.Second)
	if !f.chain.Now(f.ctx).Equal(loan.DueDate) {
		t.Fatalf("clock at %v, due %v", f.chain.Now(f.ctx), loan.DueDate)
	}
	liquidity := f.vault.AvailableLiquidity(f.ctx).Int64()
	if err := f.vault.MarkDefault(f.ctx, operator, alice); err != nil {
		t.Fatalf("MarkDefault() at due date error: %v", err)
	}
	if err := f.vault.MarkDefault(f.ctx, operator, alice); !errors.Is(err, ErrAlreadyDefaulted) {
		t.Errorf("second MarkDefault() = %v, want AlreadyDefaulted", err)
	}

	got, _ := f.vault.GetLoan(f.ctx, alice)
	if !got.Defaulted || got.Active {
		t.Errorf("loan flags = defaulted %v active %v", got.Defaulted, got.Active)
	}
	if f.vault.AvailableLiquidity(f.ctx).Int64() != liquidity {
		t.Error("default must not move funds")
	}
	if f.vault.Totals(f.ctx).TotalBorrowed.Sign() != 0 {
		t.Error("TotalBorrowed should drop by the principal on default")
	}
	ev, ok := lastEvent[LoanDefaulted](f.events())
	if !ok || ev.Outstanding.Int64() != 1009 {
		t.Errorf("LoanDefaulted = %+v, want outstanding 1009", ev)
	}

	if _, err := f.vault.Repay(f.ctx, alice, big.NewInt(1)); !errors.Is(err, ErrLoanDefaulted) {
		t.Errorf("Repay() after default = %v, want LoanDefaulted", err)
	}

	att, sig := f.offer(alice, 1000, 1200, 30, 0)
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(10), att, sig); err != nil {
		t.Errorf("RequestLoan() after default error: %v", err)
	}
}

// ─── reentrancy ─────────────────────────────────────────────────────────────

func TestReentrancy_NestedCallRejected(t *testing.T) {
	f := newFixture(t)
	var nested error
	must(t, f.token.SetReceiver(f.ctx, alice, token.ReceiverFunc(func(ctx context.Context, _ common.Address, _ *big.Int) error {
		_, nested = f.vault.Repay(ctx, alice, big.NewInt(1))
		return nil
	})))

	f.borrow(alice, 1000, 1200, 30)
	if !errors.Is(nested, ErrReentrantCall) {
		t.Errorf("re-entering Repay() = %v, want ReentrancyGuardReentrantCall", nested)
	}
	if loan, _ := f.vault.GetLoan(f.ctx, alice); loan.AmountRepaid.Sign() != 0 {
		t.Error("re-entrant repayment must not apply")
	}
}

func TestReentrancy_HookFailureRevertsOrigination(t *testing.T) {
	f := newFixture(t)
	must(t, f.registry.Register(f.ctx, bob, "Bob"))
	bobAtt, bobSig := f.offer(bob, 1000, 1200, 30, 0)

	must(t, f.token.SetReceiver(f.ctx, alice, token.ReceiverFunc(func(ctx context.Context, _ common.Address, _ *big.Int) error {
		_, err := f.vault.RequestLoan(ctx, bob, big.NewInt(100), bobAtt, bobSig)
		return err
	})))

	att, sig := f.offer(alice, 1000, 1200, 30, 0)
	_, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(100), att, sig)
	if !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("RequestLoan() = %v, want ReentrancyGuardReentrantCall", err)
	}
	if f.vault.HasActiveLoan(f.ctx, alice) || f.vault.HasActiveLoan(f.ctx, bob) {
		t.Error("no loan should exist after the revert")
	}
	if f.verifier.IsNonceUsed(f.ctx, att.Nonce) || f.verifier.IsNonceUsed(f.ctx, bobAtt.Nonce) {
		t.Error("nonces should be released after the revert")
	}

	// The guard is released once the transaction ends.
	must(t, f.token.SetReceiver(f.ctx, alice, nil))
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(100), att, sig); err != nil {
		t.Errorf("RequestLoan() after removing hook error: %v", err)
	}
}

func TestViews_UnknownBorrower(t *testing.T) {
	f := newFixture(t)
	loan, ok := f.vault.GetLoan(f.ctx, bob)
	if ok || loan.Exists() {
		t.Errorf("GetLoan(unknown) = %+v, %v", loan, ok)
	}
	if f.vault.HasActiveLoan(f.ctx, bob) {
		t.Error("HasActiveLoan(unknown) = true")
	}
	if f.vault.Outstanding(f.ctx, bob).Sign() != 0 {
		t.Error("Outstanding(unknown) should be zero")
	}
}

func TestRequestLoan_CreditLimitOutsideUint256(t *testing.T) {
	f := newFixture(t)
	att, sig := f.offer(alice, 5, 1200, 30, 0)

	wrapped := new(big.Int).Lsh(big.NewInt(1), 256)
	wrapped.Add(wrapped, big.NewInt(5))
	for _, limit := range []*big.Int{wrapped, big.NewInt(-5), nil} {
		forged := att
		forged.CreditLimit = limit
		_, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(poolSize), forged, sig)
		if !errors.Is(err, attestation.ErrInvalidCreditLimit) {
			t.Errorf("RequestLoan(limit %v) = %v, want InvalidCreditLimit", limit, err)
		}
	}
	if got := f.vault.AvailableLiquidity(f.ctx).Int64(); got != poolSize {
		t.Fatalf("AvailableLiquidity() = %d, want %d", got, poolSize)
	}
	if f.verifier.IsNonceUsed(f.ctx, att.Nonce) {
		t.Fatal("nonce consumed by a rejected attestation")
	}

	// The honest attestation still works, within its signed limit.
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(6), att, sig); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("RequestLoan(above limit) = %v, want InvalidAmount", err)
	}
	if _, err := f.vault.RequestLoan(f.ctx, alice, big.NewInt(5), att, sig); err != nil {
		t.Errorf("RequestLoan(limit) error: %v", err)
	}
}

func TestGetLoan_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	f.borrow(alice, 1000, 1200, 30)

	loan, _ := f.vault.GetLoan(f.ctx, alice)
	loan.Principal.SetInt64(1)
	loan.TotalDue.SetInt64(1)
	loan.AmountRepaid.SetInt64(999)

	got, _ := f.vault.GetLoan(f.ctx, alice)
	if got.Principal.Int64() != 1000 || got.AmountRepaid.Sign() != 0 {
		t.Errorf("GetLoan() result aliases ledger state: %+v", got)
	}
	if f.vault.Outstanding(f.ctx, alice).Int64() != 1009 {
		t.Errorf("Outstanding() = %s, want 1009", f.vault.Outstanding(f.ctx, alice))
	}
}
