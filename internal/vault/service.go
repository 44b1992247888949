// Package vault implements the LoanVault: the pool that originates loans
// against verified credit attestations and collects repayments.
package vault

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/vault/entity"
)

var (
	ErrInvalidAmount              = chain.NewRevert("InvalidAmount")
	ErrInsufficientLiquidity      = chain.NewRevert("InsufficientLiquidity")
	ErrNotAttestationOwner        = chain.NewRevert("NotAttestationOwner")
	ErrNotActiveWorker            = chain.NewRevert("NotActiveWorker")
	ErrLoanAlreadyActive          = chain.NewRevert("LoanAlreadyActive")
	ErrInsufficientVaultLiquidity = chain.NewRevert("InsufficientVaultLiquidity")
	ErrFraudFlagged               = chain.NewRevert("FraudFlagged")
	ErrNoActiveLoan               = chain.NewRevert("NoActiveLoan")
	ErrLoanDefaulted              = chain.NewRevert("LoanDefaulted")
	ErrNotPastDueDate             = chain.NewRevert("NotPastDueDate")
	ErrAlreadyDefaulted           = chain.NewRevert("AlreadyDefaulted")
	ErrReentrantCall              = chain.NewRevert("ReentrancyGuardReentrantCall")
)

const (
	bpsDenominator = 10000
	daysPerYear    = 365
	secondsPerDay  = 86400
)

// Token is the pool's accounting token.
type Token interface {
	BalanceOf(ctx context.Context, addr common.Address) *big.Int
	Transfer(ctx context.Context, caller, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, caller, from, to common.Address, amount *big.Int) error
}

// AttestationVerifier validates and consumes credit attestations.
type AttestationVerifier interface {
	VerifyAndConsumeAttestation(ctx context.Context, caller common.Address, att attestation.CreditAttestation, sig []byte) (common.Address, error)
}

// WorkerDirectory answers registry membership.
type WorkerDirectory interface {
	IsActiveWorker(ctx context.Context, addr common.Address) bool
}

// Vault is the LoanVault contract.
type Vault struct {
	access.Ownable
	chain    *chain.Chain
	address  common.Address
	token    Token
	verifier AttestationVerifier
	workers  WorkerDirectory
	logger   *zap.SugaredLogger

	loans          map[common.Address]entity.Loan
	totalDeposited *big.Int
	totalBorrowed  *big.Int
	entered        bool
}

// Config wires a vault to its collaborators.
type Config struct {
	Owner    common.Address
	Token    Token
	Verifier AttestationVerifier
	Workers  WorkerDirectory
	Logger   *zap.SugaredLogger
}

// New deploys a vault.
func New(c *chain.Chain, cfg Config) *Vault {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	v := &Vault{
		Ownable:        access.NewOwnable(cfg.Owner),
		chain:          c,
		address:        c.Deploy(cfg.Owner),
		token:          cfg.Token,
		verifier:       cfg.Verifier,
		workers:        cfg.Workers,
		logger:         cfg.Logger,
		loans:          make(map[common.Address]entity.Loan),
		totalDeposited: new(big.Int),
		totalBorrowed:  new(big.Int),
	}
	c.Attach(v)
	return v
}

// Address returns the contract address. Borrowers approve this address
// before repaying.
func (v *Vault) Address() common.Address { return v.address }

// Deposit pulls amount from the operator into the pool. The operator must
// have approved the vault first.
func (v *Vault) Deposit(ctx context.Context, caller common.Address, amount *big.Int) error {
	return v.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := v.OnlyOwner(caller); err != nil {
			return err
		}
		if !positive(amount) {
			return ErrInvalidAmount
		}
		chain.Assign(tx, &v.totalDeposited, new(big.Int).Add(v.totalDeposited, amount))
		if err := v.token.TransferFrom(tx.Context(), v.address, caller, v.address, amount); err != nil {
			return err
		}
		tx.Emit(v.address, Deposited{Depositor: caller, Amount: new(big.Int).Set(amount)})
		v.afterCommit(tx)
		return nil
	})
}

// Withdraw sends amount from the pool to the operator. Liquidity is the
// vault's token balance, which includes interest paid in.
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, amount *big.Int) error {
	return v.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := v.OnlyOwner(caller); err != nil {
			return err
		}
		if !positive(amount) {
			return ErrInvalidAmount
		}
		if amount.Cmp(v.token.BalanceOf(tx.Context(), v.address)) > 0 {
			return ErrInsufficientLiquidity
		}
		deposited := new(big.Int).Sub(v.totalDeposited, amount)
		if deposited.Sign() < 0 {
			deposited.SetInt64(0)
		}
		chain.Assign(tx, &v.totalDeposited, deposited)
		if err := v.token.Transfer(tx.Context(), v.address, caller, amount); err != nil {
			return err
		}
		tx.Emit(v.address, Withdrawn{Recipient: caller, Amount: new(big.Int).Set(amount)})
		v.afterCommit(tx)
		return nil
	})
}

// RequestLoan originates a loan for caller against a signed attestation.
// The attestation nonce is consumed first; any later failure reverts the
// whole call, nonce included.
func (v *Vault) RequestLoan(ctx context.Context, caller common.Address, amount *big.Int, att attestation.CreditAttestation, sig []byte) (entity.Loan, error) {
	var loan entity.Loan
	err := v.chain.Exec(ctx, func(tx *chain.Tx) error {
		release, err := v.enter()
		if err != nil {
			return err
		}
		defer release()

		if _, err := v.verifier.VerifyAndConsumeAttestation(tx.Context(), v.address, att, sig); err != nil {
			return err
		}
		if att.Worker != caller {
			return ErrNotAttestationOwner
		}
		if !v.workers.IsActiveWorker(tx.Context(), caller) {
			return ErrNotActiveWorker
		}
		if v.loans[caller].Active {
			return ErrLoanAlreadyActive
		}
		if !positive(amount) || amount.Cmp(att.Limit()) > 0 {
			return ErrInvalidAmount
		}
		if amount.Cmp(v.token.BalanceOf(tx.Context(), v.address)) > 0 {
			return ErrInsufficientVaultLiquidity
		}
		if att.FraudFlags != 0 {
			return ErrFraudFlagged
		}

		principal := new(big.Int).Set(amount)
		interest := Interest(principal, att.AprBps, att.TenureDays)
		loan = entity.Loan{
			Borrower:       caller,
			Principal:      principal,
			InterestAmount: interest,
			TotalDue:       new(big.Int).Add(principal, interest),
			AmountRepaid:   new(big.Int),
			StartTime:      tx.Time(),
			DueDate:        tx.Time().Add(time.Duration(att.TenureDays) * secondsPerDay * time.Second),
			AprBps:         att.AprBps,
			TenureDays:     att.TenureDays,
			Nonce:          att.Nonce,
			Active:         true,
		}
		chain.Put(tx, v.loans, caller, loan)
		chain.Assign(tx, &v.totalBorrowed, new(big.Int).Add(v.totalBorrowed, principal))

		if err := v.token.Transfer(tx.Context(), v.address, caller, principal); err != nil {
			return err
		}
		tx.Emit(v.address, LoanApproved{
			Borrower:       caller,
			Principal:      principal,
			InterestAmount: interest,
			DueDate:        uint64(loan.DueDate.Unix()),
			Nonce:          att.Nonce,
		})
		tx.OnCommit(func() {
			metrics.LoansOriginated.Inc()
			metrics.PrincipalDisbursed.Add(metrics.Units(principal))
			v.logger.Infow("loan originated", "borrower", caller.Hex(), "principal", principal.String(), "nonce", att.Nonce)
		})
		v.afterCommit(tx)
		return nil
	})
	if err != nil {
		return entity.Loan{}, err
	}
	return loan.Clone(), nil
}

// Repay pulls up to amount from caller towards the active loan. Amounts above
// the remaining balance are clamped, not rejected. It returns the amount
// actually pulled.
func (v *Vault) Repay(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	var paid *big.Int
	err := v.chain.Exec(ctx, func(tx *chain.Tx) error {
		release, err := v.enter()
		if err != nil {
			return err
		}
		defer release()

		loan := v.loans[caller]
		if loan.Defaulted {
			return ErrLoanDefaulted
		}
		if !loan.Active {
			return ErrNoActiveLoan
		}
		if !positive(amount) {
			return ErrInvalidAmount
		}

		remaining := loan.Remaining()
		pay := new(big.Int).Set(amount)
		if pay.Cmp(remaining) > 0 {
			pay.Set(remaining)
		}
		loan.AmountRepaid = new(big.Int).Add(loan.AmountRepaid, pay)
		remaining = loan.Remaining()
		full := remaining.Sign() == 0
		if full {
			loan.Active = false
			chain.Assign(tx, &v.totalBorrowed, new(big.Int).Sub(v.totalBorrowed, loan.Principal))
		}
		chain.Put(tx, v.loans, caller, loan)

		if err := v.token.TransferFrom(tx.Context(), v.address, caller, v.address, pay); err != nil {
			return err
		}
		tx.Emit(v.address, Repaid{Borrower: caller, Amount: pay, Remaining: remaining})
		if full {
			tx.Emit(v.address, LoanFullyRepaid{Borrower: caller, TotalPaid: new(big.Int).Set(loan.AmountRepaid)})
		}
		tx.OnCommit(func() {
			metrics.Repayments.Add(metrics.Units(pay))
			if full {
				metrics.LoansRepaid.Inc()
			}
		})
		v.afterCommit(tx)
		paid = pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// MarkDefault flags an overdue loan as defaulted. It moves no funds.
func (v *Vault) MarkDefault(ctx context.Context, caller, borrower common.Address) error {
	return v.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := v.OnlyOwner(caller); err != nil {
			return err
		}
		loan := v.loans[borrower]
		if loan.Defaulted {
			return ErrAlreadyDefaulted
		}
		if !loan.Active {
			return ErrNoActiveLoan
		}
		if tx.Time().Before(loan.DueDate) {
			return ErrNotPastDueDate
		}
		loan.Defaulted = true
		loan.Active = false
		chain.Put(tx, v.loans, borrower, loan)
		chain.Assign(tx, &v.totalBorrowed, new(big.Int).Sub(v.totalBorrowed, loan.Principal))
		tx.Emit(v.address, LoanDefaulted{Borrower: borrower, Outstanding: loan.Remaining()})
		tx.OnCommit(func() {
			metrics.LoansDefaulted.Inc()
			v.logger.Warnw("loan defaulted", "borrower", borrower.Hex(), "outstanding", loan.Remaining().String())
		})
		v.afterCommit(tx)
		return nil
	})
}

// GetLoan returns borrower's loan slot. An empty slot yields the zero Loan
// and false.
func (v *Vault) GetLoan(ctx context.Context, borrower common.Address) (entity.Loan, bool) {
	var (
		l  entity.Loan
		ok bool
	)
	v.chain.View(ctx, func() { l, ok = v.loans[borrower] })
	return l.Clone(), ok
}

// HasActiveLoan reports whether borrower has an outstanding loan.
func (v *Vault) HasActiveLoan(ctx context.Context, borrower common.Address) bool {
	var ok bool
	v.chain.View(ctx, func() { ok = v.loans[borrower].Active })
	return ok
}

// Outstanding returns what borrower still owes on an active loan.
func (v *Vault) Outstanding(ctx context.Context, borrower common.Address) *big.Int {
	out := new(big.Int)
	v.chain.View(ctx, func() {
		if l := v.loans[borrower]; l.Active {
			out = l.Remaining()
		}
	})
	return out
}

// AvailableLiquidity returns the vault's token balance.
func (v *Vault) AvailableLiquidity(ctx context.Context) *big.Int {
	return v.token.BalanceOf(ctx, v.address)
}

// Totals returns the aggregate counters.
func (v *Vault) Totals(ctx context.Context) entity.Totals {
	var t entity.Totals
	v.chain.View(ctx, func() {
		t = entity.Totals{
			TotalDeposited: new(big.Int).Set(v.totalDeposited),
			TotalBorrowed:  new(big.Int).Set(v.totalBorrowed),
		}
	})
	return t
}

// Interest is the simple interest owed on principal:
// principal * aprBps * tenureDays / (10000 * 365), rounded down.
func Interest(principal *big.Int, aprBps, tenureDays uint16) *big.Int {
	n := new(big.Int).Mul(principal, big.NewInt(int64(aprBps)))
	n.Mul(n, big.NewInt(int64(tenureDays)))
	return n.Quo(n, big.NewInt(bpsDenominator*daysPerYear))
}

// enter implements the non-reentrancy guard shared by RequestLoan and Repay.
// The chain lock already serializes top-level calls, so the flag only trips
// on calls re-entering through a token hook inside the same transaction.
func (v *Vault) enter() (func(), error) {
	if v.entered {
		return nil, ErrReentrantCall
	}
	v.entered = true
	return func() { v.entered = false }, nil
}

// afterCommit publishes the pool gauges as of the end of tx.
func (v *Vault) afterCommit(tx *chain.Tx) {
	liquidity := metrics.Units(v.token.BalanceOf(tx.Context(), v.address))
	borrowed := metrics.Units(v.totalBorrowed)
	tx.OnCommit(func() {
		metrics.Liquidity.Set(liquidity)
		metrics.TotalBorrowed.Set(borrowed)
	})
}

func positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }
