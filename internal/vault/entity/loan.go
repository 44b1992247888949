package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Loan is the per-borrower loan slot. A borrower holds at most one active
// loan; an inactive slot is overwritten by the next origination.
type Loan struct {
	Borrower       common.Address `json:"borrower"`
	Principal      *big.Int       `json:"principal"`
	InterestAmount *big.Int       `json:"interest_amount"`
	TotalDue       *big.Int       `json:"total_due"`
	AmountRepaid   *big.Int       `json:"amount_repaid"`
	StartTime      time.Time      `json:"start_time"`
	DueDate        time.Time      `json:"due_date"`
	AprBps         uint16         `json:"apr_bps"`
	TenureDays     uint16         `json:"tenure_days"`
	Nonce          uint64         `json:"nonce"`
	Active         bool           `json:"active"`
	Defaulted      bool           `json:"defaulted"`
}

// Exists reports whether the slot has ever held a loan.
func (l Loan) Exists() bool { return l.Borrower != (common.Address{}) }

// Clone returns a copy of l that shares no amounts with it.
func (l Loan) Clone() Loan {
	l.Principal = copyInt(l.Principal)
	l.InterestAmount = copyInt(l.InterestAmount)
	l.TotalDue = copyInt(l.TotalDue)
	l.AmountRepaid = copyInt(l.AmountRepaid)
	return l
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Remaining returns TotalDue - AmountRepaid, or zero for an empty slot.
func (l Loan) Remaining() *big.Int {
	if l.TotalDue == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(l.TotalDue, l.AmountRepaid)
}

// Totals are the vault's aggregate counters.
type Totals struct {
	TotalDeposited *big.Int `json:"total_deposited"`
	TotalBorrowed  *big.Int `json:"total_borrowed"`
}
