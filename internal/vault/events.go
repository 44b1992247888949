package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Deposited struct {
	Depositor common.Address `json:"depositor"`
	Amount    *big.Int       `json:"amount"`
}

func (Deposited) EventName() string { return "Deposited" }

type Withdrawn struct {
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

func (Withdrawn) EventName() string { return "Withdrawn" }

// LoanApproved is emitted on origination. Nonce is the consumed attestation
// nonce, kept for reconciliation.
type LoanApproved struct {
	Borrower       common.Address `json:"borrower"`
	Principal      *big.Int       `json:"principal"`
	InterestAmount *big.Int       `json:"interestAmount"`
	DueDate        uint64         `json:"dueDate"`
	Nonce          uint64         `json:"nonce"`
}

func (LoanApproved) EventName() string { return "LoanApproved" }

// Repaid carries the clamped amount actually pulled.
type Repaid struct {
	Borrower  common.Address `json:"borrower"`
	Amount    *big.Int       `json:"amount"`
	Remaining *big.Int       `json:"remaining"`
}

func (Repaid) EventName() string { return "Repaid" }

type LoanFullyRepaid struct {
	Borrower  common.Address `json:"borrower"`
	TotalPaid *big.Int       `json:"totalPaid"`
}

func (LoanFullyRepaid) EventName() string { return "LoanFullyRepaid" }

type LoanDefaulted struct {
	Borrower    common.Address `json:"borrower"`
	Outstanding *big.Int       `json:"outstanding"`
}

func (LoanDefaulted) EventName() string { return "LoanDefaulted" }
