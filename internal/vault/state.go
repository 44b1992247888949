package vault

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/vault/entity"
)

type state struct {
	Loans          []entity.Loan `json:"loans"`
	TotalDeposited *big.Int      `json:"total_deposited"`
	TotalBorrowed  *big.Int      `json:"total_borrowed"`
}

// MarshalState captures every loan slot and the pool counters.
func (v *Vault) MarshalState() ([]byte, error) {
	st := state{
		Loans:          make([]entity.Loan, 0, len(v.loans)),
		TotalDeposited: v.totalDeposited,
		TotalBorrowed:  v.totalBorrowed,
	}
	for _, l := range v.loans {
		st.Loans = append(st.Loans, l)
	}
	sort.Slice(st.Loans, func(i, j int) bool { return st.Loans[i].Borrower.Cmp(st.Loans[j].Borrower) < 0 })
	return json.Marshal(st)
}

func (v *Vault) UnmarshalState(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	v.loans = make(map[common.Address]entity.Loan, len(st.Loans))
	for _, l := range st.Loans {
		v.loans[l.Borrower] = l
	}
	v.totalDeposited = orZero(st.TotalDeposited)
	v.totalBorrowed = orZero(st.TotalBorrowed)
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
