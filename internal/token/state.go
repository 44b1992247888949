package token

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

type allowanceState struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *big.Int       `json:"value"`
}

type state struct {
	Supply     *big.Int                    `json:"supply"`
	Balances   map[common.Address]*big.Int `json:"balances"`
	Allowances []allowanceState            `json:"allowances"`
}

// MarshalState captures supply, balances and allowances. Receiver hooks are
// process-local and not part of the state.
func (t *Token) MarshalState() ([]byte, error) {
	st := state{Supply: t.supply, Balances: t.balances}
	for k, v := range t.allowances {
		st.Allowances = append(st.Allowances, allowanceState{Owner: k.owner, Spender: k.spender, Value: v})
	}
	sort.Slice(st.Allowances, func(i, j int) bool {
		a, b := st.Allowances[i], st.Allowances[j]
		if a.Owner != b.Owner {
			return a.Owner.Cmp(b.Owner) < 0
		}
		return a.Spender.Cmp(b.Spender) < 0
	})
	return json.Marshal(st)
}

func (t *Token) UnmarshalState(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	t.supply = new(big.Int)
	if st.Supply != nil {
		t.supply.Set(st.Supply)
	}
	t.balances = make(map[common.Address]*big.Int, len(st.Balances))
	for a, b := range st.Balances {
		t.balances[a] = b
	}
	t.allowances = make(map[allowanceKey]*big.Int, len(st.Allowances))
	for _, a := range st.Allowances {
		t.allowances[allowanceKey{a.Owner, a.Spender}] = a.Value
	}
	return nil
}
