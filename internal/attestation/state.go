package attestation

import (
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

type verifierState struct {
	Signers   []common.Address `json:"signers"`
	Used      []uint64         `json:"used_nonces"`
	NotBefore uint64           `json:"not_before"`
}

// MarshalState captures the signer set and every consumed nonce.
func (v *Verifier) MarshalState() ([]byte, error) {
	st := verifierState{
		Signers:   v.signers.Members(),
		Used:      make([]uint64, 0, len(v.used)),
		NotBefore: v.notBefore,
	}
	for n := range v.used {
		st.Used = append(st.Used, n)
	}
	sort.Slice(st.Used, func(i, j int) bool { return st.Used[i] < st.Used[j] })
	return json.Marshal(st)
}

func (v *Verifier) UnmarshalState(data []byte) error {
	var st verifierState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	v.signers.Load(st.Signers)
	v.used = make(map[uint64]bool, len(st.Used))
	for _, n := range st.Used {
		v.used[n] = true
	}
	v.notBefore = st.NotBefore
	return nil
}
