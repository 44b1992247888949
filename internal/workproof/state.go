package workproof

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/workproof/entity"
)

type state struct {
	Verifiers []common.Address `json:"verifiers"`
	Proofs    []entity.Proof   `json:"proofs"`
}

// MarshalState captures the verifier set and every proof in id order.
func (l *Ledger) MarshalState() ([]byte, error) {
	st := state{
		Verifiers: l.verifiers.Members(),
		Proofs:    make([]entity.Proof, 0, l.count),
	}
	for id := uint64(1); id <= l.count; id++ {
		st.Proofs = append(st.Proofs, l.proofs[id])
	}
	return json.Marshal(st)
}

func (l *Ledger) UnmarshalState(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	l.verifiers.Load(st.Verifiers)
	l.proofs = make(map[uint64]entity.Proof, len(st.Proofs))
	l.byWorker = make(map[common.Address][]uint64)
	l.count = 0
	for _, p := range st.Proofs {
		l.proofs[p.ID] = p
		l.byWorker[p.Worker] = append(l.byWorker[p.Worker], p.ID)
		if p.ID > l.count {
			l.count = p.ID
		}
	}
	return nil
}
