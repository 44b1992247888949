package registry

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/registry/entity"
)

// MarshalState captures the workers in registration order.
func (r *Registry) MarshalState() ([]byte, error) {
	workers := make([]entity.Worker, 0, len(r.list))
	for _, a := range r.list {
		workers = append(workers, r.workers[a])
	}
	return json.Marshal(workers)
}

func (r *Registry) UnmarshalState(data []byte) error {
	var workers []entity.Worker
	if err := json.Unmarshal(data, &workers); err != nil {
		return err
	}
	r.workers = make(map[common.Address]entity.Worker, len(workers))
	r.list = make([]common.Address, 0, len(workers))
	for _, w := range workers {
		r.workers[w.Address] = w
		r.list = append(r.list, w.Address)
	}
	return nil
}
