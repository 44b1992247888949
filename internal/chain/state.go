package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Stateful is a contract whose storage can be captured and restored.
type Stateful interface {
	Address() common.Address
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Snapshot is the committed state of one deployment after a block.
type Snapshot struct {
	ChainID   string                             `json:"chain_id"`
	Epoch     string                             `json:"epoch"`
	Height    uint64                             `json:"height"`
	LogCount  uint64                             `json:"log_count"`
	Nonces    map[common.Address]uint64          `json:"nonces"`
	Contracts map[common.Address]json.RawMessage `json:"contracts"`
}

// Store persists snapshots. Save runs under the chain lock for every
// committed transaction; when it fails the transaction reverts.
type Store interface {
	// Load returns the latest snapshot for chainID, or nil when there is none.
	Load(ctx context.Context, chainID string) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
}

var ErrSnapshotMismatch = errors.New("chain: snapshot does not match deployment")

// Attach registers a deployed contract for snapshots.
func (c *Chain) Attach(s Stateful) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts = append(c.contracts, s)
}

// Epoch identifies this ledger's history. It is fixed at genesis and carried
// through snapshots, so log sequence numbers are unique within an epoch.
func (c *Chain) Epoch() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Restore loads the latest snapshot from the store into the attached
// contracts. It reports false when there is no store or nothing was saved
// yet, in which case the caller applies its genesis.
func (c *Chain) Restore(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.store.Load(ctx, c.chainID.String())
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return false, nil
	}
	if len(snap.Contracts) != len(c.contracts) {
		return false, fmt.Errorf("%w: %d contracts saved, %d deployed", ErrSnapshotMismatch, len(snap.Contracts), len(c.contracts))
	}
	for _, s := range c.contracts {
		raw, ok := snap.Contracts[s.Address()]
		if !ok {
			return false, fmt.Errorf("%w: no state for %s", ErrSnapshotMismatch, s.Address().Hex())
		}
		if err := s.UnmarshalState(raw); err != nil {
			return false, fmt.Errorf("restore %s: %w", s.Address().Hex(), err)
		}
	}

	c.epoch = snap.Epoch
	c.height = snap.Height
	c.logBase = snap.LogCount
	c.logs = nil
	c.nonces = make(map[common.Address]uint64, len(snap.Nonces))
	for a, n := range snap.Nonces {
		c.nonces[a] = n
	}
	c.logger.Infow("ledger restored", "epoch", c.epoch, "height", c.height, "log_count", c.logBase)
	return true, nil
}

// persist saves the state as of the transaction being committed. Called with
// the write lock held, before height and logs are advanced.
func (c *Chain) persist(ctx context.Context, tx *Tx) error {
	snap := &Snapshot{
		ChainID:   c.chainID.String(),
		Epoch:     c.epoch,
		Height:    tx.block,
		LogCount:  c.logBase + uint64(len(c.logs)+len(tx.events)),
		Nonces:    make(map[common.Address]uint64, len(c.nonces)),
		Contracts: make(map[common.Address]json.RawMessage, len(c.contracts)),
	}
	for a, n := range c.nonces {
		snap.Nonces[a] = n
	}
	for _, s := range c.contracts {
		raw, err := s.MarshalState()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", s.Address().Hex(), err)
		}
		snap.Contracts[s.Address()] = raw
	}
	// A cancelled caller must not leave the store ahead of memory.
	return c.store.Save(context.WithoutCancel(ctx), snap)
}
