// Package chain hosts the lending contracts on a single-writer ledger.
//
// Every state-changing call runs inside one transaction: it either applies
// all of its mutations and events or none of them. Calls made from inside a
// running transaction join it through the context and roll back to their own
// savepoint when they fail.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/metrics"
)

// Config configures a Chain.
type Config struct {
	ChainID *big.Int
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	// Store makes committed state durable. Nil keeps the ledger in memory.
	Store Store
}

// Chain is the host ledger shared by all contracts of one deployment.
type Chain struct {
	mu      sync.RWMutex
	chainID *big.Int
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	store   Store

	epoch     string
	height    uint64
	logBase   uint64
	logs      []Log
	nonces    map[common.Address]uint64
	contracts []Stateful
}

// New creates a chain. Missing config values fall back to chain id 31337,
// the real clock and a no-op logger.
func New(cfg Config) *Chain {
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(31337)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Chain{
		chainID: new(big.Int).Set(cfg.ChainID),
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		store:   cfg.Store,
		epoch:   ksuid.New().String(),
		nonces:  make(map[common.Address]uint64),
	}
}

// ChainID returns a copy of the chain id used for EIP-712 domains.
func (c *Chain) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Deploy reserves a contract address for deployer, derived from the
// deployer's nonce the same way an EVM chain does.
func (c *Chain) Deploy(deployer common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.nonces[deployer]
	c.nonces[deployer] = n + 1
	return crypto.CreateAddress(deployer, n)
}

// Height returns the number of committed transactions.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Now returns the block timestamp of the transaction carried by ctx, or the
// current second of the chain clock outside a transaction.
func (c *Chain) Now(ctx context.Context) time.Time {
	if tx := fromContext(ctx, c); tx != nil {
		return tx.time
	}
	return c.clock.Now().UTC().Truncate(time.Second)
}

// Exec runs fn as one state-changing call. When ctx already carries a
// transaction of this chain fn joins it; otherwise a new transaction is
// opened under the write lock and committed only if fn returns nil. Commit
// hooks run after the lock is released.
func (c *Chain) Exec(ctx context.Context, fn func(tx *Tx) error) error {
	if tx := fromContext(ctx, c); tx != nil {
		return tx.nested(fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	hooks, err := c.commit(ctx, fn)
	if err != nil {
		if reason := Reason(err); reason != "" {
			metrics.Reverts.WithLabelValues(reason).Inc()
		}
		return err
	}
	for _, hook := range hooks {
		hook()
	}
	return nil
}

func (c *Chain) commit(ctx context.Context, fn func(tx *Tx) error) ([]func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx{
		chain: c,
		time:  c.clock.Now().UTC().Truncate(time.Second),
		block: c.height + 1,
	}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(tx); err != nil {
		tx.rollback(0, 0)
		c.logger.Debugw("transaction reverted", "block", tx.block, "reason", err.Error())
		return nil, err
	}
	if c.store != nil {
		if err := c.persist(ctx, tx); err != nil {
			tx.rollback(0, 0)
			c.logger.Errorw("snapshot failed, transaction reverted", "block", tx.block, "err", err)
			return nil, fmt.Errorf("persist ledger: %w", err)
		}
	}

	c.height = tx.block
	for _, e := range tx.events {
		c.logs = append(c.logs, Log{
			Seq:     c.logBase + uint64(len(c.logs)) + 1,
			Block:   tx.block,
			Time:    tx.time,
			Address: e.address,
			Event:   e.event,
		})
	}
	return tx.commits, nil
}

// View runs fn against committed state. Inside a transaction it runs inline.
func (c *Chain) View(ctx context.Context, fn func()) {
	if fromContext(ctx, c) != nil {
		fn()
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn()
}
