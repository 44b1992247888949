package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
)

// SnapshotRepo keeps the latest ledger snapshot per chain id. It implements
// chain.Store.
type SnapshotRepo struct {
	db *sqlx.DB
}

func NewSnapshotRepo(db *sqlx.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

type snapshotRow struct {
	ChainID  string `db:"chain_id"`
	Epoch    string `db:"epoch"`
	Height   int64  `db:"height"`
	LogCount int64  `db:"log_count"`
	State    string `db:"state"`
}

type snapshotState struct {
	Nonces    map[common.Address]uint64          `json:"nonces"`
	Contracts map[common.Address]json.RawMessage `json:"contracts"`
}

// EnsureTable creates the snapshot table if it does not already exist.
func (r *SnapshotRepo) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ledger_snapshots (
		chain_id VARCHAR(78) PRIMARY KEY,
		epoch VARCHAR(27) NOT NULL,
		height BIGINT NOT NULL,
		log_count BIGINT NOT NULL,
		state TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure ledger_snapshots: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) Load(ctx context.Context, chainID string) (*chain.Snapshot, error) {
	var row snapshotRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT chain_id, epoch, height, log_count, state FROM ledger_snapshots WHERE chain_id = ?`), chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st snapshotState
	if err := json.Unmarshal([]byte(row.State), &st); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &chain.Snapshot{
		ChainID:   row.ChainID,
		Epoch:     row.Epoch,
		Height:    uint64(row.Height),
		LogCount:  uint64(row.LogCount),
		Nonces:    st.Nonces,
		Contracts: st.Contracts,
	}, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, s *chain.Snapshot) error {
	state, err := json.Marshal(snapshotState{Nonces: s.Nonces, Contracts: s.Contracts})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO ledger_snapshots (chain_id, epoch, height, log_count, state)
		VALUES (:chain_id, :epoch, :height, :log_count, :state)
		ON CONFLICT (chain_id) DO UPDATE SET epoch = excluded.epoch, height = excluded.height,
			log_count = excluded.log_count, state = excluded.state`, snapshotRow{
		ChainID:  s.ChainID,
		Epoch:    s.Epoch,
		Height:   int64(s.Height),
		LogCount: int64(s.LogCount),
		State:    string(state),
	})
	return err
}
