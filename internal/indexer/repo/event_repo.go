package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer/entity"
)

// EventRepo persists mirrored events. The SQL is kept to what both Postgres
// and SQLite accept; placeholders are rebound per driver. Every row carries
// the ledger epoch, since sequence numbers and proof ids restart when a
// ledger is rebuilt from genesis.
type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) *EventRepo {
	return &EventRepo{db: db}
}

// EnsureTable creates the indexer tables if they do not already exist.
func (r *EventRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chain_events (
			epoch VARCHAR(27) NOT NULL,
			seq BIGINT NOT NULL,
			block_number BIGINT NOT NULL,
			event_time BIGINT NOT NULL,
			contract VARCHAR(42) NOT NULL,
			name VARCHAR(64) NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (epoch, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chain_events_name ON chain_events (epoch, name)`,
		`CREATE TABLE IF NOT EXISTS workproof_events (
			epoch VARCHAR(27) NOT NULL,
			seq BIGINT NOT NULL,
			proof_id BIGINT NOT NULL,
			worker VARCHAR(42) NOT NULL,
			proof_hash VARCHAR(66) NOT NULL,
			work_units TEXT NOT NULL,
			earned_amount TEXT NOT NULL,
			event_timestamp BIGINT NOT NULL,
			proof_uri TEXT NOT NULL DEFAULT '',
			block_number BIGINT NOT NULL,
			PRIMARY KEY (epoch, seq)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workproof_events_proof_id ON workproof_events (epoch, proof_id)`,
		`CREATE INDEX IF NOT EXISTS idx_workproof_events_worker ON workproof_events (epoch, worker)`,
		`CREATE TABLE IF NOT EXISTS loan_events (
			epoch VARCHAR(27) NOT NULL,
			seq BIGINT NOT NULL,
			borrower VARCHAR(42) NOT NULL,
			principal TEXT NOT NULL,
			interest_amount TEXT NOT NULL,
			due_date BIGINT NOT NULL,
			nonce BIGINT NOT NULL,
			block_number BIGINT NOT NULL,
			event_time BIGINT NOT NULL,
			PRIMARY KEY (epoch, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loan_events_borrower ON loan_events (epoch, borrower)`,
		`CREATE TABLE IF NOT EXISTS repay_events (
			epoch VARCHAR(27) NOT NULL,
			seq BIGINT NOT NULL,
			borrower VARCHAR(42) NOT NULL,
			amount TEXT NOT NULL,
			remaining TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			event_time BIGINT NOT NULL,
			PRIMARY KEY (epoch, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_repay_events_borrower ON repay_events (epoch, borrower)`,
		`CREATE TABLE IF NOT EXISTS indexer_state (
			chain_id VARCHAR(78) NOT NULL,
			epoch VARCHAR(27) NOT NULL,
			last_seq BIGINT NOT NULL,
			PRIMARY KEY (chain_id, epoch)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure indexer tables: %w", err)
		}
	}
	return nil
}

// LastSeq returns the cursor for one ledger epoch, 0 when nothing has been
// mirrored from it.
func (r *EventRepo) LastSeq(ctx context.Context, chainID, epoch string) (int64, error) {
	var seq int64
	err := r.db.GetContext(ctx, &seq, r.db.Rebind(`SELECT last_seq FROM indexer_state WHERE chain_id = ? AND epoch = ?`), chainID, epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// Save writes b and advances the cursor in one transaction. Rows already
// present are skipped so a replayed page is harmless.
func (r *EventRepo) Save(ctx context.Context, chainID, epoch string, b entity.Batch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range b.Events {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO chain_events (epoch, seq, block_number, event_time, contract, name, payload)
			VALUES (:epoch, :seq, :block_number, :event_time, :contract, :name, :payload) ON CONFLICT DO NOTHING`, e); err != nil {
			return fmt.Errorf("insert chain event %d: %w", e.Seq, err)
		}
	}
	for _, p := range b.WorkProofs {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO workproof_events (epoch, seq, proof_id, worker, proof_hash, work_units, earned_amount, event_timestamp, proof_uri, block_number)
			VALUES (:epoch, :seq, :proof_id, :worker, :proof_hash, :work_units, :earned_amount, :event_timestamp, :proof_uri, :block_number) ON CONFLICT DO NOTHING`, p); err != nil {
			return fmt.Errorf("insert workproof event %d: %w", p.Seq, err)
		}
	}
	for _, l := range b.Loans {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO loan_events (epoch, seq, borrower, principal, interest_amount, due_date, nonce, block_number, event_time)
			VALUES (:epoch, :seq, :borrower, :principal, :interest_amount, :due_date, :nonce, :block_number, :event_time) ON CONFLICT DO NOTHING`, l); err != nil {
			return fmt.Errorf("insert loan event %d: %w", l.Seq, err)
		}
	}
	for _, p := range b.Repays {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO repay_events (epoch, seq, borrower, amount, remaining, block_number, event_time)
			VALUES (:epoch, :seq, :borrower, :amount, :remaining, :block_number, :event_time) ON CONFLICT DO NOTHING`, p); err != nil {
			return fmt.Errorf("insert repay event %d: %w", p.Seq, err)
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO indexer_state (chain_id, epoch, last_seq) VALUES (?, ?, ?)
		ON CONFLICT (chain_id, epoch) DO UPDATE SET last_seq = excluded.last_seq`), chainID, epoch, b.LastSeq); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return tx.Commit()
}

// RecentEvents returns an epoch's newest events first, optionally filtered
// by name.
func (r *EventRepo) RecentEvents(ctx context.Context, epoch, name string, limit int) ([]entity.ChainEvent, error) {
	out := []entity.ChainEvent{}
	var err error
	if name == "" {
		err = r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT * FROM chain_events WHERE epoch = ? ORDER BY seq DESC LIMIT ?`), epoch, limit)
	} else {
		err = r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT * FROM chain_events WHERE epoch = ? AND name = ? ORDER BY seq DESC LIMIT ?`), epoch, name, limit)
	}
	return out, err
}

// WorkerProofs pages a worker's proofs, newest first.
func (r *EventRepo) WorkerProofs(ctx context.Context, epoch, worker string, limit, offset int) ([]entity.WorkProofEvent, error) {
	out := []entity.WorkProofEvent{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT * FROM workproof_events WHERE epoch = ? AND worker = ? ORDER BY proof_id DESC LIMIT ? OFFSET ?`), epoch, worker, limit, offset)
	return out, err
}

// WorkerStats sums a worker's proofs. Amounts are summed here rather than in
// SQL because they are stored as text.
func (r *EventRepo) WorkerStats(ctx context.Context, epoch, worker string) (entity.WorkerStats, error) {
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(`SELECT work_units, earned_amount FROM workproof_events WHERE epoch = ? AND worker = ?`), epoch, worker)
	if err != nil {
		return entity.WorkerStats{}, err
	}
	defer rows.Close()

	units, earned := new(big.Int), new(big.Int)
	var n int64
	for rows.Next() {
		var u, e string
		if err := rows.Scan(&u, &e); err != nil {
			return entity.WorkerStats{}, err
		}
		if err := addDecimal(units, u); err != nil {
			return entity.WorkerStats{}, err
		}
		if err := addDecimal(earned, e); err != nil {
			return entity.WorkerStats{}, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return entity.WorkerStats{}, err
	}
	return entity.WorkerStats{
		Worker:      worker,
		ProofCount:  n,
		TotalUnits:  units.String(),
		TotalEarned: earned.String(),
	}, nil
}

// BorrowerHistory returns a borrower's originations and repayments in
// ledger order.
func (r *EventRepo) BorrowerHistory(ctx context.Context, epoch, borrower string) ([]entity.LoanEvent, []entity.RepayEvent, error) {
	loans := []entity.LoanEvent{}
	if err := r.db.SelectContext(ctx, &loans, r.db.Rebind(`SELECT * FROM loan_events WHERE epoch = ? AND borrower = ? ORDER BY seq`), epoch, borrower); err != nil {
		return nil, nil, err
	}
	repays := []entity.RepayEvent{}
	if err := r.db.SelectContext(ctx, &repays, r.db.Rebind(`SELECT * FROM repay_events WHERE epoch = ? AND borrower = ? ORDER BY seq`), epoch, borrower); err != nil {
		return nil, nil, err
	}
	return loans, repays, nil
}

func addDecimal(sum *big.Int, s string) error {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("stored amount %q is not an integer", s)
	}
	sum.Add(sum, v)
	return nil
}
