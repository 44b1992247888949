// Package indexer mirrors the ledger's event log into SQL for history and
// aggregate queries. It only reads committed logs and never gates contract
// execution.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer/entity"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer/repo"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/vault"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/workproof"
)

// Source is the event log being mirrored. Sequence numbers are only unique
// within an epoch.
type Source interface {
	ChainID() *big.Int
	Epoch() string
	Logs(after uint64, limit int) []chain.Log
}

type Config struct {
	BatchSize int
	Interval  time.Duration
	Clock     clockwork.Clock
	Logger    *zap.SugaredLogger
}

type Service struct {
	src      Source
	repo     *repo.EventRepo
	chainID  string
	batch    int
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
}

func NewService(src Source, r *repo.EventRepo, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Service{
		src:      src,
		repo:     r,
		chainID:  src.ChainID().String(),
		batch:    cfg.BatchSize,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Sync mirrors every log past the epoch's stored cursor and returns how many
// were written.
func (s *Service) Sync(ctx context.Context) (int, error) {
	epoch := s.src.Epoch()
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		last, err := s.repo.LastSeq(ctx, s.chainID, epoch)
		if err != nil {
			return total, fmt.Errorf("read cursor: %w", err)
		}
		logs := s.src.Logs(uint64(last), s.batch)
		if len(logs) == 0 {
			return total, nil
		}
		b, err := toBatch(epoch, logs)
		if err != nil {
			return total, err
		}
		if err := s.repo.Save(ctx, s.chainID, epoch, b); err != nil {
			return total, fmt.Errorf("save batch: %w", err)
		}
		total += len(logs)
		metrics.IndexerLag.Set(float64(b.LastSeq))
		s.logger.Debugw("indexed events", "epoch", epoch, "count", len(logs), "last_seq", b.LastSeq)
		if len(logs) < s.batch {
			return total, nil
		}
	}
}

// Run polls until ctx is cancelled. Failed iterations are logged and retried
// on the next tick.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			metrics.IndexerErrors.Inc()
			s.logger.Warnw("indexer sync failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (s *Service) RecentEvents(ctx context.Context, name string, limit int) ([]entity.ChainEvent, error) {
	return s.repo.RecentEvents(ctx, s.src.Epoch(), name, clampLimit(limit))
}

func (s *Service) WorkerProofs(ctx context.Context, worker common.Address, limit, offset int) ([]entity.WorkProofEvent, error) {
	if offset < 0 {
		offset = 0
	}
	return s.repo.WorkerProofs(ctx, s.src.Epoch(), worker.Hex(), clampLimit(limit), offset)
}

func (s *Service) WorkerStats(ctx context.Context, worker common.Address) (entity.WorkerStats, error) {
	return s.repo.WorkerStats(ctx, s.src.Epoch(), worker.Hex())
}

func (s *Service) BorrowerHistory(ctx context.Context, borrower common.Address) ([]entity.LoanEvent, []entity.RepayEvent, error) {
	return s.repo.BorrowerHistory(ctx, s.src.Epoch(), borrower.Hex())
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 50
	case n > 500:
		return 500
	default:
		return n
	}
}

func toBatch(epoch string, logs []chain.Log) (entity.Batch, error) {
	var b entity.Batch
	for _, l := range logs {
		payload, err := json.Marshal(l.Event)
		if err != nil {
			return entity.Batch{}, fmt.Errorf("encode event %d: %w", l.Seq, err)
		}
		seq, block, at := int64(l.Seq), int64(l.Block), l.Time.Unix()
		b.Events = append(b.Events, entity.ChainEvent{
			Epoch:       epoch,
			Seq:         seq,
			BlockNumber: block,
			EventTime:   at,
			Contract:    l.Address.Hex(),
			Name:        l.Event.EventName(),
			Payload:     string(payload),
		})

		switch ev := l.Event.(type) {
		case workproof.WorkProofSubmitted:
			b.WorkProofs = append(b.WorkProofs, entity.WorkProofEvent{
				Epoch:          epoch,
				Seq:            seq,
				ProofID:        int64(ev.ProofID),
				Worker:         ev.Worker.Hex(),
				ProofHash:      ev.ProofHash.Hex(),
				WorkUnits:      ev.WorkUnits.String(),
				EarnedAmount:   ev.EarnedAmount.String(),
				EventTimestamp: int64(ev.Timestamp),
				ProofURI:       ev.ProofURI,
				BlockNumber:    block,
			})
		case vault.LoanApproved:
			b.Loans = append(b.Loans, entity.LoanEvent{
				Epoch:          epoch,
				Seq:            seq,
				Borrower:       ev.Borrower.Hex(),
				Principal:      ev.Principal.String(),
				InterestAmount: ev.InterestAmount.String(),
				DueDate:        int64(ev.DueDate),
				Nonce:          int64(ev.Nonce),
				BlockNumber:    block,
				EventTime:      at,
			})
		case vault.Repaid:
			b.Repays = append(b.Repays, entity.RepayEvent{
				Epoch:       epoch,
				Seq:         seq,
				Borrower:    ev.Borrower.Hex(),
				Amount:      ev.Amount.String(),
				Remaining:   ev.Remaining.String(),
				BlockNumber: block,
				EventTime:   at,
			})
		}
		b.LastSeq = seq
	}
	return b, nil
}
