package chain

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a typed contract event.
type Event interface {
	EventName() string
}

// Log is a committed event.
type Log struct {
	Seq     uint64         `json:"seq"`
	Block   uint64         `json:"block"`
	Time    time.Time      `json:"time"`
	Address common.Address `json:"address"`
	Event   Event          `json:"event"`
}

// Logs returns up to limit committed logs with Seq > after, oldest first.
// A limit <= 0 returns everything after the cursor. Logs committed before the
// ledger was last restored are no longer held in memory and are skipped.
func (c *Chain) Logs(after uint64, limit int) []Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if after < c.logBase {
		after = c.logBase
	}
	i := after - c.logBase
	if i >= uint64(len(c.logs)) {
		return nil
	}
	rest := c.logs[i:]
	if limit > 0 && limit < len(rest) {
		rest = rest[:limit]
	}
	out := make([]Log, len(rest))
	copy(out, rest)
	return out
}

// LogCount returns the sequence number of the newest committed log.
func (c *Chain) LogCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logBase + uint64(len(c.logs))
}

// ─── Reverts ────────────────────────────────────────────────────────────────

// RevertError is a rejected precondition. Reason identifies the guard that
// failed and is surfaced to callers verbatim.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return e.Reason }

// NewRevert returns a revert sentinel for reason.
func NewRevert(reason string) *RevertError { return &RevertError{Reason: reason} }

// IsRevert reports whether err is (or wraps) a guard failure.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// Reason returns the revert reason carried by err, or "" when err is not a
// guard failure.
func Reason(err error) string {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
