package entity

// Amounts are stored as decimal strings: uint256 values do not fit any
// portable integer column.

// ChainEvent is one mirrored log entry with its JSON payload.
type ChainEvent struct {
	Epoch       string `db:"epoch" json:"epoch"`
	Seq         int64  `db:"seq" json:"seq"`
	BlockNumber int64  `db:"block_number" json:"block_number"`
	EventTime   int64  `db:"event_time" json:"event_time"`
	Contract    string `db:"contract" json:"contract"`
	Name        string `db:"name" json:"name"`
	Payload     string `db:"payload" json:"payload"`
}

type WorkProofEvent struct {
	Epoch          string `db:"epoch" json:"epoch"`
	Seq            int64  `db:"seq" json:"seq"`
	ProofID        int64  `db:"proof_id" json:"proof_id"`
	Worker         string `db:"worker" json:"worker"`
	ProofHash      string `db:"proof_hash" json:"proof_hash"`
	WorkUnits      string `db:"work_units" json:"work_units"`
	EarnedAmount   string `db:"earned_amount" json:"earned_amount"`
	EventTimestamp int64  `db:"event_timestamp" json:"event_timestamp"`
	ProofURI       string `db:"proof_uri" json:"proof_uri"`
	BlockNumber    int64  `db:"block_number" json:"block_number"`
}

type LoanEvent struct {
	Epoch          string `db:"epoch" json:"epoch"`
	Seq            int64  `db:"seq" json:"seq"`
	Borrower       string `db:"borrower" json:"borrower"`
	Principal      string `db:"principal" json:"principal"`
	InterestAmount string `db:"interest_amount" json:"interest_amount"`
	DueDate        int64  `db:"due_date" json:"due_date"`
	Nonce          int64  `db:"nonce" json:"nonce"`
	BlockNumber    int64  `db:"block_number" json:"block_number"`
	EventTime      int64  `db:"event_time" json:"event_time"`
}

type RepayEvent struct {
	Epoch       string `db:"epoch" json:"epoch"`
	Seq         int64  `db:"seq" json:"seq"`
	Borrower    string `db:"borrower" json:"borrower"`
	Amount      string `db:"amount" json:"amount"`
	Remaining   string `db:"remaining" json:"remaining"`
	BlockNumber int64  `db:"block_number" json:"block_number"`
	EventTime   int64  `db:"event_time" json:"event_time"`
}

// Batch is everything derived from one page of logs. LastSeq is the cursor
// persisted with it.
type Batch struct {
	Events     []ChainEvent
	WorkProofs []WorkProofEvent
	Loans      []LoanEvent
	Repays     []RepayEvent
	LastSeq    int64
}

// WorkerStats aggregates a worker's mirrored proofs.
type WorkerStats struct {
	Worker      string `json:"worker"`
	ProofCount  int64  `json:"proof_count"`
	TotalUnits  string `json:"total_units"`
	TotalEarned string `json:"total_earned"`
}
