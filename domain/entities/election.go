package entities

import (
	"errors"
	"time"
)

// Candidate is one ballot entry within an election.
type Candidate struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Party     string `json:"party,omitempty"`
	VoteCount uint64 `json:"vote_count"`
}

// Election mirrors the on-chain election record. Vote counts and the active
// flag are computed by the contract; this type only carries them.
type Election struct {
	ID          uint64      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Active      bool        `json:"active"`
	TotalVotes  uint64      `json:"total_votes"`
	Candidates  []Candidate `json:"candidates,omitempty"`
}

// ElectionDraft is the input for creating a new election on the ledger.
type ElectionDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Candidates  []string  `json:"candidates"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Validate validates a draft before it is submitted to the ledger.
func (d *ElectionDraft) Validate() error {
	if d.Title == "" {
		return errors.New("title is required")
	}
	if len(d.Candidates) < 2 {
		return errors.New("at least two candidates are required")
	}
	if !d.EndTime.After(d.StartTime) {
		return errors.New("end time must be after start time")
	}
	return nil
}

// TxReceipt reports a ledger write at submission time. Confirmed is decided
// later, out-of-band.
type TxReceipt struct {
	TxHash     string `json:"tx_hash"`
	ElectionID uint64 `json:"election_id,omitempty"`
}

// TxConfirmation is the asynchronous outcome of waiting for a submitted
// transaction to be mined.
type TxConfirmation struct {
	TxHash    string `json:"tx_hash"`
	Confirmed bool   `json:"confirmed"`
	Err       error  `json:"-"`
}
