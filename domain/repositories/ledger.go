package repositories

import (
	"context"

	"github.com/suarakita/server/domain/entities"
)

// ElectionLedger abstracts the on-chain election contract. Reads may be
// retried by the implementation; writes are definitive at submission and the
// mining outcome arrives through the ConfirmationNotifier, never through the
// returned error.
type ElectionLedger interface {
	// ElectionCount returns the number of elections on the ledger.
	ElectionCount(ctx context.Context) (uint64, error)
	// ListElections returns every election without candidate detail.
	ListElections(ctx context.Context) ([]entities.Election, error)
	// GetElection returns one election including its candidates.
	GetElection(ctx context.Context, id uint64) (*entities.Election, error)
	// GetWinner returns the leading candidate of an election.
	GetWinner(ctx context.Context, electionID uint64) (*entities.Candidate, error)
	// CastVote submits a vote transaction.
	CastVote(ctx context.Context, electionID, candidateID uint64) (*entities.TxReceipt, error)
	// CreateElection submits an election-creation transaction.
	CreateElection(ctx context.Context, draft entities.ElectionDraft) (*entities.TxReceipt, error)
}

// ConfirmationNotifier receives asynchronous mining outcomes for submitted
// transactions. Implementations must not block.
type ConfirmationNotifier func(entities.TxConfirmation)
