package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
)

// MockLedger is an in-memory election ledger for tests and offline demo
// runs. It mimics the contract's behavior closely enough for the command
// operations: votes only count on active elections, ids are assigned
// sequentially from zero.
type MockLedger struct {
	mu        sync.Mutex
	elections []entities.Election
	txSeq     int

	// FailWith, when set, makes every call return this error.
	FailWith error
}

// NewMockLedger creates an empty mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// Seed adds an election directly, bypassing transaction bookkeeping.
func (m *MockLedger) Seed(e entities.Election) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uint64(len(m.elections))
	m.elections = append(m.elections, e)
}

// ElectionCount implements repositories.ElectionLedger.
func (m *MockLedger) ElectionCount(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	return uint64(len(m.elections)), nil
}

// ListElections implements repositories.ElectionLedger.
func (m *MockLedger) ListElections(_ context.Context) ([]entities.Election, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	out := make([]entities.Election, len(m.elections))
	copy(out, m.elections)
	return out, nil
}

// GetElection implements repositories.ElectionLedger.
func (m *MockLedger) GetElection(_ context.Context, id uint64) (*entities.Election, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if id >= uint64(len(m.elections)) {
		return nil, fmt.Errorf("election %d does not exist", id)
	}
	e := m.elections[id]
	return &e, nil
}

// GetWinner implements repositories.ElectionLedger.
func (m *MockLedger) GetWinner(ctx context.Context, electionID uint64) (*entities.Candidate, error) {
	e, err := m.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if len(e.Candidates) == 0 {
		return nil, fmt.Errorf("election %d has no candidates", electionID)
	}
	winner := e.Candidates[0]
	for _, c := range e.Candidates[1:] {
		if c.VoteCount > winner.VoteCount {
			winner = c
		}
	}
	return &winner, nil
}

// CastVote implements repositories.ElectionLedger.
func (m *MockLedger) CastVote(_ context.Context, electionID, candidateID uint64) (*entities.TxReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if electionID >= uint64(len(m.elections)) {
		return nil, fmt.Errorf("election %d does not exist", electionID)
	}
	e := &m.elections[electionID]
	if !e.Active {
		return nil, fmt.Errorf("election %d is not active", electionID)
	}
	if candidateID >= uint64(len(e.Candidates)) {
		return nil, fmt.Errorf("candidate %d does not exist in election %d", candidateID, electionID)
	}
	e.Candidates[candidateID].VoteCount++
	e.TotalVotes++
	return &entities.TxReceipt{TxHash: m.nextTxHash(), ElectionID: electionID}, nil
}

// CreateElection implements repositories.ElectionLedger.
func (m *MockLedger) CreateElection(_ context.Context, draft entities.ElectionDraft) (*entities.TxReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	id := uint64(len(m.elections))
	candidates := make([]entities.Candidate, len(draft.Candidates))
	for i, name := range draft.Candidates {
		candidates[i] = entities.Candidate{ID: uint64(i), Name: name}
	}
	now := time.Now()
	m.elections = append(m.elections, entities.Election{
		ID:          id,
		Title:       draft.Title,
		Description: draft.Description,
		StartTime:   draft.StartTime,
		EndTime:     draft.EndTime,
		Active:      !draft.StartTime.After(now) && draft.EndTime.After(now),
		Candidates:  candidates,
	})
	return &entities.TxReceipt{TxHash: m.nextTxHash(), ElectionID: id}, nil
}

func (m *MockLedger) nextTxHash() string {
	m.txSeq++
	return fmt.Sprintf("0xmock%064d", m.txSeq)
}

var _ repositories.ElectionLedger = (*MockLedger)(nil)
