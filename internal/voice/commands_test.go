package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/suarakita/server/adapters/ledger"
	"github.com/suarakita/server/domain/entities"
)

func seededLedger() *ledger.MockLedger {
	l := ledger.NewMockLedger()
	l.Seed(entities.Election{
		Title:  "Student Council 2026",
		Active: true,
		Candidates: []entities.Candidate{
			{ID: 0, Name: "Ayu"},
			{ID: 1, Name: "Budi"},
		},
	})
	l.Seed(entities.Election{
		Title:  "Closed Election",
		Active: false,
		Candidates: []entities.Candidate{
			{ID: 0, Name: "Citra"},
			{ID: 1, Name: "Dewi"},
		},
	})
	return l
}

func TestNavigateToKnownPage(t *testing.T) {
	var navigated string
	op := &NavigateOperation{Navigate: func(route string) { navigated = route }}

	result := op.Execute(context.Background(), map[string]interface{}{"page": "admin"})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
	if navigated != "/admin" {
		t.Errorf("expected /admin, got %q", navigated)
	}
}

func TestNavigateToIsCaseInsensitive(t *testing.T) {
	var navigated string
	op := &NavigateOperation{Navigate: func(route string) { navigated = route }}

	result := op.Execute(context.Background(), map[string]interface{}{"page": " Results "})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
	if navigated != "/results" {
		t.Errorf("expected /results, got %q", navigated)
	}
}

func TestNavigateToUnknownPage(t *testing.T) {
	op := &NavigateOperation{}

	result := op.Execute(context.Background(), map[string]interface{}{"page": "settings"})
	if result.Success {
		t.Error("expected failure for unknown page")
	}
	if result.Message != `invalid page "settings"` {
		t.Errorf("unexpected message: %q", result.Message)
	}
}

func TestNavigateToMissingPage(t *testing.T) {
	op := &NavigateOperation{}
	if result := op.Execute(context.Background(), map[string]interface{}{}); result.Success {
		t.Error("expected failure without page argument")
	}
}

func TestListElections(t *testing.T) {
	op := &ListElectionsOperation{Ledger: seededLedger()}

	result := op.Execute(context.Background(), nil)
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
	elections := result.Payload.([]entities.Election)
	if len(elections) != 2 {
		t.Errorf("expected 2 elections, got %d", len(elections))
	}
}

func TestListElectionsSurfacesLedgerError(t *testing.T) {
	l := ledger.NewMockLedger()
	l.FailWith = errors.New("rpc unreachable")
	op := &ListElectionsOperation{Ledger: l}

	result := op.Execute(context.Background(), nil)
	if result.Success {
		t.Error("expected failure when ledger errors")
	}
}

func TestGetElectionDetails(t *testing.T) {
	op := &GetElectionDetailsOperation{Ledger: seededLedger()}

	result := op.Execute(context.Background(), map[string]interface{}{"electionId": float64(0)})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
	election := result.Payload.(*entities.Election)
	if election.Title != "Student Council 2026" {
		t.Errorf("wrong election: %q", election.Title)
	}
}

func TestGetElectionDetailsAcceptsStringID(t *testing.T) {
	op := &GetElectionDetailsOperation{Ledger: seededLedger()}

	result := op.Execute(context.Background(), map[string]interface{}{"electionId": "1"})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
}

func TestGetElectionDetailsMissingID(t *testing.T) {
	op := &GetElectionDetailsOperation{Ledger: seededLedger()}
	if result := op.Execute(context.Background(), map[string]interface{}{}); result.Success {
		t.Error("expected failure without electionId")
	}
}

func TestCastVote(t *testing.T) {
	l := seededLedger()
	op := &CastVoteOperation{Ledger: l, Logger: zap.NewNop()}

	result := op.Execute(context.Background(), map[string]interface{}{
		"electionId":  float64(0),
		"candidateId": float64(1),
	})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
	if result.Message != "Your vote has been submitted to the ledger" {
		t.Errorf("unexpected message: %q", result.Message)
	}

	election, err := l.GetElection(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetElection failed: %v", err)
	}
	if election.Candidates[1].VoteCount != 1 {
		t.Errorf("vote not recorded: %+v", election.Candidates)
	}
}

func TestCastVoteOnInactiveElection(t *testing.T) {
	op := &CastVoteOperation{Ledger: seededLedger(), Logger: zap.NewNop()}

	result := op.Execute(context.Background(), map[string]interface{}{
		"electionId":  float64(1),
		"candidateId": float64(0),
	})
	if result.Success {
		t.Error("expected failure voting on an inactive election")
	}
}

func TestCastVoteMissingArguments(t *testing.T) {
	op := &CastVoteOperation{Ledger: seededLedger(), Logger: zap.NewNop()}

	if result := op.Execute(context.Background(), map[string]interface{}{"candidateId": float64(0)}); result.Success {
		t.Error("expected failure without electionId")
	}
	if result := op.Execute(context.Background(), map[string]interface{}{"electionId": float64(0)}); result.Success {
		t.Error("expected failure without candidateId")
	}
}

func TestCreateElection(t *testing.T) {
	l := ledger.NewMockLedger()
	op := &CreateElectionOperation{Ledger: l, Logger: zap.NewNop()}

	start := time.Now().Add(time.Hour)
	end := start.Add(24 * time.Hour)
	result := op.Execute(context.Background(), map[string]interface{}{
		"title":      "Village Head Election",
		"candidates": []interface{}{"Eka", "Fajar"},
		"startTime":  start.Format(time.RFC3339),
		"endTime":    end.Format(time.RFC3339),
	})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}

	count, err := l.ElectionCount(context.Background())
	if err != nil {
		t.Fatalf("ElectionCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 election on the ledger, got %d", count)
	}
}

func TestCreateElectionAcceptsUnixTimestamps(t *testing.T) {
	op := &CreateElectionOperation{Ledger: ledger.NewMockLedger(), Logger: zap.NewNop()}

	start := time.Now().Add(time.Hour)
	result := op.Execute(context.Background(), map[string]interface{}{
		"title":      "Unix Time Election",
		"candidates": []interface{}{"Gita", "Hadi"},
		"startTime":  float64(start.Unix()),
		"endTime":    float64(start.Add(time.Hour).Unix()),
	})
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
}

func TestCreateElectionRejectsSingleCandidate(t *testing.T) {
	op := &CreateElectionOperation{Ledger: ledger.NewMockLedger(), Logger: zap.NewNop()}

	start := time.Now()
	result := op.Execute(context.Background(), map[string]interface{}{
		"title":      "One Horse Race",
		"candidates": []interface{}{"Solo"},
		"startTime":  start.Format(time.RFC3339),
		"endTime":    start.Add(time.Hour).Format(time.RFC3339),
	})
	if result.Success {
		t.Error("expected failure with fewer than two candidates")
	}
}

func TestCreateElectionRejectsInvertedWindow(t *testing.T) {
	op := &CreateElectionOperation{Ledger: ledger.NewMockLedger(), Logger: zap.NewNop()}

	start := time.Now()
	result := op.Execute(context.Background(), map[string]interface{}{
		"title":      "Backwards Election",
		"candidates": []interface{}{"Ika", "Joko"},
		"startTime":  start.Format(time.RFC3339),
		"endTime":    start.Add(-time.Hour).Format(time.RFC3339),
	})
	if result.Success {
		t.Error("expected failure when end precedes start")
	}
}

func TestRegistryCoversAllCommands(t *testing.T) {
	ops := Registry(nil, ledger.NewMockLedger(), zap.NewNop())

	want := map[string]bool{
		"navigate_to":          false,
		"list_elections":       false,
		"get_election_details": false,
		"cast_vote":            false,
		"create_election":      false,
	}
	for _, op := range ops {
		if _, ok := want[op.Name()]; !ok {
			t.Errorf("unexpected operation %q", op.Name())
			continue
		}
		want[op.Name()] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing operation %q", name)
		}
	}
}
