package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
)

// pageRoutes maps the symbolic page names the model speaks to portal routes.
var pageRoutes = map[string]string{
	"home":      "/",
	"vote":      "/vote",
	"elections": "/elections",
	"results":   "/results",
	"admin":     "/admin",
	"register":  "/register",
}

// NavigateOperation maps a symbolic page name to a route. Pure, no I/O.
type NavigateOperation struct {
	Navigate func(route string)
}

func (o *NavigateOperation) Name() string { return "navigate_to" }

func (o *NavigateOperation) Execute(_ context.Context, args map[string]interface{}) entities.CommandResult {
	page, ok := stringArg(args, "page")
	if !ok {
		return entities.Failure("page is required")
	}

	route, ok := pageRoutes[strings.ToLower(strings.TrimSpace(page))]
	if !ok {
		return entities.Failure(fmt.Sprintf("invalid page %q", page))
	}

	if o.Navigate != nil {
		o.Navigate(route)
	}
	return entities.CommandResult{
		Success: true,
		Message: fmt.Sprintf("Navigating to the %s page", page),
		Payload: map[string]string{"route": route},
	}
}

// ListElectionsOperation lists every election on the ledger.
type ListElectionsOperation struct {
	Ledger repositories.ElectionLedger
}

func (o *ListElectionsOperation) Name() string { return "list_elections" }

func (o *ListElectionsOperation) Execute(ctx context.Context, _ map[string]interface{}) entities.CommandResult {
	elections, err := o.Ledger.ListElections(ctx)
	if err != nil {
		return entities.Failure(fmt.Sprintf("could not list elections: %v", err))
	}

	active := 0
	for _, e := range elections {
		if e.Active {
			active++
		}
	}
	return entities.CommandResult{
		Success: true,
		Message: fmt.Sprintf("There are %d elections, %d of them active", len(elections), active),
		Payload: elections,
	}
}

// GetElectionDetailsOperation returns one election with its candidates.
type GetElectionDetailsOperation struct {
	Ledger repositories.ElectionLedger
}

func (o *GetElectionDetailsOperation) Name() string { return "get_election_details" }

func (o *GetElectionDetailsOperation) Execute(ctx context.Context, args map[string]interface{}) entities.CommandResult {
	electionID, ok := uintArg(args, "electionId")
	if !ok {
		return entities.Failure("electionId is required")
	}

	election, err := o.Ledger.GetElection(ctx, electionID)
	if err != nil {
		return entities.Failure(fmt.Sprintf("could not load election %d: %v", electionID, err))
	}

	return entities.CommandResult{
		Success: true,
		Message: fmt.Sprintf("Election %q has %d candidates and %d votes", election.Title, len(election.Candidates), election.TotalVotes),
		Payload: election,
	}
}

// CastVoteOperation submits a vote transaction. Success is decided at
// submission; mining confirmation reaches the UI out-of-band.
type CastVoteOperation struct {
	Ledger repositories.ElectionLedger
	Logger *zap.Logger
}

func (o *CastVoteOperation) Name() string { return "cast_vote" }

func (o *CastVoteOperation) Execute(ctx context.Context, args map[string]interface{}) entities.CommandResult {
	electionID, ok := uintArg(args, "electionId")
	if !ok {
		return entities.Failure("electionId is required")
	}
	candidateID, ok := uintArg(args, "candidateId")
	if !ok {
		return entities.Failure("candidateId is required")
	}

	receipt, err := o.Ledger.CastVote(ctx, electionID, candidateID)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("Vote submission failed",
				zap.Uint64("electionID", electionID),
				zap.Uint64("candidateID", candidateID),
				zap.Error(err))
		}
		return entities.Failure(fmt.Sprintf("could not cast vote: %v", err))
	}

	return entities.CommandResult{
		Success: true,
		Message: "Your vote has been submitted to the ledger",
		Payload: receipt,
	}
}

// CreateElectionOperation submits an election-creation transaction.
type CreateElectionOperation struct {
	Ledger repositories.ElectionLedger
	Logger *zap.Logger
}

func (o *CreateElectionOperation) Name() string { return "create_election" }

func (o *CreateElectionOperation) Execute(ctx context.Context, args map[string]interface{}) entities.CommandResult {
	title, ok := stringArg(args, "title")
	if !ok {
		return entities.Failure("title is required")
	}
	candidates, ok := stringSliceArg(args, "candidates")
	if !ok {
		return entities.Failure("candidates are required")
	}
	startTime, ok := timeArg(args, "startTime")
	if !ok {
		return entities.Failure("startTime is required")
	}
	endTime, ok := timeArg(args, "endTime")
	if !ok {
		return entities.Failure("endTime is required")
	}
	description, _ := stringArg(args, "description")

	draft := entities.ElectionDraft{
		Title:       title,
		Description: description,
		Candidates:  candidates,
		StartTime:   startTime,
		EndTime:     endTime,
	}
	if err := draft.Validate(); err != nil {
		return entities.Failure(err.Error())
	}

	receipt, err := o.Ledger.CreateElection(ctx, draft)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("Election creation failed", zap.String("title", title), zap.Error(err))
		}
		return entities.Failure(fmt.Sprintf("could not create election: %v", err))
	}

	return entities.CommandResult{
		Success: true,
		Message: fmt.Sprintf("Election %q has been submitted to the ledger", title),
		Payload: receipt,
	}
}

// Registry assembles the full operation set for one session.
func Registry(navigate func(route string), ledger repositories.ElectionLedger, logger *zap.Logger) []Operation {
	return []Operation{
		&NavigateOperation{Navigate: navigate},
		&ListElectionsOperation{Ledger: ledger},
		&GetElectionDetailsOperation{Ledger: ledger},
		&CastVoteOperation{Ledger: ledger, Logger: logger},
		&CreateElectionOperation{Ledger: ledger, Logger: logger},
	}
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func uintArg(args map[string]interface{}, key string) (uint64, bool) {
	switch v := args[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case string:
		var n uint64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func stringSliceArg(args map[string]interface{}, key string) ([]string, bool) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, false
		}
		out = append(out, s)
	}
	return out, len(out) > 0
}

// timeArg accepts unix seconds or an RFC3339 string; the model emits either.
func timeArg(args map[string]interface{}, key string) (time.Time, bool) {
	switch v := args[key].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}
