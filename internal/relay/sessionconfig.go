package relay

import (
	"github.com/suarakita/server/internal/auth"
	"github.com/suarakita/server/pkg/realtime"
)

const assistantInstructions = `You are SuaraKita, a voice assistant for a blockchain election platform. ` +
	`Help voters browse elections, inspect candidates and results, and cast votes. ` +
	`Always confirm the election and candidate back to the voter before casting a vote. ` +
	`Votes are recorded on a public ledger and cannot be changed, so state that clearly ` +
	`before a cast_vote call. Answer briefly and in the voter's language. ` +
	`Only admins may create elections; if a non-admin asks, explain and offer to navigate ` +
	`them to the elections page instead.`

// SessionDefaults is the configuration every relayed session is updated with
// once, immediately after the provider announces session.created.
func SessionDefaults() *realtime.SessionConfig {
	return &realtime.SessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      assistantInstructions,
		Voice:             "alloy",
		InputAudioFormat:  realtime.AudioFormatPCM16,
		OutputAudioFormat: realtime.AudioFormatPCM16,
		InputAudioTranscription: &realtime.TranscriptionConfig{
			Model: "whisper-1",
		},
		TurnDetection: &realtime.TurnDetection{
			Type:              realtime.VADServerVAD,
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
		Tools:      commandTools(),
		ToolChoice: "auto",
	}
}

// configForRole narrows a session config to the tools the connected role may
// call. Admin sessions get the full set; everyone else loses the
// elections-write tools, so a voter's model is never offered create_election
// in the first place.
func configForRole(base *realtime.SessionConfig, role string) *realtime.SessionConfig {
	if role == auth.RoleAdmin {
		return base
	}
	narrowed := *base
	tools := make([]realtime.Tool, 0, len(base.Tools))
	for _, tool := range base.Tools {
		if tool.Name == "create_election" {
			continue
		}
		tools = append(tools, tool)
	}
	narrowed.Tools = tools
	return &narrowed
}

func commandTools() []realtime.Tool {
	return []realtime.Tool{
		{
			Type:        "function",
			Name:        "navigate_to",
			Description: "Navigate the voter's browser to a page of the voting app.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"page": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"home", "vote", "elections", "results", "admin", "register"},
						"description": "Destination page.",
					},
				},
				"required": []string{"page"},
			},
		},
		{
			Type:        "function",
			Name:        "list_elections",
			Description: "List every election on the ledger with its id, title, and status.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Type:        "function",
			Name:        "get_election_details",
			Description: "Fetch one election's candidates, vote counts, schedule, and current winner.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"electionId": map[string]interface{}{
						"type":        "number",
						"description": "Ledger id of the election.",
					},
				},
				"required": []string{"electionId"},
			},
		},
		{
			Type:        "function",
			Name:        "cast_vote",
			Description: "Cast the voter's vote for a candidate. Irreversible; confirm with the voter first.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"electionId": map[string]interface{}{
						"type":        "number",
						"description": "Ledger id of the election.",
					},
					"candidateId": map[string]interface{}{
						"type":        "number",
						"description": "Id of the candidate within the election.",
					},
				},
				"required": []string{"electionId", "candidateId"},
			},
		},
		{
			Type:        "function",
			Name:        "create_election",
			Description: "Create a new election on the ledger. Admin only.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"title": map[string]interface{}{
						"type": "string",
					},
					"description": map[string]interface{}{
						"type": "string",
					},
					"candidates": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
					"startTime": map[string]interface{}{
						"type":        "string",
						"description": "RFC3339 start of the voting window.",
					},
					"endTime": map[string]interface{}{
						"type":        "string",
						"description": "RFC3339 end of the voting window.",
					},
				},
				"required": []string{"title", "candidates", "startTime", "endTime"},
			},
		},
	}
}
