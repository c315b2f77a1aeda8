// Package realtime defines the JSON event vocabulary spoken between voice
// clients, the relay, and the upstream realtime provider. Events travel as
// text frames over a persistent WebSocket; audio payloads are base64 PCM16.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Client event types (client to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
	EventTypeResponseCancel         = "response.cancel"
)

// Server event types (server to client).
const (
	EventTypeError          = "error"
	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeInputAudioBufferCommitted = "input_audio_buffer.committed"
	EventTypeSpeechStarted             = "input_audio_buffer.speech_started"
	EventTypeSpeechStopped             = "input_audio_buffer.speech_stopped"

	EventTypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"

	EventTypeResponseAudioDelta           = "response.audio.delta"
	EventTypeResponseAudioDone            = "response.audio.done"
	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
	EventTypeResponseDone                 = "response.done"

	EventTypeFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	EventTypeFunctionCallArgumentsDone  = "response.function_call_arguments.done"
)

// ServerEvent is the tagged union for every inbound frame. Only the fields
// relevant to the frame's Type are populated; Raw always carries the exact
// bytes received so the relay can forward frames verbatim.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`

	// session.created / session.updated
	Session *SessionResource `json:"session,omitempty"`

	// *.delta events: incremental audio (base64), transcript, or argument text.
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`
	ItemID     string `json:"item_id,omitempty"`

	// response.function_call_arguments.*
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// error
	Error *EventError `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// SessionResource is the session metadata echoed by the provider.
type SessionResource struct {
	ID                      string               `json:"id,omitempty"`
	Model                   string               `json:"model,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
}

// EventError carries the error payload of an "error" frame.
type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *EventError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: %s", e.Message)
}

// ParseServerEvent decodes a raw frame into a ServerEvent, preserving the
// original bytes in Raw.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("realtime: malformed event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("realtime: event missing type")
	}
	ev.Raw = data
	return &ev, nil
}
