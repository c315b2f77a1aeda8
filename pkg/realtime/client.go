package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// newEventID generates a unique client event id.
func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// SessionUpdateEvent builds the session.update frame carrying config.
func SessionUpdateEvent(config *SessionConfig) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  config,
	})
}

// AppendAudioEvent builds an input_audio_buffer.append frame from base64 PCM16.
func AppendAudioEvent(audioBase64 string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    audioBase64,
	})
}

// FunctionOutputEvent builds the conversation.item.create frame carrying a
// function call's output back into the conversation.
func FunctionOutputEvent(callID, output string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeConversationItemCreate,
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// ResponseCreateEvent builds the response.create frame requesting a new turn.
func ResponseCreateEvent() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeResponseCreate,
	})
}
