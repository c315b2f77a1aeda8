package entities

import "encoding/json"

// CommandResult is the outcome of one dispatched voice command. Message is
// phrased for the model to speak back; Payload carries operation-specific
// data. The struct is serialized verbatim into the function output frame.
type CommandResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Payload interface{} `json:"payload,omitempty"`
}

// Failure builds a failed result with the given message.
func Failure(message string) CommandResult {
	return CommandResult{Success: false, Message: message}
}

// Output serializes the result for the function output frame. Serialization
// of a CommandResult cannot fail; a marshal error degrades to a generic
// failure payload rather than propagating.
func (r CommandResult) Output() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"message":"internal error"}`
	}
	return string(data)
}
