package realtime

import (
	"encoding/json"
	"testing"
)

func TestParseServerEvent(t *testing.T) {
	data := []byte(`{"type":"response.function_call_arguments.delta","call_id":"call_1","name":"cast_vote","delta":"{\"elect"}`)

	ev, err := ParseServerEvent(data)
	if err != nil {
		t.Fatalf("ParseServerEvent failed: %v", err)
	}

	if ev.Type != EventTypeFunctionCallArgumentsDelta {
		t.Errorf("Expected type %s, got %s", EventTypeFunctionCallArgumentsDelta, ev.Type)
	}
	if ev.CallID != "call_1" {
		t.Errorf("Expected call_id call_1, got %s", ev.CallID)
	}
	if ev.Name != "cast_vote" {
		t.Errorf("Expected name cast_vote, got %s", ev.Name)
	}
	if string(ev.Raw) != string(data) {
		t.Error("Expected Raw to preserve the original bytes")
	}
}

func TestParseServerEventRejectsMalformed(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{invalid`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	if _, err := ParseServerEvent([]byte(`{"delta":"x"}`)); err == nil {
		t.Error("Expected error for event missing type")
	}
}

func TestParseSessionCreated(t *testing.T) {
	ev, err := ParseServerEvent([]byte(`{"type":"session.created","session":{"id":"sess_42","voice":"verse"}}`))
	if err != nil {
		t.Fatalf("ParseServerEvent failed: %v", err)
	}
	if ev.Session == nil || ev.Session.ID != "sess_42" {
		t.Errorf("Expected session id sess_42, got %+v", ev.Session)
	}
}

func TestFunctionOutputEvent(t *testing.T) {
	data, err := FunctionOutputEvent("call_9", `{"success":true}`)
	if err != nil {
		t.Fatalf("FunctionOutputEvent failed: %v", err)
	}

	var frame struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
		Item    struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if frame.Type != EventTypeConversationItemCreate {
		t.Errorf("Expected type %s, got %s", EventTypeConversationItemCreate, frame.Type)
	}
	if frame.Item.Type != "function_call_output" {
		t.Errorf("Expected item type function_call_output, got %s", frame.Item.Type)
	}
	if frame.Item.CallID != "call_9" || frame.Item.Output != `{"success":true}` {
		t.Errorf("Unexpected item payload: %+v", frame.Item)
	}
	if frame.EventID == "" {
		t.Error("Expected a generated event_id")
	}
}

func TestAppendAudioEvent(t *testing.T) {
	data, err := AppendAudioEvent("AAAA")
	if err != nil {
		t.Fatalf("AppendAudioEvent failed: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if frame["type"] != EventTypeInputAudioBufferAppend {
		t.Errorf("Expected type %s, got %v", EventTypeInputAudioBufferAppend, frame["type"])
	}
	if frame["audio"] != "AAAA" {
		t.Errorf("Expected audio AAAA, got %v", frame["audio"])
	}
}
