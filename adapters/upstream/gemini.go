package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/pkg/realtime"
)

// DefaultGeminiModel is the default Live API model.
const DefaultGeminiModel = "gemini-2.0-flash-live-001"

// GeminiDialer opens sessions against the Gemini Live API and translates
// between the relay's wire events and Live API calls. The Live API takes
// instructions and tool declarations at connect time, so the dialer is
// constructed with the session configuration and acknowledges the relay's
// session.update without forwarding it.
type GeminiDialer struct {
	apiKey string
	model  string
	config *realtime.SessionConfig
	logger *zap.Logger
}

// NewGeminiDialer creates a dialer. An empty model selects the default.
func NewGeminiDialer(apiKey, model string, config *realtime.SessionConfig, logger *zap.Logger) *GeminiDialer {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiDialer{apiKey: apiKey, model: model, config: config, logger: logger}
}

// Dial implements repositories.UpstreamDialer.
func (d *GeminiDialer) Dial(ctx context.Context) (repositories.UpstreamSession, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("upstream API key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
	}
	if d.config != nil {
		if d.config.Instructions != "" {
			connectConfig.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: d.config.Instructions}},
			}
		}
		if len(d.config.Tools) > 0 {
			connectConfig.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(d.config.Tools)}}
		}
	}

	live, err := client.Live.Connect(ctx, d.model, connectConfig)
	if err != nil {
		return nil, fmt.Errorf("upstream connect failed: %w", err)
	}

	s := &geminiSession{
		live:      live,
		events:    make(chan repositories.UpstreamEvent, 100),
		closed:    make(chan struct{}),
		callNames: make(map[string]string),
		logger:    d.logger,
	}
	// The Live API has no session.created handshake; synthesize one so the
	// relay and client see the same protocol regardless of provider.
	s.emitJSON(map[string]interface{}{
		"type":    realtime.EventTypeSessionCreated,
		"session": map[string]string{"id": "gemini_" + uuid.New().String()[:8]},
	})

	go s.readLoop()
	return s, nil
}

type geminiSession struct {
	live      *genai.Session
	events    chan repositories.UpstreamEvent
	closed    chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	mu        sync.Mutex
	callNames map[string]string
}

// Send translates one client wire frame into the corresponding Live call.
func (s *geminiSession) Send(data []byte) error {
	ev, err := realtime.ParseServerEvent(data)
	if err != nil {
		return fmt.Errorf("untranslatable client frame: %w", err)
	}

	switch ev.Type {
	case realtime.EventTypeInputAudioBufferAppend:
		var frame struct {
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			return fmt.Errorf("undecodable audio payload: %w", err)
		}
		return s.live.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{Data: raw, MIMEType: "audio/pcm;rate=24000"},
		})

	case realtime.EventTypeConversationItemCreate:
		var frame struct {
			Item struct {
				Type   string `json:"type"`
				CallID string `json:"call_id"`
				Output string `json:"output"`
			} `json:"item"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return err
		}
		if frame.Item.Type != "function_call_output" {
			return nil
		}
		s.mu.Lock()
		name := s.callNames[frame.Item.CallID]
		delete(s.callNames, frame.Item.CallID)
		s.mu.Unlock()
		return s.live.SendToolResponse(genai.LiveToolResponseInput{
			FunctionResponses: []*genai.FunctionResponse{{
				ID:       frame.Item.CallID,
				Name:     name,
				Response: map[string]any{"output": frame.Item.Output},
			}},
		})

	case realtime.EventTypeSessionUpdate:
		// Configuration already went in at connect time; just acknowledge.
		s.emitJSON(map[string]interface{}{"type": realtime.EventTypeSessionUpdated})
		return nil

	case realtime.EventTypeResponseCreate, realtime.EventTypeResponseCancel,
		realtime.EventTypeInputAudioBufferCommit:
		// The Live API manages turns itself.
		return nil

	default:
		s.logger.Debug("Dropping untranslatable client frame", zap.String("type", ev.Type))
		return nil
	}
}

func (s *geminiSession) Events() <-chan repositories.UpstreamEvent {
	return s.events
}

func (s *geminiSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.live.Close()
	})
	return err
}

func (s *geminiSession) readLoop() {
	defer close(s.events)
	for {
		msg, err := s.live.Receive()
		if err != nil {
			select {
			case <-s.closed:
			case s.events <- repositories.UpstreamEvent{Err: fmt.Errorf("upstream read: %w", err)}:
			}
			return
		}
		s.translate(msg)
	}
}

// translate fans one Live server message out into wire events, preserving
// the order audio, transcripts, tool calls arrived in.
func (s *geminiSession) translate(msg *genai.LiveServerMessage) {
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.emitJSON(map[string]interface{}{
				"type":       realtime.EventTypeInputTranscriptionCompleted,
				"transcript": sc.InputTranscription.Text,
			})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					s.emitJSON(map[string]interface{}{
						"type":  realtime.EventTypeResponseAudioDelta,
						"delta": base64.StdEncoding.EncodeToString(part.InlineData.Data),
					})
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emitJSON(map[string]interface{}{
				"type":  realtime.EventTypeResponseAudioTranscriptDelta,
				"delta": sc.OutputTranscription.Text,
			})
		}
		if sc.TurnComplete {
			s.emitJSON(map[string]interface{}{"type": realtime.EventTypeResponseAudioDone})
			s.emitJSON(map[string]interface{}{"type": realtime.EventTypeResponseAudioTranscriptDone})
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, call := range tc.FunctionCalls {
			callID := call.ID
			if callID == "" {
				callID = "call_" + uuid.New().String()[:8]
			}
			s.mu.Lock()
			s.callNames[callID] = call.Name
			s.mu.Unlock()

			args, err := json.Marshal(call.Args)
			if err != nil {
				args = []byte("{}")
			}
			// The Live API delivers arguments whole, so only the done event
			// is synthesized; the dispatcher handles delta-less completions.
			s.emitJSON(map[string]interface{}{
				"type":      realtime.EventTypeFunctionCallArgumentsDone,
				"call_id":   callID,
				"name":      call.Name,
				"arguments": string(args),
			})
		}
	}
}

func (s *geminiSession) emitJSON(frame map[string]interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case <-s.closed:
	case s.events <- repositories.UpstreamEvent{Data: data}:
	}
}

// toFunctionDeclarations converts the wire tool schemas into Live API
// declarations. Only the schema subset the election tools use is mapped.
func toFunctionDeclarations(tools []realtime.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return decls
}

func toSchema(params map[string]interface{}) *genai.Schema {
	if params == nil {
		return nil
	}
	schema := &genai.Schema{}

	switch params["type"] {
	case "object":
		schema.Type = genai.TypeObject
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
	}

	if desc, ok := params["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]interface{}); ok {
				schema.Properties[name] = toSchema(sub)
			}
		}
	}
	if items, ok := params["items"].(map[string]interface{}); ok {
		schema.Items = toSchema(items)
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	} else if raw, ok := params["required"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

var _ repositories.UpstreamDialer = (*GeminiDialer)(nil)
