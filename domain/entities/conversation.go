package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationStatus represents the status of a voice conversation
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusClosed ConversationStatus = "closed"
	ConversationStatusFailed ConversationStatus = "failed"
)

// UtteranceRole represents who produced an utterance
type UtteranceRole string

const (
	UtteranceRoleVoter     UtteranceRole = "voter"
	UtteranceRoleAssistant UtteranceRole = "assistant"
)

// Utterance is a single spoken turn captured from the conversation stream
type Utterance struct {
	Timestamp time.Time     `json:"timestamp" bson:"timestamp"`
	Role      UtteranceRole `json:"role" bson:"role"`
	Content   string        `json:"content" bson:"content"`
	// Source records where the transcript came from: "upstream" when the
	// provider transcribed it, "fallback" when the relay's STT pass did.
	Source string `json:"source,omitempty" bson:"source,omitempty"`
}

// Conversation is one voice-assistant session's transcript, keyed by the
// session id the upstream provider assigned.
type Conversation struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID     string             `json:"session_id" bson:"session_id"`
	VoterID       string             `json:"voter_id" bson:"voter_id"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	Status        ConversationStatus `json:"status" bson:"status"`
	Utterances    []Utterance        `json:"utterances" bson:"utterances"`
}

// NewConversation creates a conversation for an upstream session.
func NewConversation(sessionID, voterID string) *Conversation {
	return &Conversation{
		ID:         primitive.NewObjectID(),
		SessionID:  sessionID,
		VoterID:    voterID,
		CreatedAt:  time.Now(),
		Status:     ConversationStatusActive,
		Utterances: make([]Utterance, 0),
	}
}

// AddUtterance appends a transcript entry and bumps the last-message time.
func (c *Conversation) AddUtterance(role UtteranceRole, content, source string) {
	now := time.Now()
	c.Utterances = append(c.Utterances, Utterance{
		Timestamp: now,
		Role:      role,
		Content:   content,
		Source:    source,
	})
	c.LastMessageAt = &now
}

// Close marks the conversation terminated.
func (c *Conversation) Close() {
	c.Status = ConversationStatusClosed
}

// Fail marks the conversation as ended by a transport failure.
func (c *Conversation) Fail() {
	c.Status = ConversationStatusFailed
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.SessionID == "" {
		return errors.New("session_id is required")
	}

	switch c.Status {
	case ConversationStatusActive, ConversationStatusClosed, ConversationStatusFailed:
	default:
		return errors.New("invalid conversation status")
	}

	return nil
}
