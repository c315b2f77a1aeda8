package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
)

type ConversationRepository struct {
	collection *mongo.Collection
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database) repositories.ConversationRepository {
	return &ConversationRepository{
		collection: db.Collection("conversations"),
	}
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetBySessionID implements repositories.ConversationRepository
func (r *ConversationRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.Conversation, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	filter := bson.M{"session_id": sessionID}
	opts := options.FindOne().SetSort(bson.M{"created_at": -1})

	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, filter, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No conversation found, return nil without error
		}
		return nil, fmt.Errorf("failed to get conversation for session %s: %w", sessionID, err)
	}

	return &conversation, nil
}

// Update implements repositories.ConversationRepository
func (r *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ID.IsZero() {
		return errors.New("conversation ID cannot be empty")
	}

	update := bson.M{
		"$set": bson.M{
			"voter_id":        conversation.VoterID,
			"last_message_at": conversation.LastMessageAt,
			"status":          conversation.Status,
			"utterances":      conversation.Utterances,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": conversation.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation %s not found", conversation.ID.Hex())
	}

	return nil
}
