package repositories

import (
	"context"

	"github.com/suarakita/server/domain/entities"
)

// ConversationRepository defines data access methods for conversation
// transcripts.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetBySessionID(ctx context.Context, sessionID string) (*entities.Conversation, error)
	Update(ctx context.Context, conversation *entities.Conversation) error
}
