package chat

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// Repository stores conversations and their messages. CreateConversation
// loads the stored conversation into c when the pair already has one.
// AppendMessage also updates the conversation's last message in the same
// transaction.
type Repository interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, c *models.Conversation) error
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
