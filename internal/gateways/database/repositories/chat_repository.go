package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/swapcard/marketplace/internal/domain/chat"
	"github.com/swapcard/marketplace/internal/domain/logger"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/feed"
)

type chatRepository struct {
	db *bun.DB
}

var _ chat.Repository = &chatRepository{}

func NewChatRepository(db *bun.DB) *chatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	c := new(models.Conversation)
	if err := r.db.NewSelect().Model(c).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, lookup("conversations.Get", err)
	}
	return c, nil
}

// CreateConversation inserts c unless its pair already has a
// conversation, in which case the stored one is scanned into c. Two users
// opening the same chat at once end up in one conversation.
func (r *chatRepository) CreateConversation(ctx context.Context, c *models.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if c.PairKey == "" && len(c.ParticipantIDs) == 2 {
		c.PairKey = models.PairKey(c.ParticipantIDs[0], c.ParticipantIDs[1])
	}

	ql := logger.NewQueryLogger("create", "conversations", c.ID)
	res, err := r.db.NewInsert().Model(c).On("CONFLICT DO NOTHING").Exec(ctx)
	ql.Done(res, err)
	if err != nil {
		return lookup("conversations.Create", err)
	}
	if n, rerr := res.RowsAffected(); rerr == nil && n > 0 {
		return nil
	}

	err = r.db.NewSelect().
		Model(c).
		Where("pair_key = ?", c.PairKey).
		WhereOr("id = ?", c.ID).
		Limit(1).
		Scan(ctx)
	return lookup("conversations.Create", err)
}

func (r *chatRepository) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.Conversation
	err := r.db.NewSelect().
		Model(&list).
		Where("? = ANY(participant_ids)", userID).
		OrderExpr("last_message_at DESC NULLS LAST").
		Order("created_at DESC").
		Scan(ctx)
	return list, lookup("conversations.List", err)
}

func (r *chatRepository) AppendMessage(ctx context.Context, m *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ql := logger.NewQueryLogger("append", "messages", m.ConversationID, m.SenderID)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewUpdate().
			Model((*models.Conversation)(nil)).
			Set("last_message = ?", m.Text).
			Set("last_message_at = ?", m.CreatedAt).
			Where("id = ?", m.ConversationID).
			Exec(ctx)
		if err := affected("conversations.Touch", res, err); err != nil {
			return err
		}
		return publish(ctx, tx, event{feed.MessagesTopic(m.ConversationID), feed.KindCreated, m.ID})
	})
	ql.Log(err, 1)
	return lookup("messages.Append", err)
}

func (r *chatRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var list []*models.Message
	err := r.db.NewSelect().
		Model(&list).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Scan(ctx)
	return list, lookup("messages.List", err)
}
