// Package chat is one-to-one messaging between marketplace users.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const maxMessage = 2000

type Service struct {
	repo  Repository
	users Users
	now   func() time.Time
}

func NewService(repo Repository, users Users) *Service {
	return &Service{repo: repo, users: users, now: time.Now}
}

// ConversationID is the id a conversation started by from with to gets.
func ConversationID(from, to string) string {
	return from + "_" + to
}

// Open returns the conversation between the caller and otherID, creating
// it when neither ordering of the pair exists yet. When the other user
// creates it first, theirs is returned.
func (s *Service) Open(ctx context.Context, sess *session.Session, otherID string) (*models.Conversation, error) {
	const op = "chat.Open"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	if otherID == "" {
		return nil, apperr.Invalid(op, "userId", "is required")
	}
	if otherID == sess.UserID {
		return nil, apperr.Invalid(op, "userId", "you cannot start a chat with yourself")
	}
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, apperr.ErrUserMissing)
		}
		return nil, apperr.Wrap(op, err)
	}

	for _, id := range []string{ConversationID(sess.UserID, otherID), ConversationID(otherID, sess.UserID)} {
		c, err := s.repo.GetConversation(ctx, id)
		if err == nil {
			return c, nil
		}
		if !apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, err)
		}
	}

	c := &models.Conversation{
		ID:             ConversationID(sess.UserID, otherID),
		ParticipantIDs: []string{sess.UserID, otherID},
		PairKey:        models.PairKey(sess.UserID, otherID),
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateConversation(ctx, c); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return c, nil
}

// Authorize loads a conversation the caller takes part in.
func (s *Service) Authorize(ctx context.Context, sess *session.Session, conversationID string) (*models.Conversation, error) {
	const op = "chat.Authorize"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	c, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if !c.HasParticipant(sess.UserID) {
		return nil, apperr.E(apperr.Forbidden, op, errors.New("not a participant in this conversation"))
	}
	return c, nil
}

func (s *Service) Send(ctx context.Context, sess *session.Session, conversationID, text string) (*models.Message, error) {
	const op = "chat.Send"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid(op, "text", "is required")
	}
	if utf8.RuneCountInString(text) > maxMessage {
		return nil, apperr.Invalid(op, "text", fmt.Sprintf("must be at most %d characters", maxMessage))
	}
	c, err := s.Authorize(ctx, sess, conversationID)
	if err != nil {
		return nil, err
	}

	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		SenderID:       sess.UserID,
		Text:           text,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AppendMessage(ctx, m); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return m, nil
}

// Summary is a conversation as listed for one participant.
type Summary struct {
	*models.Conversation
	OtherUserID string `json:"otherUserId"`
	OtherName   string `json:"otherDisplayName"`
	OtherPhoto  string `json:"otherPhotoURL,omitempty"`
}

func (s *Service) List(ctx context.Context, sess *session.Session) ([]Summary, error) {
	const op = "chat.List"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	list, err := s.repo.ListConversations(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	out := make([]Summary, 0, len(list))
	for _, c := range list {
		sum := Summary{Conversation: c}
		for _, id := range c.ParticipantIDs {
			if id != sess.UserID {
				sum.OtherUserID = id
			}
		}
		if sum.OtherUserID != "" {
			u, err := s.users.GetByID(ctx, sum.OtherUserID)
			switch {
			case err == nil:
				sum.OtherName, sum.OtherPhoto = u.DisplayName, u.PhotoURL
			case !apperr.Is(err, apperr.NotFound):
				return nil, apperr.Wrap(op, err)
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// Messages returns the conversation's messages oldest first.
func (s *Service) Messages(ctx context.Context, sess *session.Session, conversationID string) ([]*models.Message, error) {
	const op = "chat.Messages"
	if _, err := s.Authorize(ctx, sess, conversationID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return list, nil
}
