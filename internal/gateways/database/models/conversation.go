package models

import (
	"slices"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:cv"`

	ID             string     `bun:"id,pk" json:"id"`
	ParticipantIDs []string   `bun:"participant_ids,array,notnull" json:"participantIds"`
	PairKey        string     `bun:"pair_key,nullzero" json:"-"`
	LastMessage    string     `bun:"last_message" json:"lastMessage"`
	LastMessageAt  *time.Time `bun:"last_message_at" json:"lastMessageTimestamp,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// PairKey identifies a pair of users regardless of who started the chat.
func PairKey(a, b string) string {
	pair := []string{a, b}
	slices.Sort(pair)
	return strings.Join(pair, "|")
}

func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             string    `bun:"id,pk" json:"id"`
	ConversationID string    `bun:"conversation_id,notnull" json:"conversationId"`
	SenderID       string    `bun:"sender_id,notnull" json:"senderId"`
	Text           string    `bun:"text,notnull" json:"text"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"timestamp"`
}
