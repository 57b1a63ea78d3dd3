package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SwapStatus string

const (
	SwapPending  SwapStatus = "pending"
	SwapAccepted SwapStatus = "accepted"
	SwapDenied   SwapStatus = "denied"
)

type SwapRequest struct {
	bun.BaseModel `bun:"table:swap_requests,alias:sr"`

	ID              string     `bun:"id,pk" json:"id"`
	RequesterID     string     `bun:"requester_id,notnull" json:"requesterId"`
	ReceiverID      string     `bun:"receiver_id,notnull" json:"receiverId"`
	RequesterCardID string     `bun:"requester_card_id,notnull" json:"requesterCardId"`
	ReceiverCardID  string     `bun:"receiver_card_id,notnull" json:"receiverCardId"`
	Status          SwapStatus `bun:"status,notnull,default:'pending'" json:"status"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	DecidedAt       *time.Time `bun:"decided_at" json:"decidedAt,omitempty"`
}

func (r *SwapRequest) IsPending() bool { return r.Status == SwapPending }

type RatingRole string

const (
	RoleRequester RatingRole = "requester"
	RoleReceiver  RatingRole = "receiver"
)

// SwapTransaction is written once, together with the ownership transfer.
// Only the two rating flags change afterwards.
type SwapTransaction struct {
	bun.BaseModel `bun:"table:swap_transactions,alias:st"`

	ID              string     `bun:"id,pk" json:"id"`
	RequestID       string     `bun:"request_id,notnull,unique" json:"requestId"`
	RequesterID     string     `bun:"requester_id,notnull" json:"requesterId"`
	ReceiverID      string     `bun:"receiver_id,notnull" json:"receiverId"`
	RequesterCardID string     `bun:"requester_card_id,notnull" json:"requesterCardId"`
	ReceiverCardID  string     `bun:"receiver_card_id,notnull" json:"receiverCardId"`
	Status          SwapStatus `bun:"status,notnull" json:"status"`
	RequesterRated  bool       `bun:"requester_rated,notnull,default:false" json:"requesterRated"`
	ReceiverRated   bool       `bun:"receiver_rated,notnull,default:false" json:"receiverRated"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// RoleOf derives the part userID played in the swap.
func (t *SwapTransaction) RoleOf(userID string) (RatingRole, bool) {
	switch userID {
	case t.RequesterID:
		return RoleRequester, true
	case t.ReceiverID:
		return RoleReceiver, true
	default:
		return "", false
	}
}

func (t *SwapTransaction) Counterparty(role RatingRole) string {
	if role == RoleRequester {
		return t.ReceiverID
	}
	return t.RequesterID
}

func (t *SwapTransaction) RatedBy(role RatingRole) bool {
	if role == RoleRequester {
		return t.RequesterRated
	}
	return t.ReceiverRated
}

// RatedColumn is the flag column flipped when role submits a rating.
func RatedColumn(role RatingRole) string {
	if role == RoleRequester {
		return "requester_rated"
	}
	return "receiver_rated"
}

// SwapDecision is what the decision engine hands to the store for the
// atomic accept: the request and the expected owner of each card.
type SwapDecision struct {
	RequestID       string
	TransactionID   string
	RequesterID     string
	ReceiverID      string
	RequesterCardID string
	ReceiverCardID  string
	DecidedAt       time.Time
}
