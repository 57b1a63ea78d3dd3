package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Rating struct {
	bun.BaseModel `bun:"table:ratings,alias:r"`

	ID            string     `bun:"id,pk" json:"id"`
	TransactionID string     `bun:"transaction_id,notnull" json:"transactionId"`
	RaterUserID   string     `bun:"rater_user_id,notnull" json:"raterUserId"`
	RatedUserID   string     `bun:"rated_user_id,notnull" json:"ratedUserId"`
	Role          RatingRole `bun:"role,notnull" json:"role"`
	Score         int        `bun:"rating,notnull" json:"rating"`
	Comment       string     `bun:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`

	RaterName string `bun:"-" json:"raterName,omitempty"`
}

type RatingSummary struct {
	UserID  string  `bun:"rated_user_id" json:"userId"`
	Count   int     `bun:"count" json:"count"`
	Average float64 `bun:"average" json:"average"`
}
