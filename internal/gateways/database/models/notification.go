package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NotificationType string

const (
	NotificationSwapRequest  NotificationType = "swap_request"
	NotificationSwapAccepted NotificationType = "swap_accepted"
	NotificationSwapDenied   NotificationType = "swap_denied"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        string           `bun:"id,pk" json:"id"`
	UserID    string           `bun:"user_id,notnull" json:"userId"`
	Type      NotificationType `bun:"type,notnull" json:"type"`
	Message   string           `bun:"message,notnull" json:"message"`
	Read      bool             `bun:"read,notnull,default:false" json:"read"`
	CreatedAt time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}
