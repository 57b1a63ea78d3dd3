package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ListingStatus string

const (
	ListingOpen   ListingStatus = "open"
	ListingClosed ListingStatus = "closed"
)

// CardListing is a posted card. UID is the current owner and is the field
// swapped when a request is accepted.
type CardListing struct {
	bun.BaseModel `bun:"table:card_listings,alias:cl"`

	ID               string        `bun:"id,pk" json:"id"`
	UID              string        `bun:"uid,notnull" json:"uid"`
	CardNumber       string        `bun:"card_number,notnull" json:"cardNumber"`
	PlayerName       string        `bun:"player_name,notnull" json:"playerName"`
	PlayerTeam       string        `bun:"player_team,notnull" json:"playerTeam"`
	YearManufactured string        `bun:"year_manufactured,notnull" json:"yearManufactured"`
	Collection       string        `bun:"collection,notnull" json:"collection"`
	Type             string        `bun:"type,notnull" json:"type"`
	Condition        string        `bun:"condition,notnull" json:"condition"`
	ImageURL         string        `bun:"image_url" json:"imageUrl"`
	ImageKey         string        `bun:"image_key" json:"-"`
	DesiredCards     string        `bun:"desired_cards" json:"desiredCards"`
	Status           ListingStatus `bun:"status,notnull,default:'open'" json:"status"`
	CreatedAt        time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
	ExpirationDate   time.Time     `bun:"expiration_date,notnull" json:"expirationDate"`

	OwnerName string `bun:"-" json:"displayName,omitempty"`
}

func (l *CardListing) IsOpen() bool { return l.Status == ListingOpen }

func (l *CardListing) IsExpired(now time.Time) bool {
	return !l.ExpirationDate.After(now)
}

// BrowsableBy reports whether the listing may appear in viewer's browse
// results: open, not expired and owned by someone else.
func (l *CardListing) BrowsableBy(viewer string, now time.Time) bool {
	return l.IsOpen() && !l.IsExpired(now) && l.UID != viewer
}
