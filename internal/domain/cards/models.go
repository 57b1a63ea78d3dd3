package cards

import (
	"io"
	"strings"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// Input is the editable part of a listing.
type Input struct {
	CardNumber       string `json:"cardNumber" form:"cardNumber"`
	PlayerName       string `json:"playerName" form:"playerName"`
	PlayerTeam       string `json:"playerTeam" form:"playerTeam"`
	YearManufactured string `json:"yearManufactured" form:"yearManufactured"`
	Collection       string `json:"collection" form:"collection"`
	Type             string `json:"type" form:"type"`
	Condition        string `json:"condition" form:"condition"`
	DesiredCards     string `json:"desiredCards" form:"desiredCards"`
}

func (in *Input) normalize() {
	for _, f := range []*string{
		&in.CardNumber, &in.PlayerName, &in.PlayerTeam, &in.YearManufactured,
		&in.Collection, &in.Type, &in.Condition, &in.DesiredCards,
	} {
		*f = strings.TrimSpace(*f)
	}
}

func (in Input) validate(op string) error {
	required := []struct{ field, value string }{
		{"cardNumber", in.CardNumber},
		{"playerName", in.PlayerName},
		{"playerTeam", in.PlayerTeam},
		{"yearManufactured", in.YearManufactured},
		{"collection", in.Collection},
		{"type", in.Type},
		{"condition", in.Condition},
	}
	for _, r := range required {
		if r.value == "" {
			return apperr.Invalid(op, r.field, "is required")
		}
	}
	return nil
}

func (in Input) apply(l *models.CardListing) {
	l.CardNumber = in.CardNumber
	l.PlayerName = in.PlayerName
	l.PlayerTeam = in.PlayerTeam
	l.YearManufactured = in.YearManufactured
	l.Collection = in.Collection
	l.Type = in.Type
	l.Condition = in.Condition
	l.DesiredCards = in.DesiredCards
}

// Image is an uploaded file. Size may be -1 when unknown.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Detail is a single listing page: the card, its owner's public profile
// and, for the owner, the offers made for it.
type Detail struct {
	*models.CardListing
	Owner  *models.User          `json:"owner,omitempty"`
	Offers []*models.SwapRequest `json:"offers,omitempty"`
}

// searchItems adapts listings to fuzzy.Source.
type searchItems []*models.CardListing

func (s searchItems) Len() int { return len(s) }

func (s searchItems) String(i int) string {
	l := s[i]
	return strings.ToLower(strings.Join([]string{l.PlayerName, l.PlayerTeam, l.Collection, l.CardNumber}, " "))
}
