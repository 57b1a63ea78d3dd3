package mock

import (
	"time"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// Now is the clock the fixtures are built around.
var Now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Listings covers every browse case: two open listings of different
// owners, one closed, one expired.
var Listings = []*models.CardListing{
	{ID: "l1", UID: "alice", CardNumber: "23", PlayerName: "Michael Jordan", PlayerTeam: "Bulls", Collection: "Fleer", Status: models.ListingOpen, CreatedAt: Now.Add(-48 * time.Hour), ExpirationDate: Now.Add(120 * time.Hour)},
	{ID: "l2", UID: "bob", CardNumber: "8", PlayerName: "Kobe Bryant", PlayerTeam: "Lakers", Collection: "Topps Chrome", Status: models.ListingOpen, CreatedAt: Now.Add(-time.Hour), ExpirationDate: Now.Add(167 * time.Hour)},
	{ID: "l3", UID: "bob", CardNumber: "33", PlayerName: "Larry Bird", PlayerTeam: "Celtics", Collection: "Fleer", Status: models.ListingClosed, CreatedAt: Now.Add(-2 * time.Hour), ExpirationDate: Now.Add(166 * time.Hour)},
	{ID: "l4", UID: "carol", CardNumber: "32", PlayerName: "Magic Johnson", PlayerTeam: "Lakers", Collection: "Hoops", Status: models.ListingOpen, CreatedAt: Now.Add(-200 * time.Hour), ExpirationDate: Now.Add(-32 * time.Hour)},
}

var Users = map[string]*models.User{
	"alice": {ID: "alice", DisplayName: "Alice", PhoneNumber: "+971501234567"},
	"bob":   {ID: "bob", DisplayName: "Bob", PhoneNumber: "+971507654321", IsPhoneNumberVisible: true},
	"carol": {ID: "carol", DisplayName: "Carol"},
}
