package legacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

var created = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func requireFieldError(t *testing.T, err error, collection, field string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.Validation), "kind of %v", err)

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "legacy."+collection, e.Op)
	require.Equal(t, field, e.Field)
}

func TestDecodeListing(t *testing.T) {
	raw := bson.M{
		"_id":              "c1",
		"uid":              "alice",
		"cardNumber":       "23",
		"playerName":       "Michael Jordan",
		"playerTeam":       "Bulls",
		"collection":       "Fleer",
		"imageUrl":         "https://cdn.example.com/cards/c1.png",
		"status":           "open",
		"createdAt":        primitive.NewDateTimeFromTime(created),
		"ownerEmail":       "alice@example.com",
		"desiredCards":     "anything Lakers",
		"yearManufactured": "1986",
	}

	l, err := DecodeListing(raw)
	require.NoError(t, err)
	require.Equal(t, "c1", l.ID)
	require.Equal(t, "alice", l.UID)
	require.Equal(t, models.ListingOpen, l.Status)
	require.True(t, l.CreatedAt.Equal(created))
	require.True(t, l.ExpirationDate.Equal(created.Add(7*24*time.Hour)), "expiration defaults to a week")
}

func TestDecodeListingErrors(t *testing.T) {
	base := func() bson.M {
		return bson.M{
			"_id":        "c1",
			"uid":        "alice",
			"cardNumber": "23",
			"playerName": "Michael Jordan",
			"playerTeam": "Bulls",
			"createdAt":  created,
		}
	}

	tests := []struct {
		name   string
		mutate func(bson.M)
		field  string
	}{
		{name: "no id", mutate: func(m bson.M) { delete(m, "_id") }, field: "_id"},
		{name: "no owner", mutate: func(m bson.M) { delete(m, "uid") }, field: "uid"},
		{name: "blank player", mutate: func(m bson.M) { m["playerName"] = "  " }, field: "playerName"},
		{name: "unknown status", mutate: func(m bson.M) { m["status"] = "sold" }, field: "status"},
		{name: "no creation time", mutate: func(m bson.M) { delete(m, "createdAt") }, field: "createdAt"},
		{name: "bad expiration", mutate: func(m bson.M) { m["expirationDate"] = "next week" }, field: "expirationDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base()
			tt.mutate(raw)
			_, err := DecodeListing(raw)
			requireFieldError(t, err, "postCards", tt.field)
		})
	}
}

func TestDecodeListingOwnerFallback(t *testing.T) {
	l, err := DecodeListing(bson.M{
		"_id":        primitive.NewObjectID(),
		"ownerId":    "bob",
		"cardNumber": "8",
		"playerName": "Kobe Bryant",
		"playerTeam": "Lakers",
		"status":     "closed",
		"createdAt":  bson.M{"seconds": created.Unix(), "nanoseconds": int32(0)},
	})
	require.NoError(t, err)
	require.Equal(t, "bob", l.UID)
	require.Len(t, l.ID, 24)
	require.Equal(t, models.ListingClosed, l.Status)
	require.True(t, l.CreatedAt.Equal(created))
}

func TestDecodeUser(t *testing.T) {
	u, err := DecodeUser(bson.M{
		"_id":                  "doc-1",
		"uid":                  "alice",
		"email":                "alice@example.com",
		"isVerified":           true,
		"isPhoneNumberVisible": false,
		"phoneNumber":          "+971501234567",
		"type":                 "admin",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", u.ID)
	require.Equal(t, "alice@example.com", u.DisplayName, "display name falls back to email")
	require.Equal(t, "password", u.Provider)
	require.Equal(t, models.RoleAdmin, u.Role)
	require.True(t, u.IsVerified)
	require.Empty(t, u.PasswordHash)

	_, err = DecodeUser(bson.M{"_id": "doc-2"})
	requireFieldError(t, err, "users", "email")
}

func TestDecodeRequestAndTransaction(t *testing.T) {
	raw := bson.M{
		"_id":             "r1",
		"requesterId":     "alice",
		"receiverId":      "bob",
		"requesterCardId": "c1",
		"receiverCardId":  "c2",
		"status":          "pending",
		"createdAt":       created.Format(time.RFC3339),
	}
	r, err := DecodeRequest(raw)
	require.NoError(t, err)
	require.Equal(t, models.SwapPending, r.Status)
	require.True(t, r.CreatedAt.Equal(created))

	raw["status"] = "maybe"
	_, err = DecodeRequest(raw)
	requireFieldError(t, err, "swapRequests", "status")

	delete(raw, "receiverCardId")
	raw["status"] = "accepted"
	_, err = DecodeTransaction(raw)
	requireFieldError(t, err, "swapTransactions", "receiverCardId")

	raw["receiverCardId"] = "c2"
	raw["_id"] = "t1"
	raw["requesterRated"] = true
	tx, err := DecodeTransaction(raw)
	require.NoError(t, err)
	require.Equal(t, "t1", tx.RequestID)
	require.True(t, tx.RequesterRated)
	require.False(t, tx.ReceiverRated)
}

func TestDecodeRatingAndRole(t *testing.T) {
	tx := &models.SwapTransaction{ID: "t1", RequesterID: "alice", ReceiverID: "bob"}
	raw := bson.M{
		"_id":           "rt1",
		"transactionId": "t1",
		"raterUserId":   "bob",
		"ratedUserId":   "alice",
		"rating":        float64(4),
		"comment":       "smooth swap",
		"createdAt":     created,
	}

	r, err := DecodeRating(raw)
	require.NoError(t, err)
	require.Equal(t, 4, r.Score)
	require.Empty(t, r.Role)

	require.NoError(t, applyRole(tx, r))
	require.Equal(t, models.RoleReceiver, r.Role)

	outsider := *r
	outsider.RaterUserID = "carol"
	outsider.Role = ""
	requireFieldError(t, applyRole(tx, &outsider), "ratings", "raterUserId")

	self := *r
	self.RatedUserID = "bob"
	self.Role = ""
	requireFieldError(t, applyRole(tx, &self), "ratings", "ratedUserId")

	raw["rating"] = "five"
	_, err = DecodeRating(raw)
	requireFieldError(t, err, "ratings", "rating")
}

func TestDecodeNotification(t *testing.T) {
	raw := bson.M{
		"_id":       "n1",
		"userId":    "bob",
		"type":      "swap_request",
		"message":   "Alice has sent you a swap request for your card 23.",
		"createdAt": created,
	}
	n, err := DecodeNotification(raw)
	require.NoError(t, err)
	require.False(t, n.Read)
	require.Equal(t, models.NotificationSwapRequest, n.Type)

	raw["type"] = "promo"
	_, err = DecodeNotification(raw)
	requireFieldError(t, err, "notifications", "type")
}

func TestDecodeConversationAndMessage(t *testing.T) {
	c, err := DecodeConversation(bson.M{
		"_id":                  "alice_bob",
		"participantIds":       bson.A{"alice", "bob"},
		"lastMessage":          "",
		"lastMessageTimestamp": nil,
		"createdAt":            created,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, c.ParticipantIDs)
	require.Equal(t, "alice|bob", c.PairKey)
	require.Nil(t, c.LastMessageAt)

	_, err = DecodeConversation(bson.M{
		"_id":            "alice_",
		"participantIds": bson.A{"alice"},
		"createdAt":      created,
	})
	requireFieldError(t, err, "conversations", "participantIds")

	m, err := DecodeMessage(bson.M{
		"_id":            "m1",
		"conversationId": "alice_bob",
		"senderId":       "alice",
		"text":           "still trading?",
		"timestamp":      created,
	})
	require.NoError(t, err)
	require.Equal(t, "alice_bob", m.ConversationID)

	_, err = DecodeMessage(bson.M{"_id": "m2", "conversationId": "alice_bob", "senderId": "alice", "timestamp": created})
	requireFieldError(t, err, "messages", "text")
}
