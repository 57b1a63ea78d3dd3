package legacy

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const listingTTL = 7 * 24 * time.Hour

func DecodeUser(raw bson.M) (*models.User, error) {
	d, err := newDocument("users", raw)
	if err != nil {
		return nil, err
	}
	id := d.str("uid")
	if id == "" {
		id = d.id
	}
	email, err := d.required("email")
	if err != nil {
		return nil, err
	}
	created, ok, err := d.timeAt("createdAt")
	if err != nil {
		return nil, err
	}
	if !ok {
		created = time.Now().UTC()
	}

	u := &models.User{
		ID:                   id,
		DisplayName:          d.str("displayName"),
		Email:                email,
		Provider:             d.str("provider"),
		PhoneNumber:          d.str("phoneNumber"),
		PhotoURL:             d.str("photoURL", "photoUrl"),
		IsVerified:           d.boolean("isVerified"),
		IsPhoneNumberVisible: d.boolean("isPhoneNumberVisible"),
		Role:                 models.RoleUser,
		CreatedAt:            created,
		UpdatedAt:            created,
	}
	if u.DisplayName == "" {
		u.DisplayName = email
	}
	if u.Provider == "" {
		u.Provider = "password"
	}
	if d.str("type") == string(models.RoleAdmin) {
		u.Role = models.RoleAdmin
	}
	return u, nil
}

func DecodeListing(raw bson.M) (*models.CardListing, error) {
	d, err := newDocument("postCards", raw)
	if err != nil {
		return nil, err
	}
	l := &models.CardListing{
		ID:               d.id,
		YearManufactured: d.str("yearManufactured"),
		Collection:       d.str("collection"),
		Type:             d.str("type"),
		Condition:        d.str("condition"),
		ImageURL:         d.str("imageUrl"),
		DesiredCards:     d.str("desiredCards"),
		Status:           models.ListingOpen,
	}
	if l.UID, err = d.required("uid", "ownerId"); err != nil {
		return nil, err
	}
	if l.CardNumber, err = d.required("cardNumber"); err != nil {
		return nil, err
	}
	if l.PlayerName, err = d.required("playerName"); err != nil {
		return nil, err
	}
	if l.PlayerTeam, err = d.required("playerTeam"); err != nil {
		return nil, err
	}
	switch s := models.ListingStatus(d.str("status")); s {
	case "", models.ListingOpen:
	case models.ListingClosed:
		l.Status = s
	default:
		return nil, d.invalid("status", fmt.Sprintf("unknown listing status %q", s))
	}
	if l.CreatedAt, err = d.requiredTime("createdAt"); err != nil {
		return nil, err
	}
	l.UpdatedAt = l.CreatedAt
	exp, ok, err := d.timeAt("expirationDate")
	if err != nil {
		return nil, err
	}
	if !ok {
		exp = l.CreatedAt.Add(listingTTL)
	}
	l.ExpirationDate = exp
	return l, nil
}

func swapStatus(d *document) (models.SwapStatus, error) {
	switch s := models.SwapStatus(d.str("status")); s {
	case models.SwapPending, models.SwapAccepted, models.SwapDenied:
		return s, nil
	case "":
		return "", d.invalid("status", "is required")
	default:
		return "", d.invalid("status", fmt.Sprintf("unknown swap status %q", s))
	}
}

// parties reads the four participant fields shared by requests and
// transactions.
func parties(d *document) (requester, receiver, requesterCard, receiverCard string, err error) {
	if requester, err = d.required("requesterId"); err != nil {
		return
	}
	if receiver, err = d.required("receiverId"); err != nil {
		return
	}
	if requesterCard, err = d.required("requesterCardId"); err != nil {
		return
	}
	receiverCard, err = d.required("receiverCardId")
	return
}

func DecodeRequest(raw bson.M) (*models.SwapRequest, error) {
	d, err := newDocument("swapRequests", raw)
	if err != nil {
		return nil, err
	}
	r := &models.SwapRequest{ID: d.id}
	if r.RequesterID, r.ReceiverID, r.RequesterCardID, r.ReceiverCardID, err = parties(d); err != nil {
		return nil, err
	}
	if r.Status, err = swapStatus(d); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = d.requiredTime("createdAt"); err != nil {
		return nil, err
	}
	return r, nil
}

func DecodeTransaction(raw bson.M) (*models.SwapTransaction, error) {
	d, err := newDocument("swapTransactions", raw)
	if err != nil {
		return nil, err
	}
	t := &models.SwapTransaction{
		ID:             d.id,
		RequestID:      d.str("requestId"),
		RequesterRated: d.boolean("requesterRated"),
		ReceiverRated:  d.boolean("receiverRated"),
	}
	if t.RequesterID, t.ReceiverID, t.RequesterCardID, t.ReceiverCardID, err = parties(d); err != nil {
		return nil, err
	}
	// Old transactions carry no request id; the transaction id keeps the
	// unique column satisfied.
	if t.RequestID == "" {
		t.RequestID = t.ID
	}
	if t.Status, err = swapStatus(d); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = d.requiredTime("createdAt"); err != nil {
		return nil, err
	}
	return t, nil
}

func DecodeRating(raw bson.M) (*models.Rating, error) {
	d, err := newDocument("ratings", raw)
	if err != nil {
		return nil, err
	}
	r := &models.Rating{ID: d.id, Comment: d.str("comment")}
	if r.TransactionID, err = d.required("transactionId"); err != nil {
		return nil, err
	}
	if r.RaterUserID, err = d.required("raterUserId"); err != nil {
		return nil, err
	}
	if r.RatedUserID, err = d.required("ratedUserId"); err != nil {
		return nil, err
	}
	if r.Score, err = d.integer("rating"); err != nil {
		return nil, err
	}
	// Exported ratings usually carry no role; the importer derives it from
	// the transaction.
	switch role := models.RatingRole(d.str("role")); role {
	case "", models.RoleRequester, models.RoleReceiver:
		r.Role = role
	default:
		return nil, d.invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	created, ok, err := d.timeAt("createdAt")
	if err != nil {
		return nil, err
	}
	if !ok {
		if created, err = d.requiredTime("timestamp"); err != nil {
			return nil, err
		}
	}
	r.CreatedAt = created
	return r, nil
}

func DecodeNotification(raw bson.M) (*models.Notification, error) {
	d, err := newDocument("notifications", raw)
	if err != nil {
		return nil, err
	}
	n := &models.Notification{ID: d.id, Read: d.boolean("read")}
	if n.UserID, err = d.required("userId"); err != nil {
		return nil, err
	}
	if n.Message, err = d.required("message"); err != nil {
		return nil, err
	}
	switch t := models.NotificationType(d.str("type")); t {
	case models.NotificationSwapRequest, models.NotificationSwapAccepted, models.NotificationSwapDenied:
		n.Type = t
	default:
		return nil, d.invalid("type", fmt.Sprintf("unknown notification type %q", t))
	}
	if n.CreatedAt, err = d.requiredTime("createdAt"); err != nil {
		return nil, err
	}
	return n, nil
}

func DecodeConversation(raw bson.M) (*models.Conversation, error) {
	d, err := newDocument("conversations", raw)
	if err != nil {
		return nil, err
	}
	c := &models.Conversation{
		ID:             d.id,
		ParticipantIDs: d.strings("participantIds"),
		LastMessage:    d.str("lastMessage"),
	}
	if len(c.ParticipantIDs) != 2 {
		return nil, d.invalid("participantIds", fmt.Sprintf("want 2 participants, got %d", len(c.ParticipantIDs)))
	}
	c.PairKey = models.PairKey(c.ParticipantIDs[0], c.ParticipantIDs[1])
	if c.CreatedAt, err = d.requiredTime("createdAt"); err != nil {
		return nil, err
	}
	last, ok, err := d.timeAt("lastMessageTimestamp")
	if err != nil {
		return nil, err
	}
	if ok {
		c.LastMessageAt = &last
	}
	return c, nil
}

// DecodeMessage expects messages flattened out of their conversation with
// a conversationId field.
func DecodeMessage(raw bson.M) (*models.Message, error) {
	d, err := newDocument("messages", raw)
	if err != nil {
		return nil, err
	}
	m := &models.Message{ID: d.id}
	if m.ConversationID, err = d.required("conversationId"); err != nil {
		return nil, err
	}
	if m.SenderID, err = d.required("senderId"); err != nil {
		return nil, err
	}
	if m.Text, err = d.required("text"); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = d.requiredTime("timestamp"); err != nil {
		return nil, err
	}
	return m, nil
}
