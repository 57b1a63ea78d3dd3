package swaps

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// planAccept checks a loaded request and its two listings and returns the
// decision the store must apply. The store repeats the same checks under
// lock.
func planAccept(req *models.SwapRequest, requesterCard, receiverCard *models.CardListing, now time.Time) (models.SwapDecision, error) {
	if !req.IsPending() {
		return models.SwapDecision{}, apperr.ErrAlreadyDecided
	}
	if requesterCard.UID != req.RequesterID || receiverCard.UID != req.ReceiverID {
		return models.SwapDecision{}, fmt.Errorf("%w: a card in this request has changed owner", apperr.ErrListingClosed)
	}
	if !requesterCard.IsOpen() || !receiverCard.IsOpen() {
		return models.SwapDecision{}, fmt.Errorf("%w: a card in this request has already been swapped", apperr.ErrListingClosed)
	}

	return models.SwapDecision{
		RequestID:       req.ID,
		TransactionID:   uuid.NewString(),
		RequesterID:     req.RequesterID,
		ReceiverID:      req.ReceiverID,
		RequesterCardID: req.RequesterCardID,
		ReceiverCardID:  req.ReceiverCardID,
		DecidedAt:       now,
	}, nil
}

// ApplyAccept is the state change a decision describes: owners swapped,
// both listings closed, request accepted and a fresh transaction. It
// mutates the given listings and request.
func ApplyAccept(d models.SwapDecision, req *models.SwapRequest, requesterCard, receiverCard *models.CardListing) *models.SwapTransaction {
	requesterCard.UID, receiverCard.UID = receiverCard.UID, requesterCard.UID
	requesterCard.Status = models.ListingClosed
	receiverCard.Status = models.ListingClosed
	requesterCard.UpdatedAt = d.DecidedAt
	receiverCard.UpdatedAt = d.DecidedAt

	decidedAt := d.DecidedAt
	req.Status = models.SwapAccepted
	req.DecidedAt = &decidedAt

	return &models.SwapTransaction{
		ID:              d.TransactionID,
		RequestID:       d.RequestID,
		RequesterID:     d.RequesterID,
		ReceiverID:      d.ReceiverID,
		RequesterCardID: d.RequesterCardID,
		ReceiverCardID:  d.ReceiverCardID,
		Status:          models.SwapAccepted,
		CreatedAt:       d.DecidedAt,
	}
}
