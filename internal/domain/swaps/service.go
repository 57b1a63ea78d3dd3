// Package swaps implements the swap request flow and the decision engine
// that accepts or denies pending requests.
package swaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/notifications"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

type Service struct {
	repo     Repository
	listings Listings
	users    Users
	notifier Notifier
	keys     KeyStore
	now      func() time.Time
}

// NewService wires the swap flow. keys may be nil, in which case
// idempotency keys are ignored.
func NewService(repo Repository, listings Listings, users Users, notifier Notifier, keys KeyStore) *Service {
	return &Service{
		repo:     repo,
		listings: listings,
		users:    users,
		notifier: notifier,
		keys:     keys,
		now:      time.Now,
	}
}

type CreateInput struct {
	RequesterCardID string `json:"requesterCardId"`
	ReceiverID      string `json:"receiverId"`
	ReceiverCardID  string `json:"receiverCardId"`
	IdempotencyKey  string `json:"-"`
}

// payload identifies what was asked for, so a reused key can be told apart
// from a retry.
func (in CreateInput) payload() string {
	return in.RequesterCardID + "\x00" + in.ReceiverID + "\x00" + in.ReceiverCardID
}

// CreateSwapRequest proposes the caller's card in exchange for another
// user's open listing.
func (s *Service) CreateSwapRequest(ctx context.Context, sess *session.Session, in CreateInput) (*models.SwapRequest, error) {
	const op = "swaps.CreateSwapRequest"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	if in.ReceiverCardID == "" {
		return nil, apperr.Invalid(op, "receiverCardId", "is required")
	}
	if in.RequesterCardID == "" {
		return nil, apperr.Invalid(op, "requesterCardId", "select one of your cards to offer")
	}

	if in.IdempotencyKey == "" || s.keys == nil {
		return s.createRequest(ctx, op, sess, in)
	}

	prior, claimed, err := s.keys.Claim(sess.UserID, in.IdempotencyKey, in.payload())
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if !claimed {
		if prior == "" {
			return nil, apperr.E(apperr.Conflict, op, errors.New("a request with this idempotency key is still being processed"))
		}
		req, err := s.repo.GetRequest(ctx, prior)
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		return req, nil
	}

	req, err := s.createRequest(ctx, op, sess, in)
	if err != nil {
		if rerr := s.keys.Release(sess.UserID, in.IdempotencyKey); rerr != nil {
			slog.Warn("Failed to release idempotency key",
				slog.String("type", "swap"),
				slog.Any("error", rerr))
		}
		return nil, err
	}
	if cerr := s.keys.Complete(sess.UserID, in.IdempotencyKey, req.ID); cerr != nil {
		slog.Warn("Failed to store idempotency key",
			slog.String("type", "swap"),
			slog.String("request_id", req.ID),
			slog.Any("error", cerr))
	}
	return req, nil
}

func (s *Service) createRequest(ctx context.Context, op string, sess *session.Session, in CreateInput) (*models.SwapRequest, error) {
	owned, err := s.listings.CountOwnedBy(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if owned == 0 {
		return nil, apperr.Wrap(op, fmt.Errorf("%w: you do not have any cards to offer for a swap", apperr.ErrInvalidOffer))
	}

	target, err := s.listings.GetByID(ctx, in.ReceiverCardID)
	if err != nil {
		return nil, cardErr(op, err)
	}
	if target.UID == sess.UserID {
		return nil, apperr.Wrap(op, fmt.Errorf("%w: you cannot swap your own card", apperr.ErrInvalidOffer))
	}
	if in.ReceiverID != "" && in.ReceiverID != target.UID {
		return nil, apperr.Invalid(op, "receiverId", "does not own the requested card")
	}

	now := s.now()
	if !target.IsOpen() || target.IsExpired(now) {
		return nil, apperr.Wrap(op, apperr.ErrListingClosed)
	}

	offer, err := s.listings.GetByID(ctx, in.RequesterCardID)
	if err != nil {
		return nil, cardErr(op, err)
	}
	if offer.UID != sess.UserID {
		return nil, apperr.Wrap(op, fmt.Errorf("%w: the offered card is not yours", apperr.ErrInvalidOffer))
	}
	if !offer.IsOpen() {
		return nil, apperr.Wrap(op, fmt.Errorf("%w: the offered card has already been swapped", apperr.ErrListingClosed))
	}

	existing, err := s.repo.FindPending(ctx, offer.ID, target.ID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if existing != nil {
		return nil, apperr.E(apperr.Conflict, op, errors.New("a pending request for these cards already exists"))
	}

	receiver, err := s.users.GetByID(ctx, target.UID)
	if err != nil {
		return nil, userErr(op, err)
	}

	req := &models.SwapRequest{
		ID:              uuid.NewString(),
		RequesterID:     sess.UserID,
		ReceiverID:      target.UID,
		RequesterCardID: offer.ID,
		ReceiverCardID:  target.ID,
		Status:          models.SwapPending,
		CreatedAt:       now,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, apperr.Wrap(op, err)
	}

	slog.Info("Swap request created",
		slog.String("type", "swap"),
		slog.String("request_id", req.ID),
		slog.String("requester_id", req.RequesterID),
		slog.String("receiver_id", req.ReceiverID))

	s.notifier.Notify(ctx, notifications.Event{
		Recipient:  receiver,
		Type:       models.NotificationSwapRequest,
		Message:    fmt.Sprintf("%s has sent you a swap request for your card %s.", sess.DisplayName, target.CardNumber),
		Subject:    "Swap Request",
		CardNumber: target.CardNumber,
	})
	return req, nil
}

// RatingPrompt tells the caller whom to rate right after a swap.
type RatingPrompt struct {
	TransactionID string            `json:"transactionId"`
	RatedUserID   string            `json:"ratedUserId"`
	Role          models.RatingRole `json:"role"`
}

type AcceptResult struct {
	Request      *models.SwapRequest     `json:"request"`
	Transaction  *models.SwapTransaction `json:"transaction"`
	RatingPrompt RatingPrompt            `json:"ratingPrompt"`
}

// AcceptRequest transfers ownership of both cards, closes both listings
// and records the transaction in one atomic write.
func (s *Service) AcceptRequest(ctx context.Context, sess *session.Session, requestID string) (*AcceptResult, error) {
	const op = "swaps.AcceptRequest"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}

	req, err := s.loadPending(ctx, op, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != sess.UserID {
		return nil, apperr.E(apperr.Forbidden, op, errors.New("only the receiver can decide this request"))
	}

	requesterCard, receiverCard, err := s.loadCards(ctx, op, req)
	if err != nil {
		return nil, err
	}

	requester, err := s.users.GetByID(ctx, req.RequesterID)
	if err != nil {
		return nil, userErr(op, err)
	}

	decision, err := planAccept(req, requesterCard, receiverCard, s.now())
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	tx, err := s.repo.Accept(ctx, decision)
	if err != nil {
		slog.Warn("Swap acceptance rejected",
			slog.String("type", "swap"),
			slog.String("request_id", req.ID),
			slog.Any("error", err))
		return nil, apperr.Wrap(op, err)
	}

	accepted := *req
	accepted.Status = models.SwapAccepted
	accepted.DecidedAt = &decision.DecidedAt

	slog.Info("Swap accepted",
		slog.String("type", "swap"),
		slog.String("request_id", req.ID),
		slog.String("transaction_id", tx.ID),
		slog.String("requester_card_id", req.RequesterCardID),
		slog.String("receiver_card_id", req.ReceiverCardID))

	s.notifier.Notify(ctx, notifications.Event{
		Recipient:  requester,
		Type:       models.NotificationSwapAccepted,
		Message:    fmt.Sprintf("Your swap request for card %s has been accepted.", requesterCard.CardNumber),
		Subject:    "Swap Request Approved",
		CardNumber: requesterCard.CardNumber,
	})

	return &AcceptResult{
		Request:     &accepted,
		Transaction: tx,
		RatingPrompt: RatingPrompt{
			TransactionID: tx.ID,
			RatedUserID:   tx.RequesterID,
			Role:          models.RoleReceiver,
		},
	}, nil
}

// DenyRequest closes a pending request without touching either listing.
func (s *Service) DenyRequest(ctx context.Context, sess *session.Session, requestID string) (*models.SwapRequest, error) {
	const op = "swaps.DenyRequest"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}

	req, err := s.loadPending(ctx, op, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != sess.UserID {
		return nil, apperr.E(apperr.Forbidden, op, errors.New("only the receiver can decide this request"))
	}

	return s.deny(ctx, op, req)
}

func (s *Service) deny(ctx context.Context, op string, req *models.SwapRequest) (*models.SwapRequest, error) {
	denied, err := s.repo.Deny(ctx, req.ID, s.now())
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	slog.Info("Swap denied",
		slog.String("type", "swap"),
		slog.String("request_id", req.ID))

	recipient, err := s.users.GetByID(ctx, req.RequesterID)
	if err != nil {
		slog.Warn("Requester profile unavailable, notifying without email",
			slog.String("type", "swap"),
			slog.String("user_id", req.RequesterID),
			slog.Any("error", err))
		recipient = &models.User{ID: req.RequesterID}
	}
	s.notifier.Notify(ctx, notifications.Event{
		Recipient: recipient,
		Type:      models.NotificationSwapDenied,
		Message:   "Your swap request has been denied.",
		Subject:   "Swap Request Denied",
	})
	return denied, nil
}

// SweepStale denies pending requests that can no longer be accepted
// because one of their listings was swapped, closed or removed.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	const op = "swaps.SweepStale"
	stale, err := s.repo.ListStalePending(ctx)
	if err != nil {
		return 0, apperr.Wrap(op, err)
	}

	var denied int
	for _, req := range stale {
		if err := ctx.Err(); err != nil {
			return denied, err
		}
		if _, err := s.deny(ctx, op, req); err != nil {
			if apperr.Is(err, apperr.AlreadyDecided) {
				continue
			}
			return denied, err
		}
		denied++
	}
	return denied, nil
}

func (s *Service) loadPending(ctx context.Context, op, id string) (*models.SwapRequest, error) {
	if id == "" {
		return nil, apperr.Invalid(op, "id", "is required")
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, apperr.ErrRequestNotFound)
		}
		return nil, apperr.Wrap(op, err)
	}
	if !req.IsPending() {
		return nil, apperr.Wrap(op, apperr.ErrAlreadyDecided)
	}
	return req, nil
}

func (s *Service) loadCards(ctx context.Context, op string, req *models.SwapRequest) (*models.CardListing, *models.CardListing, error) {
	var requesterCard, receiverCard *models.CardListing

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.listings.GetByID(gctx, req.RequesterCardID)
		requesterCard = c
		return err
	})
	g.Go(func() error {
		c, err := s.listings.GetByID(gctx, req.ReceiverCardID)
		receiverCard = c
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, cardErr(op, err)
	}
	return requesterCard, receiverCard, nil
}

func cardErr(op string, err error) error {
	if apperr.Is(err, apperr.NotFound) {
		return apperr.Wrap(op, apperr.ErrCardMissing)
	}
	return apperr.Wrap(op, err)
}

func userErr(op string, err error) error {
	if apperr.Is(err, apperr.NotFound) {
		return apperr.Wrap(op, apperr.ErrUserMissing)
	}
	return apperr.Wrap(op, err)
}
