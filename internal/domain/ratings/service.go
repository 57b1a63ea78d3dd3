// Package ratings lets each side of a completed swap rate the other once.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const (
	maxComment   = 500
	unknownRater = "Unknown User"
	lookupLimit  = 8
)

type Service struct {
	repo     Repository
	users    Users
	min, max int
	now      func() time.Time
}

func NewService(repo Repository, users Users, minScore, maxScore int) *Service {
	return &Service{
		repo:  repo,
		users: users,
		min:   minScore,
		max:   maxScore,
		now:   time.Now,
	}
}

type SubmitInput struct {
	TransactionID string            `json:"transactionId"`
	RatedUserID   string            `json:"ratedUserId"`
	Score         int               `json:"rating"`
	Comment       string            `json:"comment"`
	Role          models.RatingRole `json:"role"`
}

// SubmitRating records the caller's rating of their counterparty. The
// caller's role is derived from the transaction; a supplied role or rated
// user that disagrees with it is rejected.
func (s *Service) SubmitRating(ctx context.Context, sess *session.Session, in SubmitInput) (*models.Rating, error) {
	const op = "ratings.SubmitRating"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	if in.TransactionID == "" {
		return nil, apperr.Invalid(op, "transactionId", "is required")
	}
	if in.Score < s.min || in.Score > s.max {
		return nil, apperr.Invalid(op, "rating", fmt.Sprintf("must be between %d and %d", s.min, s.max))
	}
	if utf8.RuneCountInString(in.Comment) > maxComment {
		return nil, apperr.Invalid(op, "comment", fmt.Sprintf("must be at most %d characters", maxComment))
	}

	tx, err := s.repo.GetTransaction(ctx, in.TransactionID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, apperr.ErrTransactionNotFound)
		}
		return nil, apperr.Wrap(op, err)
	}

	role, ok := tx.RoleOf(sess.UserID)
	if !ok {
		return nil, apperr.E(apperr.Forbidden, op, errors.New("only participants can rate this swap"))
	}
	if in.Role != "" && in.Role != role {
		return nil, apperr.Invalid(op, "role", fmt.Sprintf("you are the %s in this swap", role))
	}
	rated := tx.Counterparty(role)
	if in.RatedUserID != "" && in.RatedUserID != rated {
		return nil, apperr.Invalid(op, "ratedUserId", "is not your counterparty in this swap")
	}
	if tx.RatedBy(role) {
		return nil, apperr.Wrap(op, apperr.ErrAlreadyRated)
	}

	r := &models.Rating{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		RaterUserID:   sess.UserID,
		RatedUserID:   rated,
		Role:          role,
		Score:         in.Score,
		Comment:       in.Comment,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Submit(ctx, r); err != nil {
		return nil, apperr.Wrap(op, err)
	}

	slog.Info("Rating submitted",
		slog.String("type", "swap"),
		slog.String("transaction_id", tx.ID),
		slog.String("role", string(role)),
		slog.Int("rating", r.Score))
	return r, nil
}

// ForUser lists the ratings userID has received, newest first, with each
// rater's display name filled in.
func (s *Service) ForUser(ctx context.Context, userID string) ([]*models.Rating, error) {
	const op = "ratings.ForUser"
	if userID == "" {
		return nil, apperr.Invalid(op, "userId", "is required")
	}
	list, err := s.repo.ListForRated(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	names := make(map[string]string, len(list))
	for _, r := range list {
		names[r.RaterUserID] = ""
	}
	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	resolved := make([]string, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupLimit)
	for i, id := range ids {
		g.Go(func() error {
			u, err := s.users.GetByID(gctx, id)
			switch {
			case err == nil:
				resolved[i] = u.DisplayName
			case apperr.Is(err, apperr.NotFound):
				resolved[i] = unknownRater
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	for i, id := range ids {
		names[id] = resolved[i]
	}
	for _, r := range list {
		r.RaterName = names[r.RaterUserID]
	}
	return list, nil
}

func (s *Service) Summary(ctx context.Context, userID string) (*models.RatingSummary, error) {
	const op = "ratings.Summary"
	if userID == "" {
		return nil, apperr.Invalid(op, "userId", "is required")
	}
	sum, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return sum, nil
}
