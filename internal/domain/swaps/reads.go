package swaps

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

// IncomingFilter narrows the receiver's request list. A zero Day keeps
// every day.
type IncomingFilter struct {
	Day       time.Time
	Status    models.SwapStatus
	Ascending bool
}

func (f IncomingFilter) keep(req *models.SwapRequest) bool {
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.Day.IsZero() {
		return true
	}
	y1, m1, d1 := req.CreatedAt.In(f.Day.Location()).Date()
	y2, m2, d2 := f.Day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (s *Service) Incoming(ctx context.Context, sess *session.Session, f IncomingFilter) ([]*models.SwapRequest, error) {
	const op = "swaps.Incoming"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	all, err := s.repo.ListIncoming(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	out := make([]*models.SwapRequest, 0, len(all))
	for _, req := range all {
		if f.keep(req) {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) Outgoing(ctx context.Context, sess *session.Session) ([]*models.SwapRequest, error) {
	const op = "swaps.Outgoing"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	out, err := s.repo.ListOutgoing(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

// OffersForCard lists the requests made to the card's current owner. Only
// that owner and admins may see them.
func (s *Service) OffersForCard(ctx context.Context, sess *session.Session, cardID string) ([]*models.SwapRequest, error) {
	const op = "swaps.OffersForCard"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	card, err := s.listings.GetByID(ctx, cardID)
	if err != nil {
		return nil, cardErr(op, err)
	}
	if card.UID != sess.UserID && !sess.IsAdmin() {
		return nil, apperr.E(apperr.Forbidden, op, errors.New("only the card owner can see its offers"))
	}
	out, err := s.repo.ListForCard(ctx, cardID, card.UID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return out, nil
}

// TransactionView is a transaction seen from one participant.
type TransactionView struct {
	*models.SwapTransaction
	Role           models.RatingRole `json:"role"`
	CounterpartyID string            `json:"counterpartyId"`
	NeedsRating    bool              `json:"needsRating"`
}

func (s *Service) TransactionsFor(ctx context.Context, sess *session.Session) ([]TransactionView, error) {
	const op = "swaps.TransactionsFor"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactionsFor(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		role, ok := tx.RoleOf(sess.UserID)
		if !ok {
			continue
		}
		views = append(views, TransactionView{
			SwapTransaction: tx,
			Role:            role,
			CounterpartyID:  tx.Counterparty(role),
			NeedsRating:     !tx.RatedBy(role),
		})
	}
	return views, nil
}
