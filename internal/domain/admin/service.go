// Package admin is moderation for users holding the admin role.
package admin

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const (
	unknownUser    = "Unknown User"
	recentCount    = 5
	lookupParallel = 8
)

type Service struct {
	users    Users
	listings Listings
	remover  CardRemover
	txs      Transactions
	stats    Stats
	verifier Verifier
}

func NewService(users Users, listings Listings, remover CardRemover, txs Transactions, stats Stats, verifier Verifier) *Service {
	return &Service{
		users:    users,
		listings: listings,
		remover:  remover,
		txs:      txs,
		stats:    stats,
		verifier: verifier,
	}
}

func (s *Service) Users(ctx context.Context, sess *session.Session) ([]*models.User, error) {
	const op = "admin.Users"
	if err := session.RequireAdmin(sess, op); err != nil {
		return nil, err
	}
	list, err := s.users.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return list, nil
}

// VerifyUser marks the account verified and sends the verification email.
func (s *Service) VerifyUser(ctx context.Context, sess *session.Session, id string) (*models.User, error) {
	const op = "admin.VerifyUser"
	if err := session.RequireAdmin(sess, op); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperr.Invalid(op, "id", "is required")
	}
	u, err := s.users.SetVerified(ctx, id, true)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, apperr.ErrUserMissing)
		}
		return nil, apperr.Wrap(op, err)
	}

	slog.Info("User verified by admin",
		slog.String("type", "sys"),
		slog.String("user_id", u.ID),
		slog.String("admin_id", sess.UserID))

	if s.verifier != nil {
		if err := s.verifier.SendVerification(context.WithoutCancel(ctx), u.DisplayName, u.Email); err != nil {
			slog.Warn("Failed to send verification email",
				slog.String("type", "mail"),
				slog.String("user_id", u.ID),
				slog.Any("error", err))
		}
	}
	return u, nil
}

// Cards lists every listing by creation time, open or not.
func (s *Service) Cards(ctx context.Context, sess *session.Session, ascending bool) ([]*models.CardListing, error) {
	const op = "admin.Cards"
	if err := session.RequireAdmin(sess, op); err != nil {
		return nil, err
	}
	list, err := s.listings.ListAll(ctx, ascending)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return list, nil
}

func (s *Service) DeleteCard(ctx context.Context, sess *session.Session, id string) error {
	const op = "admin.DeleteCard"
	if err := session.RequireAdmin(sess, op); err != nil {
		return err
	}
	return s.remover.Delete(ctx, sess, id)
}

// TransactionView is a transaction with both participants' names.
type TransactionView struct {
	*models.SwapTransaction
	RequesterName string `json:"requesterName"`
	ReceiverName  string `json:"receiverName"`
}

func (s *Service) Transactions(ctx context.Context, sess *session.Session) ([]TransactionView, error) {
	const op = "admin.Transactions"
	if err := session.RequireAdmin(sess, op); err != nil {
		return nil, err
	}
	txs, err := s.txs.ListAllTransactions(ctx)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	views, err := s.enrich(ctx, txs)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return views, nil
}

type Dashboard struct {
	Totals *models.MarketTotals `json:"totals"`
	Recent []TransactionView    `json:"recentTransactions"`
}

func (s *Service) Dashboard(ctx context.Context, sess *session.Session) (*Dashboard, error) {
	const op = "admin.Dashboard"
	if err := session.RequireAdmin(sess, op); err != nil {
		return nil, err
	}

	var (
		totals *models.MarketTotals
		txs    []*models.SwapTransaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = s.stats.Totals(gctx)
		return err
	})
	g.Go(func() (err error) {
		txs, err = s.txs.ListAllTransactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(op, err)
	}

	if len(txs) > recentCount {
		txs = txs[:recentCount]
	}
	recent, err := s.enrich(ctx, txs)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return &Dashboard{Totals: totals, Recent: recent}, nil
}

// enrich resolves participant names with a bounded number of lookups in
// flight. Missing users show as unknownUser.
func (s *Service) enrich(ctx context.Context, txs []*models.SwapTransaction) ([]TransactionView, error) {
	names := make(map[string]string)
	var ids []string
	for _, tx := range txs {
		for _, id := range []string{tx.RequesterID, tx.ReceiverID} {
			if _, ok := names[id]; !ok {
				names[id] = unknownUser
				ids = append(ids, id)
			}
		}
	}

	var mu sync.Mutex
	sem := semaphore.NewWeighted(lookupParallel)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			u, err := s.users.GetByID(gctx, id)
			if err != nil {
				if apperr.Is(err, apperr.NotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			names[id] = u.DisplayName
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	views := make([]TransactionView, len(txs))
	for i, tx := range txs {
		views[i] = TransactionView{
			SwapTransaction: tx,
			RequesterName:   names[tx.RequesterID],
			ReceiverName:    names[tx.ReceiverID],
		}
	}
	return views, nil
}
