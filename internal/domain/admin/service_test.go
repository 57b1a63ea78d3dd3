package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/swapcard/marketplace/internal/domain/admin/mock"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

var (
	root     = &session.Session{UserID: "root", Role: session.RoleAdmin}
	notFound = apperr.E(apperr.NotFound, "test", errors.New("no rows"))
)

type mocks struct {
	users    *mock.MockUsers
	listings *mock.MockListings
	remover  *mock.MockCardRemover
	txs      *mock.MockTransactions
	stats    *mock.MockStats
	verifier *mock.MockVerifier
}

func newService(t *testing.T) (*Service, mocks) {
	ctrl := gomock.NewController(t)
	m := mocks{
		users:    mock.NewMockUsers(ctrl),
		listings: mock.NewMockListings(ctrl),
		remover:  mock.NewMockCardRemover(ctrl),
		txs:      mock.NewMockTransactions(ctrl),
		stats:    mock.NewMockStats(ctrl),
		verifier: mock.NewMockVerifier(ctrl),
	}
	return NewService(m.users, m.listings, m.remover, m.txs, m.stats, m.verifier), m
}

func Test_service_RequiresAdmin(t *testing.T) {
	s, _ := newService(t)
	user := &session.Session{UserID: "alice", Role: session.RoleUser}

	calls := map[string]func() error{
		"Users":        func() error { _, err := s.Users(context.Background(), user); return err },
		"VerifyUser":   func() error { _, err := s.VerifyUser(context.Background(), user, "x"); return err },
		"Cards":        func() error { _, err := s.Cards(context.Background(), user, true); return err },
		"DeleteCard":   func() error { return s.DeleteCard(context.Background(), user, "x") },
		"Transactions": func() error { _, err := s.Transactions(context.Background(), user); return err },
		"Dashboard":    func() error { _, err := s.Dashboard(context.Background(), user); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); apperr.KindOf(err) != apperr.Forbidden {
				t.Errorf("service.%s() error = %v, want forbidden", name, err)
			}
		})
	}
}

func Test_service_VerifyUser(t *testing.T) {
	s, m := newService(t)
	u := &models.User{ID: "u1", DisplayName: "Alice", Email: "alice@example.com", IsVerified: true}
	m.users.EXPECT().SetVerified(gomock.Any(), "u1", true).Return(u, nil)
	m.verifier.EXPECT().SendVerification(gomock.Any(), "Alice", "alice@example.com").Return(errors.New("mailer down"))

	got, err := s.VerifyUser(context.Background(), root, "u1")
	if err != nil || !got.IsVerified {
		t.Errorf("service.VerifyUser() = %+v, %v", got, err)
	}

	m.users.EXPECT().SetVerified(gomock.Any(), "ghost", true).Return(nil, notFound)
	if _, err := s.VerifyUser(context.Background(), root, "ghost"); !errors.Is(err, apperr.ErrUserMissing) {
		t.Errorf("service.VerifyUser() error = %v, want ErrUserMissing", err)
	}
}

func Test_service_Transactions(t *testing.T) {
	s, m := newService(t)
	m.txs.EXPECT().ListAllTransactions(gomock.Any()).Return([]*models.SwapTransaction{
		{ID: "t1", RequesterID: "alice", ReceiverID: "bob"},
		{ID: "t2", RequesterID: "ghost", ReceiverID: "alice"},
	}, nil)
	m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(&models.User{DisplayName: "Alice"}, nil)
	m.users.EXPECT().GetByID(gomock.Any(), "bob").Return(&models.User{DisplayName: "Bob"}, nil)
	m.users.EXPECT().GetByID(gomock.Any(), "ghost").Return(nil, notFound)

	got, err := s.Transactions(context.Background(), root)
	if err != nil || len(got) != 2 {
		t.Fatalf("service.Transactions() = %v, %v", got, err)
	}
	if got[0].RequesterName != "Alice" || got[0].ReceiverName != "Bob" {
		t.Errorf("t1 names = %s/%s", got[0].RequesterName, got[0].ReceiverName)
	}
	if got[1].RequesterName != unknownUser || got[1].ReceiverName != "Alice" {
		t.Errorf("t2 names = %s/%s", got[1].RequesterName, got[1].ReceiverName)
	}
}

func Test_service_Transactions_LookupFails(t *testing.T) {
	s, m := newService(t)
	m.txs.EXPECT().ListAllTransactions(gomock.Any()).Return([]*models.SwapTransaction{
		{ID: "t1", RequesterID: "alice", ReceiverID: "bob"},
	}, nil)
	m.users.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")).AnyTimes()

	if _, err := s.Transactions(context.Background(), root); apperr.KindOf(err) != apperr.RemoteWrite {
		t.Errorf("service.Transactions() error = %v, want remote failure", err)
	}
}

func Test_service_Dashboard(t *testing.T) {
	s, m := newService(t)
	txs := make([]*models.SwapTransaction, 8)
	for i := range txs {
		txs[i] = &models.SwapTransaction{ID: fmt.Sprintf("t%d", i), RequesterID: "alice", ReceiverID: "bob"}
	}
	m.stats.EXPECT().Totals(gomock.Any()).Return(&models.MarketTotals{Users: 2, Transactions: 8}, nil)
	m.txs.EXPECT().ListAllTransactions(gomock.Any()).Return(txs, nil)
	m.users.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(&models.User{DisplayName: "Someone"}, nil).Times(2)

	got, err := s.Dashboard(context.Background(), root)
	if err != nil {
		t.Fatalf("service.Dashboard() error = %v", err)
	}
	if got.Totals.Transactions != 8 || len(got.Recent) != recentCount || got.Recent[0].ID != "t0" {
		t.Errorf("service.Dashboard() = %+v", got)
	}
}

func Test_service_DeleteCard(t *testing.T) {
	s, m := newService(t)
	m.remover.EXPECT().Delete(gomock.Any(), root, "l1").Return(nil)

	if err := s.DeleteCard(context.Background(), root, "l1"); err != nil {
		t.Errorf("service.DeleteCard() error = %v", err)
	}
}
