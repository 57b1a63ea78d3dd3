package swaps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/notifications"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/domain/swaps/mock"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"go.uber.org/mock/gomock"
)

var (
	now   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alice = &models.User{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"}
	bob   = &models.User{ID: "bob", DisplayName: "Bob", Email: "bob@example.com"}

	aliceSession = &session.Session{UserID: "alice", DisplayName: "Alice"}
	bobSession   = &session.Session{UserID: "bob", DisplayName: "Bob"}

	errNotFound = apperr.E(apperr.NotFound, "test", errors.New("no rows"))
)

func card(id, owner string, status models.ListingStatus) *models.CardListing {
	return &models.CardListing{
		ID:             id,
		UID:            owner,
		CardNumber:     "#" + id,
		Status:         status,
		CreatedAt:      now.Add(-time.Hour),
		ExpirationDate: now.Add(6 * 24 * time.Hour),
	}
}

func pending(id string) *models.SwapRequest {
	return &models.SwapRequest{
		ID:              id,
		RequesterID:     "alice",
		ReceiverID:      "bob",
		RequesterCardID: "c1",
		ReceiverCardID:  "c2",
		Status:          models.SwapPending,
		CreatedAt:       now.Add(-time.Minute),
	}
}

type mocks struct {
	repo     *mock.MockRepository
	listings *mock.MockListings
	users    *mock.MockUsers
	notifier *mock.MockNotifier
	keys     *mock.MockKeyStore
}

func newService(t *testing.T) (*Service, mocks) {
	ctrl := gomock.NewController(t)
	m := mocks{
		repo:     mock.NewMockRepository(ctrl),
		listings: mock.NewMockListings(ctrl),
		users:    mock.NewMockUsers(ctrl),
		notifier: mock.NewMockNotifier(ctrl),
		keys:     mock.NewMockKeyStore(ctrl),
	}
	s := NewService(m.repo, m.listings, m.users, m.notifier, m.keys)
	s.now = func() time.Time { return now }
	return s, m
}

func Test_service_CreateSwapRequest(t *testing.T) {
	in := CreateInput{RequesterCardID: "c1", ReceiverID: "bob", ReceiverCardID: "c2"}

	expired := card("c2", "bob", models.ListingOpen)
	expired.ExpirationDate = now.Add(-time.Second)

	tests := []struct {
		name     string
		in       CreateInput
		setup    func(m mocks)
		wantErr  error
		wantKind apperr.Kind
	}{
		{
			name:    "no cards to offer",
			in:      in,
			setup:   func(m mocks) { m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(0, nil) },
			wantErr: apperr.ErrInvalidOffer,
		},
		{
			name: "own card",
			in:   in,
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(2, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "alice", models.ListingOpen), nil)
			},
			wantErr: apperr.ErrInvalidOffer,
		},
		{
			name: "target missing",
			in:   in,
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(nil, errNotFound)
			},
			wantErr: apperr.ErrCardMissing,
		},
		{
			name: "target closed",
			in:   in,
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingClosed), nil)
			},
			wantErr: apperr.ErrListingClosed,
		},
		{
			name: "target expired",
			in:   in,
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(expired, nil)
			},
			wantErr: apperr.ErrListingClosed,
		},
		{
			name: "wrong receiver",
			in:   CreateInput{RequesterCardID: "c1", ReceiverID: "carol", ReceiverCardID: "c2"},
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
			},
			wantKind: apperr.Validation,
		},
		{
			name: "offer belongs to someone else",
			in:   in,
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "carol", models.ListingOpen), nil)
			},
			wantErr: apperr.ErrInvalidOffer,
		},
		{
			name: "duplicate pending request",
			in:   in,
			setup: func(m mocks) {
				m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "alice", models.ListingOpen), nil)
				m.repo.EXPECT().FindPending(gomock.Any(), "c1", "c2").Return(pending("r0"), nil)
			},
			wantKind: apperr.Conflict,
		},
		{
			name:     "missing offer id",
			in:       CreateInput{ReceiverCardID: "c2"},
			setup:    func(mocks) {},
			wantKind: apperr.Validation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)
			tt.setup(m)

			got, err := s.CreateSwapRequest(context.Background(), aliceSession, tt.in)
			if err == nil {
				t.Fatalf("service.CreateSwapRequest() = %v, want error", got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("service.CreateSwapRequest() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantKind != apperr.KindUnknown && apperr.KindOf(err) != tt.wantKind {
				t.Errorf("service.CreateSwapRequest() kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
		})
	}
}

func expectValidCreate(m mocks) {
	m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(1, nil)
	m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
	m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "alice", models.ListingOpen), nil)
	m.repo.EXPECT().FindPending(gomock.Any(), "c1", "c2").Return(nil, nil)
	m.users.EXPECT().GetByID(gomock.Any(), "bob").Return(bob, nil)
}

func Test_service_CreateSwapRequest_Success(t *testing.T) {
	s, m := newService(t)
	expectValidCreate(m)

	var stored *models.SwapRequest
	m.repo.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req *models.SwapRequest) error {
		stored = req
		return nil
	})
	m.notifier.EXPECT().Notify(gomock.Any(), notifications.Event{
		Recipient:  bob,
		Type:       models.NotificationSwapRequest,
		Message:    "Alice has sent you a swap request for your card #c2.",
		Subject:    "Swap Request",
		CardNumber: "#c2",
	})

	got, err := s.CreateSwapRequest(context.Background(), aliceSession, CreateInput{RequesterCardID: "c1", ReceiverCardID: "c2"})
	if err != nil {
		t.Fatalf("service.CreateSwapRequest() error = %v", err)
	}
	if got != stored {
		t.Errorf("service.CreateSwapRequest() returned %v, stored %v", got, stored)
	}
	if got.Status != models.SwapPending || got.RequesterID != "alice" || got.ReceiverID != "bob" {
		t.Errorf("service.CreateSwapRequest() = %+v", got)
	}
	if got.ID == "" || !got.CreatedAt.Equal(now) {
		t.Errorf("service.CreateSwapRequest() id = %q created = %v", got.ID, got.CreatedAt)
	}
}

func Test_service_CreateSwapRequest_Idempotency(t *testing.T) {
	in := CreateInput{RequesterCardID: "c1", ReceiverCardID: "c2", IdempotencyKey: "k1"}

	t.Run("retry returns first request", func(t *testing.T) {
		s, m := newService(t)
		first := pending("r1")
		m.keys.EXPECT().Claim("alice", "k1", in.payload()).Return("r1", false, nil)
		m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(first, nil)

		got, err := s.CreateSwapRequest(context.Background(), aliceSession, in)
		if err != nil || got != first {
			t.Errorf("service.CreateSwapRequest() = %v, %v; want first request", got, err)
		}
	})

	t.Run("in flight", func(t *testing.T) {
		s, m := newService(t)
		m.keys.EXPECT().Claim("alice", "k1", in.payload()).Return("", false, nil)

		_, err := s.CreateSwapRequest(context.Background(), aliceSession, in)
		if apperr.KindOf(err) != apperr.Conflict {
			t.Errorf("service.CreateSwapRequest() error = %v, want conflict", err)
		}
	})

	t.Run("key reused for another card", func(t *testing.T) {
		s, m := newService(t)
		other := in
		other.RequesterCardID = "c9"
		m.keys.EXPECT().Claim("alice", "k1", other.payload()).Return("", false, apperr.ErrIdempotencyKeyReused)

		_, err := s.CreateSwapRequest(context.Background(), aliceSession, other)
		if !errors.Is(err, apperr.ErrIdempotencyKeyReused) || apperr.KindOf(err) != apperr.Validation {
			t.Errorf("service.CreateSwapRequest() error = %v, want ErrIdempotencyKeyReused", err)
		}
	})

	t.Run("failure releases the key", func(t *testing.T) {
		s, m := newService(t)
		m.keys.EXPECT().Claim("alice", "k1", in.payload()).Return("", true, nil)
		m.listings.EXPECT().CountOwnedBy(gomock.Any(), "alice").Return(0, nil)
		m.keys.EXPECT().Release("alice", "k1").Return(nil)

		_, err := s.CreateSwapRequest(context.Background(), aliceSession, in)
		if !errors.Is(err, apperr.ErrInvalidOffer) {
			t.Errorf("service.CreateSwapRequest() error = %v, want ErrInvalidOffer", err)
		}
	})

	t.Run("success completes the key", func(t *testing.T) {
		s, m := newService(t)
		m.keys.EXPECT().Claim("alice", "k1", in.payload()).Return("", true, nil)
		expectValidCreate(m)
		m.repo.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Return(nil)
		m.notifier.EXPECT().Notify(gomock.Any(), gomock.Any())
		m.keys.EXPECT().Complete("alice", "k1", gomock.Any()).Return(nil)

		if _, err := s.CreateSwapRequest(context.Background(), aliceSession, in); err != nil {
			t.Errorf("service.CreateSwapRequest() error = %v", err)
		}
	})
}

func Test_service_AcceptRequest(t *testing.T) {
	denied := pending("r1")
	denied.Status = models.SwapDenied

	tests := []struct {
		name     string
		sess     *session.Session
		setup    func(m mocks)
		wantErr  error
		wantKind apperr.Kind
	}{
		{
			name:    "not found",
			sess:    bobSession,
			setup:   func(m mocks) { m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(nil, errNotFound) },
			wantErr: apperr.ErrRequestNotFound,
		},
		{
			name:    "already decided",
			sess:    bobSession,
			setup:   func(m mocks) { m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(denied, nil) },
			wantErr: apperr.ErrAlreadyDecided,
		},
		{
			name:     "requester cannot accept",
			sess:     aliceSession,
			setup:    func(m mocks) { m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil) },
			wantKind: apperr.Forbidden,
		},
		{
			name: "card missing",
			sess: bobSession,
			setup: func(m mocks) {
				m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(nil, errNotFound)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil).AnyTimes()
			},
			wantErr: apperr.ErrCardMissing,
		},
		{
			name: "requester missing",
			sess: bobSession,
			setup: func(m mocks) {
				m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "alice", models.ListingOpen), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
				m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(nil, errNotFound)
			},
			wantErr: apperr.ErrUserMissing,
		},
		{
			name: "offered card already swapped",
			sess: bobSession,
			setup: func(m mocks) {
				m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "carol", models.ListingClosed), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
				m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(alice, nil)
			},
			wantErr: apperr.ErrListingClosed,
		},
		{
			name: "batch fails",
			sess: bobSession,
			setup: func(m mocks) {
				m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "alice", models.ListingOpen), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
				m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(alice, nil)
				m.repo.EXPECT().Accept(gomock.Any(), gomock.Any()).Return(nil, errors.New("serialization failure"))
			},
			wantKind: apperr.RemoteWrite,
		},
		{
			name: "lost race to another decision",
			sess: bobSession,
			setup: func(m mocks) {
				m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "alice", models.ListingOpen), nil)
				m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
				m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(alice, nil)
				m.repo.EXPECT().Accept(gomock.Any(), gomock.Any()).Return(nil, apperr.ErrAlreadyDecided)
			},
			wantErr: apperr.ErrAlreadyDecided,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)
			tt.setup(m)

			got, err := s.AcceptRequest(context.Background(), tt.sess, "r1")
			if err == nil {
				t.Fatalf("service.AcceptRequest() = %v, want error", got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("service.AcceptRequest() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantKind != apperr.KindUnknown && apperr.KindOf(err) != tt.wantKind {
				t.Errorf("service.AcceptRequest() kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
		})
	}
}

func Test_service_AcceptRequest_Success(t *testing.T) {
	s, m := newService(t)
	m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
	m.listings.EXPECT().GetByID(gomock.Any(), "c1").Return(card("c1", "alice", models.ListingOpen), nil)
	m.listings.EXPECT().GetByID(gomock.Any(), "c2").Return(card("c2", "bob", models.ListingOpen), nil)
	m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(alice, nil)

	m.repo.EXPECT().Accept(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d models.SwapDecision) (*models.SwapTransaction, error) {
		want := models.SwapDecision{
			RequestID:       "r1",
			TransactionID:   d.TransactionID,
			RequesterID:     "alice",
			ReceiverID:      "bob",
			RequesterCardID: "c1",
			ReceiverCardID:  "c2",
			DecidedAt:       now,
		}
		if d != want || d.TransactionID == "" {
			t.Errorf("Accept() decision = %+v, want %+v", d, want)
		}
		return ApplyAccept(d, pending("r1"), card("c1", "alice", models.ListingOpen), card("c2", "bob", models.ListingOpen)), nil
	})
	m.notifier.EXPECT().Notify(gomock.Any(), notifications.Event{
		Recipient:  alice,
		Type:       models.NotificationSwapAccepted,
		Message:    "Your swap request for card #c1 has been accepted.",
		Subject:    "Swap Request Approved",
		CardNumber: "#c1",
	})

	got, err := s.AcceptRequest(context.Background(), bobSession, "r1")
	if err != nil {
		t.Fatalf("service.AcceptRequest() error = %v", err)
	}
	if got.Request.Status != models.SwapAccepted {
		t.Errorf("request status = %v, want accepted", got.Request.Status)
	}
	if got.Transaction.RequesterRated || got.Transaction.ReceiverRated {
		t.Errorf("new transaction already rated: %+v", got.Transaction)
	}
	want := RatingPrompt{TransactionID: got.Transaction.ID, RatedUserID: "alice", Role: models.RoleReceiver}
	if got.RatingPrompt != want {
		t.Errorf("rating prompt = %+v, want %+v", got.RatingPrompt, want)
	}
}

func Test_service_DenyRequest(t *testing.T) {
	t.Run("denies and notifies requester", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)
		deniedReq := pending("r1")
		deniedReq.Status = models.SwapDenied
		m.repo.EXPECT().Deny(gomock.Any(), "r1", now).Return(deniedReq, nil)
		m.users.EXPECT().GetByID(gomock.Any(), "alice").Return(alice, nil)
		m.notifier.EXPECT().Notify(gomock.Any(), notifications.Event{
			Recipient: alice,
			Type:      models.NotificationSwapDenied,
			Message:   "Your swap request has been denied.",
			Subject:   "Swap Request Denied",
		})

		got, err := s.DenyRequest(context.Background(), bobSession, "r1")
		if err != nil || got.Status != models.SwapDenied {
			t.Errorf("service.DenyRequest() = %v, %v", got, err)
		}
	})

	t.Run("terminal state", func(t *testing.T) {
		s, m := newService(t)
		accepted := pending("r1")
		accepted.Status = models.SwapAccepted
		m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(accepted, nil)

		if _, err := s.DenyRequest(context.Background(), bobSession, "r1"); !errors.Is(err, apperr.ErrAlreadyDecided) {
			t.Errorf("service.DenyRequest() error = %v, want ErrAlreadyDecided", err)
		}
	})

	t.Run("only receiver decides", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetRequest(gomock.Any(), "r1").Return(pending("r1"), nil)

		if _, err := s.DenyRequest(context.Background(), aliceSession, "r1"); apperr.KindOf(err) != apperr.Forbidden {
			t.Errorf("service.DenyRequest() error = %v, want forbidden", err)
		}
	})
}

func Test_service_Incoming(t *testing.T) {
	s, m := newService(t)
	older := pending("r1")
	older.ReceiverID = "bob"
	older.CreatedAt = now.Add(-48 * time.Hour)
	newer := pending("r2")
	newer.CreatedAt = now.Add(-time.Hour)
	m.repo.EXPECT().ListIncoming(gomock.Any(), "bob").Return([]*models.SwapRequest{older, newer}, nil).Times(3)

	got, err := s.Incoming(context.Background(), bobSession, IncomingFilter{})
	if err != nil || len(got) != 2 || got[0].ID != "r2" {
		t.Errorf("Incoming() newest first = %v, %v", got, err)
	}

	got, _ = s.Incoming(context.Background(), bobSession, IncomingFilter{Ascending: true})
	if len(got) != 2 || got[0].ID != "r1" {
		t.Errorf("Incoming() ascending = %v", got)
	}

	got, _ = s.Incoming(context.Background(), bobSession, IncomingFilter{Day: now})
	if len(got) != 1 || got[0].ID != "r2" {
		t.Errorf("Incoming() day filter = %v", got)
	}
}

func Test_service_TransactionsFor(t *testing.T) {
	s, m := newService(t)
	tx := &models.SwapTransaction{ID: "t1", RequesterID: "alice", ReceiverID: "bob", RequesterRated: true}
	m.repo.EXPECT().ListTransactionsFor(gomock.Any(), "bob").Return([]*models.SwapTransaction{tx}, nil)

	got, err := s.TransactionsFor(context.Background(), bobSession)
	if err != nil || len(got) != 1 {
		t.Fatalf("TransactionsFor() = %v, %v", got, err)
	}
	if got[0].Role != models.RoleReceiver || got[0].CounterpartyID != "alice" || !got[0].NeedsRating {
		t.Errorf("TransactionsFor() view = %+v", got[0])
	}
}
