package cards

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/cards/mock"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/storage"
	"go.uber.org/mock/gomock"
)

const ttl = 7 * 24 * time.Hour

type mocks struct {
	repo   *mock.MockRepository
	images *mock.MockImageStore
	users  *mock.MockUsers
	offers *mock.MockOffers
}

func newService(t *testing.T) (*service, mocks) {
	ctrl := gomock.NewController(t)
	m := mocks{
		repo:   mock.NewMockRepository(ctrl),
		images: mock.NewMockImageStore(ctrl),
		users:  mock.NewMockUsers(ctrl),
		offers: mock.NewMockOffers(ctrl),
	}
	s := NewService(m.repo, m.images, m.users, m.offers, ttl, ttl)
	s.now = func() time.Time { return mock.Now }
	return s, m
}

func copies(list []*models.CardListing) []*models.CardListing {
	out := make([]*models.CardListing, len(list))
	for i, l := range list {
		cp := *l
		out[i] = &cp
	}
	return out
}

func expectUsers(m mocks) {
	m.users.EXPECT().GetByID(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) (*models.User, error) {
		if u, ok := mock.Users[id]; ok {
			return u, nil
		}
		return nil, apperr.E(apperr.NotFound, "test", errors.New("no rows"))
	}).AnyTimes()
}

func ids(list []*models.CardListing) []string {
	out := make([]string, len(list))
	for i, l := range list {
		out[i] = l.ID
	}
	return out
}

func input() Input {
	return Input{
		CardNumber:       " 23 ",
		PlayerName:       "Michael Jordan",
		PlayerTeam:       "Bulls",
		YearManufactured: "1986",
		Collection:       "Fleer",
		Type:             "Rookie",
		Condition:        "Mint",
	}
}

func Test_service_ListOpenExcluding(t *testing.T) {
	tests := []struct {
		name   string
		viewer string
		query  string
		want   []string
	}{
		{name: "anonymous sees every open listing newest first", want: []string{"l2", "l1"}},
		{name: "own listings hidden", viewer: "bob", want: []string{"l1"}},
		{name: "fuzzy query", query: "jordan", want: []string{"l1"}},
		{name: "query matches team", query: "lakers", want: []string{"l2"}},
		{name: "no match", query: "zzzz", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)
			m.repo.EXPECT().ListOpen(gomock.Any(), tt.viewer, mock.Now).Return(copies(mock.Listings), nil)
			expectUsers(m)

			got, err := s.ListOpenExcluding(context.Background(), tt.viewer, tt.query)
			if err != nil {
				t.Fatalf("service.ListOpenExcluding() error = %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("service.ListOpenExcluding() got = %v, want %v", ids(got), tt.want)
			}
			for _, l := range got {
				if l.OwnerName != mock.Users[l.UID].DisplayName {
					t.Errorf("listing %s owner name = %q", l.ID, l.OwnerName)
				}
			}
		})
	}
}

func Test_service_Create(t *testing.T) {
	s, m := newService(t)
	sess := &session.Session{UserID: "alice"}

	m.images.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, obj storage.Object) (string, error) {
		if !strings.HasPrefix(obj.Key, "cards/alice/") || !strings.HasSuffix(obj.Key, ".jpg") {
			t.Errorf("Put() key = %q", obj.Key)
		}
		return "https://cdn.example.com/" + obj.Key, nil
	})
	m.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	got, err := s.Create(context.Background(), sess, input(), &Image{Filename: "front.JPG", ContentType: "image/jpeg", Size: 3, Body: bytes.NewReader([]byte("img"))})
	if err != nil {
		t.Fatalf("service.Create() error = %v", err)
	}
	if got.UID != "alice" || got.Status != models.ListingOpen || got.CardNumber != "23" {
		t.Errorf("service.Create() = %+v", got)
	}
	if !got.ExpirationDate.Equal(mock.Now.Add(ttl)) {
		t.Errorf("expiration = %v, want created + 7 days", got.ExpirationDate)
	}
	if got.ImageKey == "" || !strings.HasSuffix(got.ImageURL, got.ImageKey) {
		t.Errorf("image = %q / %q", got.ImageURL, got.ImageKey)
	}
}

func Test_service_Create_Validation(t *testing.T) {
	sess := &session.Session{UserID: "alice"}
	img := &Image{Filename: "a.png", Body: bytes.NewReader(nil)}
	missingTeam := input()
	missingTeam.PlayerTeam = "  "

	tests := []struct {
		name  string
		in    Input
		img   *Image
		field string
	}{
		{name: "blank team", in: missingTeam, img: img, field: "playerTeam"},
		{name: "no image", in: input(), field: "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newService(t)
			_, err := s.Create(context.Background(), sess, tt.in, tt.img)
			var e *apperr.Error
			if !errors.As(err, &e) || e.Kind != apperr.Validation || e.Field != tt.field {
				t.Errorf("service.Create() error = %v, want validation on %s", err, tt.field)
			}
		})
	}
}

func Test_service_Create_DropsImageWhenInsertFails(t *testing.T) {
	s, m := newService(t)
	var key string
	m.images.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, obj storage.Object) (string, error) {
		key = obj.Key
		return "url", nil
	})
	m.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))
	m.images.EXPECT().Delete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, k string) error {
		if k != key {
			t.Errorf("Delete() key = %q, want %q", k, key)
		}
		return nil
	})

	_, err := s.Create(context.Background(), &session.Session{UserID: "alice"}, input(), &Image{Filename: "a.png", Body: bytes.NewReader(nil)})
	if apperr.KindOf(err) != apperr.RemoteWrite {
		t.Errorf("service.Create() error = %v, want remote write", err)
	}
}

func Test_service_Update(t *testing.T) {
	t.Run("replaces image and refreshes expiration", func(t *testing.T) {
		s, m := newService(t)
		l := copies(mock.Listings[:1])[0]
		l.ImageKey = "cards/alice/old.png"
		m.repo.EXPECT().GetByID(gomock.Any(), "l1").Return(l, nil)
		m.images.EXPECT().Put(gomock.Any(), gomock.Any()).Return("new-url", nil)
		m.repo.EXPECT().Update(gomock.Any(), l).Return(nil)
		m.images.EXPECT().Delete(gomock.Any(), "cards/alice/old.png").Return(errors.New("gone already"))

		got, err := s.Update(context.Background(), &session.Session{UserID: "alice"}, "l1", input(), &Image{Filename: "b.png", Body: bytes.NewReader(nil)})
		if err != nil {
			t.Fatalf("service.Update() error = %v", err)
		}
		if got.ImageURL != "new-url" || !got.ExpirationDate.Equal(mock.Now.Add(ttl)) {
			t.Errorf("service.Update() = %+v", got)
		}
	})

	t.Run("not the owner", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetByID(gomock.Any(), "l1").Return(copies(mock.Listings[:1])[0], nil)

		_, err := s.Update(context.Background(), &session.Session{UserID: "bob"}, "l1", input(), nil)
		if apperr.KindOf(err) != apperr.Forbidden {
			t.Errorf("service.Update() error = %v, want forbidden", err)
		}
	})

	t.Run("closed listing", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetByID(gomock.Any(), "l3").Return(copies(mock.Listings[2:3])[0], nil)

		_, err := s.Update(context.Background(), &session.Session{UserID: "bob"}, "l3", input(), nil)
		if !errors.Is(err, apperr.ErrListingClosed) {
			t.Errorf("service.Update() error = %v, want ErrListingClosed", err)
		}
	})
}

func Test_service_Delete(t *testing.T) {
	tests := []struct {
		name     string
		sess     *session.Session
		setup    func(m mocks)
		wantKind apperr.Kind
	}{
		{
			name: "owner",
			sess: &session.Session{UserID: "alice"},
			setup: func(m mocks) {
				m.repo.EXPECT().Delete(gomock.Any(), "l1").Return(nil)
				m.images.EXPECT().Delete(gomock.Any(), "cards/alice/x.png").Return(errors.New("storage down"))
			},
		},
		{
			name: "admin",
			sess: &session.Session{UserID: "root", Role: session.RoleAdmin},
			setup: func(m mocks) {
				m.repo.EXPECT().Delete(gomock.Any(), "l1").Return(nil)
				m.images.EXPECT().Delete(gomock.Any(), "cards/alice/x.png").Return(nil)
			},
		},
		{
			name:     "someone else",
			sess:     &session.Session{UserID: "bob"},
			setup:    func(mocks) {},
			wantKind: apperr.Forbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)
			l := copies(mock.Listings[:1])[0]
			l.ImageKey = "cards/alice/x.png"
			m.repo.EXPECT().GetByID(gomock.Any(), "l1").Return(l, nil)
			tt.setup(m)

			err := s.Delete(context.Background(), tt.sess, "l1")
			if tt.wantKind == apperr.KindUnknown && err != nil {
				t.Errorf("service.Delete() error = %v", err)
			}
			if tt.wantKind != apperr.KindUnknown && apperr.KindOf(err) != tt.wantKind {
				t.Errorf("service.Delete() error = %v, want %v", err, tt.wantKind)
			}
		})
	}
}

func Test_service_Get(t *testing.T) {
	t.Run("owner sees offers", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetByID(gomock.Any(), "l1").Return(copies(mock.Listings[:1])[0], nil)
		expectUsers(m)
		m.offers.EXPECT().ListForCard(gomock.Any(), "l1", "alice").Return([]*models.SwapRequest{{ID: "r1"}}, nil)

		got, err := s.Get(context.Background(), &session.Session{UserID: "alice"}, "l1")
		if err != nil || len(got.Offers) != 1 {
			t.Fatalf("service.Get() = %+v, %v", got, err)
		}
		if got.Owner.PhoneNumber != "" {
			t.Errorf("hidden phone number exposed: %q", got.Owner.PhoneNumber)
		}
	})

	t.Run("visitor sees no offers", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetByID(gomock.Any(), "l2").Return(copies(mock.Listings[1:2])[0], nil)
		expectUsers(m)

		got, err := s.Get(context.Background(), nil, "l2")
		if err != nil || got.Offers != nil || got.OwnerName != "Bob" {
			t.Fatalf("service.Get() = %+v, %v", got, err)
		}
		if got.Owner.PhoneNumber == "" {
			t.Error("visible phone number dropped")
		}
	})

	t.Run("missing", func(t *testing.T) {
		s, m := newService(t)
		m.repo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, apperr.E(apperr.NotFound, "test", errors.New("no rows")))

		if _, err := s.Get(context.Background(), nil, "nope"); !errors.Is(err, apperr.ErrCardMissing) {
			t.Errorf("service.Get() error = %v, want ErrCardMissing", err)
		}
	})
}

func Test_service_ListRecent(t *testing.T) {
	s, m := newService(t)
	m.repo.EXPECT().ListCreatedSince(gomock.Any(), mock.Now.Add(-ttl)).Return(copies(mock.Listings), nil)
	expectUsers(m)

	got, err := s.ListRecent(context.Background(), "alice")
	if err != nil {
		t.Fatalf("service.ListRecent() error = %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"l2"}) {
		t.Errorf("service.ListRecent() got = %v", ids(got))
	}
}
