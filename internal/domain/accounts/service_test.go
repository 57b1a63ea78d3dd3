package accounts

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/swapcard/marketplace/internal/domain/accounts/mock"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/storage"
)

var (
	now      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	notFound = apperr.E(apperr.NotFound, "test", errors.New("no rows"))
	phone    = regexp.MustCompile(`^\+971[0-9]{9}$`)
)

type mocks struct {
	users    *mock.MockRepository
	photos   *mock.MockPhotoStore
	verifier *mock.MockVerifier
}

func newService(t *testing.T) (*Service, mocks) {
	ctrl := gomock.NewController(t)
	m := mocks{
		users:    mock.NewMockRepository(ctrl),
		photos:   mock.NewMockPhotoStore(ctrl),
		verifier: mock.NewMockVerifier(ctrl),
	}
	s := NewService(m.users, m.photos, m.verifier, phone, time.Hour)
	s.hashCost = bcrypt.MinCost
	s.now = func() time.Time { return now }
	return s, m
}

func account(t *testing.T, password string, verified bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &models.User{
		ID:           "u1",
		DisplayName:  "Alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		IsVerified:   verified,
		Role:         models.RoleUser,
	}
}

func Test_service_SignUp_Validation(t *testing.T) {
	valid := SignUpInput{DisplayName: "Alice", Email: "alice@example.com", Password: "secret1", PhoneNumber: "+971501234567"}

	tests := []struct {
		name   string
		mutate func(*SignUpInput)
		field  string
	}{
		{name: "no display name", mutate: func(in *SignUpInput) { in.DisplayName = " " }, field: "displayName"},
		{name: "bad email", mutate: func(in *SignUpInput) { in.Email = "alice" }, field: "email"},
		{name: "short password", mutate: func(in *SignUpInput) { in.Password = "12345" }, field: "password"},
		{name: "foreign phone", mutate: func(in *SignUpInput) { in.PhoneNumber = "+15551234567" }, field: "phoneNumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newService(t)
			in := valid
			tt.mutate(&in)

			_, err := s.SignUp(context.Background(), in)
			var e *apperr.Error
			if !errors.As(err, &e) || e.Kind != apperr.Validation || e.Field != tt.field {
				t.Errorf("service.SignUp() error = %v, want validation on %s", err, tt.field)
			}
		})
	}
}

func Test_service_SignUp(t *testing.T) {
	s, m := newService(t)
	m.users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, notFound)
	m.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	m.verifier.EXPECT().SendVerification(gomock.Any(), "Alice", "alice@example.com").Return(errors.New("mailer down"))

	u, err := s.SignUp(context.Background(), SignUpInput{
		DisplayName: "Alice",
		Email:       " Alice@Example.com ",
		Password:    "secret1",
		PhoneNumber: "+971501234567",
	})
	if err != nil {
		t.Fatalf("service.SignUp() error = %v", err)
	}
	if u.IsVerified || u.Role != models.RoleUser || u.Email != "alice@example.com" {
		t.Errorf("service.SignUp() = %+v", u)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")) != nil {
		t.Error("stored hash does not match the password")
	}
}

func Test_service_SignUp_EmailTaken(t *testing.T) {
	s, m := newService(t)
	m.users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(&models.User{ID: "other"}, nil)

	_, err := s.SignUp(context.Background(), SignUpInput{DisplayName: "A", Email: "alice@example.com", Password: "secret1", PhoneNumber: "+971501234567"})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("service.SignUp() error = %v, want conflict", err)
	}
}

func Test_service_SignIn(t *testing.T) {
	tests := []struct {
		name     string
		password string
		user     func(t *testing.T) (*models.User, error)
		wantErr  error
	}{
		{
			name:     "verified",
			password: "secret1",
			user:     func(t *testing.T) (*models.User, error) { return account(t, "secret1", true), nil },
		},
		{
			name:     "wrong password",
			password: "nope",
			user:     func(t *testing.T) (*models.User, error) { return account(t, "secret1", true), nil },
			wantErr:  apperr.ErrInvalidCredentials,
		},
		{
			name:     "unknown email",
			password: "secret1",
			user:     func(*testing.T) (*models.User, error) { return nil, notFound },
			wantErr:  apperr.ErrInvalidCredentials,
		},
		{
			name:     "unverified",
			password: "secret1",
			user:     func(t *testing.T) (*models.User, error) { return account(t, "secret1", false), nil },
			wantErr:  apperr.ErrUnverified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)
			u, uerr := tt.user(t)
			m.users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(u, uerr)

			sess, _, err := s.SignIn(context.Background(), "alice@example.com", tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || sess != nil {
					t.Errorf("service.SignIn() = %v, %v; want %v", sess, err, tt.wantErr)
				}
				if apperr.KindOf(err) != apperr.AuthFailure {
					t.Errorf("service.SignIn() kind = %v, want auth failure", apperr.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("service.SignIn() error = %v", err)
			}
			if sess.UserID != "u1" || sess.Role != session.RoleUser || !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
				t.Errorf("service.SignIn() session = %+v", sess)
			}
		})
	}
}

func Test_service_UpdateEmail_RequiresReverification(t *testing.T) {
	s, m := newService(t)
	u := account(t, "secret1", true)
	m.users.EXPECT().GetByID(gomock.Any(), "u1").Return(u, nil)
	m.users.EXPECT().GetByEmail(gomock.Any(), "new@example.com").Return(nil, notFound)
	m.users.EXPECT().Update(gomock.Any(), u).Return(nil)
	m.verifier.EXPECT().SendVerification(gomock.Any(), "Alice", "new@example.com").Return(nil)

	got, err := s.UpdateEmail(context.Background(), &session.Session{UserID: "u1"}, "new@example.com")
	if err != nil {
		t.Fatalf("service.UpdateEmail() error = %v", err)
	}
	if got.IsVerified || got.Email != "new@example.com" {
		t.Errorf("service.UpdateEmail() = %+v", got)
	}
}

func Test_service_UpdatePassword(t *testing.T) {
	t.Run("wrong current password", func(t *testing.T) {
		s, m := newService(t)
		m.users.EXPECT().GetByID(gomock.Any(), "u1").Return(account(t, "secret1", true), nil)

		err := s.UpdatePassword(context.Background(), &session.Session{UserID: "u1"}, "guess", "secret2")
		if !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Errorf("service.UpdatePassword() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("rehashes", func(t *testing.T) {
		s, m := newService(t)
		u := account(t, "secret1", true)
		m.users.EXPECT().GetByID(gomock.Any(), "u1").Return(u, nil)
		m.users.EXPECT().Update(gomock.Any(), u).Return(nil)

		if err := s.UpdatePassword(context.Background(), &session.Session{UserID: "u1"}, "secret1", "secret2"); err != nil {
			t.Fatalf("service.UpdatePassword() error = %v", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret2")) != nil {
			t.Error("new password not stored")
		}
	})
}

func Test_service_SetPhoneVisibility(t *testing.T) {
	s, m := newService(t)
	u := account(t, "secret1", true)
	m.users.EXPECT().GetByID(gomock.Any(), "u1").Return(u, nil)
	m.users.EXPECT().Update(gomock.Any(), u).Return(nil)

	got, err := s.SetPhoneVisibility(context.Background(), &session.Session{UserID: "u1"}, true)
	if err != nil || !got.IsPhoneNumberVisible || got.DisplayName != "Alice" {
		t.Errorf("service.SetPhoneVisibility() = %+v, %v", got, err)
	}
}

func Test_service_UploadPhoto(t *testing.T) {
	s, m := newService(t)
	u := account(t, "secret1", true)
	u.PhotoKey = "profiles/u1/old.png"
	m.users.EXPECT().GetByID(gomock.Any(), "u1").Return(u, nil)
	m.photos.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, obj storage.Object) (string, error) {
		if !strings.HasPrefix(obj.Key, "profiles/u1/") {
			t.Errorf("Put() key = %q", obj.Key)
		}
		return "https://cdn.example.com/" + obj.Key, nil
	})
	m.users.EXPECT().Update(gomock.Any(), u).Return(nil)
	m.photos.EXPECT().Delete(gomock.Any(), "profiles/u1/old.png").Return(nil)

	got, err := s.UploadPhoto(context.Background(), &session.Session{UserID: "u1"}, Photo{
		Filename: "me.png", ContentType: "image/png", Size: 4, Body: bytes.NewReader([]byte("png!")),
	})
	if err != nil {
		t.Fatalf("service.UploadPhoto() error = %v", err)
	}
	if got.PhotoKey == "profiles/u1/old.png" || !strings.HasSuffix(got.PhotoURL, got.PhotoKey) {
		t.Errorf("service.UploadPhoto() = %+v", got)
	}
}

func Test_service_PublicProfile(t *testing.T) {
	s, m := newService(t)
	u := account(t, "secret1", true)
	u.PhoneNumber = "+971501234567"
	m.users.EXPECT().GetByID(gomock.Any(), "u1").Return(u, nil)
	m.users.EXPECT().GetByID(gomock.Any(), "ghost").Return(nil, notFound)

	got, err := s.PublicProfile(context.Background(), "u1")
	if err != nil || got.PhoneNumber != "" || got.PasswordHash != "" {
		t.Errorf("service.PublicProfile() = %+v, %v", got, err)
	}
	if _, err := s.PublicProfile(context.Background(), "ghost"); !errors.Is(err, apperr.ErrUserMissing) {
		t.Errorf("service.PublicProfile() error = %v, want ErrUserMissing", err)
	}
}
