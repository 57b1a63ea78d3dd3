// Package accounts signs users up and in and manages their own profile.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/internal/gateways/storage"
)

const minPassword = 6

type Service struct {
	users    Repository
	photos   PhotoStore
	verifier Verifier
	phone    *regexp.Regexp
	ttl      time.Duration
	hashCost int
	now      func() time.Time
}

// NewService wires the account flows. phone validates phone numbers and
// ttl is the lifetime of issued sessions.
func NewService(users Repository, photos PhotoStore, verifier Verifier, phone *regexp.Regexp, ttl time.Duration) *Service {
	return &Service{
		users:    users,
		photos:   photos,
		verifier: verifier,
		phone:    phone,
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

type SignUpInput struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

// SignUp creates an unverified account and asks the mailer to send the
// verification email.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	const op = "accounts.SignUp"
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		return nil, apperr.Invalid(op, "displayName", "is required")
	}
	email, err := normalizeEmail(op, in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPassword {
		return nil, apperr.Invalid(op, "password", fmt.Sprintf("must be at least %d characters", minPassword))
	}
	if err := s.checkPhone(op, in.PhoneNumber); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, op, email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Wrap(op, fmt.Errorf("failed to hash password: %w", err))
	}

	now := s.now()
	u := &models.User{
		ID:           uuid.NewString(),
		DisplayName:  in.DisplayName,
		Email:        email,
		PasswordHash: string(hash),
		Provider:     "password",
		PhoneNumber:  in.PhoneNumber,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.Wrap(op, err)
	}

	slog.Info("Account created",
		slog.String("type", "sys"),
		slog.String("user_id", u.ID))
	s.sendVerification(ctx, u)
	return u, nil
}

// SignIn checks credentials and issues a session. Unverified accounts are
// refused.
func (s *Service) SignIn(ctx context.Context, email, password string) (*session.Session, *models.User, error) {
	const op = "accounts.SignIn"
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, apperr.Wrap(op, apperr.ErrInvalidCredentials)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, nil, apperr.Wrap(op, apperr.ErrInvalidCredentials)
		}
		return nil, nil, apperr.Wrap(op, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil, apperr.Wrap(op, apperr.ErrInvalidCredentials)
	}
	if !u.IsVerified {
		return nil, nil, apperr.Wrap(op, apperr.ErrUnverified)
	}

	role := session.RoleUser
	if u.IsAdmin() {
		role = session.RoleAdmin
	}
	return session.New(u.ID, u.Email, u.DisplayName, role, s.now(), s.ttl), u, nil
}

func (s *Service) Profile(ctx context.Context, sess *session.Session) (*models.User, error) {
	const op = "accounts.Profile"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	return s.load(ctx, op, sess.UserID)
}

// PublicProfile is what other users may see of id.
func (s *Service) PublicProfile(ctx context.Context, id string) (*models.User, error) {
	const op = "accounts.PublicProfile"
	if id == "" {
		return nil, apperr.Invalid(op, "id", "is required")
	}
	u, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// ProfileInput changes only the fields that are set.
type ProfileInput struct {
	DisplayName  string `json:"displayName"`
	PhoneNumber  string `json:"phoneNumber"`
	PhoneVisible *bool  `json:"isPhoneNumberVisible"`
}

func (s *Service) UpdateProfile(ctx context.Context, sess *session.Session, in ProfileInput) (*models.User, error) {
	const op = "accounts.UpdateProfile"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	if in.PhoneNumber != "" {
		if err := s.checkPhone(op, in.PhoneNumber); err != nil {
			return nil, err
		}
	}

	u, err := s.load(ctx, op, sess.UserID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.DisplayName); name != "" {
		u.DisplayName = name
	}
	if in.PhoneNumber != "" {
		u.PhoneNumber = in.PhoneNumber
	}
	if in.PhoneVisible != nil {
		u.IsPhoneNumberVisible = *in.PhoneVisible
	}
	return s.save(ctx, op, u)
}

func (s *Service) SetPhoneVisibility(ctx context.Context, sess *session.Session, visible bool) (*models.User, error) {
	return s.UpdateProfile(ctx, sess, ProfileInput{PhoneVisible: &visible})
}

// UpdateEmail moves the account to a new address. The account must be
// verified again before the next sign-in.
func (s *Service) UpdateEmail(ctx context.Context, sess *session.Session, newEmail string) (*models.User, error) {
	const op = "accounts.UpdateEmail"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(op, newEmail)
	if err != nil {
		return nil, err
	}

	u, err := s.load(ctx, op, sess.UserID)
	if err != nil {
		return nil, err
	}
	if u.Email == email {
		return u, nil
	}
	if err := s.ensureEmailFree(ctx, op, email); err != nil {
		return nil, err
	}

	u.Email = email
	u.IsVerified = false
	if u, err = s.save(ctx, op, u); err != nil {
		return nil, err
	}
	s.sendVerification(ctx, u)
	return u, nil
}

// UpdatePassword re-authenticates with current before storing next.
func (s *Service) UpdatePassword(ctx context.Context, sess *session.Session, current, next string) error {
	const op = "accounts.UpdatePassword"
	if err := session.Require(sess, op); err != nil {
		return err
	}
	if len(next) < minPassword {
		return apperr.Invalid(op, "password", fmt.Sprintf("must be at least %d characters", minPassword))
	}

	u, err := s.load(ctx, op, sess.UserID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.Wrap(op, apperr.ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return apperr.Wrap(op, fmt.Errorf("failed to hash password: %w", err))
	}
	u.PasswordHash = string(hash)
	_, err = s.save(ctx, op, u)
	return err
}

type Photo struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadPhoto stores a new profile photo and removes the previous one.
func (s *Service) UploadPhoto(ctx context.Context, sess *session.Session, p Photo) (*models.User, error) {
	const op = "accounts.UploadPhoto"
	if err := session.Require(sess, op); err != nil {
		return nil, err
	}
	if p.Body == nil {
		return nil, apperr.Invalid(op, "photo", "is required")
	}
	if p.ContentType != "" && !strings.HasPrefix(p.ContentType, "image/") {
		return nil, apperr.Invalid(op, "photo", "must be an image")
	}

	u, err := s.load(ctx, op, sess.UserID)
	if err != nil {
		return nil, err
	}

	key := storage.ProfilePhotoKey(u.ID, p.Filename)
	url, err := s.photos.Put(ctx, storage.Object{Key: key, ContentType: p.ContentType, Size: p.Size, Body: p.Body})
	if err != nil {
		return nil, apperr.Wrap(op, fmt.Errorf("failed to upload photo: %w", err))
	}

	oldKey := u.PhotoKey
	u.PhotoKey, u.PhotoURL = key, url
	if u, err = s.save(ctx, op, u); err != nil {
		s.dropPhoto(ctx, key)
		return nil, err
	}
	s.dropPhoto(ctx, oldKey)
	return u, nil
}

func (s *Service) load(ctx context.Context, op, id string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(op, apperr.ErrUserMissing)
		}
		return nil, apperr.Wrap(op, err)
	}
	return u, nil
}

func (s *Service) save(ctx context.Context, op string, u *models.User) (*models.User, error) {
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return u, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, op, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return apperr.E(apperr.Conflict, op, errors.New("email is already registered"))
	case apperr.Is(err, apperr.NotFound):
		return nil
	default:
		return apperr.Wrap(op, err)
	}
}

func (s *Service) checkPhone(op, phone string) error {
	if s.phone != nil && !s.phone.MatchString(phone) {
		return apperr.Invalid(op, "phoneNumber", "is not a valid phone number")
	}
	return nil
}

func (s *Service) sendVerification(ctx context.Context, u *models.User) {
	if s.verifier == nil {
		return
	}
	if err := s.verifier.SendVerification(context.WithoutCancel(ctx), u.DisplayName, u.Email); err != nil {
		slog.Warn("Failed to send verification email",
			slog.String("type", "mail"),
			slog.String("user_id", u.ID),
			slog.Any("error", err))
	}
}

func (s *Service) dropPhoto(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.photos.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("Failed to delete profile photo",
			slog.String("type", "sys"),
			slog.String("key", key),
			slog.Any("error", err))
	}
}

func normalizeEmail(op, raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Invalid(op, "email", "is not a valid email address")
	}
	return email, nil
}
