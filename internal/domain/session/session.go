// Package session holds the authenticated caller that is passed explicitly
// into every domain operation.
package session

import (
	"errors"
	"time"

	"github.com/swapcard/marketplace/internal/domain/apperr"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Session struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func New(userID, email, displayName string, role Role, now time.Time, ttl time.Duration) *Session {
	if role == "" {
		role = RoleUser
	}
	return &Session{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

var errNoSession = errors.New("sign in required")

// Require fails with AuthFailure unless s identifies a user.
func Require(s *Session, op string) error {
	if s == nil || s.UserID == "" {
		return apperr.E(apperr.AuthFailure, op, errNoSession)
	}
	return nil
}

// RequireAdmin fails with Forbidden for signed-in non-admins.
func RequireAdmin(s *Session, op string) error {
	if err := Require(s, op); err != nil {
		return err
	}
	if !s.IsAdmin() {
		return apperr.E(apperr.Forbidden, op, errors.New("admin role required"))
	}
	return nil
}
