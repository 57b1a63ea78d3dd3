package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/swapcard"
)

const (
	SessionCookieName = "swapcard_session"
	issuer            = "swapcard"
)

var errNoToken = errors.New("no session token")

// Claims is the signed form of a session.Session.
type Claims struct {
	Email       string       `json:"email"`
	DisplayName string       `json:"name"`
	Role        session.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionService issues and verifies HS256 session tokens. Tokens travel
// in an HTTPOnly cookie or an Authorization: Bearer header.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionService(cfg swapcard.WebConfig) *SessionService {
	return &SessionService{
		secret: []byte(cfg.SessionSecret),
		ttl:    cfg.SessionTTL.Duration,
		secure: cfg.SecureCookies,
		now:    time.Now,
	}
}

func (s *SessionService) TTL() time.Duration { return s.ttl }

// Sign encodes sess as a token.
func (s *SessionService) Sign(sess *session.Session) (string, error) {
	claims := &Claims{
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		Role:        sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// Parse verifies token and rebuilds the session it carries.
func (s *SessionService) Parse(token string) (*session.Session, error) {
	const op = "session.Parse"
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperr.E(apperr.AuthFailure, op, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, apperr.E(apperr.AuthFailure, op, jwt.ErrTokenInvalidClaims)
	}

	sess := &session.Session{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	if sess.Role == "" {
		sess.Role = session.RoleUser
	}
	return sess, nil
}

// Issue signs sess and sets it as the session cookie.
func (s *SessionService) Issue(c *fiber.Ctx, sess *session.Session) (string, error) {
	token, err := s.Sign(sess)
	if err != nil {
		return "", err
	}
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		Secure:   s.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return token, nil
}

// FromRequest reads the bearer token, falling back to the cookie.
func (s *SessionService) FromRequest(c *fiber.Ctx) (*session.Session, error) {
	token := ""
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(rest)
		}
	}
	if token == "" {
		token = c.Cookies(SessionCookieName)
	}
	if token == "" {
		return nil, apperr.E(apperr.AuthFailure, "session.FromRequest", errNoToken)
	}
	return s.Parse(token)
}

// Destroy expires the session cookie.
func (s *SessionService) Destroy(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   s.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
