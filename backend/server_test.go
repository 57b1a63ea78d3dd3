package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/swapcard/marketplace/backend/handlers"
	webmodels "github.com/swapcard/marketplace/backend/models"
	"github.com/swapcard/marketplace/backend/services"
	"github.com/swapcard/marketplace/internal/domain/apperr"
	"github.com/swapcard/marketplace/internal/domain/session"
	"github.com/swapcard/marketplace/internal/domain/swaps"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
	"github.com/swapcard/marketplace/swapcard"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeAccounts struct {
	handlers.Accounts
	users map[string]*models.User
}

func (f *fakeAccounts) SignIn(_ context.Context, email, password string) (*session.Session, *models.User, error) {
	for _, u := range f.users {
		if u.Email == email && password == "secret" {
			return session.New(u.ID, u.Email, u.DisplayName, session.Role(u.Role), time.Now(), time.Hour), u, nil
		}
	}
	return nil, nil, apperr.E(apperr.AuthFailure, "accounts.SignIn", apperr.ErrInvalidCredentials)
}

func (f *fakeAccounts) Profile(_ context.Context, sess *session.Session) (*models.User, error) {
	if err := session.Require(sess, "accounts.Profile"); err != nil {
		return nil, err
	}
	return f.users[sess.UserID], nil
}

type fakeSwaps struct {
	handlers.Swaps
	created   swaps.CreateInput
	acceptErr error
	incoming  swaps.IncomingFilter
}

func (f *fakeSwaps) CreateSwapRequest(_ context.Context, sess *session.Session, in swaps.CreateInput) (*models.SwapRequest, error) {
	f.created = in
	if in.ReceiverCardID == "" {
		return nil, apperr.Wrap("swaps.CreateSwapRequest", apperr.Invalid("swaps.CreateSwapRequest", "receiverCardId", "is required"))
	}
	return &models.SwapRequest{ID: "r1", RequesterID: sess.UserID, Status: models.SwapPending}, nil
}

func (f *fakeSwaps) AcceptRequest(context.Context, *session.Session, string) (*swaps.AcceptResult, error) {
	return nil, f.acceptErr
}

func (f *fakeSwaps) Incoming(_ context.Context, _ *session.Session, filter swaps.IncomingFilter) ([]*models.SwapRequest, error) {
	f.incoming = filter
	return []*models.SwapRequest{}, nil
}

type fakeAdmin struct{ handlers.Admin }

func (fakeAdmin) Users(context.Context, *session.Session) ([]*models.User, error) {
	return []*models.User{}, nil
}

type fakeChats struct{ handlers.Chats }

func (fakeChats) Authorize(_ context.Context, sess *session.Session, id string) (*models.Conversation, error) {
	return nil, apperr.E(apperr.Forbidden, "chat.Authorize", errors.New("not a participant"))
}

type testEnv struct {
	app      *fiber.App
	sessions *services.SessionService
	swaps    *fakeSwaps
}

func newTestEnv(t *testing.T, db handlers.Pinger) *testEnv {
	t.Helper()
	cfg := swapcard.WebConfig{
		AllowedOrigins: "*",
		SessionSecret:  "test-secret",
		SessionTTL:     swapcard.Duration{Duration: time.Hour},
	}
	sessions := services.NewSessionService(cfg)
	sw := &fakeSwaps{}
	webApp := &handlers.WebApp{
		DB:       db,
		Sessions: sessions,
		Accounts: &fakeAccounts{users: map[string]*models.User{
			"u1": {ID: "u1", Email: "alice@example.com", DisplayName: "Alice", Role: models.RoleUser},
		}},
		Swaps:   sw,
		Admin:   fakeAdmin{},
		Chats:   fakeChats{},
		Version: "test",
	}
	return &testEnv{app: NewApp(cfg, webApp), sessions: sessions, swaps: sw}
}

func (e *testEnv) token(t *testing.T, role session.Role) string {
	t.Helper()
	tok, err := e.sessions.Sign(session.New("u1", "alice@example.com", "Alice", role, time.Now(), time.Hour))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string, header ...string) (*http.Response, webmodels.APIResponse) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var out webmodels.APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	resp, out := newTestEnv(t, fakePinger{}).do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, out.Success)

	resp, out = newTestEnv(t, fakePinger{err: errors.New("down")}).do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "UNHEALTHY", out.Error.Code)
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, out := env.do(t, http.MethodGet, "/api/me", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, out.Success)

	resp, _ = env.do(t, http.MethodGet, "/api/me", "garbage", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, out = env.do(t, http.MethodGet, "/api/me", env.token(t, session.RoleUser), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "u1", out.Data.(map[string]any)["id"])
}

func TestSignInIssuesCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, out := env.do(t, http.MethodPost, "/auth/signin", "", `{"email":"alice@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := out.Data.(map[string]any)
	require.NotEmpty(t, data["token"])

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == services.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = env.do(t, http.MethodPost, "/auth/signin", "", `{"email":"alice@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid email or password", out.Error.Message)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/admin/users", env.token(t, session.RoleUser), "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := env.do(t, http.MethodGet, "/admin/users", env.token(t, session.RoleAdmin), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, out.Success)
}

func TestSwapErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"already decided", apperr.Wrap("swaps.AcceptRequest", apperr.ErrAlreadyDecided), http.StatusConflict, "ALREADY_DECIDED"},
		{"listing closed", apperr.Wrap("swaps.AcceptRequest", apperr.ErrListingClosed), http.StatusConflict, "CONFLICT"},
		{"missing", apperr.Wrap("swaps.AcceptRequest", apperr.ErrRequestNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"not receiver", apperr.E(apperr.Forbidden, "swaps.AcceptRequest", errors.New("only the receiver can accept")), http.StatusForbidden, "FORBIDDEN"},
		{"store down", errors.New("connection refused"), http.StatusBadGateway, "REMOTE_WRITE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.swaps.acceptErr = tt.err
			resp, out := env.do(t, http.MethodPost, "/api/swaps/r1/accept", env.token(t, session.RoleUser), "")
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.code, out.Error.Code)
		})
	}
}

func TestSwapCreate(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, session.RoleUser)

	resp, out := env.do(t, http.MethodPost, "/api/swaps", tok,
		`{"requesterCardId":"c1","receiverId":"u2","receiverCardId":"c2"}`,
		"Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "r1", out.Data.(map[string]any)["id"])
	require.Equal(t, "k-1", env.swaps.created.IdempotencyKey)
	require.Equal(t, "c2", env.swaps.created.ReceiverCardID)

	resp, out = env.do(t, http.MethodPost, "/api/swaps", tok, `{"requesterCardId":"c1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", out.Error.Code)
	require.Equal(t, "is required", out.Error.Details["receiverCardId"])
}

func TestSwapsIncomingFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, session.RoleUser)

	resp, _ := env.do(t, http.MethodGet, "/api/swaps/incoming?day=2024-05-01&status=pending&order=asc", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, models.SwapPending, env.swaps.incoming.Status)
	require.True(t, env.swaps.incoming.Ascending)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), env.swaps.incoming.Day)

	resp, out := env.do(t, http.MethodGet, "/api/swaps/incoming?status=maybe", tok, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, out.Error.Details, "status")

	resp, _ = env.do(t, http.MethodGet, "/api/swaps/incoming?day=yesterday", tok, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStreamAuthorization(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, session.RoleUser)

	resp, _ := env.do(t, http.MethodGet, "/api/stream/everything", tok, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/stream/all", tok, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/stream/messages/u1_u2", tok, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/stream/messages", tok, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	resp, out := newTestEnv(t, nil).do(t, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", out.Error.Code)
}
