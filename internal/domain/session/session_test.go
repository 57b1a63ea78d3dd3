package session

import (
	"testing"
	"time"

	"github.com/swapcard/marketplace/internal/domain/apperr"
)

func TestRequire(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user := New("u1", "a@example.com", "A", "", now, time.Hour)
	admin := New("u2", "b@example.com", "B", RoleAdmin, now, time.Hour)

	tests := []struct {
		name      string
		sess      *Session
		admin     bool
		wantKind  apperr.Kind
		wantError bool
	}{
		{name: "nil session", sess: nil, wantKind: apperr.AuthFailure, wantError: true},
		{name: "empty user id", sess: &Session{}, wantKind: apperr.AuthFailure, wantError: true},
		{name: "user", sess: user},
		{name: "user needs admin", sess: user, admin: true, wantKind: apperr.Forbidden, wantError: true},
		{name: "admin", sess: admin, admin: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.admin {
				err = RequireAdmin(tt.sess, "test")
			} else {
				err = Require(tt.sess, "test")
			}
			if (err != nil) != tt.wantError {
				t.Fatalf("error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError && apperr.KindOf(err) != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
		})
	}

	if user.Role != RoleUser {
		t.Errorf("default role = %q, want user", user.Role)
	}
	if user.Expired(now.Add(30 * time.Minute)) {
		t.Error("session expired before its ttl")
	}
	if !user.Expired(now.Add(time.Hour)) {
		t.Error("session still valid at its expiry")
	}
}
