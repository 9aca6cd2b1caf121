package token

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Role: models.RoleAdmin}
}

func TestIssuePairRoundTrip(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService("access-secret", "refresh-secret", 0, 0).WithClock(func() time.Time { return now })
	u := testUser()

	pair, err := svc.IssuePair(u)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if got := pair.AccessExpiresAt.Sub(now); got != 15*time.Minute {
		t.Fatalf("access ttl = %v, want 15m", got)
	}
	if got := pair.RefreshExpiresAt.Sub(now); got != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %v, want 168h", got)
	}

	claims, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != models.RoleAdmin {
		t.Fatalf("claims = %+v, want id %s role admin", claims, u.ID)
	}
	if _, err := svc.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	svc := NewService("access-secret", "refresh-secret", 0, 0)
	pair, err := svc.IssuePair(testUser())
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := svc.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("refresh token as access: err = %v, want %v", err, ErrInvalid)
	}
	if _, err := svc.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("access token as refresh: err = %v, want %v", err, ErrInvalid)
	}
}

func TestExpiredIsDistinctFromInvalid(t *testing.T) {
	issued := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	now := issued
	svc := NewService("access-secret", "refresh-secret", 0, 0).WithClock(func() time.Time { return now })

	tok, _, err := svc.IssueAccess(testUser())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	now = issued.Add(16 * time.Minute)
	if _, err := svc.VerifyAccess(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want %v", err, ErrExpired)
	}

	if _, err := svc.VerifyAccess("not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("malformed: err = %v, want %v", err, ErrInvalid)
	}

	now = issued
	tampered := tok[:len(tok)-2] + "xx"
	if _, err := svc.VerifyAccess(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("tampered: err = %v, want %v", err, ErrInvalid)
	}
}
