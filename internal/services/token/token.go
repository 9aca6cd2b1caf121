// Package token issues and verifies the access/refresh JWT pair.
package token

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/utils"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrExpired = utils.ErrTokenExpired
	ErrInvalid = utils.ErrTokenInvalid
)

// Pair is an access token with its refresh token.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// Claims are the verified contents of a token.
type Claims struct {
	UserID uuid.UUID
	Role   models.Role
}

// Service signs access and refresh tokens with separate secrets.
type Service struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	clock func() time.Time
}

func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Service{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		clock:         time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) IssueAccess(u *models.User) (string, time.Time, error) {
	now := s.clock()
	tok, err := utils.SignJWT(s.AccessSecret, u.ID.String(), string(u.Role), s.AccessTTL, now)
	return tok, now.Add(s.AccessTTL), err
}

func (s *Service) IssuePair(u *models.User) (Pair, error) {
	access, accessExp, err := s.IssueAccess(u)
	if err != nil {
		return Pair{}, err
	}
	now := s.clock()
	refresh, err := utils.SignJWT(s.RefreshSecret, u.ID.String(), string(u.Role), s.RefreshTTL, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: now.Add(s.RefreshTTL),
	}, nil
}

func (s *Service) VerifyAccess(tok string) (Claims, error) {
	return s.verify(s.AccessSecret, tok)
}

func (s *Service) VerifyRefresh(tok string) (Claims, error) {
	return s.verify(s.RefreshSecret, tok)
}

func (s *Service) verify(secret, tok string) (Claims, error) {
	c, err := utils.ParseJWT(secret, tok, s.clock())
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	return Claims{UserID: id, Role: models.Role(c.Role)}, nil
}
