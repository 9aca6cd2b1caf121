// Package auth implements the account flows: registration, login, token
// refresh, email verification, password reset and admin user management.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/mailer"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/token"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/utils"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/validation"
)

const (
	codeLength          = 6
	verificationCodeTTL = 24 * time.Hour
	resetCodeTTL        = 10 * time.Minute
)

// Service owns the account lifecycle and turns credentials into tokens.
type Service struct {
	Users  repository.UserStore
	Tokens *token.Service
	Mail   mailer.Sender
	Log    *zap.SugaredLogger

	clock func() time.Time
}

func NewService(users repository.UserStore, tokens *token.Service, mail mailer.Sender, log *zap.SugaredLogger) *Service {
	return &Service{Users: users, Tokens: tokens, Mail: mail, Log: log, clock: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// TokenError maps token verification failures onto 401 responses that let
// clients tell an expired token (refresh) from a bad one (sign in again).
func TokenError(err error) *apperror.Error {
	if errors.Is(err, token.ErrExpired) {
		return apperror.Unauthorized("TOKEN_EXPIRED", "Token expired")
	}
	return apperror.Unauthorized("TOKEN_INVALID", "Invalid token")
}

// RegisterInput creates a user account; Phone must be +251 followed by nine digits.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"required,ethphone"`
	Password string `json:"password" validate:"required,strongpw"`
}

func (in *RegisterInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
}

// Register creates a user with role "user" and mails a verification code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, token.Pair, error) {
	in.normalize()
	if err := validation.Struct(&in); err != nil {
		return nil, token.Pair{}, err
	}

	fields := apperror.FieldErrors{}
	if _, err := s.Users.GetByEmail(ctx, in.Email); err == nil {
		fields.Add("email", "email is already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	if _, err := s.Users.GetByPhone(ctx, in.Phone); err == nil {
		fields.Add("phone", "phone is already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	if err := apperror.Validation(fields); err != nil {
		return nil, token.Pair{}, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	code, err := utils.GenerateCode(codeLength)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	expires := s.clock().Add(verificationCodeTTL)

	u := &models.User{
		Name:                in.Name,
		Email:               in.Email,
		Phone:               in.Phone,
		Password:            hash,
		Role:                models.RoleUser,
		IsActive:            true,
		VerificationCode:    code,
		VerificationExpires: &expires,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, token.Pair{}, apperror.Conflict("ACCOUNT_EXISTS", "email or phone is already registered")
		}
		return nil, token.Pair{}, apperror.Internal(err)
	}

	s.sendCode(ctx, u, "Verify your email", mailer.TemplateVerifyEmail, code, "24 hours")

	pair, err := s.Tokens.IssuePair(u)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	return u, pair, nil
}

// LoginInput authenticates by email and password.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login checks the credentials and rotates both tokens.
func (s *Service) Login(ctx context.Context, in LoginInput) (*models.User, token.Pair, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(&in); err != nil {
		return nil, token.Pair{}, err
	}

	invalid := apperror.Unauthorized("INVALID_CREDENTIALS", "Invalid email or password")
	u, err := s.Users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, token.Pair{}, invalid
	}
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	if !utils.CheckPassword(u.Password, in.Password) {
		return nil, token.Pair{}, invalid
	}
	if !u.IsActive {
		return nil, token.Pair{}, apperror.Forbidden("Account is deactivated")
	}

	now := s.clock()
	if err := s.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.Log.Warnf("touch last login user=%s: %v", u.ID, err)
	}
	u.LastLogin = &now

	pair, err := s.Tokens.IssuePair(u)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	return u, pair, nil
}

// Refresh mints a new access token. The refresh token is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.User, string, time.Time, error) {
	if refreshToken == "" {
		return nil, "", time.Time{}, apperror.Unauthorized("TOKEN_MISSING", "Refresh token is required")
	}
	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, "", time.Time{}, TokenError(err)
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	access, exp, err := s.Tokens.IssueAccess(u)
	if err != nil {
		return nil, "", time.Time{}, apperror.Internal(err)
	}
	return u, access, exp, nil
}

// Authenticate resolves an access token to an active user and records the
// access as the user's last login.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, apperror.Unauthorized("TOKEN_MISSING", "Access token is required")
	}
	claims, err := s.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, TokenError(err)
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	if err := s.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.Log.Warnw("touch last login", "user", u.ID, "error", err)
	} else {
		u.LastLogin = &now
	}
	return u, nil
}

func (s *Service) activeUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Unauthorized("USER_NOT_FOUND", "User no longer exists")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !u.IsActive {
		return nil, apperror.Unauthorized("ACCOUNT_INACTIVE", "Account is deactivated")
	}
	return u, nil
}

type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword mails a reset code when the account exists. The caller
// gets the same answer either way.
func (s *Service) ForgotPassword(ctx context.Context, in EmailInput) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(&in); err != nil {
		return err
	}
	u, err := s.Users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperror.Internal(err)
	}
	if !u.IsActive {
		return nil
	}

	code, err := utils.GenerateCode(codeLength)
	if err != nil {
		return apperror.Internal(err)
	}
	expires := s.clock().Add(resetCodeTTL)
	u.ResetCode = code
	u.ResetExpires = &expires
	if err := s.Users.Update(ctx, u); err != nil {
		return apperror.Internal(err)
	}
	s.sendCode(ctx, u, "Reset your password", mailer.TemplateResetPassword, code, "10 minutes")
	return nil
}

// ResetInput sets a new password using the emailed reset code.
type ResetInput struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required,strongpw"`
}

// ResetPassword sets a new password from a valid reset code and rotates both
// tokens.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) (*models.User, token.Pair, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Code = strings.TrimSpace(in.Code)
	if err := validation.Struct(&in); err != nil {
		return nil, token.Pair{}, err
	}

	bad := apperror.Invalid("INVALID_RESET_CODE", "code", "invalid or expired reset code")
	u, err := s.Users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, token.Pair{}, bad
	}
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	if !codeValid(u.ResetCode, u.ResetExpires, in.Code, s.clock()) {
		return nil, token.Pair{}, bad
	}
	if !u.IsActive {
		return nil, token.Pair{}, apperror.Forbidden("Account is deactivated")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	u.Password = hash
	u.ResetCode = ""
	u.ResetExpires = nil
	if err := s.Users.Update(ctx, u); err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}

	pair, err := s.Tokens.IssuePair(u)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	return u, pair, nil
}

type VerifyInput struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyEmail marks the account verified when the code matches and has not expired.
func (s *Service) VerifyEmail(ctx context.Context, in VerifyInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Code = strings.TrimSpace(in.Code)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	bad := apperror.Invalid("INVALID_VERIFICATION_CODE", "code", "invalid or expired verification code")
	u, err := s.Users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, bad
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if u.IsVerified {
		return u, nil
	}
	if !codeValid(u.VerificationCode, u.VerificationExpires, in.Code, s.clock()) {
		return nil, bad
	}

	u.IsVerified = true
	u.VerificationCode = ""
	u.VerificationExpires = nil
	if err := s.Users.Update(ctx, u); err != nil {
		return nil, apperror.Internal(err)
	}
	return u, nil
}

// ResendVerification issues a fresh code for unverified accounts.
func (s *Service) ResendVerification(ctx context.Context, in EmailInput) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(&in); err != nil {
		return err
	}
	u, err := s.Users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperror.Internal(err)
	}
	if u.IsVerified || !u.IsActive {
		return nil
	}

	code, err := utils.GenerateCode(codeLength)
	if err != nil {
		return apperror.Internal(err)
	}
	expires := s.clock().Add(verificationCodeTTL)
	u.VerificationCode = code
	u.VerificationExpires = &expires
	if err := s.Users.Update(ctx, u); err != nil {
		return apperror.Internal(err)
	}
	s.sendCode(ctx, u, "Verify your email", mailer.TemplateVerifyEmail, code, "24 hours")
	return nil
}

func codeValid(stored string, expires *time.Time, given string, now time.Time) bool {
	if stored == "" || expires == nil || stored != given {
		return false
	}
	return now.Before(*expires)
}

// sendCode never fails the calling flow; delivery problems are logged.
func (s *Service) sendCode(ctx context.Context, u *models.User, subject, tmpl, code, validFor string) {
	if s.Mail == nil {
		return
	}
	err := s.Mail.Send(ctx, mailer.Message{
		To:       u.Email,
		Subject:  subject,
		Template: tmpl,
		Data: map[string]string{
			"Name":     u.Name,
			"Code":     code,
			"ValidFor": validFor,
		},
	})
	if err != nil {
		s.Log.Warnf("send %s to user=%s: %v", tmpl, u.ID, err)
	}
}

func (s *Service) Me(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return u, nil
}

type ProfileInput struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,ethphone"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
}

// UpdateProfile applies the non-nil fields. A phone already held by
// another account is a validation error.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileInput) (*models.User, error) {
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		in.Name = &v
	}
	if in.Phone != nil {
		v := strings.TrimSpace(*in.Phone)
		in.Phone = &v
	}
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if in.Name != nil && *in.Name == "" {
		return nil, apperror.Invalid("VALIDATION_ERROR", "name", "name is required")
	}

	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Phone != nil && *in.Phone != u.Phone {
		other, err := s.Users.GetByPhone(ctx, *in.Phone)
		if err == nil && other.ID != u.ID {
			return nil, apperror.Invalid("VALIDATION_ERROR", "phone", "phone is already registered")
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.Internal(err)
		}
		u.Phone = *in.Phone
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.AvatarURL != nil {
		u.AvatarURL = *in.AvatarURL
	}
	if err := s.Users.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Invalid("VALIDATION_ERROR", "phone", "phone is already registered")
		}
		return nil, apperror.Internal(err)
	}
	return u, nil
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strongpw"`
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, in ChangePasswordInput) error {
	if err := validation.Struct(&in); err != nil {
		return err
	}
	u, err := s.Me(ctx, id)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(u.Password, in.CurrentPassword) {
		return apperror.Invalid("INVALID_PASSWORD", "current_password", "current password is incorrect")
	}
	hash, err := utils.HashPassword(in.NewPassword)
	if err != nil {
		return apperror.Internal(err)
	}
	u.Password = hash
	if err := s.Users.Update(ctx, u); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// Deactivate soft-deletes the caller's own account.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	u, err := s.Me(ctx, id)
	if err != nil {
		return err
	}
	u.IsActive = false
	if err := s.Users.Update(ctx, u); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, q repository.UserQuery) ([]models.User, int64, error) {
	if q.Role != "" && !q.Role.Valid() {
		return nil, 0, apperror.Invalid("INVALID_ROLE", "role", "unknown role")
	}
	users, total, err := s.Users.List(ctx, q)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return users, total, nil
}

// SetActive toggles an account. Admins cannot deactivate themselves.
func (s *Service) SetActive(ctx context.Context, actor models.Principal, id uuid.UUID, active bool) (*models.User, error) {
	if actor.UserID == id && !active {
		return nil, apperror.Invalid("SELF_DEACTIVATION", "is_active", "you cannot deactivate your own account")
	}
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	u.IsActive = active
	if err := s.Users.Update(ctx, u); err != nil {
		return nil, apperror.Internal(err)
	}
	return u, nil
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (s *Service) SetRole(ctx context.Context, actor models.Principal, id uuid.UUID, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperror.Invalid("INVALID_ROLE", "role", "role must be one of: user owner admin")
	}
	if actor.UserID == id && role != models.RoleAdmin {
		return nil, apperror.Invalid("SELF_DEMOTION", "role", "you cannot remove your own admin role")
	}
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.Users.Update(ctx, u); err != nil {
		return nil, apperror.Internal(err)
	}
	return u, nil
}

// GoogleProfile is the subset of the Google userinfo payload used to sign in.
type GoogleProfile struct {
	Email   string
	Name    string
	Picture string
}

// GoogleSignIn upserts the user by email and issues a token pair. New
// accounts get a placeholder phone until the user sets one.
func (s *Service) GoogleSignIn(ctx context.Context, gp GoogleProfile) (*models.User, token.Pair, error) {
	email := strings.ToLower(strings.TrimSpace(gp.Email))
	name := strings.TrimSpace(gp.Name)
	if email == "" {
		return nil, token.Pair{}, apperror.Invalid("VALIDATION_ERROR", "email", "email not provided by Google")
	}

	u, err := s.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		hash, err := utils.HashPassword(uuid.NewString())
		if err != nil {
			return nil, token.Pair{}, apperror.Internal(err)
		}
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		u = &models.User{
			Name:       name,
			Email:      email,
			Phone:      fmt.Sprintf("google_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
			Password:   hash,
			Role:       models.RoleUser,
			IsActive:   true,
			IsVerified: true,
			AvatarURL:  gp.Picture,
		}
		if err := s.Users.Create(ctx, u); err != nil {
			return nil, token.Pair{}, apperror.Internal(err)
		}
	case err != nil:
		return nil, token.Pair{}, apperror.Internal(err)
	default:
		if !u.IsActive {
			return nil, token.Pair{}, apperror.Forbidden("Account is deactivated")
		}
		changed := false
		if name != "" && u.Name != name {
			u.Name = name
			changed = true
		}
		if !u.IsVerified {
			u.IsVerified = true
			changed = true
		}
		if changed {
			if err := s.Users.Update(ctx, u); err != nil {
				s.Log.Warnf("google sign-in update user=%s: %v", u.ID, err)
			}
		}
	}

	now := s.clock()
	if err := s.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.Log.Warnf("touch last login user=%s: %v", u.ID, err)
	}
	pair, err := s.Tokens.IssuePair(u)
	if err != nil {
		return nil, token.Pair{}, apperror.Internal(err)
	}
	return u, pair, nil
}
