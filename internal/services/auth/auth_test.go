package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/mailer"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/token"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/testutil"
)

type fixture struct {
	svc   *Service
	users *testutil.UserStore
	mail  *testutil.Mailer
	clock *testutil.Clock
}

func newFixture() *fixture {
	clock := testutil.NewClock(time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC))
	users := testutil.NewUserStore()
	mail := &testutil.Mailer{}
	tokens := token.NewService("access", "refresh", 0, 0).WithClock(clock.Now)
	svc := NewService(users, tokens, mail, zap.NewNop().Sugar()).WithClock(clock.Now)
	return &fixture{svc: svc, users: users, mail: mail, clock: clock}
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Name:     "Abebe Kebede",
		Email:    "Abebe@Example.com",
		Phone:    "+251911223344",
		Password: "Secret1",
	}
}

func wantKind(t *testing.T, err error, kind apperror.Kind) *apperror.Error {
	t.Helper()
	e, ok := apperror.As(err)
	if !ok {
		t.Fatalf("err = %v, want *apperror.Error", err)
	}
	if e.Kind != kind {
		t.Fatalf("kind = %v (code %s), want %v", e.Kind, e.Code, kind)
	}
	return e
}

func TestRegisterCreatesUnverifiedUser(t *testing.T) {
	f := newFixture()
	u, pair, err := f.svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "abebe@example.com" {
		t.Fatalf("email = %q, want lowercased", u.Email)
	}
	if u.Role != models.RoleUser || !u.IsActive || u.IsVerified {
		t.Fatalf("user = %+v, want active unverified user", u)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	msg, ok := f.mail.Last("abebe@example.com")
	if !ok || msg.Template != mailer.TemplateVerifyEmail {
		t.Fatalf("verification mail = %+v, %v", msg, ok)
	}
}

func TestRegisterRejectsInvalidFieldsWithoutCreatingUser(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"phone without country code", func(in *RegisterInput) { in.Phone = "0911223344" }, "phone"},
		{"phone too short", func(in *RegisterInput) { in.Phone = "+25191122334" }, "phone"},
		{"phone wrong country", func(in *RegisterInput) { in.Phone = "+254911223344" }, "phone"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"weak password", func(in *RegisterInput) { in.Password = "secret" }, "password"},
		{"missing name", func(in *RegisterInput) { in.Name = "  " }, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validRegistration()
			tt.edit(&in)
			_, _, err := f.svc.Register(context.Background(), in)
			e := wantKind(t, err, apperror.KindValidation)
			if len(e.Fields[tt.field]) == 0 {
				t.Fatalf("fields = %v, want an error for %q", e.Fields, tt.field)
			}
			if n := f.users.Count(); n != 0 {
				t.Fatalf("users = %d, want 0", n)
			}
		})
	}
}

func TestRegisterCollectsAllFieldErrors(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Register(context.Background(), RegisterInput{Email: "x", Phone: "1", Password: "a"})
	e := wantKind(t, err, apperror.KindValidation)
	for _, field := range []string{"name", "email", "phone", "password"} {
		if len(e.Fields[field]) == 0 {
			t.Fatalf("fields = %v, missing %q", e.Fields, field)
		}
	}
}

func TestRegisterReportsDuplicatesAsFieldErrors(t *testing.T) {
	f := newFixture()
	if _, _, err := f.svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, _, err := f.svc.Register(context.Background(), validRegistration())
	e := wantKind(t, err, apperror.KindValidation)
	if len(e.Fields["email"]) == 0 || len(e.Fields["phone"]) == 0 {
		t.Fatalf("fields = %v, want email and phone", e.Fields)
	}
	if n := f.users.Count(); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, _, err := f.svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err := f.svc.Login(ctx, LoginInput{Email: "abebe@example.com", Password: "Wrong1"})
	if e := wantKind(t, err, apperror.KindUnauthorized); e.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %s", e.Code)
	}

	u, pair, err := f.svc.Login(ctx, LoginInput{Email: " ABEBE@example.com ", Password: "Secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.RefreshToken == "" || u.LastLogin == nil {
		t.Fatalf("login should rotate both tokens and stamp last login")
	}
	stored, _ := f.users.GetByID(ctx, u.ID)
	if stored.LastLogin == nil || !stored.LastLogin.Equal(f.clock.Now()) {
		t.Fatalf("stored last login = %v, want %v", stored.LastLogin, f.clock.Now())
	}

	if err := f.svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, _, err = f.svc.Login(ctx, LoginInput{Email: "abebe@example.com", Password: "Secret1"})
	wantKind(t, err, apperror.KindForbidden)
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, pair, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, access, _, err := f.svc.Refresh(ctx, pair.RefreshToken); err != nil || access == "" {
		t.Fatalf("refresh active user: access=%q err=%v", access, err)
	}

	if err := f.svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, _, _, err = f.svc.Refresh(ctx, pair.RefreshToken)
	if e := wantKind(t, err, apperror.KindUnauthorized); e.Code != "ACCOUNT_INACTIVE" {
		t.Fatalf("code = %s, want ACCOUNT_INACTIVE", e.Code)
	}
}

func TestRefreshDistinguishesExpiredTokens(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, pair, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, _, err = f.svc.Refresh(ctx, "")
	if e := wantKind(t, err, apperror.KindUnauthorized); e.Code != "TOKEN_MISSING" {
		t.Fatalf("code = %s", e.Code)
	}
	_, _, _, err = f.svc.Refresh(ctx, pair.AccessToken)
	if e := wantKind(t, err, apperror.KindUnauthorized); e.Code != "TOKEN_INVALID" {
		t.Fatalf("access token as refresh: code = %s", e.Code)
	}

	f.clock.Advance(8 * 24 * time.Hour)
	_, _, _, err = f.svc.Refresh(ctx, pair.RefreshToken)
	if e := wantKind(t, err, apperror.KindUnauthorized); e.Code != "TOKEN_EXPIRED" {
		t.Fatalf("code = %s, want TOKEN_EXPIRED", e.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, _, err := f.svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := f.svc.ForgotPassword(ctx, EmailInput{Email: "nobody@example.com"}); err != nil {
		t.Fatalf("unknown email should not leak: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, EmailInput{Email: "abebe@example.com"}); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	msg, ok := f.mail.Last("abebe@example.com")
	if !ok || msg.Template != mailer.TemplateResetPassword {
		t.Fatalf("reset mail = %+v", msg)
	}
	code := msg.Data.(map[string]string)["Code"]

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, _, err := f.svc.ResetPassword(ctx, ResetInput{Email: "abebe@example.com", Code: wrong, Password: "Newpass1"})
	if e := wantKind(t, err, apperror.KindValidation); e.Code != "INVALID_RESET_CODE" {
		t.Fatalf("code = %s", e.Code)
	}

	_, pair, err := f.svc.ResetPassword(ctx, ResetInput{Email: "abebe@example.com", Code: code, Password: "Newpass1"})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("reset should rotate both tokens")
	}
	if _, _, err := f.svc.Login(ctx, LoginInput{Email: "abebe@example.com", Password: "Newpass1"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	_, _, err = f.svc.ResetPassword(ctx, ResetInput{Email: "abebe@example.com", Code: code, Password: "Other1pw"})
	wantKind(t, err, apperror.KindValidation)
}

func TestResetCodeExpires(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, _, err := f.svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, EmailInput{Email: "abebe@example.com"}); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	msg, _ := f.mail.Last("abebe@example.com")
	code := msg.Data.(map[string]string)["Code"]

	f.clock.Advance(11 * time.Minute)
	_, _, err := f.svc.ResetPassword(ctx, ResetInput{Email: "abebe@example.com", Code: code, Password: "Newpass1"})
	wantKind(t, err, apperror.KindValidation)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, _, err := f.svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}
	msg, _ := f.mail.Last("abebe@example.com")
	code := msg.Data.(map[string]string)["Code"]

	u, err := f.svc.VerifyEmail(ctx, VerifyInput{Email: "abebe@example.com", Code: code})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !u.IsVerified || u.VerificationCode != "" {
		t.Fatalf("user = %+v, want verified with cleared code", u)
	}
}

func TestAdminCannotDemoteOrDeactivateSelf(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, _, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	admin := models.Principal{UserID: u.ID, Role: models.RoleAdmin}

	_, err = f.svc.SetActive(ctx, admin, u.ID, false)
	wantKind(t, err, apperror.KindValidation)
	_, err = f.svc.SetRole(ctx, admin, u.ID, models.RoleUser)
	wantKind(t, err, apperror.KindValidation)

	other := models.Principal{UserID: uuid.New(), Role: models.RoleAdmin}
	got, err := f.svc.SetRole(ctx, other, u.ID, models.RoleOwner)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if got.Role != models.RoleOwner {
		t.Fatalf("role = %s, want owner", got.Role)
	}
}

func TestGoogleSignInUpsertsByEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	u1, _, err := f.svc.GoogleSignIn(ctx, GoogleProfile{Email: "G@Example.com", Name: "Genet"})
	if err != nil {
		t.Fatalf("first sign in: %v", err)
	}
	if !u1.IsVerified || u1.Role != models.RoleUser {
		t.Fatalf("user = %+v", u1)
	}
	u2, _, err := f.svc.GoogleSignIn(ctx, GoogleProfile{Email: "g@example.com", Name: "Genet T"})
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if u1.ID != u2.ID || u2.Name != "Genet T" {
		t.Fatalf("second sign in = %+v, want same user with updated name", u2)
	}
	if n := f.users.Count(); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, _, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	other := validRegistration()
	other.Email, other.Phone = "almaz@example.com", "+251911000000"
	if _, _, err := f.svc.Register(ctx, other); err != nil {
		t.Fatalf("register other: %v", err)
	}

	name, taken, bad := "  Abebe K  ", "+251911000000", "0911223344"
	got, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Name: &name})
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if got.Name != "Abebe K" {
		t.Fatalf("name = %q, want trimmed", got.Name)
	}

	_, err = f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Phone: &taken})
	if e := wantKind(t, err, apperror.KindValidation); e.Fields["phone"] == nil {
		t.Fatalf("fields = %v, want phone error", e.Fields)
	}
	_, err = f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Phone: &bad})
	wantKind(t, err, apperror.KindValidation)

	stored, _ := f.users.GetByID(ctx, u.ID)
	if stored.Phone != "+251911223344" {
		t.Fatalf("phone = %q, rejected updates must not apply", stored.Phone)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, _, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "Wrong1", NewPassword: "Better2"})
	if e := wantKind(t, err, apperror.KindValidation); e.Code != "INVALID_PASSWORD" {
		t.Fatalf("code = %s, want INVALID_PASSWORD", e.Code)
	}
	if err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "Secret1", NewPassword: "Better2"}); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, _, err := f.svc.Login(ctx, LoginInput{Email: "abebe@example.com", Password: "Secret1"}); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, _, err := f.svc.Login(ctx, LoginInput{Email: "abebe@example.com", Password: "Better2"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestDeactivateBlocksAuthenticate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, pair, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := f.svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, pair.AccessToken); err == nil {
		t.Fatal("deactivated account still authenticates")
	}
	stored, _ := f.users.GetByID(ctx, u.ID)
	if stored == nil || stored.IsActive {
		t.Fatalf("stored = %+v, want kept but inactive", stored)
	}
}
