package auth

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	pkgerrors "github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/security"
	"github.com/dormmatehq/dormmate-backend/pkg/tokens"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// captureSender records outgoing mail instead of delivering it.
type captureSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (c *captureSender) Send(_ context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (c *captureSender) last(t *testing.T) sentMail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("expected at least one mail")
	}
	return c.sent[len(c.sent)-1]
}

// tokenFromBody pulls the token off the last line of the mail body.
func tokenFromBody(t *testing.T, body string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "dormmate",
		SessionTTLMinutes: 1440,
		SetupTokenTTLMin:  10,
		ResetTokenTTLMin:  15,
	}
	cfg.Password = config.PasswordConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
	cfg.Mail.StudentDomain = "stu.campus.edu"
	return cfg
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *captureSender) {
	t.Helper()
	dsn := "file:auth_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}, &models.Profile{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	tokenSvc, err := tokens.NewService(cfg.JWT)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	mail := &captureSender{}
	logg := logger.New(logger.Options{Output: io.Discard})
	return NewService(db.FromConn(conn), logg, tokenSvc, mail, cfg), conn, mail
}

func registerAndActivate(t *testing.T, svc *Service, mail *captureSender, studentID, name, password string) *SessionResponse {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: studentID, Name: name}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := tokenFromBody(t, mail.last(t).Body)

	sess, err := svc.Activate(ctx, ActivateRequest{Token: token, Password: password, Gender: "female"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return sess
}

func TestRegisterActivateLogin(t *testing.T) {
	svc, conn, mail := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Email != "10255501001@stu.campus.edu" {
		t.Fatalf("unexpected derived email %q", resp.Email)
	}
	if got := mail.last(t).To; got != resp.Email {
		t.Fatalf("mail went to %q", got)
	}

	token := tokenFromBody(t, mail.last(t).Body)
	sess, err := svc.Activate(ctx, ActivateRequest{Token: token, Password: "Abcd1234", Gender: "female"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("expected a session token")
	}
	if sess.Profile.IsComplete {
		t.Fatal("fresh profile must start incomplete")
	}
	if !sess.User.EmailVerified {
		t.Fatal("activation must verify the email")
	}

	var stored models.User
	if err := conn.Where("student_id = ?", "10255501001").First(&stored).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.IsActive || stored.SetupToken != nil {
		t.Fatalf("activation state not persisted: %+v", stored)
	}

	login, err := svc.Login(ctx, LoginRequest{StudentID: "10255501001", Password: "Abcd1234"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", login.User)
	}
}

func TestRegisterRejectsActivatedDuplicate(t *testing.T) {
	svc, _, mail := newTestService(t)
	registerAndActivate(t, svc, mail, "10255501001", "Alice", "Abcd1234")

	_, err := svc.Register(context.Background(), RegisterRequest{StudentID: "10255501001", Name: "Mallory"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterReplacesPendingDuplicate(t *testing.T) {
	svc, _, mail := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	oldToken := tokenFromBody(t, mail.last(t).Body)

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("second register: %v", err)
	}
	newToken := tokenFromBody(t, mail.last(t).Body)

	_, err := svc.Activate(ctx, ActivateRequest{Token: oldToken, Password: "Abcd1234", Gender: "female"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("stale token must be rejected, got %v", err)
	}

	if _, err := svc.Activate(ctx, ActivateRequest{Token: newToken, Password: "Abcd1234", Gender: "female"}); err != nil {
		t.Fatalf("fresh token must work: %v", err)
	}
}

func TestRegisterValidatesStudentID(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, id := range []string{"", "123", "1025550100a", "102555010011"} {
		_, err := svc.Register(context.Background(), RegisterRequest{StudentID: id, Name: "Alice"})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("id %q: unexpected error %v", id, err)
		}
	}
}

func TestActivateRejectsGarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Activate(context.Background(), ActivateRequest{Token: "not-a-token", Password: "Abcd1234", Gender: "male"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestActivateTwiceReportsAlreadySet(t *testing.T) {
	svc, _, mail := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := tokenFromBody(t, mail.last(t).Body)
	if _, err := svc.Activate(ctx, ActivateRequest{Token: token, Password: "Abcd1234", Gender: "female"}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	_, err := svc.Activate(ctx, ActivateRequest{Token: token, Password: "Other1234", Gender: "female"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestActivateRejectsExpiredStoredToken(t *testing.T) {
	svc, conn, mail := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := tokenFromBody(t, mail.last(t).Body)

	past := time.Now().UTC().Add(-time.Minute)
	if err := conn.Model(&models.User{}).Where("student_id = ?", "10255501001").
		UpdateColumn("setup_token_expires_at", past).Error; err != nil {
		t.Fatalf("expire token: %v", err)
	}

	_, err := svc.Activate(ctx, ActivateRequest{Token: token, Password: "Abcd1234", Gender: "female"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoginUniformInvalidCredentials(t *testing.T) {
	svc, _, mail := newTestService(t)
	registerAndActivate(t, svc, mail, "10255501001", "Alice", "Abcd1234")

	cases := []LoginRequest{
		{StudentID: "10255501001", Password: "WrongPass1"},
		{StudentID: "10255501999", Password: "Abcd1234"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized || typed.Message() != "invalid credentials" {
			t.Fatalf("req %+v: unexpected error %v", req, err)
		}
	}
}

func TestLoginMigratesLegacyHash(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("Abcd1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	user := &models.User{
		StudentID:     "10255501001",
		Email:         "10255501001@stu.campus.edu",
		Name:          "Alice",
		PasswordHash:  string(legacy),
		IsActive:      true,
		EmailVerified: true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	profile := &models.Profile{UserID: user.ID}
	if err := conn.Create(profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	if _, err := svc.Login(ctx, LoginRequest{StudentID: "10255501001", Password: "Abcd1234"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	var stored models.User
	if err := conn.First(&stored, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if security.IsLegacyHash(stored.PasswordHash) {
		t.Fatal("expected hash to be migrated off bcrypt")
	}
	if ok, err := security.VerifyPassword("Abcd1234", stored.PasswordHash); err != nil || !ok {
		t.Fatalf("migrated hash must verify: ok=%v err=%v", ok, err)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	svc, conn, mail := newTestService(t)
	sess := registerAndActivate(t, svc, mail, "10255501001", "Alice", "Abcd1234")

	if err := conn.Model(&models.User{}).Where("id = ?", sess.User.ID).
		UpdateColumn("email_verified", false).Error; err != nil {
		t.Fatalf("unverify: %v", err)
	}

	_, err := svc.Login(context.Background(), LoginRequest{StudentID: "10255501001", Password: "Abcd1234"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden || typed.Message() != "email not verified" {
		t.Fatalf("unexpected error: %v", err)
	}

	// The credential check comes first: a wrong password on an
	// unverified account must not reveal the verification state.
	_, err = svc.Login(context.Background(), LoginRequest{StudentID: "10255501001", Password: "WrongPass1"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	svc, conn, mail := newTestService(t)
	sess := registerAndActivate(t, svc, mail, "10255501001", "Alice", "Abcd1234")

	if err := conn.Model(&models.User{}).Where("id = ?", sess.User.ID).
		UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("disable: %v", err)
	}

	_, err := svc.Login(context.Background(), LoginRequest{StudentID: "10255501001", Password: "Abcd1234"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden || typed.Message() != "account disabled" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _, mail := newTestService(t)
	ctx := context.Background()
	registerAndActivate(t, svc, mail, "10255501001", "Alice", "Abcd1234")

	if err := svc.ForgotPassword(ctx, ForgotPasswordRequest{StudentID: "10255501001"}); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := tokenFromBody(t, mail.last(t).Body)

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, Password: "Fresh1234"}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := svc.Login(ctx, LoginRequest{StudentID: "10255501001", Password: "Abcd1234"}); err == nil {
		t.Fatal("old password must stop working")
	}
	if _, err := svc.Login(ctx, LoginRequest{StudentID: "10255501001", Password: "Fresh1234"}); err != nil {
		t.Fatalf("new password must work: %v", err)
	}

	// A redeemed token is single-use.
	err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, Password: "Again1234"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestForgotPasswordPendingAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := svc.ForgotPassword(ctx, ForgotPasswordRequest{StudentID: "10255501001"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}

	err = svc.ForgotPassword(ctx, ForgotPasswordRequest{StudentID: "10255509999"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyEmailWithSetupToken(t *testing.T) {
	svc, _, mail := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := tokenFromBody(t, mail.last(t).Body)

	if err := svc.VerifyEmail(ctx, VerifyEmailRequest{Token: token}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	err := svc.VerifyEmail(ctx, VerifyEmailRequest{Token: token})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("re-verify must conflict, got %v", err)
	}
}

func TestVerifyEmailRejectsSupersededToken(t *testing.T) {
	svc, _, mail := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	stale := tokenFromBody(t, mail.last(t).Body)

	// Re-registering replaces the stored token; the old one, though
	// still validly signed, must no longer verify the mailbox.
	if _, err := svc.Register(ctx, RegisterRequest{StudentID: "10255501001", Name: "Alice"}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	err := svc.VerifyEmail(ctx, VerifyEmailRequest{Token: stale})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("superseded token must be rejected, got %v", err)
	}

	if err := svc.VerifyEmail(ctx, VerifyEmailRequest{Token: tokenFromBody(t, mail.last(t).Body)}); err != nil {
		t.Fatalf("fresh token must verify: %v", err)
	}
}
