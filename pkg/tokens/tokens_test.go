package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/google/uuid"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "dormmate",
		SessionTTLMinutes: 1440,
		SetupTokenTTLMin:  10,
		ResetTokenTTLMin:  15,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	svc, err := NewService(testJWTConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	userID := uuid.New()
	token, err := svc.MintSession(userID)
	if err != nil {
		t.Fatalf("mint session: %v", err)
	}

	claims, err := svc.Verify(token, PurposeSession)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user id %s, got %s", userID, claims.UserID)
	}
}

func TestSetupTokenExpires(t *testing.T) {
	svc, err := NewService(testJWTConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	token, err := svc.MintSetup("10255501001", "10255501001@stu.campus.edu")
	if err != nil {
		t.Fatalf("mint setup: %v", err)
	}

	if _, err := svc.Verify(token, PurposeSetup); err != nil {
		t.Fatalf("verify fresh setup token: %v", err)
	}

	late := svc.WithClock(func() time.Time { return time.Now().Add(11 * time.Minute) })
	if _, err := late.Verify(token, PurposeSetup); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past the ttl, got %v", err)
	}
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	svc, err := NewService(testJWTConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	token, err := svc.MintReset("10255501001")
	if err != nil {
		t.Fatalf("mint reset: %v", err)
	}

	if _, err := svc.Verify(token, PurposeSetup); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for purpose mismatch, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc, err := NewService(testJWTConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Verify("not.a.token", PurposeSession); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for garbage, got %v", err)
	}

	other, err := NewService(config.JWTConfig{Secret: "other-secret", Issuer: "dormmate", SessionTTLMinutes: 60})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	forged, err := other.MintSession(uuid.New())
	if err != nil {
		t.Fatalf("mint forged: %v", err)
	}
	if _, err := svc.Verify(forged, PurposeSession); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for bad signature, got %v", err)
	}
}

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(config.JWTConfig{Issuer: "dormmate"}); err == nil {
		t.Fatalf("expected error without secret")
	}
	if _, err := NewService(config.JWTConfig{Secret: "s"}); err == nil {
		t.Fatalf("expected error without issuer")
	}
}
