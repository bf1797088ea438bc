package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Purpose scopes a signed token to exactly one state transition.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeSetup   Purpose = "setup"
	PurposeReset   Purpose = "reset"
)

// ErrExpired and ErrMalformed let callers give differentiated feedback
// without leaking which check failed beyond expiry-vs-everything-else.
var (
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token invalid")
)

// Claims is the typed payload carried by every platform token. Session
// tokens bind a user id; setup/reset/verification tokens bind the
// institutional student id (and, for verification, the derived email).
type Claims struct {
	Purpose   Purpose   `json:"purpose"`
	UserID    uuid.UUID `json:"user_id,omitempty"`
	StudentID string    `json:"student_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies single-purpose tokens. Verification is a
// pure function of the token and the injected clock; consuming a token
// is a separate caller-driven step.
type Service struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewService(cfg config.JWTConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// WithClock overrides the wall clock. Tests use this to cross TTLs.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// Sign issues a token for the provided claims with the given TTL.
func (s *Service) Sign(claims Claims, ttl time.Duration) (string, error) {
	if claims.Purpose == "" {
		return "", fmt.Errorf("token purpose is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	now := s.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, expiry, issuer, and purpose. It fails
// with ErrExpired or ErrMalformed and never mutates state.
func (s *Service) Verify(tokenString string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(s.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if claims.Purpose != purpose {
		return nil, ErrMalformed
	}
	return claims, nil
}

// MintSession issues the stateless session token carried by the
// dm_session cookie.
func (s *Service) MintSession(userID uuid.UUID) (string, error) {
	return s.Sign(Claims{Purpose: PurposeSession, UserID: userID}, s.cfg.SessionTTL())
}

// MintSetup issues the password-setup token mailed after registration.
func (s *Service) MintSetup(studentID, email string) (string, error) {
	return s.Sign(Claims{Purpose: PurposeSetup, StudentID: studentID, Email: email}, s.cfg.SetupTokenTTL())
}

// MintReset issues the password-reset token.
func (s *Service) MintReset(studentID string) (string, error) {
	return s.Sign(Claims{Purpose: PurposeReset, StudentID: studentID}, s.cfg.ResetTokenTTL())
}
