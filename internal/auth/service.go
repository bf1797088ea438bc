package auth

import (
	"context"
	stdErrors "errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dormmatehq/dormmate-backend/internal/identity"
	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/mailer"
	"github.com/dormmatehq/dormmate-backend/pkg/security"
	"github.com/dormmatehq/dormmate-backend/pkg/tokens"
	"gorm.io/gorm"
)

var studentIDPattern = regexp.MustCompile(`^\d{11}$`)

// Service owns the account lifecycle: registration, activation, login,
// email verification, and password reset. All state transitions run in
// a transaction; mail goes out only after the transaction commits.
type Service struct {
	db     *db.Client
	logg   *logger.Logger
	tokens *tokens.Service
	mail   mailer.Sender
	cfg    *config.Config
	now    func() time.Time
}

func NewService(client *db.Client, logg *logger.Logger, tokenSvc *tokens.Service, mail mailer.Sender, cfg *config.Config) *Service {
	return &Service{
		db:     client,
		logg:   logg,
		tokens: tokenSvc,
		mail:   mail,
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock used for stored-token expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// Register creates a pending account for the student id and mails a
// password-setup token to the derived institutional address. A pending
// duplicate is replaced; an activated duplicate is rejected.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if !studentIDPattern.MatchString(req.StudentID) {
		return nil, errors.New(errors.CodeValidation, "student id must be 11 digits")
	}
	email := fmt.Sprintf("%s@%s", req.StudentID, s.cfg.Mail.StudentDomain)

	setupToken, err := s.tokens.MintSetup(req.StudentID, email)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "mint setup token")
	}
	expiresAt := s.now().UTC().Add(s.cfg.JWT.SetupTokenTTL())

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		users := identity.NewRepository(tx)
		existing, err := users.FindByStudentID(ctx, req.StudentID)
		if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(errors.CodeInternal, err, "lookup student id")
		}
		if existing != nil {
			if !existing.Pending() {
				return errors.New(errors.CodeConflict, "student id already registered")
			}
			// A stale pending row is replaced wholesale so the old
			// setup token stops working.
			if err := users.Delete(ctx, existing.ID); err != nil {
				return errors.Wrap(errors.CodeInternal, err, "replace pending registration")
			}
		}

		user := &models.User{
			StudentID:           req.StudentID,
			Email:               email,
			Name:                req.Name,
			SetupToken:          &setupToken,
			SetupTokenExpiresAt: &expiresAt,
		}
		if err := users.Create(ctx, user); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errors.New(errors.CodeConflict, "student id already registered")
			}
			return errors.Wrap(errors.CodeInternal, err, "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	subject := "Set up your DormMate account"
	body := fmt.Sprintf("Hi %s,\n\nUse this token to set your password and activate your account. It expires in %d minutes.\n\n%s\n", req.Name, s.cfg.JWT.SetupTokenTTLMin, setupToken)
	if err := s.mail.Send(ctx, email, subject, body); err != nil {
		s.logg.Error(ctx, "setup mail delivery failed", err)
		return nil, errors.Wrap(errors.CodeDependency, err, "send setup mail")
	}

	s.logg.Info(s.logg.WithField(ctx, "student_id", req.StudentID), "registration created")
	return &RegisterResponse{Email: email}, nil
}

// Activate redeems the setup token: it sets the password, marks the
// account active and the email verified, and creates the profile, all
// in one transaction.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*SessionResponse, error) {
	claims, err := s.tokens.Verify(req.Token, tokens.PurposeSetup)
	if err != nil {
		return nil, errors.New(errors.CodeUnauthorized, "invalid or expired token")
	}

	gender, err := enums.ParseGender(req.Gender)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "invalid gender")
	}

	hash, err := security.HashPassword(req.Password, s.cfg.Password)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "hash password")
	}

	var (
		user    *models.User
		profile *models.Profile
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		users := identity.NewRepository(tx)
		found, err := users.FindByStudentID(ctx, claims.StudentID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "user not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "lookup user")
		}
		if !found.Pending() {
			return errors.New(errors.CodeStateConflict, "password already set")
		}
		if !s.storedTokenValid(found.SetupToken, found.SetupTokenExpiresAt, req.Token) {
			return errors.New(errors.CodeUnauthorized, "invalid or expired token")
		}

		found.PasswordHash = hash
		found.IsActive = true
		found.EmailVerified = true
		found.SetupToken = nil
		found.SetupTokenExpiresAt = nil
		if err := users.Save(ctx, found); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "activate user")
		}

		created := &models.Profile{UserID: found.ID, Gender: gender}
		created.RecomputeCompleteness()
		if err := identity.NewProfileRepository(tx).Create(ctx, created); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "create profile")
		}

		user = found
		profile = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "account activated")
	return s.sessionResponse(user, profile)
}

// Login authenticates by student id and password. Lookup and password
// failures collapse into one answer; account-state checks only run
// after the credential has been proven.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	invalid := errors.New(errors.CodeUnauthorized, "invalid credentials")

	users := identity.NewRepository(s.db.DB())
	user, err := users.FindByStudentID(ctx, req.StudentID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "lookup user")
	}
	if user.PasswordHash == "" {
		return nil, invalid
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, invalid
	}

	if security.IsLegacyHash(user.PasswordHash) {
		if rehashed, err := security.HashPassword(req.Password, s.cfg.Password); err == nil {
			if err := users.UpdatePasswordHash(ctx, user.ID, rehashed); err != nil {
				s.logg.Warn(s.logg.WithUserID(ctx, user.ID.String()), "legacy hash migration failed")
			} else {
				user.PasswordHash = rehashed
			}
		}
	}

	if !user.IsActive {
		return nil, errors.New(errors.CodeForbidden, "account disabled")
	}
	if !user.EmailVerified {
		return nil, errors.New(errors.CodeForbidden, "email not verified")
	}

	if err := users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logg.Warn(s.logg.WithUserID(ctx, user.ID.String()), "last login update failed")
	}

	profile, err := identity.NewProfileRepository(s.db.DB()).FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load profile")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "login succeeded")
	return s.sessionResponse(user, profile)
}

// ForgotPassword issues a reset token for an activated account. The
// controller hides NotFound and Forbidden outcomes from callers so the
// endpoint cannot be used to probe which ids exist.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	user, err := identity.NewRepository(s.db.DB()).FindByStudentID(ctx, req.StudentID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.CodeNotFound, "user not found")
		}
		return errors.Wrap(errors.CodeInternal, err, "lookup user")
	}
	if user.Pending() {
		return errors.New(errors.CodeForbidden, "account not activated")
	}

	resetToken, err := s.tokens.MintReset(req.StudentID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "mint reset token")
	}
	expiresAt := s.now().UTC().Add(s.cfg.JWT.ResetTokenTTL())

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		user.ResetToken = &resetToken
		user.ResetTokenExpiresAt = &expiresAt
		return identity.NewRepository(tx).Save(ctx, user)
	})
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "store reset token")
	}

	subject := "Reset your DormMate password"
	body := fmt.Sprintf("Hi %s,\n\nUse this token to reset your password. It expires in %d minutes. If you did not ask for this, ignore this message.\n\n%s\n", user.Name, s.cfg.JWT.ResetTokenTTLMin, resetToken)
	if err := s.mail.Send(ctx, user.Email, subject, body); err != nil {
		s.logg.Error(ctx, "reset mail delivery failed", err)
		return errors.Wrap(errors.CodeDependency, err, "send reset mail")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "reset token issued")
	return nil
}

// ResetPassword redeems a reset token and replaces the credential.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	invalid := errors.New(errors.CodeUnauthorized, "invalid or expired token")

	claims, err := s.tokens.Verify(req.Token, tokens.PurposeReset)
	if err != nil {
		return invalid
	}

	hash, err := security.HashPassword(req.Password, s.cfg.Password)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "hash password")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		users := identity.NewRepository(tx)
		user, err := users.FindByStudentID(ctx, claims.StudentID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return invalid
			}
			return errors.Wrap(errors.CodeInternal, err, "lookup user")
		}
		if !s.storedTokenValid(user.ResetToken, user.ResetTokenExpiresAt, req.Token) {
			return invalid
		}

		user.PasswordHash = hash
		user.ResetToken = nil
		user.ResetTokenExpiresAt = nil
		if err := users.Save(ctx, user); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "replace password")
		}

		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "password reset")
		return nil
	})
}

// VerifyEmail flips the verified flag without touching the credential.
// The outstanding setup token doubles as the proof of mailbox control;
// it must still match the stored copy on the user row.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) error {
	claims, err := s.tokens.Verify(req.Token, tokens.PurposeSetup)
	if err != nil {
		return errors.New(errors.CodeUnauthorized, "invalid or expired token")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		users := identity.NewRepository(tx)
		user, err := users.FindByStudentID(ctx, claims.StudentID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "user not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "lookup user")
		}
		if user.EmailVerified {
			return errors.New(errors.CodeStateConflict, "email already verified")
		}
		if !s.storedTokenValid(user.SetupToken, user.SetupTokenExpiresAt, req.Token) {
			return errors.New(errors.CodeUnauthorized, "invalid or expired token")
		}

		user.EmailVerified = true
		if err := users.Save(ctx, user); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "mark email verified")
		}

		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "email verified")
		return nil
	})
}

// storedTokenValid compares the presented token against the single
// outstanding stored copy and its expiry.
func (s *Service) storedTokenValid(stored *string, expiresAt *time.Time, presented string) bool {
	if stored == nil || expiresAt == nil {
		return false
	}
	if *stored != presented {
		return false
	}
	return s.now().UTC().Before(*expiresAt)
}

func (s *Service) sessionResponse(user *models.User, profile *models.Profile) (*SessionResponse, error) {
	token, err := s.tokens.MintSession(user.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "mint session token")
	}
	return &SessionResponse{
		Token:   token,
		User:    identity.UserFromModel(user),
		Profile: identity.ProfileFromModel(profile),
	}, nil
}
