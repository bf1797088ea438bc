package auth

import (
	"github.com/dormmatehq/dormmate-backend/internal/identity"
)

// RegisterRequest starts onboarding for an institutional student id.
type RegisterRequest struct {
	StudentID string `json:"student_id" validate:"required,len=11,numeric"`
	Name      string `json:"name" validate:"required,min=1,max=100"`
}

// RegisterResponse confirms where the setup token was sent.
type RegisterResponse struct {
	Email string `json:"email"`
}

// ActivateRequest redeems a setup token, setting the password and
// creating the profile in one step.
type ActivateRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Gender   string `json:"gender" validate:"required,oneof=male female other"`
}

// LoginRequest authenticates by student id and password.
type LoginRequest struct {
	StudentID string `json:"student_id" validate:"required,len=11,numeric"`
	Password  string `json:"password" validate:"required"`
}

// SessionResponse carries the session token plus the caller's state.
// The token also travels in the dm_session cookie; the body copy keeps
// non-browser clients working.
type SessionResponse struct {
	Token   string               `json:"token"`
	User    identity.UserView    `json:"user"`
	Profile identity.ProfileView `json:"profile"`
}

// ForgotPasswordRequest asks for a reset mail.
type ForgotPasswordRequest struct {
	StudentID string `json:"student_id" validate:"required,len=11,numeric"`
}

// ResetPasswordRequest redeems a reset token.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// VerifyEmailRequest redeems the mailed verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}
