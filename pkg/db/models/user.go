package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the canonical identity entity. A row starts in the pending
// state (empty password hash, inactive, unverified) and is finalized
// atomically with profile creation when the setup token is redeemed.
// At most one setup token and one reset token are outstanding at a
// time; reissuing overwrites the previous value.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	StudentID    string    `gorm:"column:student_id;type:text;not null;uniqueIndex"`
	Email        string    `gorm:"type:text;not null;uniqueIndex"`
	Name         string    `gorm:"type:text;not null;default:''"`
	PasswordHash string    `gorm:"column:password_hash;not null;default:''"`

	IsActive      bool `gorm:"column:is_active;not null;default:false"`
	EmailVerified bool `gorm:"column:email_verified;not null;default:false"`

	SetupToken          *string    `gorm:"column:setup_token;type:text"`
	SetupTokenExpiresAt *time.Time `gorm:"column:setup_token_expires_at"`
	ResetToken          *string    `gorm:"column:reset_token;type:text"`
	ResetTokenExpiresAt *time.Time `gorm:"column:reset_token_expires_at"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Pending reports whether the row is a registered-but-not-activated
// account with no usable credential.
func (u *User) Pending() bool {
	return !u.IsActive && u.PasswordHash == ""
}
