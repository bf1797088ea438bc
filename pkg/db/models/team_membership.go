package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TeamMembership links a user to their team. The unique index on
// user_id enforces the single-active-team rule at the storage level;
// exactly one membership per team carries the leader flag.
type TeamMembership struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamID   uuid.UUID `gorm:"column:team_id;type:uuid;not null;index"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	IsLeader bool      `gorm:"column:is_leader;not null;default:false"`
	JoinedAt time.Time `gorm:"column:joined_at;autoCreateTime"`
}

func (m *TeamMembership) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
