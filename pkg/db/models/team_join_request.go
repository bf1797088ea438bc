package models

import (
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TeamJoinRequest asks a team's leader for admission. At most one
// pending request may exist per (team, user); resolved requests are
// terminal and immutable. The Postgres schema backs the pending
// uniqueness with a partial unique index.
type TeamJoinRequest struct {
	ID         uuid.UUID               `gorm:"type:uuid;primaryKey"`
	TeamID     uuid.UUID               `gorm:"column:team_id;type:uuid;not null;index"`
	UserID     uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Message    *string                 `gorm:"type:text"`
	Status     enums.JoinRequestStatus `gorm:"type:text;not null;default:'pending'"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt *time.Time              `gorm:"column:resolved_at"`
}

func (r *TeamJoinRequest) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
