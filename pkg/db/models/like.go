package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Like is a directed edge from one student to another. Two reciprocal
// edges constitute a match; matches are derived, never stored. The
// composite unique index makes racing duplicate likes fail closed.
type Like struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ActorID   uuid.UUID `gorm:"column:actor_id;type:uuid;not null;uniqueIndex:idx_likes_actor_target"`
	TargetID  uuid.UUID `gorm:"column:target_id;type:uuid;not null;uniqueIndex:idx_likes_actor_target"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (l *Like) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
