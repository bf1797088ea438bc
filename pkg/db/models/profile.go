package models

import (
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile holds the self-reported roommate attributes, one-to-one with
// an active user. IsComplete is derived: it is recomputed from the
// 12-field checklist on every write and never treated as ground truth.
type Profile struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`

	Gender          enums.Gender `gorm:"type:text;not null;default:''"`
	Age             *int         `gorm:"column:age"`
	SleepTime       string       `gorm:"column:sleep_time;type:text;not null;default:''"`
	WakeTime        string       `gorm:"column:wake_time;type:text;not null;default:''"`
	StudyHabit      string       `gorm:"column:study_habit;type:text;not null;default:''"`
	Lifestyle       string       `gorm:"column:lifestyle;type:text;not null;default:''"`
	Cleanliness     string       `gorm:"column:cleanliness;type:text;not null;default:''"`
	PersonalityType string       `gorm:"column:personality_type;type:text;not null;default:''"`
	Hometown        string       `gorm:"column:hometown;type:text;not null;default:''"`
	Major           string       `gorm:"column:major;type:text;not null;default:''"`
	Hobbies         string       `gorm:"column:hobbies;type:text;not null;default:''"`
	SelfIntro       string       `gorm:"column:self_intro;type:text;not null;default:''"`

	IsComplete bool `gorm:"column:is_complete;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Profile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// completenessThreshold is the number of checklist fields that must be
// non-empty for a profile to count as complete.
const completenessThreshold = 8

// RecomputeCompleteness re-derives IsComplete from the checklist.
// Callers must invoke it before persisting any profile write.
func (p *Profile) RecomputeCompleteness() {
	fields := []bool{
		p.Gender != "",
		p.Age != nil && *p.Age > 0,
		p.SleepTime != "",
		p.WakeTime != "",
		p.StudyHabit != "",
		p.Lifestyle != "",
		p.Cleanliness != "",
		p.PersonalityType != "",
		p.Hometown != "",
		p.Major != "",
		p.Hobbies != "",
		p.SelfIntro != "",
	}
	filled := 0
	for _, set := range fields {
		if set {
			filled++
		}
	}
	p.IsComplete = filled >= completenessThreshold
}
