package identity

import (
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/google/uuid"
)

// UserView is the caller-facing projection of a user row. Credential
// and token columns never leave the service layer.
type UserView struct {
	ID            uuid.UUID `json:"id"`
	StudentID     string    `json:"student_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func UserFromModel(user *models.User) UserView {
	return UserView{
		ID:            user.ID,
		StudentID:     user.StudentID,
		Name:          user.Name,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
	}
}

// ProfileView mirrors the profile row for the owning user.
type ProfileView struct {
	Gender          enums.Gender `json:"gender"`
	Age             *int         `json:"age,omitempty"`
	SleepTime       string       `json:"sleep_time"`
	WakeTime        string       `json:"wake_time"`
	StudyHabit      string       `json:"study_habit"`
	Lifestyle       string       `json:"lifestyle"`
	Cleanliness     string       `json:"cleanliness"`
	PersonalityType string       `json:"personality_type"`
	Hometown        string       `json:"hometown"`
	Major           string       `json:"major"`
	Hobbies         string       `json:"hobbies"`
	SelfIntro       string       `json:"self_intro"`
	IsComplete      bool         `json:"is_complete"`
}

func ProfileFromModel(profile *models.Profile) ProfileView {
	return ProfileView{
		Gender:          profile.Gender,
		Age:             profile.Age,
		SleepTime:       profile.SleepTime,
		WakeTime:        profile.WakeTime,
		StudyHabit:      profile.StudyHabit,
		Lifestyle:       profile.Lifestyle,
		Cleanliness:     profile.Cleanliness,
		PersonalityType: profile.PersonalityType,
		Hometown:        profile.Hometown,
		Major:           profile.Major,
		Hobbies:         profile.Hobbies,
		SelfIntro:       profile.SelfIntro,
		IsComplete:      profile.IsComplete,
	}
}

// UpdateProfileRequest is the write surface for the owning user. All
// fields are optional; absent fields keep their stored value.
type UpdateProfileRequest struct {
	Gender          *string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Age             *int    `json:"age,omitempty" validate:"omitempty,min=15,max=80"`
	SleepTime       *string `json:"sleep_time,omitempty"`
	WakeTime        *string `json:"wake_time,omitempty"`
	StudyHabit      *string `json:"study_habit,omitempty"`
	Lifestyle       *string `json:"lifestyle,omitempty"`
	Cleanliness     *string `json:"cleanliness,omitempty"`
	PersonalityType *string `json:"personality_type,omitempty"`
	Hometown        *string `json:"hometown,omitempty"`
	Major           *string `json:"major,omitempty"`
	Hobbies         *string `json:"hobbies,omitempty"`
	SelfIntro       *string `json:"self_intro,omitempty"`
}

// StudentSummary is the public projection shown in browse/match lists.
type StudentSummary struct {
	UserID          uuid.UUID    `json:"user_id"`
	Name            string       `json:"name"`
	Gender          enums.Gender `json:"gender"`
	Age             *int         `json:"age,omitempty"`
	Major           string       `json:"major"`
	Hometown        string       `json:"hometown"`
	PersonalityType string       `json:"personality_type"`
	SelfIntro       string       `json:"self_intro"`
	IsComplete      bool         `json:"is_complete"`
}

// StudentPage is one browse page plus the follow-up cursor.
type StudentPage struct {
	Students   []StudentSummary `json:"students"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
