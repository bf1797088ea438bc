package identity

import (
	"context"
	stdErrors "errors"

	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service serves authenticated profile and student-directory reads.
type Service struct {
	db   *db.Client
	logg *logger.Logger
}

func NewService(client *db.Client, logg *logger.Logger) *Service {
	return &Service{db: client, logg: logg}
}

// MeResponse bundles the account view with the caller's profile.
type MeResponse struct {
	User    UserView    `json:"user"`
	Profile ProfileView `json:"profile"`
}

// Me returns the caller's own account and profile.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	users := NewRepository(s.db.DB())
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "user not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load user")
	}

	profile, err := NewProfileRepository(s.db.DB()).FindByUserID(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "profile not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load profile")
	}

	return &MeResponse{User: UserFromModel(user), Profile: ProfileFromModel(profile)}, nil
}

// GetProfile returns the caller's profile on its own.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileView, error) {
	profile, err := NewProfileRepository(s.db.DB()).FindByUserID(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "profile not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load profile")
	}
	view := ProfileFromModel(profile)
	return &view, nil
}

// UpdateProfile applies a partial profile edit for the owning user and
// re-derives the completeness flag before persisting.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*ProfileView, error) {
	var view ProfileView
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		profiles := NewProfileRepository(tx)
		profile, err := profiles.FindByUserID(ctx, userID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "profile not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load profile")
		}

		if req.Gender != nil {
			gender, err := enums.ParseGender(*req.Gender)
			if err != nil {
				return errors.New(errors.CodeValidation, "invalid gender")
			}
			profile.Gender = gender
		}
		if req.Age != nil {
			profile.Age = req.Age
		}
		assign := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		assign(&profile.SleepTime, req.SleepTime)
		assign(&profile.WakeTime, req.WakeTime)
		assign(&profile.StudyHabit, req.StudyHabit)
		assign(&profile.Lifestyle, req.Lifestyle)
		assign(&profile.Cleanliness, req.Cleanliness)
		assign(&profile.PersonalityType, req.PersonalityType)
		assign(&profile.Hometown, req.Hometown)
		assign(&profile.Major, req.Major)
		assign(&profile.Hobbies, req.Hobbies)
		assign(&profile.SelfIntro, req.SelfIntro)

		profile.RecomputeCompleteness()
		if err := profiles.Save(ctx, profile); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "save profile")
		}
		view = ProfileFromModel(profile)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "profile updated")
	return &view, nil
}

// GetStudent returns the public projection for one active student.
func (s *Service) GetStudent(ctx context.Context, targetID uuid.UUID) (*StudentSummary, error) {
	user, err := NewRepository(s.db.DB()).FindByID(ctx, targetID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "student not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load user")
	}
	if !user.IsActive {
		return nil, errors.New(errors.CodeNotFound, "student not found")
	}

	profile, err := NewProfileRepository(s.db.DB()).FindByUserID(ctx, targetID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "student not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load profile")
	}

	summary := summarize(user.ID, user.Name, profile)
	return &summary, nil
}

// ListStudents pages through the active directory, newest first,
// excluding the viewer.
func (s *Service) ListStudents(ctx context.Context, viewerID uuid.UUID, limit int, cursorToken string) (*StudentPage, error) {
	var cursor *pagination.Cursor
	if cursorToken != "" {
		parsed, err := pagination.ParseCursor(cursorToken)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := NewRepository(s.db.DB()).ListActive(ctx, viewerID, limit, cursor)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list students")
	}

	page := &StudentPage{Students: make([]StudentSummary, 0, len(rows))}
	for _, row := range rows {
		page.Students = append(page.Students, summarize(row.UserID, row.Name, &row.Profile))
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func summarize(userID uuid.UUID, name string, profile *models.Profile) StudentSummary {
	return StudentSummary{
		UserID:          userID,
		Name:            name,
		Gender:          profile.Gender,
		Age:             profile.Age,
		Major:           profile.Major,
		Hometown:        profile.Hometown,
		PersonalityType: profile.PersonalityType,
		SelfIntro:       profile.SelfIntro,
		IsComplete:      profile.IsComplete,
	}
}
