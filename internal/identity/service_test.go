package identity

import (
	"context"
	"io"
	"testing"

	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	pkgerrors "github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:identity_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}, &models.Profile{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	return NewService(db.FromConn(conn), logg), conn
}

func seedActiveUser(t *testing.T, conn *gorm.DB, studentID, name string) *models.User {
	t.Helper()
	user := &models.User{
		StudentID:     studentID,
		Email:         studentID + "@stu.campus.edu",
		Name:          name,
		PasswordHash:  "x",
		IsActive:      true,
		EmailVerified: true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	profile := &models.Profile{UserID: user.ID, Gender: enums.GenderFemale}
	profile.RecomputeCompleteness()
	if err := conn.Create(profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return user
}

func TestMeReturnsUserAndProfile(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedActiveUser(t, conn, "10255501001", "Alice")

	resp, err := svc.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if resp.User.StudentID != "10255501001" || resp.User.Name != "Alice" {
		t.Fatalf("unexpected user view: %+v", resp.User)
	}
	if resp.Profile.IsComplete {
		t.Fatalf("expected sparse profile to be incomplete")
	}
}

func TestMeUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Me(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateProfileRecomputesCompleteness(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedActiveUser(t, conn, "10255501001", "Alice")

	str := func(s string) *string { return &s }
	age := 19
	view, err := svc.UpdateProfile(context.Background(), user.ID, UpdateProfileRequest{
		Age:         &age,
		SleepTime:   str("23:00"),
		WakeTime:    str("07:00"),
		StudyHabit:  str("library"),
		Lifestyle:   str("quiet"),
		Cleanliness: str("tidy"),
		Major:       str("CS"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	// gender was seeded, so 8 of 12 fields are now set
	if !view.IsComplete {
		t.Fatalf("expected profile to become complete, got %+v", view)
	}

	var stored models.Profile
	if err := conn.Where("user_id = ?", user.ID).First(&stored).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.IsComplete || stored.Major != "CS" {
		t.Fatalf("update not persisted: %+v", stored)
	}
}

func TestUpdateProfileRejectsBadGender(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedActiveUser(t, conn, "10255501001", "Alice")

	bad := "unknown"
	_, err := svc.UpdateProfile(context.Background(), user.ID, UpdateProfileRequest{Gender: &bad})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetStudentHidesInactive(t *testing.T) {
	svc, conn := newTestService(t)
	user := seedActiveUser(t, conn, "10255501001", "Alice")

	if err := conn.Model(&models.User{}).Where("id = ?", user.ID).
		UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := svc.GetStudent(context.Background(), user.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListStudentsExcludesViewerAndPaginates(t *testing.T) {
	svc, conn := newTestService(t)
	viewer := seedActiveUser(t, conn, "10255501001", "Alice")
	for i := 0; i < 3; i++ {
		seedActiveUser(t, conn, "1025550100"+string(rune('2'+i)), "Peer")
	}

	page, err := svc.ListStudents(context.Background(), viewer.ID, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(page.Students))
	}
	if page.NextCursor == "" {
		t.Fatalf("expected a follow-up cursor")
	}
	for _, s := range page.Students {
		if s.UserID == viewer.ID {
			t.Fatalf("viewer leaked into listing")
		}
	}

	rest, err := svc.ListStudents(context.Background(), viewer.ID, 2, page.NextCursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest.Students) != 1 || rest.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", rest)
	}
}
