package match

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/dormmatehq/dormmate-backend/internal/identity"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	pkgerrors "github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:match_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}, &models.Profile{}, &models.Like{}, &models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := db.FromConn(conn)
	logg := logger.New(logger.Options{Output: io.Discard})
	students := identity.NewService(client, logg)
	return NewService(client, logg, students, nil), conn
}

func seedStudent(t *testing.T, conn *gorm.DB, studentID, name string) uuid.UUID {
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
	profile := &models.Profile{UserID: user.ID, Gender: enums.GenderMale}
	if err := conn.Create(profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return user.ID
}

func TestLikeThenReciprocalFormsMatch(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	bob := seedStudent(t, conn, "10255501002", "Bob")

	first, err := svc.Like(ctx, alice, bob)
	if err != nil {
		t.Fatalf("first like: %v", err)
	}
	if first.IsNewMatch {
		t.Fatal("one-directional like must not match")
	}

	second, err := svc.Like(ctx, bob, alice)
	if err != nil {
		t.Fatalf("second like: %v", err)
	}
	if !second.IsNewMatch {
		t.Fatal("reciprocal like must form a match")
	}

	matches, err := svc.ListMatches(ctx, alice)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 1 || matches[0].Student.UserID != bob {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	// A like notification went to Bob, then match notifications to both.
	var kinds []string
	if err := conn.Model(&models.Notification{}).Order("created_at").Pluck("kind", &kinds).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	if len(kinds) != 3 {
		t.Fatalf("expected 3 notifications, got %v", kinds)
	}
}

func TestLockPairOrderInsensitive(t *testing.T) {
	_, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	bob := seedStudent(t, conn, "10255501002", "Bob")

	// Both argument orders must lock the same rows without error.
	for _, pair := range [][2]uuid.UUID{{alice, bob}, {bob, alice}} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return NewRepository(tx).LockPair(ctx, pair[0], pair[1])
		})
		if err != nil {
			t.Fatalf("lock pair %v: %v", pair, err)
		}
	}
}

func TestListMatchesMostRecentFirst(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	bob := seedStudent(t, conn, "10255501002", "Bob")
	carol := seedStudent(t, conn, "10255501003", "Carol")

	mustLike := func(actor, target uuid.UUID) {
		t.Helper()
		if _, err := svc.Like(ctx, actor, target); err != nil {
			t.Fatalf("like: %v", err)
		}
	}
	mustLike(alice, bob)
	mustLike(bob, alice)
	time.Sleep(5 * time.Millisecond)
	mustLike(alice, carol)
	mustLike(carol, alice)

	matches, err := svc.ListMatches(ctx, alice)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Student.UserID != carol || matches[1].Student.UserID != bob {
		t.Fatalf("matches out of order: %+v", matches)
	}
	if matches[0].MatchedAt.Before(matches[1].MatchedAt) {
		t.Fatalf("matched_at not descending: %v then %v", matches[0].MatchedAt, matches[1].MatchedAt)
	}
}

func TestLikeSelfRejected(t *testing.T) {
	svc, conn := newTestService(t)
	alice := seedStudent(t, conn, "10255501001", "Alice")

	_, err := svc.Like(context.Background(), alice, alice)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation || typed.Message() != "cannot like yourself" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLikeDuplicateRejected(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	bob := seedStudent(t, conn, "10255501002", "Bob")

	if _, err := svc.Like(ctx, alice, bob); err != nil {
		t.Fatalf("like: %v", err)
	}
	_, err := svc.Like(ctx, alice, bob)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLikeUnknownTarget(t *testing.T) {
	svc, conn := newTestService(t)
	alice := seedStudent(t, conn, "10255501001", "Alice")

	_, err := svc.Like(context.Background(), alice, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnmatchDeletesBothEdges(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	bob := seedStudent(t, conn, "10255501002", "Bob")

	if _, err := svc.Like(ctx, alice, bob); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := svc.Like(ctx, bob, alice); err != nil {
		t.Fatalf("like back: %v", err)
	}

	if err := svc.Unmatch(ctx, alice, bob); err != nil {
		t.Fatalf("unmatch: %v", err)
	}

	var remaining int64
	if err := conn.Model(&models.Like{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected both edges gone, %d left", remaining)
	}

	// Re-liking after an unmatch starts the cycle over.
	resp, err := svc.Like(ctx, alice, bob)
	if err != nil {
		t.Fatalf("re-like: %v", err)
	}
	if resp.IsNewMatch {
		t.Fatal("unmatch must reset reciprocity")
	}
}

func TestUnmatchWithoutMatch(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	bob := seedStudent(t, conn, "10255501002", "Bob")

	if _, err := svc.Like(ctx, alice, bob); err != nil {
		t.Fatalf("like: %v", err)
	}

	// One edge is not a match.
	err := svc.Unmatch(ctx, alice, bob)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound || typed.Message() != "match not found" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListReceivedPaginates(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedStudent(t, conn, "10255501001", "Alice")
	for i := 2; i <= 4; i++ {
		peer := seedStudent(t, conn, "1025550100"+string(rune('0'+i)), "Peer")
		if _, err := svc.Like(ctx, peer, alice); err != nil {
			t.Fatalf("like: %v", err)
		}
	}

	page, err := svc.ListReceived(ctx, alice, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Likes) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected page: %+v", page)
	}

	rest, err := svc.ListReceived(ctx, alice, 2, page.NextCursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest.Likes) != 1 || rest.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", rest)
	}
}
