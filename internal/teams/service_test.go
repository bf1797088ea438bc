package teams

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

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:teams_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMembership{},
		&models.TeamJoinRequest{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logg := logger.New(logger.Options{Output: io.Discard})
	return NewService(db.FromConn(conn), logg, nil), conn
}

func seedUser(t *testing.T, conn *gorm.DB, studentID, name string) uuid.UUID {
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
	return user.ID
}

func joinViaRequest(t *testing.T, svc *Service, leaderID, teamID, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	req, err := svc.RequestJoin(ctx, userID, teamID, JoinRequestRequest{})
	if err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := svc.Review(ctx, leaderID, req.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestCreateTeamMakesCallerLeader(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if team.MemberCount != 1 || !team.Members[0].IsLeader || team.Members[0].UserID != alice {
		t.Fatalf("unexpected team: %+v", team)
	}

	_, err = svc.Create(ctx, alice, CreateTeamRequest{Name: "Another", Capacity: 3})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("member must not create a second team, got %v", err)
	}
}

func TestCapacityEnforcedAtApproval(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")
	carol := seedUser(t, conn, "10255501003", "Carol")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Both request while there is still one seat.
	bobReq, err := svc.RequestJoin(ctx, bob, team.ID, JoinRequestRequest{})
	if err != nil {
		t.Fatalf("bob request: %v", err)
	}
	carolReq, err := svc.RequestJoin(ctx, carol, team.ID, JoinRequestRequest{})
	if err != nil {
		t.Fatalf("carol request: %v", err)
	}

	if _, err := svc.Review(ctx, alice, bobReq.ID, true); err != nil {
		t.Fatalf("approve bob: %v", err)
	}

	// The seat is gone; the second approval must fail closed and the
	// request must stay pending.
	_, err = svc.Review(ctx, alice, carolReq.ID, true)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict || typed.Message() != "team full" {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored models.TeamJoinRequest
	if err := conn.First(&stored, "id = ?", carolReq.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != enums.JoinRequestPending {
		t.Fatalf("failed approval must not resolve the request: %s", stored.Status)
	}
}

func TestRequestJoinGuards(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.RequestJoin(ctx, alice, team.ID, JoinRequestRequest{})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("member must not request, got %v", err)
	}

	if _, err := svc.RequestJoin(ctx, bob, team.ID, JoinRequestRequest{}); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err = svc.RequestJoin(ctx, bob, team.ID, JoinRequestRequest{})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict || typed.Message() != "duplicate pending request" {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.RequestJoin(ctx, bob, uuid.New(), JoinRequestRequest{})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReviewGuards(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")
	carol := seedUser(t, conn, "10255501003", "Carol")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req, err := svc.RequestJoin(ctx, bob, team.ID, JoinRequestRequest{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Only the leader reviews.
	_, err = svc.Review(ctx, carol, req.ID, true)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Review(ctx, alice, req.ID, false); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Resolved requests are terminal.
	_, err = svc.Review(ctx, alice, req.ID, true)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict || typed.Message() != "request not pending" {
		t.Fatalf("unexpected error: %v", err)
	}

	// A rejected user may file again.
	if _, err := svc.RequestJoin(ctx, bob, team.ID, JoinRequestRequest{}); err != nil {
		t.Fatalf("re-request after rejection: %v", err)
	}
}

func TestLeaderLeavingDisbandsTeam(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joinViaRequest(t, svc, alice, team.ID, bob)

	if err := svc.Leave(ctx, alice); err != nil {
		t.Fatalf("leader leave: %v", err)
	}

	if _, err := svc.Get(ctx, team.ID); pkgerrors.As(err) == nil {
		t.Fatal("team must be gone after leader leaves")
	}

	// Bob is no longer a member of anything.
	err = svc.Leave(ctx, bob)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict || typed.Message() != "not a team member" {
		t.Fatalf("unexpected error: %v", err)
	}

	var note models.Notification
	if err := conn.Where("user_id = ? AND kind = ?", bob, enums.NotificationTeamDisbanded).First(&note).Error; err != nil {
		t.Fatalf("bob must be told about the disband: %v", err)
	}
}

func TestMemberLeaveKeepsTeam(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joinViaRequest(t, svc, alice, team.ID, bob)

	if err := svc.Leave(ctx, bob); err != nil {
		t.Fatalf("member leave: %v", err)
	}

	got, err := svc.Get(ctx, team.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MemberCount != 1 {
		t.Fatalf("expected only the leader left, got %d", got.MemberCount)
	}
}

func TestTransferLeadership(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joinViaRequest(t, svc, alice, team.ID, bob)

	if err := svc.Transfer(ctx, alice, team.ID, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got, err := svc.Get(ctx, team.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, m := range got.Members {
		if m.UserID == bob && !m.IsLeader {
			t.Fatal("bob must now lead")
		}
		if m.UserID == alice && m.IsLeader {
			t.Fatal("alice must no longer lead")
		}
	}

	// Alice lost leader rights with the transfer.
	err = svc.Transfer(ctx, alice, team.ID, bob)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransferToNonMember(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	outsider := seedUser(t, conn, "10255501002", "Oscar")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = svc.Transfer(ctx, alice, team.ID, outsider)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound || typed.Message() != "target not a member" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joinViaRequest(t, svc, alice, team.ID, bob)

	err = svc.Remove(ctx, alice, team.ID, alice)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation || typed.Message() != "cannot remove yourself" {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Remove(ctx, alice, team.ID, bob); err != nil {
		t.Fatalf("remove: %v", err)
	}

	var note models.Notification
	if err := conn.Where("user_id = ? AND kind = ?", bob, enums.NotificationMemberRemoved).First(&note).Error; err != nil {
		t.Fatalf("removed member must be notified: %v", err)
	}

	err = svc.Remove(ctx, alice, team.ID, bob)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDisbandRejectsPendingRequests(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req, err := svc.RequestJoin(ctx, bob, team.ID, JoinRequestRequest{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := svc.Disband(ctx, alice, team.ID); err != nil {
		t.Fatalf("disband: %v", err)
	}

	var stored models.TeamJoinRequest
	if err := conn.First(&stored, "id = ?", req.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != enums.JoinRequestRejected || stored.ResolvedAt == nil {
		t.Fatalf("pending request must be rejected on disband: %+v", stored)
	}
}

func TestUpdateTeamCapacityFloor(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joinViaRequest(t, svc, alice, team.ID, bob)

	tooSmall := 1
	_, err = svc.Update(ctx, alice, team.ID, UpdateTeamRequest{Capacity: &tooSmall})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	newName := "Dorm4 East"
	twoSeats := 2
	got, err := svc.Update(ctx, alice, team.ID, UpdateTeamRequest{Name: &newName, Capacity: &twoSeats})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "Dorm4 East" || got.Capacity != 2 {
		t.Fatalf("unexpected team: %+v", got)
	}
}

func TestListTeamsPaginatesWithoutLosingRows(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		leader := seedUser(t, conn, "1025550100"+string(rune('1'+i)), "Leader")
		team, err := svc.Create(ctx, leader, CreateTeamRequest{Name: "Dorm" + string(rune('A'+i)), Capacity: 4})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		seen[team.Name] = false
	}

	page, err := svc.List(ctx, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Teams) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	rest, err := svc.List(ctx, 2, page.NextCursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest.Teams) != 1 || rest.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", rest)
	}

	// The boundary row must land on exactly one page.
	for _, v := range append(page.Teams, rest.Teams...) {
		if seen[v.Name] {
			t.Fatalf("team %q returned twice", v.Name)
		}
		seen[v.Name] = true
	}
	for name, ok := range seen {
		if !ok {
			t.Fatalf("team %q dropped at the page boundary", name)
		}
	}
}

func TestListTeamsDerivesCounts(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, conn, "10255501001", "Alice")
	bob := seedUser(t, conn, "10255501002", "Bob")

	team, err := svc.Create(ctx, alice, CreateTeamRequest{Name: "Dorm4", Capacity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joinViaRequest(t, svc, alice, team.ID, bob)

	page, err := svc.List(ctx, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Teams) != 1 || page.Teams[0].MemberCount != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
}
