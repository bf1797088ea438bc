package teams

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/dormmatehq/dormmate-backend/internal/identity"
	"github.com/dormmatehq/dormmate-backend/internal/notifications"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/metrics"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service owns the team lifecycle. A user belongs to at most one team;
// the storage-level unique index on membership user_id backs every
// racing join path.
type Service struct {
	db      *db.Client
	logg    *logger.Logger
	metrics *metrics.DomainMetrics
	now     func() time.Time
}

func NewService(client *db.Client, logg *logger.Logger, domainMetrics *metrics.DomainMetrics) *Service {
	return &Service{db: client, logg: logg, metrics: domainMetrics, now: time.Now}
}

// Create opens a new team with the caller as its leader.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateTeamRequest) (*TeamView, error) {
	var team *models.Team
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindMembershipByUser(ctx, userID); err == nil {
			return errors.New(errors.CodeConflict, "already in a team")
		} else if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(errors.CodeInternal, err, "check membership")
		}

		created := &models.Team{Name: req.Name, Capacity: req.Capacity}
		if err := repo.CreateTeam(ctx, created); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "create team")
		}

		leader := &models.TeamMembership{TeamID: created.ID, UserID: userID, IsLeader: true}
		if err := repo.CreateMembership(ctx, leader); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errors.New(errors.CodeConflict, "already in a team")
			}
			return errors.Wrap(errors.CodeInternal, err, "create leader membership")
		}
		team = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TeamsCreated.Inc()
	}
	s.logg.Info(s.logg.WithTeamID(ctx, team.ID.String()), "team created")
	return s.Get(ctx, team.ID)
}

// Get returns a team with its member roster.
func (s *Service) Get(ctx context.Context, teamID uuid.UUID) (*TeamView, error) {
	repo := NewRepository(s.db.DB())
	team, err := repo.FindTeam(ctx, teamID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "team not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load team")
	}

	memberships, err := repo.ListMemberships(ctx, teamID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load members")
	}

	users := identity.NewRepository(s.db.DB())
	members := make([]MemberView, 0, len(memberships))
	for _, m := range memberships {
		user, err := users.FindByID(ctx, m.UserID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "load member")
		}
		members = append(members, MemberView{
			UserID:   m.UserID,
			Name:     user.Name,
			IsLeader: m.IsLeader,
			JoinedAt: m.JoinedAt,
		})
	}

	return &TeamView{
		ID:          team.ID,
		Name:        team.Name,
		Capacity:    team.Capacity,
		MemberCount: len(members),
		Members:     members,
		CreatedAt:   team.CreatedAt,
	}, nil
}

// MyTeam returns the caller's team, if they have one.
func (s *Service) MyTeam(ctx context.Context, userID uuid.UUID) (*TeamView, error) {
	membership, err := NewRepository(s.db.DB()).FindMembershipByUser(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "not in a team")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load membership")
	}
	return s.Get(ctx, membership.TeamID)
}

// List pages through teams for browsing, newest first.
func (s *Service) List(ctx context.Context, limit int, cursorToken string) (*TeamPage, error) {
	var cursor *pagination.Cursor
	if cursorToken != "" {
		parsed, err := pagination.ParseCursor(cursorToken)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := NewRepository(s.db.DB()).ListTeams(ctx, limit, cursor)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list teams")
	}

	page := &TeamPage{Teams: make([]TeamView, 0, len(rows))}
	for _, row := range rows {
		page.Teams = append(page.Teams, TeamView{
			ID:          row.Team.ID,
			Name:        row.Team.Name,
			Capacity:    row.Team.Capacity,
			MemberCount: int(row.MemberCount),
			CreatedAt:   row.Team.CreatedAt,
		})
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// Update edits team attributes, leader only. Capacity can never drop
// below the current member count.
func (s *Service) Update(ctx context.Context, userID, teamID uuid.UUID, req UpdateTeamRequest) (*TeamView, error) {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := s.requireLeader(ctx, repo, userID, teamID); err != nil {
			return err
		}

		team, err := repo.FindTeamForUpdate(ctx, teamID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "load team")
		}

		if req.Name != nil {
			team.Name = *req.Name
		}
		if req.Capacity != nil {
			count, err := repo.CountMembers(ctx, teamID)
			if err != nil {
				return errors.Wrap(errors.CodeInternal, err, "count members")
			}
			if int64(*req.Capacity) < count {
				return errors.New(errors.CodeValidation, "capacity below member count")
			}
			team.Capacity = *req.Capacity
		}
		return repo.SaveTeam(ctx, team)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, teamID)
}

// RequestJoin files a pending admission request and notifies the
// leader. Capacity is checked here for early feedback and re-checked
// under lock at approval.
func (s *Service) RequestJoin(ctx context.Context, userID, teamID uuid.UUID, req JoinRequestRequest) (*JoinRequestView, error) {
	var created *models.TeamJoinRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		if _, err := repo.FindMembershipByUser(ctx, userID); err == nil {
			return errors.New(errors.CodeConflict, "already in a team")
		} else if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(errors.CodeInternal, err, "check membership")
		}

		team, err := repo.FindTeam(ctx, teamID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "team not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load team")
		}

		count, err := repo.CountMembers(ctx, teamID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "count members")
		}
		if count >= int64(team.Capacity) {
			return errors.New(errors.CodeStateConflict, "team full")
		}

		pending, err := repo.HasPendingRequest(ctx, teamID, userID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "check pending request")
		}
		if pending {
			return errors.New(errors.CodeConflict, "duplicate pending request")
		}

		request := &models.TeamJoinRequest{
			TeamID:  teamID,
			UserID:  userID,
			Message: req.Message,
			Status:  enums.JoinRequestPending,
		}
		if err := repo.CreateJoinRequest(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "idx_join_requests_pending") {
				return errors.New(errors.CodeConflict, "duplicate pending request")
			}
			return errors.Wrap(errors.CodeInternal, err, "create join request")
		}

		leader, err := s.findLeader(ctx, repo, teamID)
		if err != nil {
			return err
		}
		n := &models.Notification{
			UserID:  leader.UserID,
			Kind:    enums.NotificationJoinRequested,
			Title:   "New join request",
			Message: "A student asked to join your team",
		}
		if err := notifications.NewRepository(tx).Create(ctx, n); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "notify leader")
		}
		created = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := requestView(created)
	return &view, nil
}

// Review resolves a pending request. Approval re-checks capacity under
// a row lock, so a full team fails closed no matter how the approvals
// race; the request stays pending in that case.
func (s *Service) Review(ctx context.Context, leaderID, requestID uuid.UUID, approve bool) (*JoinRequestView, error) {
	var reviewed *models.TeamJoinRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		request, err := repo.FindJoinRequest(ctx, requestID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "join request not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load join request")
		}

		if err := s.requireLeader(ctx, repo, leaderID, request.TeamID); err != nil {
			return err
		}
		if request.Status.IsResolved() {
			return errors.New(errors.CodeStateConflict, "request not pending")
		}

		resolvedAt := s.now().UTC()
		if !approve {
			request.Status = enums.JoinRequestRejected
			request.ResolvedAt = &resolvedAt
			if err := repo.SaveJoinRequest(ctx, request); err != nil {
				return errors.Wrap(errors.CodeInternal, err, "resolve request")
			}
			reviewed = request
			return s.notify(ctx, tx, request.UserID, enums.NotificationRequestRejected,
				"Join request declined", "The team leader declined your request")
		}

		team, err := repo.FindTeamForUpdate(ctx, request.TeamID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "lock team")
		}
		count, err := repo.CountMembers(ctx, team.ID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "count members")
		}
		if count >= int64(team.Capacity) {
			return errors.New(errors.CodeStateConflict, "team full")
		}

		membership := &models.TeamMembership{TeamID: team.ID, UserID: request.UserID}
		if err := repo.CreateMembership(ctx, membership); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errors.New(errors.CodeConflict, "requester already in a team")
			}
			return errors.Wrap(errors.CodeInternal, err, "create membership")
		}

		request.Status = enums.JoinRequestApproved
		request.ResolvedAt = &resolvedAt
		if err := repo.SaveJoinRequest(ctx, request); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "resolve request")
		}
		reviewed = request
		return s.notify(ctx, tx, request.UserID, enums.NotificationRequestApproved,
			"Join request approved", "Welcome to the team")
	})
	if err != nil {
		return nil, err
	}

	view := requestView(reviewed)
	return &view, nil
}

// ListRequests returns a team's pending requests, leader only.
func (s *Service) ListRequests(ctx context.Context, leaderID, teamID uuid.UUID) ([]JoinRequestView, error) {
	repo := NewRepository(s.db.DB())
	if err := s.requireLeader(ctx, repo, leaderID, teamID); err != nil {
		return nil, err
	}

	rows, err := repo.ListPendingRequests(ctx, teamID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list requests")
	}
	views := make([]JoinRequestView, 0, len(rows))
	for i := range rows {
		views = append(views, requestView(&rows[i]))
	}
	return views, nil
}

// Leave removes the caller from their team. A leaving leader takes the
// whole team down with them.
func (s *Service) Leave(ctx context.Context, userID uuid.UUID) error {
	var disbanded bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		membership, err := repo.FindMembershipByUser(ctx, userID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeStateConflict, "not a team member")
			}
			return errors.Wrap(errors.CodeInternal, err, "load membership")
		}

		if membership.IsLeader {
			disbanded = true
			return s.disbandTx(ctx, tx, membership.TeamID, userID)
		}
		return repo.DeleteMembership(ctx, membership.ID)
	})
	if err != nil {
		return err
	}

	if disbanded && s.metrics != nil {
		s.metrics.TeamsDisbands.Inc()
	}
	return nil
}

// Transfer hands leadership to another member of the same team.
func (s *Service) Transfer(ctx context.Context, leaderID, teamID, targetID uuid.UUID) error {
	if leaderID == targetID {
		return errors.New(errors.CodeValidation, "already the leader")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := s.requireLeader(ctx, repo, leaderID, teamID); err != nil {
			return err
		}

		target, err := repo.FindMembershipByUser(ctx, targetID)
		if err != nil || target.TeamID != teamID {
			if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(errors.CodeInternal, err, "load target membership")
			}
			return errors.New(errors.CodeNotFound, "target not a member")
		}

		leader, err := repo.FindMembershipByUser(ctx, leaderID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "load leader membership")
		}

		leader.IsLeader = false
		target.IsLeader = true
		if err := repo.SaveMembership(ctx, leader); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "demote leader")
		}
		if err := repo.SaveMembership(ctx, target); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "promote member")
		}

		s.logg.Info(s.logg.WithTeamID(ctx, teamID.String()), "leadership transferred")
		return nil
	})
}

// Remove ejects a member, leader only. Leaders leave via Leave.
func (s *Service) Remove(ctx context.Context, leaderID, teamID, targetID uuid.UUID) error {
	if leaderID == targetID {
		return errors.New(errors.CodeValidation, "cannot remove yourself")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := s.requireLeader(ctx, repo, leaderID, teamID); err != nil {
			return err
		}

		target, err := repo.FindMembershipByUser(ctx, targetID)
		if err != nil || target.TeamID != teamID {
			if err != nil && !stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(errors.CodeInternal, err, "load target membership")
			}
			return errors.New(errors.CodeNotFound, "target not a member")
		}

		if err := repo.DeleteMembership(ctx, target.ID); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "delete membership")
		}
		return s.notify(ctx, tx, targetID, enums.NotificationMemberRemoved,
			"Removed from team", "The team leader removed you from the team")
	})
}

// Disband tears the team down, leader only.
func (s *Service) Disband(ctx context.Context, leaderID, teamID uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if err := s.requireLeader(ctx, repo, leaderID, teamID); err != nil {
			return err
		}
		return s.disbandTx(ctx, tx, teamID, leaderID)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.TeamsDisbands.Inc()
	}
	return nil
}

// disbandTx deletes the team, its memberships, and rejects whatever
// requests are still pending. Every member except the initiator gets a
// notification.
func (s *Service) disbandTx(ctx context.Context, tx *gorm.DB, teamID, initiatorID uuid.UUID) error {
	repo := NewRepository(tx)
	memberships, err := repo.ListMemberships(ctx, teamID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "load members")
	}

	if err := repo.DeleteMembershipsByTeam(ctx, teamID); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "delete memberships")
	}
	if err := repo.RejectPendingRequests(ctx, teamID, s.now().UTC()); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "reject pending requests")
	}
	if err := repo.DeleteTeam(ctx, teamID); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "delete team")
	}

	for _, m := range memberships {
		if m.UserID == initiatorID {
			continue
		}
		if err := s.notify(ctx, tx, m.UserID, enums.NotificationTeamDisbanded,
			"Team disbanded", "Your team no longer exists"); err != nil {
			return err
		}
	}

	s.logg.Info(s.logg.WithTeamID(ctx, teamID.String()), "team disbanded")
	return nil
}

// requireLeader fails unless the user leads the given team.
func (s *Service) requireLeader(ctx context.Context, repo *Repository, userID, teamID uuid.UUID) error {
	membership, err := repo.FindMembershipByUser(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.CodeForbidden, "not the team leader")
		}
		return errors.Wrap(errors.CodeInternal, err, "load membership")
	}
	if membership.TeamID != teamID || !membership.IsLeader {
		return errors.New(errors.CodeForbidden, "not the team leader")
	}
	return nil
}

// findLeader returns the team's leader membership.
func (s *Service) findLeader(ctx context.Context, repo *Repository, teamID uuid.UUID) (*models.TeamMembership, error) {
	memberships, err := repo.ListMemberships(ctx, teamID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load members")
	}
	for i := range memberships {
		if memberships[i].IsLeader {
			return &memberships[i], nil
		}
	}
	return nil, errors.New(errors.CodeInternal, "team has no leader")
}

func (s *Service) notify(ctx context.Context, tx *gorm.DB, userID uuid.UUID, kind enums.NotificationKind, title, message string) error {
	n := &models.Notification{UserID: userID, Kind: kind, Title: title, Message: message}
	if err := notifications.NewRepository(tx).Create(ctx, n); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "create notification")
	}
	return nil
}

func requestView(req *models.TeamJoinRequest) JoinRequestView {
	return JoinRequestView{
		ID:        req.ID,
		TeamID:    req.TeamID,
		UserID:    req.UserID,
		Message:   req.Message,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
	}
}
