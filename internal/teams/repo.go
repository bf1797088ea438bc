package teams

import (
	"context"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists teams, memberships, and join requests. Mutating
// flows construct one per transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTeam(ctx context.Context, team *models.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

// FindTeam loads a team by id.
func (r *Repository) FindTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).First(&team, "id = ?", teamID).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// FindTeamForUpdate loads a team under a row lock so a capacity
// re-check and the membership insert observe the same world.
func (r *Repository) FindTeamForUpdate(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	var team models.Team
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&team, "id = ?", teamID).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *Repository) SaveTeam(ctx context.Context, team *models.Team) error {
	return r.db.WithContext(ctx).Save(team).Error
}

func (r *Repository) DeleteTeam(ctx context.Context, teamID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Team{}, "id = ?", teamID).Error
}

func (r *Repository) CreateMembership(ctx context.Context, m *models.TeamMembership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// FindMembershipByUser returns the user's membership, if any.
func (r *Repository) FindMembershipByUser(ctx context.Context, userID uuid.UUID) (*models.TeamMembership, error) {
	var m models.TeamMembership
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemberships returns a team's members, leader first.
func (r *Repository) ListMemberships(ctx context.Context, teamID uuid.UUID) ([]models.TeamMembership, error) {
	var rows []models.TeamMembership
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("is_leader DESC, joined_at ASC").
		Find(&rows).Error
	return rows, err
}

// CountMembers counts a team's memberships.
func (r *Repository) CountMembers(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TeamMembership{}).
		Where("team_id = ?", teamID).
		Count(&count).Error
	return count, err
}

func (r *Repository) SaveMembership(ctx context.Context, m *models.TeamMembership) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *Repository) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TeamMembership{}, "id = ?", id).Error
}

func (r *Repository) DeleteMembershipsByTeam(ctx context.Context, teamID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Delete(&models.TeamMembership{}).Error
}

func (r *Repository) CreateJoinRequest(ctx context.Context, req *models.TeamJoinRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// FindJoinRequest loads a join request by id.
func (r *Repository) FindJoinRequest(ctx context.Context, requestID uuid.UUID) (*models.TeamJoinRequest, error) {
	var req models.TeamJoinRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPendingRequest reports whether the user already has a pending
// request for the team.
func (r *Repository) HasPendingRequest(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TeamJoinRequest{}).
		Where("team_id = ? AND user_id = ? AND status = ?", teamID, userID, enums.JoinRequestPending).
		Count(&count).Error
	return count > 0, err
}

// ListPendingRequests returns a team's pending requests, oldest first.
func (r *Repository) ListPendingRequests(ctx context.Context, teamID uuid.UUID) ([]models.TeamJoinRequest, error) {
	var rows []models.TeamJoinRequest
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", teamID, enums.JoinRequestPending).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) SaveJoinRequest(ctx context.Context, req *models.TeamJoinRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// RejectPendingRequests resolves every pending request for a team as
// rejected. Used when the team disbands.
func (r *Repository) RejectPendingRequests(ctx context.Context, teamID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TeamJoinRequest{}).
		Where("team_id = ? AND status = ?", teamID, enums.JoinRequestPending).
		Updates(map[string]any{"status": enums.JoinRequestRejected, "resolved_at": at}).Error
}

// TeamRow is one browse listing entry with its derived member count.
type TeamRow struct {
	Team        models.Team
	MemberCount int64
}

// ListTeams pages through teams newest first with derived counts.
func (r *Repository) ListTeams(ctx context.Context, limit int, cursor *pagination.Cursor) ([]TeamRow, *pagination.Cursor, error) {
	buffered := pagination.LimitWithBuffer(limit)
	normalized := pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).Model(&models.Team{})
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var teams []models.Team
	if err := query.Order("created_at DESC, id DESC").Limit(buffered).Find(&teams).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(teams) > normalized {
		teams = teams[:normalized]
		last := teams[len(teams)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	rows := make([]TeamRow, 0, len(teams))
	for _, team := range teams {
		count, err := r.CountMembers(ctx, team.ID)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, TeamRow{Team: team, MemberCount: count})
	}
	return rows, next, nil
}
