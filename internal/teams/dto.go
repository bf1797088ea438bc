package teams

import (
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateTeamRequest opens a new team with the caller as leader.
type CreateTeamRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Capacity int    `json:"capacity" validate:"required,min=2,max=8"`
}

// UpdateTeamRequest edits team attributes. Capacity may never drop
// below the current member count.
type UpdateTeamRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Capacity *int    `json:"capacity,omitempty" validate:"omitempty,min=2,max=8"`
}

// JoinRequestRequest asks for admission to a team.
type JoinRequestRequest struct {
	Message *string `json:"message,omitempty" validate:"omitempty,max=500"`
}

// ReviewRequest resolves a pending join request.
type ReviewRequest struct {
	Approve bool `json:"approve"`
}

// TransferRequest hands leadership to another member.
type TransferRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// MemberView is one team member in a detail view.
type MemberView struct {
	UserID   uuid.UUID `json:"user_id"`
	Name     string    `json:"name"`
	IsLeader bool      `json:"is_leader"`
	JoinedAt time.Time `json:"joined_at"`
}

// TeamView is the full team detail.
type TeamView struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Capacity    int          `json:"capacity"`
	MemberCount int          `json:"member_count"`
	Members     []MemberView `json:"members,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TeamPage is one browse page of teams.
type TeamPage struct {
	Teams      []TeamView `json:"teams"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// JoinRequestView is one join request as shown to the leader.
type JoinRequestView struct {
	ID        uuid.UUID               `json:"id"`
	TeamID    uuid.UUID               `json:"team_id"`
	UserID    uuid.UUID               `json:"user_id"`
	Message   *string                 `json:"message,omitempty"`
	Status    enums.JoinRequestStatus `json:"status"`
	CreatedAt time.Time               `json:"created_at"`
}
