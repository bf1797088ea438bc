package match

import (
	"time"

	"github.com/dormmatehq/dormmate-backend/internal/identity"
	"github.com/google/uuid"
)

// LikeResponse tells the actor whether their like completed a match.
type LikeResponse struct {
	IsNewMatch bool `json:"is_new_match"`
}

// MatchView is one derived match with the counterpart's public profile.
type MatchView struct {
	Student   identity.StudentSummary `json:"student"`
	MatchedAt time.Time               `json:"matched_at"`
}

// ReceivedLike is one incoming like shown to the target.
type ReceivedLike struct {
	UserID  uuid.UUID `json:"user_id"`
	Name    string    `json:"name"`
	LikedAt time.Time `json:"liked_at"`
}

// ReceivedPage is one page of incoming likes.
type ReceivedPage struct {
	Likes      []ReceivedLike `json:"likes"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
