package match

import (
	"context"
	"sort"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists directed like edges. Matches are never stored;
// they are derived from edge reciprocity at read time.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, like *models.Like) error {
	return r.db.WithContext(ctx).Create(like).Error
}

// LockPair takes row locks on both users in canonical id order.
// Racing reciprocal likes for the same pair serialize here, so the
// second transaction always sees the first one's edge. Lock order is
// deterministic to rule out deadlocks.
func (r *Repository) LockPair(ctx context.Context, a, b uuid.UUID) error {
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}
	var ids []uuid.UUID
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []uuid.UUID{first, second}).
		Order("id").
		Pluck("id", &ids).Error
}

// HasReciprocal reports whether the reverse edge already exists. Called
// inside the same transaction as the insert so a racing reverse like
// cannot slip between the two statements.
func (r *Repository) HasReciprocal(ctx context.Context, actorID, targetID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("actor_id = ? AND target_id = ?", targetID, actorID).
		Count(&count).Error
	return count > 0, err
}

// CountPair counts the edges between two users in both directions.
func (r *Repository) CountPair(ctx context.Context, a, b uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)", a, b, b, a).
		Count(&count).Error
	return count, err
}

// DeletePair removes both edges between two users.
func (r *Repository) DeletePair(ctx context.Context, a, b uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)", a, b, b, a).
		Delete(&models.Like{}).Error
}

// MutualRow is one derived match: the counterpart and the moment the
// later of the two edges was created.
type MutualRow struct {
	CounterpartID uuid.UUID
	MatchedAt     time.Time
}

// ListMutual returns the user's matches, most recent first. The match
// moment is the later of the two edges; computed here rather than in
// SQL so the timestamps scan cleanly on every dialect.
func (r *Repository) ListMutual(ctx context.Context, userID uuid.UUID) ([]MutualRow, error) {
	type edgePair struct {
		CounterpartID uuid.UUID
		OutgoingAt    time.Time
		IncomingAt    time.Time
	}
	var pairs []edgePair
	err := r.db.WithContext(ctx).Raw(`
SELECT l1.target_id AS counterpart_id,
       l1.created_at AS outgoing_at,
       l2.created_at AS incoming_at
FROM likes l1
JOIN likes l2 ON l2.actor_id = l1.target_id AND l2.target_id = l1.actor_id
WHERE l1.actor_id = ?`, userID).Scan(&pairs).Error
	if err != nil {
		return nil, err
	}

	rows := make([]MutualRow, 0, len(pairs))
	for _, p := range pairs {
		matchedAt := p.OutgoingAt
		if p.IncomingAt.After(matchedAt) {
			matchedAt = p.IncomingAt
		}
		rows = append(rows, MutualRow{CounterpartID: p.CounterpartID, MatchedAt: matchedAt})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].MatchedAt.Equal(rows[j].MatchedAt) {
			return rows[i].MatchedAt.After(rows[j].MatchedAt)
		}
		return rows[i].CounterpartID.String() < rows[j].CounterpartID.String()
	})
	return rows, nil
}

// ReceivedRow is one incoming like joined with the sender's name.
type ReceivedRow struct {
	LikeID  uuid.UUID
	ActorID uuid.UUID
	Name    string
	LikedAt time.Time
}

// ListReceived pages through likes targeting the user, newest first.
func (r *Repository) ListReceived(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]ReceivedRow, *pagination.Cursor, error) {
	buffered := pagination.LimitWithBuffer(limit)
	normalized := pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Select("likes.id AS like_id, likes.actor_id, users.name, likes.created_at AS liked_at").
		Joins("JOIN users ON users.id = likes.actor_id").
		Where("likes.target_id = ?", userID)
	if cursor != nil {
		query = query.Where("(likes.created_at, likes.id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []ReceivedRow
	if err := query.Order("likes.created_at DESC, likes.id DESC").Limit(buffered).Scan(&rows).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(rows) > normalized {
		rows = rows[:normalized]
		last := rows[len(rows)-1]
		next = &pagination.Cursor{CreatedAt: last.LikedAt, ID: last.LikeID}
	}
	return rows, next, nil
}
