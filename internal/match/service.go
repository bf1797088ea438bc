package match

import (
	"context"

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

// Service implements the mutual-like match engine. A like is a single
// directed edge; the edge insert and the reciprocity check share one
// transaction so two racing likes still settle into exactly one match.
type Service struct {
	db       *db.Client
	logg     *logger.Logger
	students *identity.Service
	metrics  *metrics.DomainMetrics
}

func NewService(client *db.Client, logg *logger.Logger, students *identity.Service, domainMetrics *metrics.DomainMetrics) *Service {
	return &Service{db: client, logg: logg, students: students, metrics: domainMetrics}
}

// Like records a directed like from actor to target and reports
// whether it completed a match.
func (s *Service) Like(ctx context.Context, actorID, targetID uuid.UUID) (*LikeResponse, error) {
	if actorID == targetID {
		return nil, errors.New(errors.CodeValidation, "cannot like yourself")
	}

	if _, err := s.students.GetStudent(ctx, targetID); err != nil {
		return nil, err
	}

	var isNewMatch bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		likes := NewRepository(tx)
		if err := likes.LockPair(ctx, actorID, targetID); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "lock pair")
		}
		if err := likes.Create(ctx, &models.Like{ActorID: actorID, TargetID: targetID}); err != nil {
			if db.IsUniqueViolation(err, "idx_likes_actor_target") {
				return errors.New(errors.CodeConflict, "already liked")
			}
			return errors.Wrap(errors.CodeInternal, err, "create like")
		}

		reciprocal, err := likes.HasReciprocal(ctx, actorID, targetID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "check reciprocity")
		}
		isNewMatch = reciprocal

		feed := notifications.NewRepository(tx)
		if isNewMatch {
			for _, userID := range []uuid.UUID{actorID, targetID} {
				n := &models.Notification{
					UserID:  userID,
					Kind:    enums.NotificationMatchFormed,
					Title:   "You have a new match",
					Message: "You and another student liked each other",
				}
				if err := feed.Create(ctx, n); err != nil {
					return errors.Wrap(errors.CodeInternal, err, "notify match")
				}
			}
			return nil
		}
		n := &models.Notification{
			UserID:  targetID,
			Kind:    enums.NotificationLikeReceived,
			Title:   "Someone liked you",
			Message: "A student liked your profile",
		}
		if err := feed.Create(ctx, n); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "notify like")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isNewMatch {
		if s.metrics != nil {
			s.metrics.MatchesFormed.Inc()
		}
		s.logg.Info(s.logg.WithUserID(ctx, actorID.String()), "match formed")
	}
	return &LikeResponse{IsNewMatch: isNewMatch}, nil
}

// ListMatches returns the caller's derived matches, most recent first.
// Counterparts that have since been deactivated are skipped.
func (s *Service) ListMatches(ctx context.Context, userID uuid.UUID) ([]MatchView, error) {
	rows, err := NewRepository(s.db.DB()).ListMutual(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list matches")
	}

	views := make([]MatchView, 0, len(rows))
	for _, row := range rows {
		summary, err := s.students.GetStudent(ctx, row.CounterpartID)
		if err != nil {
			if typed := errors.As(err); typed != nil && typed.Code() == errors.CodeNotFound {
				continue
			}
			return nil, err
		}
		views = append(views, MatchView{Student: *summary, MatchedAt: row.MatchedAt})
	}
	return views, nil
}

// Unmatch dissolves a match by deleting both edges. Both edges must
// still exist at the moment of deletion.
func (s *Service) Unmatch(ctx context.Context, userID, otherID uuid.UUID) error {
	if userID == otherID {
		return errors.New(errors.CodeValidation, "cannot unmatch yourself")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		likes := NewRepository(tx)
		count, err := likes.CountPair(ctx, userID, otherID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "count edges")
		}
		if count != 2 {
			return errors.New(errors.CodeNotFound, "match not found")
		}
		if err := likes.DeletePair(ctx, userID, otherID); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "delete edges")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "match dissolved")
	return nil
}

// ListReceived pages through likes the caller has received.
func (s *Service) ListReceived(ctx context.Context, userID uuid.UUID, limit int, cursorToken string) (*ReceivedPage, error) {
	var cursor *pagination.Cursor
	if cursorToken != "" {
		parsed, err := pagination.ParseCursor(cursorToken)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := NewRepository(s.db.DB()).ListReceived(ctx, userID, limit, cursor)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list received likes")
	}

	page := &ReceivedPage{Likes: make([]ReceivedLike, 0, len(rows))}
	for _, row := range rows {
		page.Likes = append(page.Likes, ReceivedLike{UserID: row.ActorID, Name: row.Name, LikedAt: row.LikedAt})
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}
