package notifications

import (
	"context"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/enums"
	"github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/google/uuid"
)

// View is the client-facing notification shape.
type View struct {
	ID        uuid.UUID              `json:"id"`
	Kind      enums.NotificationKind `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Page is one polling page plus unread count and follow-up cursor.
type Page struct {
	Notifications []View `json:"notifications"`
	UnreadCount   int64  `json:"unread_count"`
	NextCursor    string `json:"next_cursor,omitempty"`
}

// Service serves the polling-based notification feed.
type Service struct {
	db   *db.Client
	logg *logger.Logger
	now  func() time.Time
}

func NewService(client *db.Client, logg *logger.Logger) *Service {
	return &Service{db: client, logg: logg, now: time.Now}
}

// List pages through the caller's feed newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int, cursorToken string) (*Page, error) {
	var cursor *pagination.Cursor
	if cursorToken != "" {
		parsed, err := pagination.ParseCursor(cursorToken)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid cursor")
		}
		cursor = parsed
	}

	repo := NewRepository(s.db.DB())
	rows, next, err := repo.List(ctx, userID, limit, cursor)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list notifications")
	}
	unread, err := repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "count unread")
	}

	page := &Page{UnreadCount: unread, Notifications: make([]View, 0, len(rows))}
	for _, row := range rows {
		page.Notifications = append(page.Notifications, viewFromModel(row))
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// MarkRead stamps one of the caller's notifications.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	updated, err := NewRepository(s.db.DB()).MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "mark notification read")
	}
	if !updated {
		return errors.New(errors.CodeNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead stamps the caller's entire unread feed.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	updated, err := NewRepository(s.db.DB()).MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, errors.Wrap(errors.CodeInternal, err, "mark all read")
	}
	return updated, nil
}

func viewFromModel(n models.Notification) View {
	return View{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
