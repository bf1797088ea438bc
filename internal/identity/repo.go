package identity

import (
	"context"
	"time"

	"github.com/dormmatehq/dormmate-backend/pkg/db/models"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user row.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByStudentID retrieves the user matching the institutional id.
func (r *Repository) FindByStudentID(ctx context.Context, studentID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail retrieves the user matching the derived contact address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Delete removes a user row. Only pending duplicates are ever deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error
}

// Save persists the full user row.
func (r *Repository) Save(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// UpdatePasswordHash replaces the stored credential.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// ProfileRepository exposes profile persistence operations.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *ProfileRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) Save(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

// StudentRow is the joined projection used by the browse listing.
type StudentRow struct {
	UserID    uuid.UUID
	Name      string
	Profile   models.Profile
	CreatedAt time.Time
}

// ListActive returns active, profile-bearing students excluding the
// viewer, newest first, cursor-paginated.
func (r *Repository) ListActive(ctx context.Context, viewerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]StudentRow, *pagination.Cursor, error) {
	buffered := pagination.LimitWithBuffer(limit)
	normalized := pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("users.id, users.name, users.created_at").
		Joins("JOIN profiles ON profiles.user_id = users.id").
		Where("users.is_active = ?", true).
		Where("users.id <> ?", viewerID)
	if cursor != nil {
		query = query.Where("(users.created_at, users.id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	type userRow struct {
		ID        uuid.UUID
		Name      string
		CreatedAt time.Time
	}
	var users []userRow
	if err := query.Order("users.created_at DESC, users.id DESC").Limit(buffered).Scan(&users).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(users) > normalized {
		users = users[:normalized]
		last := users[len(users)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	rows := make([]StudentRow, 0, len(users))
	for _, u := range users {
		var profile models.Profile
		if err := r.db.WithContext(ctx).Where("user_id = ?", u.ID).First(&profile).Error; err != nil {
			return nil, nil, err
		}
		rows = append(rows, StudentRow{UserID: u.ID, Name: u.Name, Profile: profile, CreatedAt: u.CreatedAt})
	}
	return rows, next, nil
}
