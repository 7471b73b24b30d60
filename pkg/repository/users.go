package repository

import (
	"context"
	"strings"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm/clause"
)

// UpsertUser mirrors an identity provider record into the users table.
func (r *GormRepository) UpsertUser(ctx context.Context, user *models.User) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if user.ID == "" {
		return errs.Invalid("user id is required")
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "email_confirmed_at", "last_sign_in_at", "updated_at"}),
	}).Create(user).Error
	return dbError(err, "repository.UpsertUser", "")
}

func (r *GormRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, dbError(err, "repository.FindUserByID", "user not found")
	}
	return &user, nil
}

// UserSummary is a user row with admin flag and owned store for the admin listing.
type UserSummary struct {
	models.User
	IsAdmin bool          `json:"is_admin"`
	Store   *models.Store `json:"store,omitempty"`
}

// ListUserSummaries returns every known user, newest first.
func (r *GormRepository) ListUserSummaries(ctx context.Context) ([]UserSummary, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	const op = "repository.ListUserSummaries"

	var users []models.User
	if err := db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, dbError(err, op, "")
	}
	admins, err := r.ListAdminIDs(ctx)
	if err != nil {
		return nil, err
	}
	var stores []models.Store
	if err := db.Find(&stores).Error; err != nil {
		return nil, dbError(err, op, "")
	}
	byOwner := make(map[string]*models.Store, len(stores))
	for i := range stores {
		byOwner[stores[i].OwnerUserID] = &stores[i]
	}

	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{User: u, IsAdmin: admins[u.ID], Store: byOwner[u.ID]})
	}
	return out, nil
}
