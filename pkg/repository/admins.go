package repository

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm/clause"
)

// IsPlatformAdmin reports whether a platform_admins row exists for the user.
func (r *GormRepository) IsPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return false, err
	}
	var n int64
	if err := db.Model(&models.PlatformAdmin{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return false, dbError(err, "repository.IsPlatformAdmin", "")
	}
	return n > 0, nil
}

func (r *GormRepository) GrantPlatformAdmin(ctx context.Context, userID string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	err = db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PlatformAdmin{UserID: userID, CreatedAt: time.Now()}).Error
	return dbError(err, "repository.GrantPlatformAdmin", "")
}

func (r *GormRepository) RevokePlatformAdmin(ctx context.Context, userID string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	err = db.Where("user_id = ?", userID).Delete(&models.PlatformAdmin{}).Error
	return dbError(err, "repository.RevokePlatformAdmin", "")
}

// ToggleAdmin flips the admin membership of a user and returns the new state.
func (r *GormRepository) ToggleAdmin(ctx context.Context, userID string) (bool, error) {
	admin, err := r.IsPlatformAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	if admin {
		return false, r.RevokePlatformAdmin(ctx, userID)
	}
	return true, r.GrantPlatformAdmin(ctx, userID)
}

func (r *GormRepository) ListAdminIDs(ctx context.Context) (map[string]bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := db.Model(&models.PlatformAdmin{}).Pluck("user_id", &ids).Error; err != nil {
		return nil, dbError(err, "repository.ListAdminIDs", "")
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
