// Package store holds the gorm-backed repositories: the per-user cooldown
// clock and the video dedup index.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/clipvault/clipvault/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Users persists user rows and implements gate.UserClock on top of them.
type Users struct {
	db *gorm.DB
}

// NewUsers wraps the database handle.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// Get loads a user by id.
func (s *Users) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Advance implements the admission transaction as a single conditional
// UPDATE: the clock moves to now only when it is null or at/before threshold,
// so two concurrent requests for the same user cannot both win.
func (s *Users) Advance(ctx context.Context, userID uint, now, threshold time.Time) (bool, *time.Time, error) {
	var prev struct {
		LastDownloadAt *time.Time
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("last_download_at").
		Where("id = ?", userID).
		Scan(&prev).Error; err != nil {
		return false, nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (last_download_at IS NULL OR last_download_at <= ?)", userID, threshold).
		Update("last_download_at", now)
	if res.Error != nil {
		return false, nil, res.Error
	}
	return res.RowsAffected == 1, prev.LastDownloadAt, nil
}

// Set overwrites the clock unconditionally; nil clears it.
func (s *Users) Set(ctx context.Context, userID uint, at *time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_download_at", at).Error
}

// Clear nulls the clock and reports whether a non-null value was cleared.
func (s *Users) Clear(ctx context.Context, userID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND last_download_at IS NOT NULL", userID).
		Update("last_download_at", nil)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
