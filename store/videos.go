package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipvault/clipvault/models"
	"github.com/clipvault/clipvault/platform"
)

// ErrDuplicateKey signals that another request created the artifact for the
// same canonical key first. Callers recover by re-querying; it never reaches
// an end user.
var ErrDuplicateKey = errors.New("store: canonical key already exists")

// Videos is the dedup index: canonical key -> fetched artifact.
type Videos struct {
	db *gorm.DB
}

// NewVideos wraps the database handle.
func NewVideos(db *gorm.DB) *Videos {
	return &Videos{db: db}
}

// FindByKey looks up an artifact by its canonical dedup key.
func (s *Videos) FindByKey(ctx context.Context, key string) (*models.Video, error) {
	var video models.Video
	err := s.db.WithContext(ctx).Where("canonical_key = ?", key).First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

// FindByID looks up an artifact for the file-serving path.
func (s *Videos) FindByID(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

// Create inserts a new artifact row. The unique index on canonical_key makes
// this the arbiter of the first-fetch-wins invariant: the loser of a
// concurrent insert gets ErrDuplicateKey.
func (s *Videos) Create(ctx context.Context, key string, p platform.Platform, filePath string, fileSize int64, ownerID uint) (*models.Video, error) {
	video := models.Video{
		ID:           uuid.NewString(),
		CanonicalKey: key,
		Platform:     p.String(),
		FilePath:     filePath,
		FileSize:     fileSize,
		UserID:       ownerID,
		DownloadDate: time.Now().Format("2006-01-02"),
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &video, nil
}

// LogDownload appends one audit row for an admitted request.
func (s *Videos) LogDownload(ctx context.Context, userID uint, videoID string) error {
	entry := models.DownloadLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		VideoID:      videoID,
		DownloadedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

// Totals aggregates service-wide counters for the public stats endpoint.
type Totals struct {
	Videos    int64 `json:"videos"`
	Bytes     int64 `json:"bytes"`
	Downloads int64 `json:"downloads"`
}

// Stats returns artifact and audit-log totals.
func (s *Videos) Stats(ctx context.Context) (*Totals, error) {
	var t Totals
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Video{}).Count(&t.Videos).Error; err != nil {
		return nil, err
	}
	var sum struct{ Total int64 }
	if err := db.Model(&models.Video{}).Select("COALESCE(SUM(file_size),0) AS total").Scan(&sum).Error; err != nil {
		return nil, err
	}
	t.Bytes = sum.Total
	if err := db.Model(&models.DownloadLog{}).Count(&t.Downloads).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
