package models

import "time"

// Video records one fetched media file. Rows are immutable once created:
// the canonical key is unique, so the first fetch of a piece of content wins
// and every later request for the same content is served from this row.
type Video struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	CanonicalKey string    `gorm:"size:512;not null;uniqueIndex" json:"canonical_key"`
	Platform     string    `gorm:"size:16;not null" json:"platform"`
	FilePath     string    `gorm:"size:1024;not null" json:"file_path"` // relative to the downloads root
	FileSize     int64     `gorm:"not null;default:0" json:"file_size"`
	UserID       uint      `gorm:"index;not null" json:"user_id"` // first fetcher
	DownloadDate string    `gorm:"size:10;not null" json:"download_date"` // YYYY-MM-DD partition folder
	CreatedAt    time.Time `json:"created_at"`
}
