package models

import "time"

// DownloadLog is an append-only audit record, one row per admitted download
// request. It is never consulted for cooldown decisions; the authoritative
// clock is users.last_download_at.
type DownloadLog struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       uint      `gorm:"index:idx_download_logs_user_time;not null" json:"user_id"`
	VideoID      string    `gorm:"size:36;index" json:"video_id"`
	DownloadedAt time.Time `gorm:"index:idx_download_logs_user_time;not null" json:"downloaded_at"`
}
