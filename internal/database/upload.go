package database

import "time"

type UploadStatus string

const (
	StatusUploading UploadStatus = "Uploading"
	StatusCompleted UploadStatus = "Completed"
)

// Upload is one resumable upload session, keyed by the SHA-256 of the
// full file so identical content always resumes the same session.
type Upload struct {
	ID        string       `gorm:"primaryKey"`
	FileName  string       `gorm:"not null"`
	FileSize  int64        `gorm:"not null"`
	FilePath  string       `gorm:"uniqueIndex;not null"`
	Status    UploadStatus `gorm:"not null"`
	CreatedAt time.Time
	Chunks    []*Chunk `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
