package database

// Chunk is one verified slice of an upload, persisted on disk as
// chunk_{number} under the session's temp directory.
type Chunk struct {
	ID          uint   `gorm:"primaryKey"`
	UploadID    string `gorm:"index:,unique,composite:upload_chunk;not null"`
	ChunkNumber int    `gorm:"index:,unique,composite:upload_chunk;not null"`
	ChunkSize   int64  `gorm:"not null"`
	ChunkHash   string `gorm:"not null"`
}
