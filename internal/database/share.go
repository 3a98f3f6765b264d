package database

// Share is a file registered for download. IDs come from the caller's
// snowflake-style generator, never from the database.
type Share struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false"`
	FileName string `gorm:"not null"`
	FilePath string `gorm:"not null"`
	MimeType string `gorm:"not null"`
}
