package models

import "time"

// Document is the metadata row for an attachment (photo, scanned paper)
// stored in the object store. Image attachments also get a thumbnail object.
type Document struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DetaineeID   uint   `gorm:"index;not null" json:"detainee_id"`
	FileName     string `gorm:"size:255;not null" json:"file_name"`
	ObjectKey    string `gorm:"size:512;not null" json:"object_key"`
	ThumbnailKey string `gorm:"size:512" json:"thumbnail_key,omitempty"`
	ContentType  string `gorm:"size:128" json:"content_type"`
	SizeBytes    int64  `gorm:"not null;default:0" json:"size_bytes"`
	UploadedBy   *uint  `gorm:"index" json:"-"`
}
