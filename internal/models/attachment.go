package models

import (
	"github.com/google/uuid"
)

const (
	AttachmentRelatedPackage             = "package"
	AttachmentRelatedPurchaseRequest     = "purchase_request"
	AttachmentRelatedPurchaseRequestItem = "purchase_request_item"
	AttachmentRelatedPaymentRequest      = "payment_request"
)

// Attachment is a stored file owned by a user. RelatedID stays NULL until the
// parent record exists.
type Attachment struct {
	BaseModel
	UserID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Type         string     `json:"type"`
	URL          string     `gorm:"not null" json:"url"`
	StorageKey   string     `gorm:"not null" json:"-"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	ThumbnailKey string     `json:"-"`
	FileName     string     `json:"file_name"`
	FileSize     int64      `json:"file_size"`
	MimeType     string     `json:"mime_type"`
	RelatedType  *string    `gorm:"index:idx_attachment_related" json:"related_type"`
	RelatedID    *uuid.UUID `gorm:"type:uuid;index:idx_attachment_related" json:"related_id"`
}
