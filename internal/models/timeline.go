package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TimelineOwnerPackage         = "package"
	TimelineOwnerPurchaseRequest = "purchase_request"
)

// TimelineEntry is one line of the append-only status history of a package
// or purchase request.
type TimelineEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerType   string    `gorm:"index:idx_timeline_owner;not null" json:"-"`
	OwnerID     uuid.UUID `gorm:"type:uuid;index:idx_timeline_owner;not null" json:"-"`
	Position    int       `gorm:"not null" json:"position"`
	Status      string    `gorm:"not null" json:"status"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Completed   bool      `json:"completed"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *TimelineEntry) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
