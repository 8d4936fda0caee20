package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/models"
)

// TimelineService appends to and reads the status history of packages and
// purchase requests. Entries are never updated or removed.
type TimelineService struct {
	db  *gorm.DB
	now Clock
}

func NewTimelineService(db *gorm.DB, now Clock) *TimelineService {
	return &TimelineService{db: db, now: clockOrSystem(now)}
}

// TimelineEvent is the caller-supplied part of an entry.
type TimelineEvent struct {
	OwnerType   string
	OwnerID     uuid.UUID
	Status      string
	Description string
	Completed   bool
}

// Append adds an entry at the next position for the owner. Pass the active
// transaction as tx so the entry commits with the status change it records.
func (s *TimelineService) Append(ctx context.Context, tx *gorm.DB, ev TimelineEvent) (*models.TimelineEntry, error) {
	if tx == nil {
		tx = s.db
	}
	tx = tx.WithContext(ctx)

	var last struct{ Max *int }
	if err := tx.Model(&models.TimelineEntry{}).
		Select("MAX(position) AS max").
		Where("owner_type = ? AND owner_id = ?", ev.OwnerType, ev.OwnerID).
		Scan(&last).Error; err != nil {
		return nil, err
	}
	position := 1
	if last.Max != nil {
		position = *last.Max + 1
	}

	now := s.now()
	entry := &models.TimelineEntry{
		OwnerType:   ev.OwnerType,
		OwnerID:     ev.OwnerID,
		Position:    position,
		Status:      ev.Status,
		Date:        now.Format("2006-01-02"),
		Time:        now.Format("15:04"),
		Completed:   ev.Completed,
		Description: ev.Description,
		CreatedAt:   now,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns the owner's entries in append order.
func (s *TimelineService) List(ctx context.Context, ownerType string, ownerID uuid.UUID) ([]models.TimelineEntry, error) {
	entries := []models.TimelineEntry{}
	err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("position ASC").
		Find(&entries).Error
	return entries, err
}
