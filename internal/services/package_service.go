package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/utils"
)

// PackageService manages shipments moving through the warehouse pipeline.
type PackageService struct {
	db       *gorm.DB
	timeline *TimelineService
	notifier notify.UserNotifier
	now      Clock
	log      logging.Logger
}

func NewPackageService(db *gorm.DB, timeline *TimelineService, notifier notify.UserNotifier, now Clock, log logging.Logger) *PackageService {
	return &PackageService{db: db, timeline: timeline, notifier: notifier, now: clockOrSystem(now), log: log}
}

// NewPackage is a customer pre-alert for an inbound shipment.
type NewPackage struct {
	TrackingNumber string      `json:"tracking_number"`
	Carrier        string      `json:"carrier"`
	StoreName      string      `json:"store_name"`
	Description    string      `json:"description"`
	WeightKg       float64     `json:"weight_kg"`
	DeclaredValue  float64     `json:"declared_value"`
	AttachmentIDs  []uuid.UUID `json:"attachment_ids"`
}

// PackageStatusChange is an operator move to the next pipeline step.
type PackageStatusChange struct {
	Status            string   `json:"status"`
	Description       string   `json:"description"`
	WarehouseLocation *string  `json:"warehouse_location"`
	WeightKg          *float64 `json:"weight_kg"`
}

// PackageFilter narrows listings.
type PackageFilter struct {
	Status string
	UserID *uuid.UUID
	Search string
}

// NextPackageStatus returns the step after status, or "" at the end of the
// pipeline.
func NextPackageStatus(status string) string {
	for i, s := range models.PackageStatuses {
		if s == status && i+1 < len(models.PackageStatuses) {
			return models.PackageStatuses[i+1]
		}
	}
	return ""
}

func validPackageStatus(status string) bool {
	for _, s := range models.PackageStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Create records a pre-alert with status expected and the first timeline entry.
func (s *PackageService) Create(ctx context.Context, userID uuid.UUID, in NewPackage) (*models.Package, error) {
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	if in.TrackingNumber == "" {
		return nil, apperr.Validation("tracking_number is required")
	}
	if in.WeightKg < 0 || in.DeclaredValue < 0 {
		return nil, apperr.Validation("weight and declared value cannot be negative")
	}

	pkg := &models.Package{
		UserID:         userID,
		TrackingNumber: in.TrackingNumber,
		Carrier:        strings.TrimSpace(in.Carrier),
		StoreName:      strings.TrimSpace(in.StoreName),
		Description:    strings.TrimSpace(in.Description),
		WeightKg:       in.WeightKg,
		DeclaredValue:  in.DeclaredValue,
		Status:         models.PackageStatusExpected,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pkg).Error; err != nil {
			return err
		}
		if err := linkAttachments(tx, userID, in.AttachmentIDs, models.AttachmentRelatedPackage, pkg.ID); err != nil {
			return err
		}
		entry, err := s.timeline.Append(ctx, tx, TimelineEvent{
			OwnerType:   models.TimelineOwnerPackage,
			OwnerID:     pkg.ID,
			Status:      pkg.Status,
			Description: "Package announced by customer",
			Completed:   true,
		})
		if err != nil {
			return err
		}
		pkg.Timeline = []models.TimelineEntry{*entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "package created", "package_id", pkg.ID, "user_id", userID, "tracking_number", pkg.TrackingNumber)
	return pkg, nil
}

// List returns the user's packages.
func (s *PackageService) List(ctx context.Context, userID uuid.UUID, status string, page utils.Pagination) ([]models.Package, int64, error) {
	return s.list(ctx, PackageFilter{Status: status, UserID: &userID}, page, false)
}

// ListAll returns packages of every user for operators.
func (s *PackageService) ListAll(ctx context.Context, f PackageFilter, page utils.Pagination) ([]models.Package, int64, error) {
	return s.list(ctx, f, page, true)
}

func (s *PackageService) list(ctx context.Context, f PackageFilter, page utils.Pagination, withUser bool) ([]models.Package, int64, error) {
	if f.Status != "" && !validPackageStatus(f.Status) {
		return nil, 0, apperr.Validation("unknown status")
	}

	query := s.db.WithContext(ctx).Model(&models.Package{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := likePattern(f.Search)
		query = query.Where(`(LOWER(tracking_number) LIKE ? ESCAPE '\' OR LOWER(store_name) LIKE ? ESCAPE '\')`, p, p)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if withUser {
		query = query.Preload("User")
	}
	packages := []models.Package{}
	if err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&packages).Error; err != nil {
		return nil, 0, err
	}
	return packages, total, nil
}

// Get returns one of the user's packages with its timeline.
func (s *PackageService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&pkg).Error; err != nil {
		return nil, mapFindErr(err, "package")
	}
	return s.withTimeline(ctx, &pkg)
}

// GetAny returns a package regardless of owner.
func (s *PackageService) GetAny(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	if err := s.db.WithContext(ctx).Preload("User").First(&pkg, "id = ?", id).Error; err != nil {
		return nil, mapFindErr(err, "package")
	}
	return s.withTimeline(ctx, &pkg)
}

func (s *PackageService) withTimeline(ctx context.Context, pkg *models.Package) (*models.Package, error) {
	entries, err := s.timeline.List(ctx, models.TimelineOwnerPackage, pkg.ID)
	if err != nil {
		return nil, err
	}
	pkg.Timeline = entries
	return pkg, nil
}

// UpdateStatus moves a package one step forward and records it on the timeline.
func (s *PackageService) UpdateStatus(ctx context.Context, id uuid.UUID, change PackageStatusChange) (*models.Package, error) {
	if !validPackageStatus(change.Status) {
		return nil, apperr.Validation("unknown status")
	}

	now := s.now()
	var pkg models.Package
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("User").First(&pkg, "id = ?", id).Error; err != nil {
			return mapFindErr(err, "package")
		}
		if next := NextPackageStatus(pkg.Status); next != change.Status {
			return apperr.Conflict(fmt.Sprintf("package cannot move from %s to %s", pkg.Status, change.Status))
		}

		from := pkg.Status
		updates := map[string]interface{}{"status": change.Status}
		switch change.Status {
		case models.PackageStatusWarehouse:
			updates["received_at"] = now
			pkg.ReceivedAt = &now
		case models.PackageStatusShipped:
			updates["shipped_at"] = now
			pkg.ShippedAt = &now
		case models.PackageStatusDelivered:
			updates["delivered_at"] = now
			pkg.DeliveredAt = &now
		}
		if change.WarehouseLocation != nil {
			updates["warehouse_location"] = strings.TrimSpace(*change.WarehouseLocation)
			pkg.WarehouseLocation = strings.TrimSpace(*change.WarehouseLocation)
		}
		if change.WeightKg != nil {
			if *change.WeightKg < 0 {
				return apperr.Validation("weight cannot be negative")
			}
			updates["weight_kg"] = *change.WeightKg
			pkg.WeightKg = *change.WeightKg
		}

		res := tx.Model(&models.Package{}).Where("id = ? AND status = ?", pkg.ID, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("package status changed concurrently")
		}
		pkg.Status = change.Status

		description := change.Description
		if description == "" {
			description = packageStatusDescription(change.Status)
		}
		_, err := s.timeline.Append(ctx, tx, TimelineEvent{
			OwnerType:   models.TimelineOwnerPackage,
			OwnerID:     pkg.ID,
			Status:      change.Status,
			Description: description,
			Completed:   true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "package status changed", "package_id", pkg.ID, "status", pkg.Status)
	s.notifyOwner(ctx, &pkg, change.Description)

	return s.withTimeline(ctx, &pkg)
}

func (s *PackageService) notifyOwner(ctx context.Context, pkg *models.Package, description string) {
	if pkg.User == nil || pkg.User.Email == nil {
		return
	}
	err := s.notifier.NotifyStatusChange(ctx, notify.StatusUpdate{
		Email:       *pkg.User.Email,
		Name:        pkg.User.DisplayName(),
		Subject:     "Package " + pkg.TrackingNumber,
		Status:      pkg.Status,
		Description: description,
	})
	if err != nil {
		s.log.Warn(ctx, "package status email failed", "package_id", pkg.ID, "error", err)
	}
}

func packageStatusDescription(status string) string {
	switch status {
	case models.PackageStatusWarehouse:
		return "Received at the warehouse"
	case models.PackageStatusShipped:
		return "Shipped to destination"
	case models.PackageStatusDelivered:
		return "Delivered"
	}
	return ""
}

// Label renders a PNG QR code of the tracking number for one of the user's packages.
func (s *PackageService) Label(ctx context.Context, userID, id uuid.UUID) ([]byte, error) {
	var pkg models.Package
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&pkg).Error; err != nil {
		return nil, mapFindErr(err, "package")
	}
	return qrcode.Encode(pkg.TrackingNumber, qrcode.Medium, 256)
}

// CountByStatus groups all packages by status.
func (s *PackageService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(s.db.WithContext(ctx).Model(&models.Package{}))
}

func countByStatus(query *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := query.Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
