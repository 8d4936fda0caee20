package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/models"
)

// DashboardStats feeds the operator dashboard.
type DashboardStats struct {
	TotalUsers        int64            `json:"total_users"`
	PackagesByStatus  map[string]int64 `json:"packages_by_status"`
	PurchasesByStatus map[string]int64 `json:"purchase_requests_by_status"`
	Payments          PaymentStats     `json:"payments"`
}

// AdminService aggregates figures across services for operators.
type AdminService struct {
	db        *gorm.DB
	packages  *PackageService
	purchases *PurchaseService
	payments  *PaymentService
}

func NewAdminService(db *gorm.DB, packages *PackageService, purchases *PurchaseService, payments *PaymentService) *AdminService {
	return &AdminService{db: db, packages: packages, purchases: purchases, payments: payments}
}

func (s *AdminService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}

	var err error
	if stats.PackagesByStatus, err = s.packages.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if stats.PurchasesByStatus, err = s.purchases.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if stats.Payments, err = s.payments.Stats(ctx, uuid.Nil); err != nil {
		return nil, err
	}
	return stats, nil
}
