package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/utils"
)

var paymentStatuses = []string{
	models.PaymentStatusPending,
	models.PaymentStatusOverdue,
	models.PaymentStatusProcessing,
	models.PaymentStatusPaid,
}

func validPaymentStatus(status string) bool {
	for _, s := range paymentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// PaymentService manages amounts owed by customers.
type PaymentService struct {
	db        *gorm.DB
	operators notify.OperatorNotifier
	now       Clock
	log       logging.Logger
}

func NewPaymentService(db *gorm.DB, operators notify.OperatorNotifier, now Clock, log logging.Logger) *PaymentService {
	return &PaymentService{db: db, operators: operators, now: clockOrSystem(now), log: log}
}

// NewPaymentRequest is created by an operator. Amount is taken as given.
type NewPaymentRequest struct {
	UserID            uuid.UUID          `json:"user_id"`
	PurchaseRequestID *uuid.UUID         `json:"purchase_request_id"`
	PackageID         *uuid.UUID         `json:"package_id"`
	Description       string             `json:"description"`
	Amount            float64            `json:"amount"`
	Currency          string             `json:"currency"`
	DueDate           time.Time          `json:"due_date"`
	AcceptedMethods   []string           `json:"accepted_methods"`
	Breakdown         map[string]float64 `json:"breakdown"`
}

func (in *NewPaymentRequest) normalize() error {
	if in.UserID == uuid.Nil {
		return apperr.Validation("user_id is required")
	}
	if in.Amount <= 0 {
		return apperr.Validation("amount must be positive")
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(in.Currency) != 3 {
		return apperr.Validation("currency must be a 3-letter code")
	}
	if in.DueDate.IsZero() {
		return apperr.Validation("due_date is required")
	}
	methods := make([]string, 0, len(in.AcceptedMethods))
	for _, m := range in.AcceptedMethods {
		if m = strings.TrimSpace(m); m != "" {
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		return apperr.Validation("at least one accepted method is required")
	}
	in.AcceptedMethods = methods
	for key := range in.Breakdown {
		if strings.TrimSpace(key) == "" {
			return apperr.Validation("breakdown keys cannot be empty")
		}
	}
	return nil
}

// Create stores a payment request with its breakdown rows.
func (s *PaymentService) Create(ctx context.Context, in NewPaymentRequest) (*models.PaymentRequest, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	payment := &models.PaymentRequest{
		UserID:            in.UserID,
		PurchaseRequestID: in.PurchaseRequestID,
		PackageID:         in.PackageID,
		Description:       strings.TrimSpace(in.Description),
		Amount:            in.Amount,
		Currency:          in.Currency,
		DueDate:           in.DueDate.UTC(),
		Status:            models.PaymentStatusPending,
		AcceptedMethods:   in.AcceptedMethods,
	}
	for key, amount := range in.Breakdown {
		payment.BreakdownItems = append(payment.BreakdownItems, models.PaymentBreakdownItem{Key: key, Amount: amount})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", in.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound("user")
		}
		if in.PurchaseRequestID != nil {
			if err := relatedOwned(tx, in.UserID, models.AttachmentRelatedPurchaseRequest, *in.PurchaseRequestID); err != nil {
				return err
			}
		}
		if in.PackageID != nil {
			if err := relatedOwned(tx, in.UserID, models.AttachmentRelatedPackage, *in.PackageID); err != nil {
				return err
			}
		}
		return tx.Create(payment).Error
	})
	if err != nil {
		return nil, err
	}

	payment.AssembleBreakdown()
	s.log.Info(ctx, "payment request created", "payment_id", payment.ID, "user_id", payment.UserID, "amount", payment.Amount)
	return payment, nil
}

// List returns the user's payment requests, optionally filtered by status.
func (s *PaymentService) List(ctx context.Context, userID uuid.UUID, status string, page utils.Pagination) ([]models.PaymentRequest, int64, error) {
	return s.list(ctx, &userID, status, page)
}

// ListAll returns payment requests of every user for operators.
func (s *PaymentService) ListAll(ctx context.Context, status string, page utils.Pagination) ([]models.PaymentRequest, int64, error) {
	return s.list(ctx, nil, status, page)
}

func (s *PaymentService) list(ctx context.Context, userID *uuid.UUID, status string, page utils.Pagination) ([]models.PaymentRequest, int64, error) {
	if status != "" && !validPaymentStatus(status) {
		return nil, 0, apperr.Validation("unknown status")
	}

	query := s.db.WithContext(ctx).Model(&models.PaymentRequest{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	payments := []models.PaymentRequest{}
	if err := query.Preload("BreakdownItems").Order("due_date ASC").Limit(page.Limit).Offset(page.Offset).Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	for i := range payments {
		payments[i].AssembleBreakdown()
	}
	return payments, total, nil
}

// Get returns one of the user's payment requests with its breakdown.
func (s *PaymentService) Get(ctx context.Context, userID, id uuid.UUID) (*models.PaymentRequest, error) {
	var payment models.PaymentRequest
	err := s.db.WithContext(ctx).Preload("BreakdownItems").
		Where("id = ? AND user_id = ?", id, userID).
		First(&payment).Error
	if err != nil {
		return nil, mapFindErr(err, "payment request")
	}
	payment.AssembleBreakdown()
	return &payment, nil
}

func (s *PaymentService) getAny(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	var payment models.PaymentRequest
	if err := s.db.WithContext(ctx).Preload("BreakdownItems").First(&payment, "id = ?", id).Error; err != nil {
		return nil, mapFindErr(err, "payment request")
	}
	payment.AssembleBreakdown()
	return &payment, nil
}

// Pay records that the customer paid with method. The operator confirms later.
func (s *PaymentService) Pay(ctx context.Context, userID, id uuid.UUID, method string) (*models.PaymentRequest, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, apperr.Validation("method is required")
	}

	payment, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !payment.AcceptsMethod(method) {
		return nil, apperr.Validationf("method %q is not accepted for this payment", method)
	}
	if payment.Status != models.PaymentStatusPending && payment.Status != models.PaymentStatusOverdue {
		return nil, apperr.Conflict(fmt.Sprintf("payment is already %s", payment.Status))
	}

	res := s.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, []string{models.PaymentStatusPending, models.PaymentStatusOverdue}).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusProcessing,
			"payment_method": method,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("payment status changed concurrently")
	}
	payment.Status = models.PaymentStatusProcessing
	payment.PaymentMethod = method

	s.log.Info(ctx, "payment submitted", "payment_id", id, "user_id", userID, "method", method)
	s.alertOperators(ctx, payment)
	return payment, nil
}

func (s *PaymentService) alertOperators(ctx context.Context, payment *models.PaymentRequest) {
	var owner models.User
	if err := s.db.WithContext(ctx).First(&owner, "id = ?", payment.UserID).Error; err != nil {
		s.log.Warn(ctx, "payment alert skipped", "payment_id", payment.ID, "error", err)
		return
	}
	err := s.operators.NotifyPaymentProcessing(ctx, notify.PaymentAlert{
		PaymentID:     payment.ID.String(),
		CustomerName:  owner.DisplayName(),
		CustomerPhone: owner.Phone,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Method:        payment.PaymentMethod,
	})
	if err != nil {
		s.log.Warn(ctx, "payment alert failed", "payment_id", payment.ID, "error", err)
	}
}

// UpdateStatus is the operator decision on a payment: confirm (paid) or
// reject a submitted payment back to pending.
func (s *PaymentService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.PaymentRequest, error) {
	var allowedFrom []string
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.PaymentStatusPaid:
		allowedFrom = []string{models.PaymentStatusPending, models.PaymentStatusOverdue, models.PaymentStatusProcessing}
		updates["paid_date"] = s.now()
	case models.PaymentStatusPending:
		allowedFrom = []string{models.PaymentStatusProcessing}
		updates["payment_method"] = ""
	default:
		return nil, apperr.Validation("status must be paid or pending")
	}

	current, err := s.getAny(ctx, id)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict(fmt.Sprintf("payment cannot move from %s to %s", current.Status, status))
	}

	s.log.Info(ctx, "payment status changed", "payment_id", id, "from", current.Status, "to", status)
	return s.getAny(ctx, id)
}

// MarkOverdue flags pending payments whose due date has passed.
func (s *PaymentService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("status = ? AND due_date < ?", models.PaymentStatusPending, now).
		Update("status", models.PaymentStatusOverdue)
	return res.RowsAffected, res.Error
}

// StatusTotals is the count and summed amount of payments in one status.
type StatusTotals struct {
	Count  int64   `json:"count"`
	Amount float64 `json:"amount"`
}

// PaymentStats summarises payments per status.
type PaymentStats struct {
	Pending     StatusTotals `json:"pending"`
	Overdue     StatusTotals `json:"overdue"`
	Processing  StatusTotals `json:"processing"`
	Paid        StatusTotals `json:"paid"`
	Outstanding float64      `json:"outstanding"`
}

// Stats aggregates the user's payments; pass uuid.Nil for all users. A failed
// query is returned as an error, never as zeros.
func (s *PaymentService) Stats(ctx context.Context, userID uuid.UUID) (PaymentStats, error) {
	query := s.db.WithContext(ctx).Model(&models.PaymentRequest{})
	if userID != uuid.Nil {
		query = query.Where("user_id = ?", userID)
	}

	var rows []struct {
		Status string
		Count  int64
		Amount float64
	}
	if err := query.Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Scan(&rows).Error; err != nil {
		return PaymentStats{}, apperr.Upstream("payment stats", err)
	}

	var stats PaymentStats
	for _, r := range rows {
		totals := StatusTotals{Count: r.Count, Amount: r.Amount}
		switch r.Status {
		case models.PaymentStatusPending:
			stats.Pending = totals
		case models.PaymentStatusOverdue:
			stats.Overdue = totals
		case models.PaymentStatusProcessing:
			stats.Processing = totals
		case models.PaymentStatusPaid:
			stats.Paid = totals
		}
	}
	stats.Outstanding = stats.Pending.Amount + stats.Overdue.Amount + stats.Processing.Amount
	return stats, nil
}
