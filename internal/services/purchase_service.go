package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/notify"
	"github.com/example/forwardly/internal/utils"
)

// operator-driven transitions; cancellation by the owner is handled separately
var purchaseTransitions = map[string][]string{
	models.PurchaseStatusPendingReview:      {models.PurchaseStatusQuoted, models.PurchaseStatusRejected},
	models.PurchaseStatusQuoted:             {models.PurchaseStatusPaid, models.PurchaseStatusRejected},
	models.PurchaseStatusPaid:               {models.PurchaseStatusPurchased},
	models.PurchaseStatusPurchased:          {models.PurchaseStatusShippedToWarehouse},
	models.PurchaseStatusShippedToWarehouse: {models.PurchaseStatusCompleted},
}

var purchaseStatuses = map[string]bool{
	models.PurchaseStatusPendingReview:      true,
	models.PurchaseStatusQuoted:             true,
	models.PurchaseStatusPaid:               true,
	models.PurchaseStatusPurchased:          true,
	models.PurchaseStatusShippedToWarehouse: true,
	models.PurchaseStatusCompleted:          true,
	models.PurchaseStatusRejected:           true,
	models.PurchaseStatusCancelled:          true,
}

// CanTransitionPurchase reports whether an operator may move a request from one status to another.
func CanTransitionPurchase(from, to string) bool {
	for _, s := range purchaseTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func cancellable(status string) bool {
	return status == models.PurchaseStatusPendingReview || status == models.PurchaseStatusQuoted
}

// PurchaseService handles requests to buy goods on a customer's behalf.
type PurchaseService struct {
	db        *gorm.DB
	timeline  *TimelineService
	users     notify.UserNotifier
	operators notify.OperatorNotifier
	now       Clock
	log       logging.Logger
}

func NewPurchaseService(db *gorm.DB, timeline *TimelineService, users notify.UserNotifier, operators notify.OperatorNotifier, now Clock, log logging.Logger) *PurchaseService {
	return &PurchaseService{
		db:        db,
		timeline:  timeline,
		users:     users,
		operators: operators,
		now:       clockOrSystem(now),
		log:       log,
	}
}

type NewPurchaseItem struct {
	ProductURL    string      `json:"product_url"`
	Name          string      `json:"name"`
	Options       string      `json:"options"`
	Quantity      int         `json:"quantity"`
	UnitPrice     float64     `json:"unit_price"`
	Notes         string      `json:"notes"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids"`
}

type NewPurchaseRequest struct {
	StoreName     string            `json:"store_name"`
	Notes         string            `json:"notes"`
	Items         []NewPurchaseItem `json:"items"`
	AttachmentIDs []uuid.UUID       `json:"attachment_ids"`
}

// PurchaseFilter narrows listings.
type PurchaseFilter struct {
	Status string
	UserID *uuid.UUID
	Search string
}

func (in NewPurchaseRequest) validate() error {
	if len(in.Items) == 0 {
		return apperr.Validation("at least one item is required")
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.Name) == "" && strings.TrimSpace(item.ProductURL) == "" {
			return apperr.Validationf("item %d needs a name or product_url", i+1)
		}
		if item.Quantity < 1 {
			return apperr.Validationf("item %d quantity must be at least 1", i+1)
		}
		if item.UnitPrice < 0 {
			return apperr.Validationf("item %d unit_price cannot be negative", i+1)
		}
	}
	return nil
}

func (s *PurchaseService) newRequestNumber() (string, error) {
	suffix, err := utils.RandomToken(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PR-%s-%s", s.now().Format("20060102"), strings.ToUpper(suffix)), nil
}

// Create stores the request with its items and links attachments uploaded
// beforehand, at request or item level.
func (s *PurchaseService) Create(ctx context.Context, userID uuid.UUID, in NewPurchaseRequest) (*models.PurchaseRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	number, err := s.newRequestNumber()
	if err != nil {
		return nil, err
	}

	req := &models.PurchaseRequest{
		UserID:        userID,
		RequestNumber: number,
		Status:        models.PurchaseStatusPendingReview,
		StoreName:     strings.TrimSpace(in.StoreName),
		Notes:         strings.TrimSpace(in.Notes),
	}
	for _, item := range in.Items {
		req.Items = append(req.Items, models.PurchaseRequestItem{
			ProductURL: strings.TrimSpace(item.ProductURL),
			Name:       strings.TrimSpace(item.Name),
			Options:    strings.TrimSpace(item.Options),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Notes:      strings.TrimSpace(item.Notes),
		})
		req.ItemsTotal += float64(item.Quantity) * item.UnitPrice
	}

	var owner models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&owner, "id = ?", userID).Error; err != nil {
			return mapFindErr(err, "user")
		}
		if err := tx.Create(req).Error; err != nil {
			if isDuplicate(err) {
				return apperr.Conflict("request number collision, retry")
			}
			return err
		}
		if err := linkAttachments(tx, userID, in.AttachmentIDs, models.AttachmentRelatedPurchaseRequest, req.ID); err != nil {
			return err
		}
		for i, item := range in.Items {
			if err := linkAttachments(tx, userID, item.AttachmentIDs, models.AttachmentRelatedPurchaseRequestItem, req.Items[i].ID); err != nil {
				return err
			}
		}

		entry, err := s.timeline.Append(ctx, tx, TimelineEvent{
			OwnerType:   models.TimelineOwnerPurchaseRequest,
			OwnerID:     req.ID,
			Status:      req.Status,
			Description: "Request submitted for review",
			Completed:   true,
		})
		if err != nil {
			return err
		}
		req.Timeline = []models.TimelineEntry{*entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "purchase request created", "request_id", req.ID, "request_number", req.RequestNumber, "user_id", userID)
	s.alertOperators(ctx, req, &owner)
	return req, nil
}

func (s *PurchaseService) alertOperators(ctx context.Context, req *models.PurchaseRequest, owner *models.User) {
	alert := notify.PurchaseAlert{
		RequestNumber: req.RequestNumber,
		CustomerName:  owner.DisplayName(),
		CustomerPhone: owner.Phone,
		StoreName:     req.StoreName,
		Total:         req.ItemsTotal,
	}
	for _, item := range req.Items {
		name := item.Name
		if name == "" {
			name = item.ProductURL
		}
		alert.Items = append(alert.Items, notify.PurchaseAlertItem{Name: name, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	if err := s.operators.NotifyNewPurchaseRequest(ctx, alert); err != nil {
		s.log.Warn(ctx, "purchase request alert failed", "request_id", req.ID, "error", err)
	}
}

func (s *PurchaseService) List(ctx context.Context, userID uuid.UUID, status string, page utils.Pagination) ([]models.PurchaseRequest, int64, error) {
	return s.list(ctx, PurchaseFilter{Status: status, UserID: &userID}, page, false)
}

func (s *PurchaseService) ListAll(ctx context.Context, f PurchaseFilter, page utils.Pagination) ([]models.PurchaseRequest, int64, error) {
	return s.list(ctx, f, page, true)
}

func (s *PurchaseService) list(ctx context.Context, f PurchaseFilter, page utils.Pagination, withUser bool) ([]models.PurchaseRequest, int64, error) {
	if f.Status != "" && !purchaseStatuses[f.Status] {
		return nil, 0, apperr.Validation("unknown status")
	}

	query := s.db.WithContext(ctx).Model(&models.PurchaseRequest{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := likePattern(f.Search)
		query = query.Where(`(LOWER(request_number) LIKE ? ESCAPE '\' OR LOWER(store_name) LIKE ? ESCAPE '\')`, p, p)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("Items")
	if withUser {
		query = query.Preload("User")
	}
	requests := []models.PurchaseRequest{}
	if err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// Get returns one of the user's requests with items and timeline.
func (s *PurchaseService) Get(ctx context.Context, userID, id uuid.UUID) (*models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	if err := s.db.WithContext(ctx).Preload("Items").Where("id = ? AND user_id = ?", id, userID).First(&req).Error; err != nil {
		return nil, mapFindErr(err, "purchase request")
	}
	return s.withTimeline(ctx, &req)
}

// GetAny returns a request regardless of owner.
func (s *PurchaseService) GetAny(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	var req models.PurchaseRequest
	if err := s.db.WithContext(ctx).Preload("Items").Preload("User").First(&req, "id = ?", id).Error; err != nil {
		return nil, mapFindErr(err, "purchase request")
	}
	return s.withTimeline(ctx, &req)
}

func (s *PurchaseService) withTimeline(ctx context.Context, req *models.PurchaseRequest) (*models.PurchaseRequest, error) {
	entries, err := s.timeline.List(ctx, models.TimelineOwnerPurchaseRequest, req.ID)
	if err != nil {
		return nil, err
	}
	req.Timeline = entries
	return req, nil
}

// Cancel lets the owner withdraw a request that has not been paid yet.
func (s *PurchaseService) Cancel(ctx context.Context, userID, id uuid.UUID) (*models.PurchaseRequest, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.PurchaseRequest
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&req).Error; err != nil {
			return mapFindErr(err, "purchase request")
		}
		if !cancellable(req.Status) {
			return apperr.Conflict(fmt.Sprintf("a %s request cannot be cancelled", strings.ReplaceAll(req.Status, "_", " ")))
		}
		return s.transition(ctx, tx, &req, models.PurchaseStatusCancelled, "", "Cancelled by customer")
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "purchase request cancelled", "request_id", id, "user_id", userID)
	return s.Get(ctx, userID, id)
}

// PurchaseStatusChange is an operator decision on a request.
type PurchaseStatusChange struct {
	Status          string `json:"status"`
	OperatorComment string `json:"operator_comment"`
	Description     string `json:"description"`
}

// UpdateStatus applies an operator transition and notifies the owner.
func (s *PurchaseService) UpdateStatus(ctx context.Context, id uuid.UUID, change PurchaseStatusChange) (*models.PurchaseRequest, error) {
	if !purchaseStatuses[change.Status] {
		return nil, apperr.Validation("unknown status")
	}

	var req models.PurchaseRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("User").First(&req, "id = ?", id).Error; err != nil {
			return mapFindErr(err, "purchase request")
		}
		if !CanTransitionPurchase(req.Status, change.Status) {
			return apperr.Conflict(fmt.Sprintf("purchase request cannot move from %s to %s", req.Status, change.Status))
		}
		description := change.Description
		if description == "" {
			description = purchaseStatusDescription(change.Status)
		}
		return s.transition(ctx, tx, &req, change.Status, change.OperatorComment, description)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "purchase request status changed", "request_id", req.ID, "status", req.Status)
	if req.User != nil && req.User.Email != nil {
		if err := s.users.NotifyStatusChange(ctx, notify.StatusUpdate{
			Email:       *req.User.Email,
			Name:        req.User.DisplayName(),
			Subject:     "Purchase request " + req.RequestNumber,
			Status:      req.Status,
			Description: change.OperatorComment,
		}); err != nil {
			s.log.Warn(ctx, "purchase status email failed", "request_id", req.ID, "error", err)
		}
	}

	return s.GetAny(ctx, id)
}

func (s *PurchaseService) transition(ctx context.Context, tx *gorm.DB, req *models.PurchaseRequest, to, comment, description string) error {
	updates := map[string]interface{}{"status": to}
	if comment != "" {
		updates["operator_comment"] = strings.TrimSpace(comment)
	}

	res := tx.Model(&models.PurchaseRequest{}).Where("id = ? AND status = ?", req.ID, req.Status).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("purchase request status changed concurrently")
	}
	req.Status = to

	_, err := s.timeline.Append(ctx, tx, TimelineEvent{
		OwnerType:   models.TimelineOwnerPurchaseRequest,
		OwnerID:     req.ID,
		Status:      to,
		Description: description,
		Completed:   true,
	})
	return err
}

func purchaseStatusDescription(status string) string {
	switch status {
	case models.PurchaseStatusQuoted:
		return "Quote sent"
	case models.PurchaseStatusPaid:
		return "Payment received"
	case models.PurchaseStatusPurchased:
		return "Items purchased from the store"
	case models.PurchaseStatusShippedToWarehouse:
		return "Store shipped the items to our warehouse"
	case models.PurchaseStatusCompleted:
		return "Request completed"
	case models.PurchaseStatusRejected:
		return "Request rejected"
	}
	return ""
}

// CountByStatus groups all requests by status.
func (s *PurchaseService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(s.db.WithContext(ctx).Model(&models.PurchaseRequest{}))
}
