package services

import (
	"bytes"
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/logging"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/storage"
)

var attachmentTypes = map[string]bool{
	"photo":    true,
	"receipt":  true,
	"document": true,
}

var relatedTypes = map[string]bool{
	models.AttachmentRelatedPackage:             true,
	models.AttachmentRelatedPurchaseRequest:     true,
	models.AttachmentRelatedPurchaseRequestItem: true,
	models.AttachmentRelatedPaymentRequest:      true,
}

// AttachmentService stores uploaded files and links them to business records.
type AttachmentService struct {
	db       *gorm.DB
	store    storage.ObjectStore
	maxBytes int64
	now      Clock
	log      logging.Logger
}

func NewAttachmentService(db *gorm.DB, store storage.ObjectStore, maxBytes int64, now Clock, log logging.Logger) *AttachmentService {
	return &AttachmentService{db: db, store: store, maxBytes: maxBytes, now: clockOrSystem(now), log: log}
}

// Upload is a file received from the client.
type Upload struct {
	FileName    string
	MimeType    string
	Size        int64
	Body        io.ReadSeeker
	Type        string
	RelatedType *string
	RelatedID   *uuid.UUID
}

// Upload stores the object (and a thumbnail for images) and records it.
// RelatedID stays NULL when the parent does not exist yet.
func (s *AttachmentService) Upload(ctx context.Context, userID uuid.UUID, up Upload) (*models.Attachment, error) {
	if up.Size <= 0 {
		return nil, apperr.Validation("file is empty")
	}
	if up.Size > s.maxBytes {
		return nil, apperr.Validationf("file exceeds the %d MB limit", s.maxBytes/(1024*1024))
	}
	if up.Type == "" {
		up.Type = "document"
	}
	if !attachmentTypes[up.Type] {
		return nil, apperr.Validation("type must be photo, receipt or document")
	}
	if up.RelatedID != nil && up.RelatedType == nil {
		return nil, apperr.Validation("relatedType is required with relatedId")
	}
	if up.RelatedType != nil && !relatedTypes[*up.RelatedType] {
		return nil, apperr.Validation("unknown relatedType")
	}
	if up.RelatedType != nil && up.RelatedID != nil {
		if err := relatedOwned(s.db.WithContext(ctx), userID, *up.RelatedType, *up.RelatedID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(up.FileName))
	key := path.Join("attachments", userID.String(), now.Format("2006"), now.Format("01"), id.String()+ext)

	url, err := s.store.Put(ctx, key, up.MimeType, up.Body, up.Size)
	if err != nil {
		return nil, apperr.Upstream("store attachment", err)
	}

	attachment := &models.Attachment{
		UserID:      userID,
		Type:        up.Type,
		URL:         url,
		StorageKey:  key,
		FileName:    filepath.Base(up.FileName),
		FileSize:    up.Size,
		MimeType:    up.MimeType,
		RelatedType: up.RelatedType,
		RelatedID:   up.RelatedID,
	}
	attachment.ID = id

	if storage.IsImage(up.MimeType) {
		s.attachThumbnail(ctx, attachment, up.Body, now)
	}

	if err := s.db.WithContext(ctx).Create(attachment).Error; err != nil {
		s.deleteObjects(ctx, attachment)
		return nil, apperr.Upstream("record attachment", err)
	}

	s.log.Info(ctx, "attachment uploaded", "attachment_id", attachment.ID, "user_id", userID, "size", up.Size)
	return attachment, nil
}

// attachThumbnail is best effort: a broken image still uploads without preview.
func (s *AttachmentService) attachThumbnail(ctx context.Context, a *models.Attachment, body io.ReadSeeker, now time.Time) {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		s.log.Warn(ctx, "thumbnail skipped", "attachment_id", a.ID, "error", err)
		return
	}
	thumb, err := storage.Thumbnail(body)
	if err != nil {
		s.log.Warn(ctx, "thumbnail skipped", "attachment_id", a.ID, "error", err)
		return
	}

	key := path.Join("thumbnails", a.UserID.String(), now.Format("2006"), now.Format("01"), a.ID.String()+".jpg")
	url, err := s.store.Put(ctx, key, "image/jpeg", bytes.NewReader(thumb), int64(len(thumb)))
	if err != nil {
		s.log.Warn(ctx, "thumbnail upload failed", "attachment_id", a.ID, "error", err)
		return
	}
	a.ThumbnailKey = key
	a.ThumbnailURL = url
}

// Link points an attachment at a record the caller owns.
func (s *AttachmentService) Link(ctx context.Context, userID, id uuid.UUID, relatedType string, relatedID uuid.UUID) (*models.Attachment, error) {
	if !relatedTypes[relatedType] {
		return nil, apperr.Validation("unknown relatedType")
	}

	var attachment models.Attachment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&attachment).Error; err != nil {
			return mapFindErr(err, "attachment")
		}
		if err := relatedOwned(tx, userID, relatedType, relatedID); err != nil {
			return err
		}
		attachment.RelatedType = &relatedType
		attachment.RelatedID = &relatedID
		return tx.Model(&attachment).Updates(map[string]interface{}{
			"related_type": relatedType,
			"related_id":   relatedID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

// Delete removes the database row. Storage deletion is attempted first and
// only logged when it fails.
func (s *AttachmentService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	var attachment models.Attachment
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&attachment).Error; err != nil {
		return mapFindErr(err, "attachment")
	}

	s.deleteObjects(ctx, &attachment)

	if err := s.db.WithContext(ctx).Delete(&models.Attachment{}, "id = ?", attachment.ID).Error; err != nil {
		return apperr.Upstream("delete attachment", err)
	}
	return nil
}

func (s *AttachmentService) deleteObjects(ctx context.Context, a *models.Attachment) {
	for _, key := range []string{a.StorageKey, a.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn(ctx, "storage delete failed", "attachment_id", a.ID, "key", key, "error", err)
		}
	}
}

// AttachmentFilter narrows List. Empty fields match everything.
type AttachmentFilter struct {
	RelatedType string
	RelatedID   *uuid.UUID
}

func (s *AttachmentService) List(ctx context.Context, userID uuid.UUID, f AttachmentFilter) ([]models.Attachment, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.RelatedType != "" {
		query = query.Where("related_type = ?", f.RelatedType)
	}
	if f.RelatedID != nil {
		query = query.Where("related_id = ?", *f.RelatedID)
	}

	attachments := []models.Attachment{}
	err := query.Order("created_at DESC").Find(&attachments).Error
	return attachments, err
}

// ListFor returns attachments linked to one record, regardless of uploader.
// Used when operators view a record.
func (s *AttachmentService) ListFor(ctx context.Context, relatedType string, relatedID uuid.UUID) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	err := s.db.WithContext(ctx).
		Where("related_type = ? AND related_id = ?", relatedType, relatedID).
		Order("created_at ASC").
		Find(&attachments).Error
	return attachments, err
}

// linkAttachments back-fills the relation on attachments uploaded before
// their parent existed. Every id must belong to userID.
func linkAttachments(tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID, relatedType string, relatedID uuid.UUID) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	res := tx.Model(&models.Attachment{}).
		Where("id IN ? AND user_id = ?", ids, userID).
		Updates(map[string]interface{}{
			"related_type": relatedType,
			"related_id":   relatedID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return apperr.Validation("one or more attachments do not exist")
	}
	return nil
}

// relatedOwned checks that the record exists and belongs to userID.
func relatedOwned(tx *gorm.DB, userID uuid.UUID, relatedType string, relatedID uuid.UUID) error {
	var count int64
	var err error

	switch relatedType {
	case models.AttachmentRelatedPackage:
		err = tx.Model(&models.Package{}).Where("id = ? AND user_id = ?", relatedID, userID).Count(&count).Error
	case models.AttachmentRelatedPurchaseRequest:
		err = tx.Model(&models.PurchaseRequest{}).Where("id = ? AND user_id = ?", relatedID, userID).Count(&count).Error
	case models.AttachmentRelatedPurchaseRequestItem:
		err = tx.Model(&models.PurchaseRequestItem{}).
			Joins("JOIN purchase_requests ON purchase_requests.id = purchase_request_items.purchase_request_id").
			Where("purchase_request_items.id = ? AND purchase_requests.user_id = ?", relatedID, userID).
			Count(&count).Error
	case models.AttachmentRelatedPaymentRequest:
		err = tx.Model(&models.PaymentRequest{}).Where("id = ? AND user_id = ?", relatedID, userID).Count(&count).Error
	default:
		return apperr.Validation("unknown relatedType")
	}
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.NotFound(strings.ReplaceAll(relatedType, "_", " "))
	}
	return nil
}
