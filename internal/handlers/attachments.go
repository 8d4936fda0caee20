package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/services"
)

// AttachmentHandler serves file uploads and their links to records.
type AttachmentHandler struct {
	attachments *services.AttachmentService
}

func NewAttachmentHandler(attachments *services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload accepts multipart form fields file, type, relatedType and relatedId.
// relatedId may be omitted when the parent record does not exist yet.
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("file is required")
	}

	relatedType := optionalForm(c, "relatedType")
	var relatedID *uuid.UUID
	if raw := optionalForm(c, "relatedId"); raw != nil {
		id, err := uuid.Parse(*raw)
		if err != nil {
			return apperr.Validation("invalid relatedId")
		}
		relatedID = &id
	}

	file, err := header.Open()
	if err != nil {
		return apperr.Validation("cannot read uploaded file")
	}
	defer file.Close()

	mimeType, err := contentType(header.Header.Get(fiber.HeaderContentType), file)
	if err != nil {
		return err
	}

	attachment, err := h.attachments.Upload(c.UserContext(), userID, services.Upload{
		FileName:    header.Filename,
		MimeType:    mimeType,
		Size:        header.Size,
		Body:        file,
		Type:        strings.TrimSpace(c.FormValue("type")),
		RelatedType: relatedType,
		RelatedID:   relatedID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": attachment})
}

func optionalForm(c *fiber.Ctx, key string) *string {
	v := strings.TrimSpace(c.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}

// contentType trusts the declared type unless it is missing or generic, in
// which case the first bytes are sniffed.
func contentType(declared string, body io.ReadSeeker) (string, error) {
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

type linkAttachmentRequest struct {
	RelatedType string    `json:"relatedType"`
	RelatedID   uuid.UUID `json:"relatedId"`
}

// Link sets related_type and related_id on one of the caller's attachments.
func (h *AttachmentHandler) Link(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req linkAttachmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.RelatedType == "" || req.RelatedID == uuid.Nil {
		return apperr.Validation("relatedType and relatedId are required")
	}

	attachment, err := h.attachments.Link(c.UserContext(), userID, id, req.RelatedType, req.RelatedID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": attachment})
}

// Delete removes the attachment row; a failed storage delete is only logged.
func (h *AttachmentHandler) Delete(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.attachments.Delete(c.UserContext(), userID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// List filters the caller's attachments by relatedType and relatedId.
func (h *AttachmentHandler) List(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	filter := services.AttachmentFilter{RelatedType: c.Query("relatedType")}
	if raw := c.Query("relatedId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Validation("invalid relatedId")
		}
		filter.RelatedID = &id
	}

	attachments, err := h.attachments.List(c.UserContext(), userID, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": attachments})
}
