package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/forwardly/internal/apperr"
)

// FileSource reads objects kept by the in-memory store.
type FileSource interface {
	Get(key string) ([]byte, string, bool)
}

// FileHandler serves attachment bytes in development, when no bucket is configured.
type FileHandler struct {
	files FileSource
}

func NewFileHandler(files FileSource) *FileHandler {
	return &FileHandler{files: files}
}

func (h *FileHandler) Serve(c *fiber.Ctx) error {
	data, contentType, ok := h.files.Get(c.Params("*"))
	if !ok {
		return apperr.NotFound("file")
	}
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(data)
}
