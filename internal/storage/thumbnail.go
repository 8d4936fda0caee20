package storage

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// ThumbnailWidth is the width of generated previews; height keeps the aspect ratio.
const ThumbnailWidth = 320

// ErrNotImage is returned when the input cannot be decoded as an image.
var ErrNotImage = errors.New("not a decodable image")

// IsImage reports whether a MIME type gets a thumbnail.
func IsImage(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif":
		return true
	}
	return false
}

// Thumbnail decodes src and returns a JPEG no wider than ThumbnailWidth.
func Thumbnail(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, ErrNotImage
	}

	if img.Bounds().Dx() > ThumbnailWidth {
		img = resize.Resize(ThumbnailWidth, 0, img, resize.Lanczos3)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
