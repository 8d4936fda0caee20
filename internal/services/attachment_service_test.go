package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/models"
)

func (e *testEnv) uploadText(t *testing.T, userID uuid.UUID) *models.Attachment {
	t.Helper()
	body := "invoice #42"
	a, err := e.attachments.Upload(context.Background(), userID, Upload{
		FileName: "invoice.txt",
		MimeType: "text/plain",
		Size:     int64(len(body)),
		Body:     strings.NewReader(body),
		Type:     "receipt",
	})
	require.NoError(t, err)
	return a
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAttachment_UploadWithoutParent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, testPhone)

	a := env.uploadText(t, user.ID)
	assert.Nil(t, a.RelatedType)
	assert.Nil(t, a.RelatedID)
	assert.Empty(t, a.ThumbnailURL)
	assert.True(t, strings.HasPrefix(a.StorageKey, "attachments/"+user.ID.String()+"/2025/04/"))
	assert.True(t, strings.HasSuffix(a.StorageKey, ".txt"))
	assert.Equal(t, "http://files.test/"+a.StorageKey, a.URL)
	assert.True(t, env.store.Has(a.StorageKey))

	var row models.Attachment
	require.NoError(t, env.db.First(&row, "id = ?", a.ID).Error)
	assert.Nil(t, row.RelatedID)
}

func TestAttachment_ImageGetsThumbnail(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, testPhone)
	data := pngBytes(t, 800, 600)

	a, err := env.attachments.Upload(context.Background(), user.ID, Upload{
		FileName: "box.PNG",
		MimeType: "image/png",
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
		Type:     "photo",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(a.StorageKey, ".png"))
	require.NotEmpty(t, a.ThumbnailKey)
	assert.True(t, strings.HasPrefix(a.ThumbnailKey, "thumbnails/"))
	assert.True(t, env.store.Has(a.ThumbnailKey))
	assert.Equal(t, 2, env.store.Len())
}

func TestAttachment_BrokenImageStillUploads(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, testPhone)
	data := []byte("definitely not a png")

	a, err := env.attachments.Upload(context.Background(), user.ID, Upload{
		FileName: "broken.png",
		MimeType: "image/png",
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
		Type:     "photo",
	})
	require.NoError(t, err)
	assert.Empty(t, a.ThumbnailKey)
	assert.Equal(t, 1, env.store.Len())
}

func TestAttachment_UploadValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)
	other := env.createUser(t, "+212600000099")
	otherPkg, err := env.packages.Create(ctx, other.ID, NewPackage{TrackingNumber: "X"})
	require.NoError(t, err)

	pkgType := models.AttachmentRelatedPackage
	bogus := "invoice"

	cases := []struct {
		name string
		up   Upload
		want error
	}{
		{"empty", Upload{Size: 0}, apperr.ErrValidation},
		{"too large", Upload{Size: 21 * 1024 * 1024}, apperr.ErrValidation},
		{"bad type", Upload{Size: 1, Type: "video"}, apperr.ErrValidation},
		{"id without type", Upload{Size: 1, RelatedID: idPtr(otherPkg.ID)}, apperr.ErrValidation},
		{"unknown related type", Upload{Size: 1, RelatedType: &bogus}, apperr.ErrValidation},
		{"foreign parent", Upload{Size: 1, RelatedType: &pkgType, RelatedID: idPtr(otherPkg.ID)}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.up.Body = strings.NewReader("x")
			tc.up.FileName = "x.txt"
			_, err := env.attachments.Upload(ctx, user.ID, tc.up)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, env.store.Len())
}

func TestAttachment_UploadWithOwnedParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)
	pkg, err := env.packages.Create(ctx, user.ID, NewPackage{TrackingNumber: "P"})
	require.NoError(t, err)

	pkgType := models.AttachmentRelatedPackage
	a, err := env.attachments.Upload(ctx, user.ID, Upload{
		FileName:    "label.pdf",
		MimeType:    "application/pdf",
		Size:        3,
		Body:        strings.NewReader("pdf"),
		RelatedType: &pkgType,
		RelatedID:   &pkg.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "document", a.Type)

	list, err := env.attachments.List(ctx, user.ID, AttachmentFilter{RelatedType: pkgType, RelatedID: &pkg.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestAttachment_Link(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)
	other := env.createUser(t, "+212600000099")
	pkg, err := env.packages.Create(ctx, user.ID, NewPackage{TrackingNumber: "P"})
	require.NoError(t, err)
	otherPkg, err := env.packages.Create(ctx, other.ID, NewPackage{TrackingNumber: "Q"})
	require.NoError(t, err)

	a := env.uploadText(t, user.ID)

	_, err = env.attachments.Link(ctx, user.ID, a.ID, models.AttachmentRelatedPackage, otherPkg.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.attachments.Link(ctx, other.ID, a.ID, models.AttachmentRelatedPackage, otherPkg.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "cannot link someone else's file")

	_, err = env.attachments.Link(ctx, user.ID, a.ID, "order", pkg.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	linked, err := env.attachments.Link(ctx, user.ID, a.ID, models.AttachmentRelatedPackage, pkg.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.RelatedID)
	assert.Equal(t, pkg.ID, *linked.RelatedID)

	unlinked, err := env.attachments.List(ctx, user.ID, AttachmentFilter{})
	require.NoError(t, err)
	assert.Len(t, unlinked, 1)
}

func TestAttachment_DeleteToleratesStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)
	other := env.createUser(t, "+212600000099")

	a := env.uploadText(t, user.ID)
	assert.ErrorIs(t, env.attachments.Delete(ctx, other.ID, a.ID), apperr.ErrNotFound)

	env.store.DeleteErr = errors.New("bucket unavailable")
	require.NoError(t, env.attachments.Delete(ctx, user.ID, a.ID))

	var count int64
	require.NoError(t, env.db.Model(&models.Attachment{}).Where("id = ?", a.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.True(t, env.store.Has(a.StorageKey), "object is orphaned, row is gone")

	env.store.DeleteErr = nil
	b := env.uploadText(t, user.ID)
	require.NoError(t, env.attachments.Delete(ctx, user.ID, b.ID))
	assert.False(t, env.store.Has(b.StorageKey))

	assert.ErrorIs(t, env.attachments.Delete(ctx, user.ID, b.ID), apperr.ErrNotFound)
}
