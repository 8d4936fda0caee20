package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/models"
	"github.com/example/forwardly/internal/utils"
)

func samplePurchase() NewPurchaseRequest {
	return NewPurchaseRequest{
		StoreName: "Nike",
		Items: []NewPurchaseItem{
			{Name: "Air Max", Options: "EU 42", Quantity: 2, UnitPrice: 120},
			{ProductURL: "https://nike.example/socks", Quantity: 3, UnitPrice: 9.5},
		},
	}
}

func TestCanTransitionPurchase(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{models.PurchaseStatusPendingReview, models.PurchaseStatusQuoted, true},
		{models.PurchaseStatusPendingReview, models.PurchaseStatusRejected, true},
		{models.PurchaseStatusPendingReview, models.PurchaseStatusPaid, false},
		{models.PurchaseStatusQuoted, models.PurchaseStatusPaid, true},
		{models.PurchaseStatusPaid, models.PurchaseStatusPurchased, true},
		{models.PurchaseStatusPaid, models.PurchaseStatusRejected, false},
		{models.PurchaseStatusPurchased, models.PurchaseStatusShippedToWarehouse, true},
		{models.PurchaseStatusShippedToWarehouse, models.PurchaseStatusCompleted, true},
		{models.PurchaseStatusCompleted, models.PurchaseStatusPendingReview, false},
		{models.PurchaseStatusCancelled, models.PurchaseStatusQuoted, false},
		{models.PurchaseStatusQuoted, models.PurchaseStatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransitionPurchase(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPurchase_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)

	req, err := env.purchases.Create(ctx, user.ID, samplePurchase())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^PR-20250410-[0-9A-F]{6}$`), req.RequestNumber)
	assert.Equal(t, models.PurchaseStatusPendingReview, req.Status)
	assert.InDelta(t, 268.5, req.ItemsTotal, 0.001)
	require.Len(t, req.Items, 2)
	require.Len(t, req.Timeline, 1)

	require.Len(t, env.notifier.purchases, 1)
	alert := env.notifier.purchases[0]
	assert.Equal(t, req.RequestNumber, alert.RequestNumber)
	assert.Equal(t, testPhone, alert.CustomerPhone)
	require.Len(t, alert.Items, 2)
	assert.Equal(t, "https://nike.example/socks", alert.Items[1].Name)
}

func TestPurchase_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)

	bad := []NewPurchaseRequest{
		{},
		{Items: []NewPurchaseItem{{Quantity: 1}}},
		{Items: []NewPurchaseItem{{Name: "x", Quantity: 0}}},
		{Items: []NewPurchaseItem{{Name: "x", Quantity: 1, UnitPrice: -1}}},
	}
	for _, in := range bad {
		_, err := env.purchases.Create(ctx, user.ID, in)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}

	_, err := env.purchases.Create(ctx, uuid.New(), samplePurchase())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, env.notifier.purchases)
}

func TestPurchase_AlertFailureDoesNotFailCreate(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, testPhone)
	env.notifier.err = errors.New("telegram down")

	_, err := env.purchases.Create(context.Background(), user.ID, samplePurchase())
	require.NoError(t, err)
}

func TestPurchase_CreateLinksRequestAndItemAttachments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)

	screenshot := env.uploadText(t, user.ID)
	itemPhoto := env.uploadText(t, user.ID)

	in := samplePurchase()
	in.AttachmentIDs = []uuid.UUID{screenshot.ID}
	in.Items[0].AttachmentIDs = []uuid.UUID{itemPhoto.ID}

	req, err := env.purchases.Create(ctx, user.ID, in)
	require.NoError(t, err)

	onRequest, err := env.attachments.ListFor(ctx, models.AttachmentRelatedPurchaseRequest, req.ID)
	require.NoError(t, err)
	require.Len(t, onRequest, 1)
	assert.Equal(t, screenshot.ID, onRequest[0].ID)

	onItem, err := env.attachments.ListFor(ctx, models.AttachmentRelatedPurchaseRequestItem, req.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, onItem, 1)
	assert.Equal(t, itemPhoto.ID, onItem[0].ID)

	// attachments can later be linked to the item through the owner check
	late := env.uploadText(t, user.ID)
	_, err = env.attachments.Link(ctx, user.ID, late.ID, models.AttachmentRelatedPurchaseRequestItem, req.Items[1].ID)
	require.NoError(t, err)
}

func TestPurchase_OperatorFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUserWithEmail(t, testPhone, "buyer@example.com")

	req, err := env.purchases.Create(ctx, user.ID, samplePurchase())
	require.NoError(t, err)

	got, err := env.purchases.UpdateStatus(ctx, req.ID, PurchaseStatusChange{Status: models.PurchaseStatusQuoted, OperatorComment: "Total 2900 MAD incl. fees"})
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatusQuoted, got.Status)
	assert.Equal(t, "Total 2900 MAD incl. fees", got.OperatorComment)
	require.NotNil(t, got.User)

	_, err = env.purchases.UpdateStatus(ctx, req.ID, PurchaseStatusChange{Status: models.PurchaseStatusPurchased})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.purchases.UpdateStatus(ctx, req.ID, PurchaseStatusChange{Status: "shipped"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for _, status := range []string{
		models.PurchaseStatusPaid,
		models.PurchaseStatusPurchased,
		models.PurchaseStatusShippedToWarehouse,
		models.PurchaseStatusCompleted,
	} {
		got, err = env.purchases.UpdateStatus(ctx, req.ID, PurchaseStatusChange{Status: status})
		require.NoError(t, err, status)
	}
	assert.Equal(t, "Total 2900 MAD incl. fees", got.OperatorComment, "empty comment keeps the previous one")
	require.Len(t, got.Timeline, 6)
	assert.Equal(t, models.PurchaseStatusCompleted, got.Timeline[5].Status)
	assert.Len(t, env.notifier.updates, 5)

	_, err = env.purchases.Cancel(ctx, user.ID, req.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPurchase_Cancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)
	other := env.createUser(t, "+212600000099")

	req, err := env.purchases.Create(ctx, user.ID, samplePurchase())
	require.NoError(t, err)

	_, err = env.purchases.Cancel(ctx, other.ID, req.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := env.purchases.Cancel(ctx, user.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatusCancelled, got.Status)
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, "Cancelled by customer", got.Timeline[1].Description)

	_, err = env.purchases.Cancel(ctx, user.ID, req.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.purchases.UpdateStatus(ctx, req.ID, PurchaseStatusChange{Status: models.PurchaseStatusQuoted})
	assert.ErrorIs(t, err, apperr.ErrConflict, "cancelled is terminal")
}

func TestPurchase_Listing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, testPhone)
	bob := env.createUser(t, "+212600000099")

	a1, err := env.purchases.Create(ctx, alice.ID, samplePurchase())
	require.NoError(t, err)
	in := samplePurchase()
	in.StoreName = "Sephora"
	_, err = env.purchases.Create(ctx, bob.ID, in)
	require.NoError(t, err)
	_, err = env.purchases.UpdateStatus(ctx, a1.ID, PurchaseStatusChange{Status: models.PurchaseStatusRejected})
	require.NoError(t, err)

	page := utils.Pagination{Page: 1, Limit: 20}

	mine, total, err := env.purchases.List(ctx, alice.ID, "", page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Items, 2)

	_, err = env.purchases.Get(ctx, bob.ID, a1.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	all, total, err := env.purchases.ListAll(ctx, PurchaseFilter{Search: "sepho"}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.NotNil(t, all[0].User)
	assert.Equal(t, bob.ID, all[0].User.ID)

	byNumber, total, err := env.purchases.ListAll(ctx, PurchaseFilter{Search: a1.RequestNumber}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, a1.ID, byNumber[0].ID)

	_, _, err = env.purchases.ListAll(ctx, PurchaseFilter{Status: "nope"}, page)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	counts, err := env.purchases.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.PurchaseStatusRejected])
	assert.Equal(t, int64(1), counts[models.PurchaseStatusPendingReview])
}
