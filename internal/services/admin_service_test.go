package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/forwardly/internal/models"
)

func TestAdminService_Dashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := NewAdminService(env.db, env.packages, env.purchases, env.payments)

	empty, err := admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalUsers)
	assert.Empty(t, empty.PackagesByStatus)

	user := env.createUser(t, testPhone)
	env.createUser(t, "+212600000099")
	_, err = env.packages.Create(ctx, user.ID, NewPackage{TrackingNumber: "A"})
	require.NoError(t, err)
	_, err = env.purchases.Create(ctx, user.ID, samplePurchase())
	require.NoError(t, err)
	env.createPayment(t, user.ID, 80, env.clock.Now().Add(time.Hour))

	stats, err := admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.PackagesByStatus[models.PackageStatusExpected])
	assert.Equal(t, int64(1), stats.PurchasesByStatus[models.PurchaseStatusPendingReview])
	assert.Equal(t, StatusTotals{Count: 1, Amount: 80}, stats.Payments.Pending)
}
