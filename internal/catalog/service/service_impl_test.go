package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/commissionhub/internal/catalog/domain"
	"github.com/smallbiznis/commissionhub/internal/catalog/repository"
	"github.com/smallbiznis/commissionhub/internal/catalog/service"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncKeepsTypeAndTagsIndependent(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})

	require.NoError(t, svc.SyncProductType(ctx, domain.UpsertProductRequest{
		ExternalProductID: "8001",
		Title:             "BYD Premium Mat",
		ProductType:       "TRAPO CLASSIC",
	}))
	require.NoError(t, svc.SyncTags(ctx, domain.UpsertProductRequest{
		ExternalProductID: "8001",
		Title:             "BYD Premium Mat",
		Tags:              []string{"premium", " Premium ", "bestseller"},
	}))

	product, err := svc.Lookup(ctx, "8001")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "TRAPO CLASSIC", product.ProductType)
	assert.Equal(t, []string{"premium", "bestseller"}, []string(product.Tags))
	assert.Equal(t, "byd-premium-mat", product.Handle)

	missing, err := svc.Lookup(ctx, "9999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSyncRejectsMissingID(t *testing.T) {
	db := testsupport.OpenDB(t)
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), Clock: clock.SystemClock{}, Repo: repository.Provide()})

	err := svc.SyncProductType(context.Background(), domain.UpsertProductRequest{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidProductID)
}
