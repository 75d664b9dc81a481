package domain

import (
	"context"
	"errors"
)

type UpsertProductRequest struct {
	ExternalProductID string
	Handle            string
	Title             string
	ProductType       string
	Tags              []string
}

// Service owns the local product catalog used as the primary classification source.
type Service interface {
	Lookup(ctx context.Context, externalProductID string) (*Product, error)
	SyncProductType(ctx context.Context, req UpsertProductRequest) error
	SyncTags(ctx context.Context, req UpsertProductRequest) error
}

var (
	ErrInvalidProductID = errors.New("invalid_product_id")
)
