package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type IngestRequest struct {
	ExternalID         string
	OrderNumber        string
	CustomerExternalID string
	Currency           string
	Subtotal           decimal.Decimal
	TotalTax           decimal.Decimal
	TotalShipping      decimal.Decimal
	TotalDiscounts     decimal.Decimal
	TotalPrice         decimal.Decimal
	LineItems          []LineItem
	DiscountCodes      []string
	FinancialStatus    string
	FulfillmentStatus  string
	CancelReason       string
	PlacedAt           *time.Time
	ProcessedAt        *time.Time
	CancelledAt        *time.Time
	Source             Source
}

type IngestResult struct {
	OrderID          snowflake.ID    `json:"order_id,omitempty"`
	AlreadyProcessed bool            `json:"already_processed"`
	CommissionID     snowflake.ID    `json:"commission_id,omitempty"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}

type RecalculateRequest struct {
	Actor    string
	OrderIDs []snowflake.ID `json:"order_ids"`
}

type RecalculateResult struct {
	Processed   int `json:"processed"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	SkippedPaid int `json:"skipped_paid"`
	Failed      int `json:"failed"`
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
	Recalculate(ctx context.Context, req RecalculateRequest) (RecalculateResult, error)
	GetByExternalID(ctx context.Context, externalID string) (Order, error)
}

var (
	ErrInvalidExternalID = errors.New("invalid_order_external_id")
	ErrInvalidLineItem   = errors.New("invalid_line_item")
	ErrNotFound          = errors.New("order_not_found")
)
