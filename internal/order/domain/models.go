package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceWebhook Source = "webhook"
	SourceSync    Source = "sync"
)

// LineItem is stored in order as received.
type LineItem struct {
	Name       string          `json:"name"`
	ProductRef string          `json:"product_ref,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int64           `json:"quantity"`
	Discount   decimal.Decimal `json:"discount"`
}

// Order is an upstream sales order. Only the status fields change after insert.
type Order struct {
	ID                snowflake.ID                  `gorm:"primaryKey" json:"id"`
	ExternalID        string                        `gorm:"not null;uniqueIndex" json:"external_id"`
	OrderNumber       string                        `gorm:"not null" json:"order_number"`
	CustomerID        *snowflake.ID                 `json:"customer_id,omitempty"`
	Currency          string                        `gorm:"not null" json:"currency"`
	Subtotal          decimal.Decimal               `gorm:"type:numeric(18,4);not null" json:"subtotal"`
	TotalTax          decimal.Decimal               `gorm:"type:numeric(18,4);not null" json:"total_tax"`
	TotalShipping     decimal.Decimal               `gorm:"type:numeric(18,4);not null" json:"total_shipping"`
	TotalDiscounts    decimal.Decimal               `gorm:"type:numeric(18,4);not null" json:"total_discounts"`
	TotalPrice        decimal.Decimal               `gorm:"type:numeric(18,4);not null" json:"total_price"`
	LineItems         datatypes.JSONSlice[LineItem] `gorm:"type:json;not null" json:"line_items"`
	DiscountCodes     datatypes.JSONSlice[string]   `gorm:"type:json;not null" json:"discount_codes"`
	FinancialStatus   string                        `gorm:"not null" json:"financial_status"`
	FulfillmentStatus string                        `gorm:"not null" json:"fulfillment_status"`
	IsCancelled       bool                          `gorm:"not null" json:"is_cancelled"`
	Source            Source                        `gorm:"type:text;not null" json:"source"`
	PlacedAt          *time.Time                    `json:"placed_at,omitempty"`
	ProcessedAt       *time.Time                    `json:"processed_at,omitempty"`
	CancelledAt       *time.Time                    `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time                     `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                     `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// StatusUpdate carries the fields a redelivery may refresh.
type StatusUpdate struct {
	FinancialStatus   string
	FulfillmentStatus string
	IsCancelled       bool
	CancelledAt       *time.Time
	UpdatedAt         time.Time
}

// Cancelled reports whether an order with these attributes earns nothing:
// it carries a cancellation time, its financial status is voided, or it was
// refunded with a cancel reason.
func Cancelled(cancelledAt *time.Time, cancelReason, financialStatus string) bool {
	if cancelledAt != nil && !cancelledAt.IsZero() {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(financialStatus)) {
	case "voided":
		return true
	case "refunded":
		return strings.TrimSpace(cancelReason) != ""
	default:
		return false
	}
}
