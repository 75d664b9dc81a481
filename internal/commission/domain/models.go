package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPaid:
		return true
	default:
		return false
	}
}

// BreakdownItem is the per-line audit trail of how a commission was computed.
type BreakdownItem struct {
	Name                 string              `json:"name"`
	ProductRef           string              `json:"product_ref,omitempty"`
	ProductType          string              `json:"product_type"`
	ProductTags          []string            `json:"product_tags,omitempty"`
	ClassificationSource string              `json:"classification_source"`
	RuleType             ruledomain.RuleType `json:"rule_type"`
	RuleValue            string              `json:"rule_value,omitempty"`
	RuleID               snowflake.ID        `json:"rule_id,omitempty"`
	Percentage           decimal.Decimal     `json:"percentage"`
	ItemTotal            decimal.Decimal     `json:"item_total"`
	ItemDiscount         decimal.Decimal     `json:"item_discount"`
	ItemCommission       decimal.Decimal     `json:"item_commission"`
}

// Commission is the amount owed to an agent for one order.
type Commission struct {
	ID               snowflake.ID                       `gorm:"primaryKey" json:"id"`
	OrderID          snowflake.ID                       `gorm:"not null;uniqueIndex" json:"order_id"`
	AgentID          snowflake.ID                       `gorm:"not null;index" json:"agent_id"`
	Currency         string                             `gorm:"not null" json:"currency"`
	Amount           decimal.Decimal                    `gorm:"type:numeric(18,2);not null" json:"amount"`
	ActualAmount     decimal.Decimal                    `gorm:"type:numeric(18,2);not null" json:"actual_amount"`
	TotalDiscount    decimal.Decimal                    `gorm:"type:numeric(18,4);not null" json:"total_discount"`
	RuleType         ruledomain.RuleType                `gorm:"type:text;not null" json:"rule_type"`
	Breakdown        datatypes.JSONSlice[BreakdownItem] `gorm:"type:json;not null" json:"breakdown"`
	Status           Status                             `gorm:"type:text;not null;index" json:"status"`
	AdjustmentReason string                             `gorm:"not null" json:"adjustment_reason,omitempty"`
	AdjustedBy       string                             `gorm:"not null" json:"adjusted_by,omitempty"`
	AdjustedAt       *time.Time                         `json:"adjusted_at,omitempty"`
	ApprovedBy       string                             `gorm:"not null" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time                         `json:"approved_at,omitempty"`
	PaymentNote      string                             `gorm:"not null" json:"payment_note,omitempty"`
	PaymentReceipt   string                             `gorm:"not null" json:"payment_receipt,omitempty"`
	PaidBy           string                             `gorm:"not null" json:"paid_by,omitempty"`
	PaidAt           *time.Time                         `json:"paid_at,omitempty"`
	CreatedAt        time.Time                          `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                          `gorm:"not null" json:"updated_at"`
}

func (Commission) TableName() string { return "commissions" }

// UpsertOutcome reports what Record did with a computed commission.
type UpsertOutcome string

const (
	OutcomeCreated     UpsertOutcome = "created"
	OutcomeUpdated     UpsertOutcome = "updated"
	OutcomeSkippedPaid UpsertOutcome = "skipped_paid"
)

type ListFilter struct {
	Status  Status
	AgentID snowflake.ID
	Cursor  *snowflake.ID
	Limit   int
}
