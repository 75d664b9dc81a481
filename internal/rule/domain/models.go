package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleTypeProductType RuleType = "product_type"
	RuleTypeProductTag  RuleType = "product_tag"
	RuleTypeDefault     RuleType = "default"
	// RuleTypeNone marks a line that matched no rule.
	RuleTypeNone RuleType = "none"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeProductType, RuleTypeProductTag, RuleTypeDefault:
		return true
	default:
		return false
	}
}

// Rule maps a product classification to a commission percentage.
type Rule struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	Type       RuleType        `gorm:"type:text;not null;index" json:"type"`
	MatchValue string          `gorm:"not null;default:''" json:"match_value"`
	Percentage decimal.Decimal `gorm:"type:numeric(9,4);not null;default:0" json:"percentage"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

func (Rule) TableName() string { return "commission_rules" }

// Classification is the normalized view of a sold product used for rule matching.
type Classification struct {
	ProductType string   `json:"product_type"`
	Tags        []string `json:"product_tags,omitempty"`
	Source      string   `json:"classification_source"`
}

// Resolution is the outcome of matching one classification.
type Resolution struct {
	Percentage decimal.Decimal `json:"percentage"`
	RuleType   RuleType        `json:"rule_type"`
	RuleValue  string          `json:"rule_value,omitempty"`
	RuleID     snowflake.ID    `json:"rule_id,omitempty"`
}

func (r Resolution) Matched() bool {
	return r.RuleType != RuleTypeNone && r.RuleType != ""
}
