package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Customer is a buyer on the upstream platform. Agents earn commissions.
type Customer struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	ExternalID         string          `gorm:"not null;uniqueIndex" json:"external_id"`
	Name               string          `gorm:"not null" json:"name"`
	Email              string          `gorm:"not null" json:"email"`
	IsAgent            bool            `gorm:"not null" json:"is_agent"`
	BaseCommissionRate decimal.Decimal `gorm:"type:numeric(9,4);not null" json:"base_commission_rate"`
	BankName           string          `gorm:"not null" json:"bank_name,omitempty"`
	BankAccountName    string          `gorm:"not null" json:"bank_account_name,omitempty"`
	BankAccountNumber  string          `gorm:"not null" json:"bank_account_number,omitempty"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

// RemoteCustomer is the upstream view returned by a Lookup.
type RemoteCustomer struct {
	ExternalID string
	Name       string
	Email      string
	Tags       []string
}
