package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeOrders       Type = "orders"
	TypeCustomers    Type = "customers"
	TypeProductTypes Type = "product_types"
	TypeProductTags  Type = "product_tags"
)

func (t Type) Valid() bool {
	switch t {
	case TypeOrders, TypeCustomers, TypeProductTypes, TypeProductTags:
		return true
	default:
		return false
	}
}

// AssumedTarget is the item count a run of this type is expected to reach.
// It only feeds the progress estimate.
func (t Type) AssumedTarget() int64 {
	switch t {
	case TypeOrders, TypeCustomers:
		return 1000
	default:
		return 250
	}
}

type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type SyncRun struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Type         Type         `gorm:"type:text;not null" json:"type"`
	Status       Status       `gorm:"type:text;not null" json:"status"`
	ItemsSynced  int64        `gorm:"not null" json:"items_synced"`
	ErrorMessage string       `gorm:"not null" json:"error_message,omitempty"`
	StartedAt    time.Time    `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

func (SyncRun) TableName() string { return "sync_runs" }

// View is the externally visible state of a run.
type View struct {
	ID              snowflake.ID `json:"id"`
	Type            Type         `json:"type"`
	Status          Status       `json:"status"`
	Progress        int          `json:"progress"`
	ItemsSynced     int64        `json:"items_synced"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	Duration        string       `json:"duration"`
	DurationSeconds float64      `json:"duration_seconds"`
}
