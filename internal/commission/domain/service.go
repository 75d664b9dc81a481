package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissionhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ApproveRequest struct {
	ID    snowflake.ID
	Actor string
}

type AdjustRequest struct {
	ID     snowflake.ID
	Actor  string
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type MarkPaidRequest struct {
	ID         snowflake.ID
	Actor      string
	Note       string `json:"note"`
	ReceiptRef string `json:"receipt_ref"`
}

type BulkApproveRequest struct {
	IDs   []snowflake.ID `json:"ids"`
	Actor string
}

type BulkMarkPaidRequest struct {
	IDs        []snowflake.ID `json:"ids"`
	Actor      string
	Note       string `json:"note"`
	ReceiptRef string `json:"receipt_ref"`
}

type DeleteRequest struct {
	ID    snowflake.ID
	Actor string
}

type ListCommissionRequest struct {
	pagination.Pagination
	Status  string `form:"status"`
	AgentID string `form:"agent_id"`
}

type ListCommissionResponse struct {
	pagination.PageInfo
	Commissions []Commission `json:"commissions"`
}

// Service is the commission ledger. Every mutation takes an explicit actor.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (Commission, error)
	GetByOrderID(ctx context.Context, orderID snowflake.ID) (Commission, error)
	List(ctx context.Context, req ListCommissionRequest) (ListCommissionResponse, error)

	Approve(ctx context.Context, req ApproveRequest) (Commission, error)
	Adjust(ctx context.Context, req AdjustRequest) (Commission, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (Commission, error)
	BulkApprove(ctx context.Context, req BulkApproveRequest) ([]Commission, error)
	BulkMarkPaid(ctx context.Context, req BulkMarkPaidRequest) ([]Commission, error)
	Delete(ctx context.Context, req DeleteRequest) error

	// Record upserts a computed commission keyed by order inside tx. Paid
	// commissions are left untouched and adjusted amounts are preserved.
	Record(ctx context.Context, tx *gorm.DB, c *Commission) (UpsertOutcome, error)
}

var (
	ErrInvalidID           = errors.New("invalid_commission_id")
	ErrNotFound            = errors.New("commission_not_found")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrNonPositiveAmount   = errors.New("non_positive_amount")
	ErrNegativeAmount      = errors.New("negative_amount")
	ErrReasonRequired      = errors.New("adjustment_reason_required")
	ErrPaymentNoteRequired = errors.New("payment_note_required")
	ErrReceiptRequired     = errors.New("payment_receipt_required")
	ErrEmptyBatch          = errors.New("empty_batch")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidAgentID      = errors.New("invalid_agent_id")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)

// ItemError names the batch member that rejected a bulk operation.
type ItemError struct {
	ID  snowflake.ID
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("commission %s: %s", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
