package authorization

import (
	"context"
	"errors"
)

const (
	ObjectCommission = "commission"
	ObjectSyncRun    = "sync_run"
)

const (
	ActionCommissionApprove     = "commission.approve"
	ActionCommissionAdjust      = "commission.adjust"
	ActionCommissionMarkPaid    = "commission.mark_paid"
	ActionCommissionDelete      = "commission.delete"
	ActionCommissionRecalculate = "commission.recalculate"
	ActionSyncRunStart          = "sync_run.start"
)

const (
	RoleFinance  = "role:finance"
	RoleApprover = "role:approver"
	RoleSystem   = "role:system"

	// SystemActor is the identity used by background jobs.
	SystemActor = "system"
)

// Service authorizes an explicit actor for an action on an object.
type Service interface {
	Authorize(ctx context.Context, actor, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
