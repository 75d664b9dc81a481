package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(nil, config.Config{
		Authz: config.AuthzConfig{
			FinanceActors:  []string{"fin@corp.test"},
			ApproverActors: []string{"lead@corp.test"},
		},
	})
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "fin@corp.test", ObjectCommission, ActionCommissionMarkPaid))
	assert.NoError(t, svc.Authorize(ctx, "lead@corp.test", ObjectCommission, ActionCommissionApprove))
	assert.ErrorIs(t, svc.Authorize(ctx, "lead@corp.test", ObjectCommission, ActionCommissionMarkPaid), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, SystemActor, ObjectCommission, ActionCommissionRecalculate))
	assert.ErrorIs(t, svc.Authorize(ctx, SystemActor, ObjectCommission, ActionCommissionApprove), ErrForbidden)
}

func TestAuthorizeRejectsUnknownAndEmptyActors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "stranger", ObjectCommission, ActionCommissionApprove), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "  ", ObjectCommission, ActionCommissionApprove), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "fin@corp.test", "", ActionCommissionApprove), ErrInvalidObject)
}
