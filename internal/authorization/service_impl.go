package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/commissionhub/internal/audit/domain"
	"github.com/smallbiznis/commissionhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewAdapter stores extra policies in the casbin_rule table.
func NewAdapter(db *gorm.DB) (persist.Adapter, error) {
	return gormadapter.NewAdapterByDB(db)
}

// NewEnforcer loads persisted policies from the adapter, when one is given, and
// layers the built-in role permissions and configured role assignments on top.
// Built-in policies live in memory only and are rebuilt on every start.
func NewEnforcer(adapter persist.Adapter, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(false)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := assignRoles(enforcer, cfg.Authz); err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor, object, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Actor:      actor,
		Action:     "authorization.denied",
		TargetType: object,
		Metadata: map[string]any{
			"action": action,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleApprover, ObjectCommission, ActionCommissionApprove},

		{RoleFinance, ObjectCommission, ActionCommissionApprove},
		{RoleFinance, ObjectCommission, ActionCommissionAdjust},
		{RoleFinance, ObjectCommission, ActionCommissionMarkPaid},
		{RoleFinance, ObjectCommission, ActionCommissionDelete},
		{RoleFinance, ObjectCommission, ActionCommissionRecalculate},
		{RoleFinance, ObjectSyncRun, ActionSyncRunStart},

		{RoleSystem, ObjectCommission, ActionCommissionRecalculate},
		{RoleSystem, ObjectSyncRun, ActionSyncRunStart},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}

func assignRoles(enforcer *casbin.SyncedEnforcer, cfg config.AuthzConfig) error {
	assignments := map[string][]string{
		RoleSystem:   {SystemActor},
		RoleFinance:  cfg.FinanceActors,
		RoleApprover: cfg.ApproverActors,
	}
	for role, actors := range assignments {
		for _, actor := range actors {
			actor = strings.TrimSpace(actor)
			if actor == "" {
				continue
			}
			if _, err := enforcer.AddGroupingPolicy(actor, role); err != nil {
				return err
			}
		}
	}
	return nil
}
