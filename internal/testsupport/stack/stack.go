// Package stack wires the domain services against an in-memory database for
// tests that cross package boundaries.
package stack

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/commissionhub/internal/audit/domain"
	auditrepository "github.com/smallbiznis/commissionhub/internal/audit/repository"
	auditservice "github.com/smallbiznis/commissionhub/internal/audit/service"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"github.com/smallbiznis/commissionhub/internal/catalog/classifier"
	catalogdomain "github.com/smallbiznis/commissionhub/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/commissionhub/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/commissionhub/internal/catalog/service"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/commission/calculator"
	commissiondomain "github.com/smallbiznis/commissionhub/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/commissionhub/internal/commission/repository"
	commissionservice "github.com/smallbiznis/commissionhub/internal/commission/service"
	"github.com/smallbiznis/commissionhub/internal/config"
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	customerrepository "github.com/smallbiznis/commissionhub/internal/customer/repository"
	customerservice "github.com/smallbiznis/commissionhub/internal/customer/service"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
	orderrepository "github.com/smallbiznis/commissionhub/internal/order/repository"
	orderservice "github.com/smallbiznis/commissionhub/internal/order/service"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	rulerepository "github.com/smallbiznis/commissionhub/internal/rule/repository"
	"github.com/smallbiznis/commissionhub/internal/rule/resolver"
	syncrundomain "github.com/smallbiznis/commissionhub/internal/syncrun/domain"
	syncrunrepository "github.com/smallbiznis/commissionhub/internal/syncrun/repository"
	syncrunservice "github.com/smallbiznis/commissionhub/internal/syncrun/service"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	FinanceActor  = "finance@example.com"
	ApproverActor = "approver@example.com"
)

type Options struct {
	Lookup   customerdomain.Lookup
	Synonyms []config.Synonym
	Now      time.Time

	JobMetrics *metrics.JobMetrics
}

type Stack struct {
	DB        *gorm.DB
	Clock     *clock.FakeClock
	Node      *snowflake.Node
	Config    config.Config
	Publisher *Recorder

	Audit       auditdomain.Service
	Authz       authorization.Service
	Customers   customerdomain.Service
	Catalog     catalogdomain.Service
	Classifier  *classifier.Classifier
	Rules       ruledomain.Loader
	Calculator  *calculator.Calculator
	Commissions commissiondomain.Service
	Orders      orderdomain.Service
	SyncRuns    syncrundomain.Service
}

func New(t testing.TB, opts Options) *Stack {
	t.Helper()

	now := opts.Now
	if now.IsZero() {
		now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	log := zap.NewNop()
	db := testsupport.OpenDB(t)
	clk := clock.NewFakeClock(now)
	node := testsupport.Node(t, 1)
	cfg := config.Config{
		SyncStaleThreshold: 5 * time.Minute,
		Authz: config.AuthzConfig{
			FinanceActors:  []string{FinanceActor},
			ApproverActors: []string{ApproverActor},
		},
	}
	recorder := &Recorder{}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	enforcer, err := authorization.NewEnforcer(nil, cfg)
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: auditSvc})

	customers := customerservice.New(customerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: customerrepository.Provide(), Lookup: opts.Lookup,
	})
	catalog := catalogservice.New(catalogservice.Params{
		DB: db, Log: log, Clock: clk, Repo: catalogrepository.Provide(),
	})

	classification := config.DefaultClassificationConfig()
	classification.Synonyms = opts.Synonyms
	cls := classifier.NewWithCatalog(log, catalog, config.NewStaticClassificationConfigHolder(classification))
	rules := resolver.NewLoader(resolver.Params{DB: db, Log: log, Repo: rulerepository.Provide()})
	calc := calculator.New(cls)

	commissions := commissionservice.New(commissionservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: commissionrepository.Provide(),
		Authz: authz, AuditSvc: auditSvc, Publisher: recorder,
	})
	orders := orderservice.New(orderservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: orderrepository.Provide(),
		CustomerSvc: customers, CommissionSvc: commissions, Rules: rules, Calculator: calc,
		Authz: authz, AuditSvc: auditSvc, Publisher: recorder,
	})
	syncRuns := syncrunservice.New(syncrunservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Config: cfg, Repo: syncrunrepository.Provide(), Publisher: recorder,
		JobMetrics: opts.JobMetrics,
	})

	return &Stack{
		DB:          db,
		Clock:       clk,
		Node:        node,
		Config:      cfg,
		Publisher:   recorder,
		Audit:       auditSvc,
		Authz:       authz,
		Customers:   customers,
		Catalog:     catalog,
		Classifier:  cls,
		Rules:       rules,
		Calculator:  calc,
		Commissions: commissions,
		Orders:      orders,
		SyncRuns:    syncRuns,
	}
}

// AddRule inserts an active commission rule.
func (s *Stack) AddRule(t testing.TB, typ ruledomain.RuleType, value, percentage string) snowflake.ID {
	t.Helper()

	now := s.Clock.Now()
	rule := ruledomain.Rule{
		ID:         s.Node.Generate(),
		Type:       typ,
		MatchValue: value,
		Percentage: decimal.RequireFromString(percentage),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.DB.Exec(
		`INSERT INTO commission_rules (id, type, match_value, percentage, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Type, rule.MatchValue, rule.Percentage, rule.IsActive, rule.CreatedAt, rule.UpdatedAt,
	).Error; err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	return rule.ID
}

// AddCustomer stores a local customer, tagged as an agent when agent is set.
func (s *Stack) AddCustomer(t testing.TB, externalID string, agent bool) customerdomain.Customer {
	t.Helper()

	var tags []string
	if agent {
		tags = []string{customerdomain.AgentTag}
	}
	customer, err := s.Customers.Upsert(context.Background(), customerdomain.UpsertCustomerRequest{
		ExternalID: externalID,
		Name:       "Customer " + externalID,
		Email:      externalID + "@example.com",
		Tags:       tags,
	})
	if err != nil {
		t.Fatalf("upsert customer: %v", err)
	}
	return customer
}

// Recorder is an in-memory events.Publisher.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *Recorder) Count(typ events.Type) int {
	n := 0
	for _, evt := range r.Events() {
		if evt.Type == typ {
			n++
		}
	}
	return n
}
