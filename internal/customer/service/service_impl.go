package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Lookup domain.Lookup
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	lookup domain.Lookup
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("customer.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		lookup: p.Lookup,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Customer, error) {
	customer, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *customer, nil
}

func (s *Service) Resolve(ctx context.Context, externalID string) (*domain.Customer, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrInvalidExternalID
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if s.lookup == nil {
		return nil, fmt.Errorf("%w: no upstream lookup configured", domain.ErrLookupFailed)
	}
	remote, err := s.lookup.FetchCustomer(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLookupFailed, err)
	}
	if remote == nil {
		return nil, domain.ErrNotFound
	}

	customer := s.fromRemote(domain.UpsertCustomerRequest{
		ExternalID: externalID,
		Name:       remote.Name,
		Email:      remote.Email,
		Tags:       remote.Tags,
	})
	s.log.Info("resolved customer from upstream",
		zap.String("external_id", externalID),
		zap.Bool("is_agent", customer.IsAgent),
	)
	return &customer, nil
}

// Ensure writes the customer if no row with its external id exists. When a
// concurrent writer got there first, customer.ID is replaced with the stored id.
func (s *Service) Ensure(ctx context.Context, tx *gorm.DB, customer *domain.Customer) error {
	if customer == nil {
		return nil
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, tx, customer)
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}
	stored, err := s.repo.FindByExternalID(ctx, tx, customer.ExternalID)
	if err != nil {
		return err
	}
	if stored == nil {
		return errors.New("customer vanished after conflicting insert")
	}
	*customer = *stored
	return nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertCustomerRequest) (domain.Customer, error) {
	if strings.TrimSpace(req.ExternalID) == "" {
		return domain.Customer{}, domain.ErrInvalidExternalID
	}

	customer := s.fromRemote(req)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertIfAbsent(ctx, tx, &customer)
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
		stored, err := s.repo.FindByExternalID(ctx, tx, customer.ExternalID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrNotFound
		}
		stored.Name = customer.Name
		stored.Email = customer.Email
		stored.IsAgent = customer.IsAgent
		stored.UpdatedAt = customer.UpdatedAt
		customer = *stored
		return s.repo.UpdateProfile(ctx, tx, stored)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) fromRemote(req domain.UpsertCustomerRequest) domain.Customer {
	now := s.clock.Now()
	return domain.Customer{
		ID:                 s.genID.Generate(),
		ExternalID:         strings.TrimSpace(req.ExternalID),
		Name:               strings.TrimSpace(req.Name),
		Email:              strings.TrimSpace(req.Email),
		IsAgent:            hasAgentTag(req.Tags),
		BaseCommissionRate: decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func hasAgentTag(tags []string) bool {
	for _, tag := range tags {
		if strings.EqualFold(strings.TrimSpace(tag), domain.AgentTag) {
			return true
		}
	}
	return false
}
