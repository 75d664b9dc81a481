package service

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/smallbiznis/commissionhub/internal/catalog/domain"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Lookup(ctx context.Context, externalProductID string) (*domain.Product, error) {
	externalProductID = strings.TrimSpace(externalProductID)
	if externalProductID == "" {
		return nil, nil
	}
	return s.repo.FindByExternalID(ctx, s.db, externalProductID)
}

func (s *Service) SyncProductType(ctx context.Context, req domain.UpsertProductRequest) error {
	product, err := s.build(req)
	if err != nil {
		return err
	}
	return s.repo.UpsertProductType(ctx, s.db, product)
}

func (s *Service) SyncTags(ctx context.Context, req domain.UpsertProductRequest) error {
	product, err := s.build(req)
	if err != nil {
		return err
	}
	return s.repo.UpsertTags(ctx, s.db, product)
}

func (s *Service) build(req domain.UpsertProductRequest) (*domain.Product, error) {
	id := strings.TrimSpace(req.ExternalProductID)
	if id == "" {
		return nil, domain.ErrInvalidProductID
	}
	title := strings.TrimSpace(req.Title)
	handle := strings.TrimSpace(req.Handle)
	if handle == "" && title != "" {
		handle = slug.Make(title)
	}
	return &domain.Product{
		ExternalProductID: id,
		Handle:            handle,
		Title:             title,
		ProductType:       strings.TrimSpace(req.ProductType),
		Tags:              pq.StringArray(normalizeTags(req.Tags)),
		UpdatedAt:         s.clock.Now(),
	}, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
