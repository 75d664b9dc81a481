package classifier

import (
	"context"
	"strings"

	catalogdomain "github.com/smallbiznis/commissionhub/internal/catalog/domain"
	"github.com/smallbiznis/commissionhub/internal/config"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	SourceCatalog = "catalog"
	SourceName    = "name"
)

// Item is the part of a line item the classifier reads.
type Item struct {
	Name       string
	ProductRef string
}

// Catalog looks up a product by its upstream reference. A nil product means unknown.
type Catalog interface {
	Lookup(ctx context.Context, productRef string) (*catalogdomain.Product, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Catalog catalogdomain.Service
	Config  *config.ClassificationConfigHolder
}

// Classifier derives a product classification from the catalog, falling back
// to parsing the display name.
type Classifier struct {
	log     *zap.Logger
	catalog Catalog
	config  *config.ClassificationConfigHolder
}

func New(p Params) *Classifier {
	return NewWithCatalog(p.Log, p.Catalog, p.Config)
}

func NewWithCatalog(log *zap.Logger, catalog Catalog, cfg *config.ClassificationConfigHolder) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		log:     log.Named("catalog.classifier"),
		catalog: catalog,
		config:  cfg,
	}
}

// Classify never fails. Catalog errors are logged and the name fallback is used.
func (c *Classifier) Classify(ctx context.Context, item Item) ruledomain.Classification {
	ref := strings.TrimSpace(item.ProductRef)
	if ref != "" && c.catalog != nil {
		product, err := c.catalog.Lookup(ctx, ref)
		switch {
		case err != nil:
			c.log.Warn("catalog lookup failed, classifying by name",
				zap.String("product_ref", ref),
				zap.Error(err),
			)
		case product != nil && product.Classified():
			return ruledomain.Classification{
				ProductType: strings.TrimSpace(product.ProductType),
				Tags:        append([]string(nil), product.Tags...),
				Source:      SourceCatalog,
			}
		}
	}
	return FromName(item.Name, c.config.Get())
}

// FromName is the degraded-mode classifier. The label before the first
// separator becomes the product type unless a synonym rewrites it.
func FromName(name string, cfg config.ClassificationConfig) ruledomain.Classification {
	label := strings.TrimSpace(name)
	if sep := cfg.Separator; sep != "" {
		if idx := strings.Index(label, sep); idx >= 0 {
			label = strings.TrimSpace(label[:idx])
		}
	}

	productType := label
	lowered := strings.ToLower(label)
	for _, syn := range cfg.Synonyms {
		match := strings.ToLower(strings.TrimSpace(syn.Match))
		if match == "" {
			continue
		}
		if strings.Contains(lowered, match) {
			productType = syn.Canonical
			break
		}
	}

	return ruledomain.Classification{
		ProductType: productType,
		Source:      SourceName,
	}
}
