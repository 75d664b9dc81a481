package domain

import (
	"time"

	"github.com/lib/pq"
)

// Product is the locally cached catalog view of an upstream product.
type Product struct {
	ExternalProductID string         `gorm:"primaryKey" json:"external_product_id"`
	Handle            string         `gorm:"not null" json:"handle"`
	Title             string         `gorm:"not null" json:"title"`
	ProductType       string         `gorm:"not null" json:"product_type"`
	Tags              pq.StringArray `gorm:"type:text[]" json:"tags"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string { return "catalog_products" }

// Classified reports whether the product carries any data usable for rule matching.
func (p Product) Classified() bool {
	return p.ProductType != "" || len(p.Tags) > 0
}
