// Package calculator turns order lines into a commission amount and a
// per-line breakdown.
package calculator

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissionhub/internal/catalog/classifier"
	"github.com/smallbiznis/commissionhub/internal/commission/domain"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced order line.
type Line struct {
	Name       string
	ProductRef string
	UnitPrice  decimal.Decimal
	Quantity   int64
	Discount   decimal.Decimal
}

type Classifier interface {
	Classify(ctx context.Context, item classifier.Item) ruledomain.Classification
}

// Result is the outcome of a computation. Amount is rounded to two places;
// breakdown values are exact.
type Result struct {
	Amount        decimal.Decimal
	TotalDiscount decimal.Decimal
	RuleType      ruledomain.RuleType
	Breakdown     []domain.BreakdownItem
}

type Calculator struct {
	classifier Classifier
}

func New(c Classifier) *Calculator {
	return &Calculator{classifier: c}
}

// Compute classifies each line, resolves its rate against rules and
// accumulates the commission. The rule type of the line with the largest
// commission becomes the commission's rule type; ties keep the earlier line.
func (c *Calculator) Compute(ctx context.Context, rules ruledomain.Resolver, lines []Line) Result {
	result := Result{
		Amount:        decimal.Zero,
		TotalDiscount: decimal.Zero,
		RuleType:      ruledomain.RuleTypeNone,
		Breakdown:     make([]domain.BreakdownItem, 0, len(lines)),
	}

	sum := decimal.Zero
	best := decimal.Zero
	found := false
	for _, line := range lines {
		classification := c.classifier.Classify(ctx, classifier.Item{
			Name:       line.Name,
			ProductRef: line.ProductRef,
		})
		item := ComputeLine(line, classification, rules.Resolve(classification))
		result.Breakdown = append(result.Breakdown, item)

		sum = sum.Add(item.ItemCommission)
		result.TotalDiscount = result.TotalDiscount.Add(item.ItemDiscount)

		if item.RuleType == ruledomain.RuleTypeNone {
			continue
		}
		if !found || item.ItemCommission.GreaterThan(best) {
			best = item.ItemCommission
			result.RuleType = item.RuleType
			found = true
		}
	}

	result.Amount = sum.Round(2)
	return result
}

// ComputeLine applies one resolved rate to one line. The discount absorbed by
// a line is floored at zero and capped at the line's gross.
func ComputeLine(line Line, classification ruledomain.Classification, resolution ruledomain.Resolution) domain.BreakdownItem {
	quantity := line.Quantity
	if quantity < 0 {
		quantity = 0
	}
	unitPrice := line.UnitPrice
	if unitPrice.IsNegative() {
		unitPrice = decimal.Zero
	}

	gross := unitPrice.Mul(decimal.NewFromInt(quantity))
	absorbed := decimal.Max(line.Discount, decimal.Zero)
	absorbed = decimal.Min(absorbed, gross)
	total := gross.Sub(absorbed)

	ruleType := resolution.RuleType
	if ruleType == "" {
		ruleType = ruledomain.RuleTypeNone
	}

	return domain.BreakdownItem{
		Name:                 line.Name,
		ProductRef:           line.ProductRef,
		ProductType:          classification.ProductType,
		ProductTags:          classification.Tags,
		ClassificationSource: classification.Source,
		RuleType:             ruleType,
		RuleValue:            resolution.RuleValue,
		RuleID:               resolution.RuleID,
		Percentage:           resolution.Percentage,
		ItemTotal:            total,
		ItemDiscount:         absorbed,
		ItemCommission:       total.Mul(resolution.Percentage).Div(hundred),
	}
}
