package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/commissionhub/internal/catalog/domain"
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
)

var (
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrMissingOrderID   = errors.New("missing_order_id")
)

// ID accepts upstream identifiers sent either as JSON numbers or strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type OrderPayload struct {
	ID                ID                `json:"id"`
	Name              string            `json:"name"`
	OrderNumber       ID                `json:"order_number"`
	Currency          string            `json:"currency"`
	SubtotalPrice     decimal.Decimal   `json:"subtotal_price"`
	TotalTax          decimal.Decimal   `json:"total_tax"`
	TotalShipping     decimal.Decimal   `json:"total_shipping"`
	TotalDiscounts    decimal.Decimal   `json:"total_discounts"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	FinancialStatus   string            `json:"financial_status"`
	FulfillmentStatus *string           `json:"fulfillment_status"`
	CancelReason      *string           `json:"cancel_reason"`
	CancelledAt       *time.Time        `json:"cancelled_at"`
	CreatedAt         *time.Time        `json:"created_at"`
	ProcessedAt       *time.Time        `json:"processed_at"`
	Customer          *CustomerPayload  `json:"customer"`
	LineItems         []LineItemPayload `json:"line_items"`
	DiscountCodes     []struct {
		Code string `json:"code"`
	} `json:"discount_codes"`
}

type LineItemPayload struct {
	Title               string          `json:"title"`
	Name                string          `json:"name"`
	ProductID           ID              `json:"product_id"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int64           `json:"quantity"`
	TotalDiscount       decimal.Decimal `json:"total_discount"`
	DiscountAllocations []struct {
		Amount decimal.Decimal `json:"amount"`
	} `json:"discount_allocations"`
}

type CustomerPayload struct {
	ID        ID     `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Tags      string `json:"tags"`
}

type ProductPayload struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	ProductType string `json:"product_type"`
	Tags        string `json:"tags"`
}

// ParseOrder decodes a webhook or API order body.
func ParseOrder(body []byte) (OrderPayload, error) {
	var payload OrderPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return OrderPayload{}, ErrMalformedPayload
	}
	if payload.ID == "" {
		return OrderPayload{}, ErrMissingOrderID
	}
	return payload, nil
}

// IngestRequest maps the payload onto the ingestor's input.
func (p OrderPayload) IngestRequest(source orderdomain.Source) orderdomain.IngestRequest {
	req := orderdomain.IngestRequest{
		ExternalID:      p.ID.String(),
		OrderNumber:     strings.TrimSpace(p.Name),
		Currency:        p.Currency,
		Subtotal:        p.SubtotalPrice,
		TotalTax:        p.TotalTax,
		TotalShipping:   p.TotalShipping,
		TotalDiscounts:  p.TotalDiscounts,
		TotalPrice:      p.TotalPrice,
		FinancialStatus: p.FinancialStatus,
		PlacedAt:        p.CreatedAt,
		ProcessedAt:     p.ProcessedAt,
		CancelledAt:     p.CancelledAt,
		Source:          source,
	}
	if req.OrderNumber == "" {
		req.OrderNumber = p.OrderNumber.String()
	}
	if p.FulfillmentStatus != nil {
		req.FulfillmentStatus = *p.FulfillmentStatus
	}
	if p.CancelReason != nil {
		req.CancelReason = *p.CancelReason
	}
	if p.Customer != nil {
		req.CustomerExternalID = p.Customer.ID.String()
	}
	for _, code := range p.DiscountCodes {
		if c := strings.TrimSpace(code.Code); c != "" {
			req.DiscountCodes = append(req.DiscountCodes, c)
		}
	}
	for _, item := range p.LineItems {
		req.LineItems = append(req.LineItems, item.lineItem())
	}
	return req
}

func (li LineItemPayload) lineItem() orderdomain.LineItem {
	name := strings.TrimSpace(li.Name)
	if name == "" {
		name = strings.TrimSpace(li.Title)
	}
	return orderdomain.LineItem{
		Name:       name,
		ProductRef: li.ProductID.String(),
		UnitPrice:  li.Price,
		Quantity:   li.Quantity,
		Discount:   li.discount(),
	}
}

// discount prefers the per-line allocations and falls back to total_discount.
func (li LineItemPayload) discount() decimal.Decimal {
	if len(li.DiscountAllocations) == 0 {
		return li.TotalDiscount
	}
	sum := decimal.Zero
	for _, allocation := range li.DiscountAllocations {
		sum = sum.Add(allocation.Amount)
	}
	return sum
}

func (c CustomerPayload) Remote() customerdomain.RemoteCustomer {
	return customerdomain.RemoteCustomer{
		ExternalID: c.ID.String(),
		Name:       strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName)),
		Email:      strings.TrimSpace(c.Email),
		Tags:       SplitTags(c.Tags),
	}
}

// SplitTags splits the comma-separated tag list used by the upstream platform.
func SplitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (c CustomerPayload) UpsertRequest() customerdomain.UpsertCustomerRequest {
	remote := c.Remote()
	return customerdomain.UpsertCustomerRequest{
		ExternalID: remote.ExternalID,
		Name:       remote.Name,
		Email:      remote.Email,
		Tags:       remote.Tags,
	}
}

func (p ProductPayload) UpsertRequest() catalogdomain.UpsertProductRequest {
	return catalogdomain.UpsertProductRequest{
		ExternalProductID: p.ID.String(),
		Handle:            strings.TrimSpace(p.Handle),
		Title:             strings.TrimSpace(p.Title),
		ProductType:       strings.TrimSpace(p.ProductType),
		Tags:              SplitTags(p.Tags),
	}
}
