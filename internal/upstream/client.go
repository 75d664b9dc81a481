package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/commissionhub/internal/config"
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 100
	maxPageSize     = 250
	maxAttempts     = 3
	maxErrorBody    = 4 << 10
)

var ErrNotConfigured = errors.New("upstream_not_configured")

// Error is a non-success response from the upstream platform.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream request failed: status %d", e.Status)
	}
	return fmt.Sprintf("upstream request failed: status %d: %s", e.Status, e.Message)
}

// Upstream marks the failure as originating outside this service.
func (e *Error) Upstream() bool { return true }

func (e *Error) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Page is one since_id page of upstream records. LastID is the cursor for
// the next call; an empty page ends the listing.
type Page[T any] struct {
	Items  []T
	LastID string
}

// Client talks to the upstream commerce REST API.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	log      *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Upstream.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	pageSize := cfg.Upstream.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/"),
		token:    strings.TrimSpace(cfg.Upstream.AccessToken),
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
		log:      log.Named("upstream.client"),
	}
}

var _ customerdomain.Lookup = (*Client)(nil)

// FetchCustomer returns nil, nil when the platform does not know the id.
func (c *Client) FetchCustomer(ctx context.Context, externalID string) (*customerdomain.RemoteCustomer, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, customerdomain.ErrInvalidExternalID
	}
	var body struct {
		Customer CustomerPayload `json:"customer"`
	}
	err := c.get(ctx, "/customers/"+url.PathEscape(externalID)+".json", nil, &body)
	if err != nil {
		var upstreamErr *Error
		if errors.As(err, &upstreamErr) && upstreamErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if body.Customer.ID == "" {
		return nil, nil
	}
	remote := body.Customer.Remote()
	return &remote, nil
}

func (c *Client) ListOrders(ctx context.Context, sinceID string) (Page[OrderPayload], error) {
	var body struct {
		Orders []OrderPayload `json:"orders"`
	}
	query := c.pageQuery(sinceID)
	query.Set("status", "any")
	if err := c.get(ctx, "/orders.json", query, &body); err != nil {
		return Page[OrderPayload]{}, err
	}
	return pageOf(body.Orders, func(o OrderPayload) ID { return o.ID }), nil
}

func (c *Client) ListCustomers(ctx context.Context, sinceID string) (Page[CustomerPayload], error) {
	var body struct {
		Customers []CustomerPayload `json:"customers"`
	}
	if err := c.get(ctx, "/customers.json", c.pageQuery(sinceID), &body); err != nil {
		return Page[CustomerPayload]{}, err
	}
	return pageOf(body.Customers, func(cu CustomerPayload) ID { return cu.ID }), nil
}

func (c *Client) ListProducts(ctx context.Context, sinceID string) (Page[ProductPayload], error) {
	var body struct {
		Products []ProductPayload `json:"products"`
	}
	if err := c.get(ctx, "/products.json", c.pageQuery(sinceID), &body); err != nil {
		return Page[ProductPayload]{}, err
	}
	return pageOf(body.Products, func(p ProductPayload) ID { return p.ID }), nil
}

func (c *Client) pageQuery(sinceID string) url.Values {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if sinceID = strings.TrimSpace(sinceID); sinceID != "" {
		query.Set("since_id", sinceID)
	}
	return query
}

func pageOf[T any](items []T, id func(T) ID) Page[T] {
	page := Page[T]{Items: items}
	if len(items) > 0 {
		page.LastID = id(items[len(items)-1]).String()
	}
	return page
}

// get retries throttled and server-side failures with exponential backoff.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.baseURL == "" || c.token == "" {
		return ErrNotConfigured
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, endpoint, out)
		var upstreamErr *Error
		if err != nil && errors.As(err, &upstreamErr) && !upstreamErr.retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warn("retrying upstream request",
				zap.String("path", path),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformedPayload, err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Errors any `json:"errors"`
		Error  any `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Errors != nil:
			message = fmt.Sprint(body.Errors)
		case body.Error != nil:
			message = fmt.Sprint(body.Error)
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return &Error{Status: resp.StatusCode, Message: message}
}
