// Package salla provides a typed client for the Salla admin API, including
// OAuth token management, bounded retries and paginated listing.
package salla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL is the production Salla admin API.
	DefaultBaseURL = "https://api.salla.dev/admin/v2"

	defaultTimeout  = 30 * time.Second
	defaultPerPage  = 50
	defaultMaxTries = 4
)

// envelope is the uniform response wrapper used by the Salla API.
type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
}

// Client calls the Salla admin API with automatic token refresh and
// exponential backoff on throttling and server failures.
type Client struct {
	baseURL  string
	auth     *Auth
	http     *http.Client
	logger   *slog.Logger
	maxTries uint
}

// ClientOption customises the Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithMaxTries bounds the retry attempts per call.
func WithMaxTries(n uint) ClientOption {
	return func(c *Client) { c.maxTries = n }
}

// NewClient constructs a Client.
func NewClient(auth *Auth, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		auth:     auth,
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   logger,
		maxTries: defaultMaxTries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, method, endpoint string, query url.Values, body any) (*envelope, error) {
	operation := func() (*envelope, error) {
		env, err := c.do(ctx, method, endpoint, query, body)
		if err != nil && !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return env, err
	}
	env, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any) (*envelope, error) {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("salla: marshal payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("salla: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("salla: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	var env envelope
	if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr != nil && resp.StatusCode < 400 {
		return nil, fmt.Errorf("salla: decode response: %w", decodeErr)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if secs, err := strconv.Atoi(retryAfter); err == nil {
				apiErr.RetryAfter = secs
			}
		}
		c.logger.Warn("salla api error",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message))
		return nil, apiErr
	}
	return &env, nil
}

func listQuery(opts ListOptions) url.Values {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = defaultPerPage
	}
	q := url.Values{
		"page":     {strconv.Itoa(opts.Page)},
		"per_page": {strconv.Itoa(opts.PerPage)},
	}
	if opts.Lang != "" {
		q.Set("lang", opts.Lang)
	}
	return q
}

func decodeData[T any](env *envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("salla: decode data: %w", err)
	}
	return out, nil
}

func pagination(env *envelope) Pagination {
	if env.Pagination != nil {
		return *env.Pagination
	}
	return Pagination{CurrentPage: 1, TotalPages: 1}
}

// ListProducts fetches one page of products.
func (c *Client) ListProducts(ctx context.Context, opts ListOptions) ([]Product, Pagination, error) {
	env, err := c.request(ctx, http.MethodGet, "products", listQuery(opts), nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	products, err := decodeData[[]Product](env)
	return products, pagination(env), err
}

// GetProduct fetches a single product by its Salla ID. A non-empty lang
// asks the store for that translation instead of its default language.
func (c *Client) GetProduct(ctx context.Context, id, lang string) (Product, error) {
	var q url.Values
	if lang != "" {
		q = url.Values{"lang": {lang}}
	}
	env, err := c.request(ctx, http.MethodGet, "products/"+id, q, nil)
	if err != nil {
		return Product{}, err
	}
	return decodeData[Product](env)
}

// GetProductBySKU fetches a single product by SKU.
func (c *Client) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	env, err := c.request(ctx, http.MethodGet, "products/sku/"+url.PathEscape(sku), nil, nil)
	if err != nil {
		return Product{}, err
	}
	return decodeData[Product](env)
}

// ProductInput is the payload shape for creating or updating a product.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	SKU         string          `json:"sku,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    *int            `json:"quantity,omitempty"`
	ProductType string          `json:"product_type"`
	Categories  []int64         `json:"categories,omitempty"`
}

// CreateProduct creates a product in Salla.
func (c *Client) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if input.ProductType == "" {
		input.ProductType = "product"
	}
	env, err := c.request(ctx, http.MethodPost, "products", nil, input)
	if err != nil {
		return Product{}, err
	}
	return decodeData[Product](env)
}

// UpdateProduct updates an existing Salla product.
func (c *Client) UpdateProduct(ctx context.Context, id string, input ProductInput) (Product, error) {
	env, err := c.request(ctx, http.MethodPut, "products/"+id, nil, input)
	if err != nil {
		return Product{}, err
	}
	return decodeData[Product](env)
}

// ListCategories fetches one page of categories.
func (c *Client) ListCategories(ctx context.Context, opts ListOptions) ([]Category, Pagination, error) {
	env, err := c.request(ctx, http.MethodGet, "categories", listQuery(opts), nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	categories, err := decodeData[[]Category](env)
	return categories, pagination(env), err
}

// CategoryInput is the payload shape for creating or updating a category.
type CategoryInput struct {
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id,omitempty"`
}

// CreateCategory creates a category in Salla.
func (c *Client) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	env, err := c.request(ctx, http.MethodPost, "categories", nil, input)
	if err != nil {
		return Category{}, err
	}
	return decodeData[Category](env)
}

// UpdateCategory updates an existing Salla category.
func (c *Client) UpdateCategory(ctx context.Context, id string, input CategoryInput) (Category, error) {
	env, err := c.request(ctx, http.MethodPut, "categories/"+id, nil, input)
	if err != nil {
		return Category{}, err
	}
	return decodeData[Category](env)
}

// ListOrders fetches one page of orders.
func (c *Client) ListOrders(ctx context.Context, opts ListOptions) ([]Order, Pagination, error) {
	env, err := c.request(ctx, http.MethodGet, "orders", listQuery(opts), nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	orders, err := decodeData[[]Order](env)
	return orders, pagination(env), err
}

// ListOrderItems fetches the line items of an order.
func (c *Client) ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	q := url.Values{"order_id": {orderID}}
	env, err := c.request(ctx, http.MethodGet, "orders/items", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]OrderItem](env)
}

// ListCustomers fetches one page of the store's customers.
func (c *Client) ListCustomers(ctx context.Context, opts ListOptions) ([]Customer, Pagination, error) {
	env, err := c.request(ctx, http.MethodGet, "customers", listQuery(opts), nil)
	if err != nil {
		return nil, Pagination{}, err
	}
	customers, err := decodeData[[]Customer](env)
	return customers, pagination(env), err
}

// ListOrderStatuses fetches the merchant's order status definitions.
func (c *Client) ListOrderStatuses(ctx context.Context) ([]OrderStatus, error) {
	env, err := c.request(ctx, http.MethodGet, "orders/statuses", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]OrderStatus](env)
}
