package salla

import "github.com/shopspring/decimal"

// Money is the amount/currency pair used across the Salla API.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// URLs holds the storefront and admin links exposed on a product.
type URLs struct {
	Customer string `json:"customer"`
	Admin    string `json:"admin"`
}

// CategoryRef is the shallow category reference embedded in a product.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a product record as returned by the Salla admin API.
type Product struct {
	ID          int64         `json:"id"`
	SKU         string        `json:"sku"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       Money         `json:"price"`
	Quantity    int           `json:"quantity"`
	Status      string        `json:"status"`
	URLs        URLs          `json:"urls"`
	Categories  []CategoryRef `json:"categories"`
}

// Category is a category record from the Salla admin API. ParentID is zero
// for root categories.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id"`
	Status   string `json:"status"`
}

// OrderStatus is one of the merchant-configurable order status records.
type OrderStatus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Type string `json:"type"`
}

// Customer is a customer record, either standalone from the customers
// endpoint or embedded in an order (where ID may be absent).
type Customer struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	MobileCode string `json:"mobile_code"`
	Mobile     string `json:"mobile"`
}

// OrderAmounts carries the order totals.
type OrderAmounts struct {
	Total Money `json:"total"`
}

// Order is an order record from the Salla admin API.
type Order struct {
	ID          int64        `json:"id"`
	ReferenceID int64        `json:"reference_id"`
	Status      OrderStatus  `json:"status"`
	Customer    Customer     `json:"customer"`
	Amounts     OrderAmounts `json:"amounts"`
	Date        string       `json:"date"`
}

// OrderItem is a line on an order, fetched separately per order.
type OrderItem struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amounts  struct {
		Total Money `json:"total"`
	} `json:"amounts"`
}

// Pagination is the cursor block in list responses.
type Pagination struct {
	Count       int `json:"count"`
	Total       int `json:"total"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

// HasMore reports whether another page follows the current one.
func (p Pagination) HasMore() bool {
	return p.CurrentPage < p.TotalPages
}

// ListOptions selects a page and response language for list calls.
type ListOptions struct {
	Page    int
	PerPage int
	Lang    string
}
