package sync

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/salla-bridge/salla-bridge/internal/salla"
)

// DefaultCurrency is assumed when the platform omits one.
const DefaultCurrency = "SAR"

// ItemDraft is the mapped, storage-ready shape of a platform product. The
// EN fields hold the English translation when the store's default language
// is Arabic; they stay empty on monolingual stores.
type ItemDraft struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	NameEN        string          `json:"name_en"`
	Description   string          `json:"description"`
	DescriptionEN string          `json:"description_en"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Quantity      int             `json:"quantity"`
	Active        bool            `json:"active"`
}

// applyTranslation fills the English fields from the same product fetched
// in the alternate language. A zero alt leaves the draft monolingual.
func (d *ItemDraft) applyTranslation(alt salla.Product) {
	if alt.ID == 0 {
		return
	}
	d.NameEN = normalizeText(alt.Name)
	d.DescriptionEN = normalizeText(alt.Description)
}

// CategoryDraft is the mapped shape of a platform category.
type CategoryDraft struct {
	Name             string `json:"name"`
	PlatformParentID string `json:"platform_parent_id"`
	Active           bool   `json:"active"`
}

// OrderStatusDraft is the mapped shape of a platform order status.
type OrderStatusDraft struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// OrderDraft is the mapped shape of a platform order.
type OrderDraft struct {
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	PlacedAt     time.Time       `json:"placed_at"`
}

// CustomerDraft is the mapped shape of a platform customer.
type CustomerDraft struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// PriceDraft is the mapped shape of a price update.
type PriceDraft struct {
	SKU      string          `json:"sku"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// normalizeText trims and NFC-normalizes a localized string so differently
// composed Unicode spellings of the same name compare and hash equal.
func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// productSKU returns the matching key for a product, falling back to a
// synthetic SKU derived from the platform id when the merchant left it empty.
func productSKU(p salla.Product) string {
	sku := strings.TrimSpace(p.SKU)
	if sku != "" {
		return sku
	}
	if p.ID == 0 {
		return ""
	}
	return "SALLA-" + strconv.FormatInt(p.ID, 10)
}

// MapProduct translates a platform product into an item draft. It is pure:
// identical input yields an identical draft and never touches storage.
func MapProduct(p salla.Product) (ItemDraft, error) {
	sku := productSKU(p)
	if sku == "" {
		return ItemDraft{}, mappingErr("product", "sku", "missing and no platform id to derive one")
	}
	name := normalizeText(p.Name)
	if name == "" {
		return ItemDraft{}, mappingErr("product", "name", "missing")
	}
	if p.Price.Amount.IsNegative() {
		return ItemDraft{}, mappingErr("product", "price.amount", "negative")
	}
	if p.Quantity < 0 {
		return ItemDraft{}, mappingErr("product", "quantity", "negative")
	}
	return ItemDraft{
		SKU:         sku,
		Name:        name,
		Description: normalizeText(p.Description),
		Price:       p.Price.Amount,
		Currency:    normalizeCurrency(p.Price.Currency),
		Quantity:    p.Quantity,
		Active:      p.Status != "hidden" && p.Status != "out",
	}, nil
}

// MapCategory translates a platform category into a category draft.
func MapCategory(c salla.Category) (CategoryDraft, error) {
	name := normalizeText(c.Name)
	if name == "" {
		return CategoryDraft{}, mappingErr("category", "name", "missing")
	}
	draft := CategoryDraft{
		Name:   name,
		Active: c.Status == "" || c.Status == "active",
	}
	if c.ParentID != 0 {
		draft.PlatformParentID = strconv.FormatInt(c.ParentID, 10)
	}
	return draft, nil
}

// MapOrderStatus translates a platform order status into a draft keyed by
// its slug.
func MapOrderStatus(s salla.OrderStatus) (OrderStatusDraft, error) {
	code := strings.ToLower(strings.TrimSpace(s.Slug))
	if code == "" {
		return OrderStatusDraft{}, mappingErr("order_status", "slug", "missing")
	}
	name := normalizeText(s.Name)
	if name == "" {
		name = code
	}
	return OrderStatusDraft{Code: code, Name: name}, nil
}

// MapOrder translates a platform order into an order draft with the status
// slug already mapped to the local status vocabulary.
func MapOrder(o salla.Order) (OrderDraft, error) {
	if o.ID == 0 {
		return OrderDraft{}, mappingErr("order", "id", "missing")
	}
	if !o.Amounts.Total.Amount.IsPositive() {
		return OrderDraft{}, mappingErr("order", "amounts.total", "missing or not positive")
	}
	customer := normalizeText(strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName))
	if customer == "" {
		customer = "Salla Customer"
	}
	placedAt := time.Time{}
	if o.Date != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, o.Date); err == nil {
				placedAt = t
				break
			}
		}
	}
	orderNumber := strconv.FormatInt(o.ID, 10)
	if o.ReferenceID != 0 {
		orderNumber = strconv.FormatInt(o.ReferenceID, 10)
	}
	return OrderDraft{
		OrderNumber:  orderNumber,
		CustomerName: customer,
		Status:       LocalOrderStatus(o.Status.Slug),
		Total:        o.Amounts.Total.Amount,
		Currency:     normalizeCurrency(o.Amounts.Total.Currency),
		PlacedAt:     placedAt,
	}, nil
}

// MapCustomer translates a platform customer into a customer draft. The
// local name doubles as the matching key, so a customer with neither a name
// nor enough to derive one is rejected.
func MapCustomer(c salla.Customer) (CustomerDraft, error) {
	if c.ID == 0 {
		return CustomerDraft{}, mappingErr("customer", "id", "missing")
	}
	name := normalizeText(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name == "" {
		name = "Salla Customer " + strconv.FormatInt(c.ID, 10)
	}
	phone := strings.TrimSpace(c.MobileCode) + strings.TrimSpace(c.Mobile)
	return CustomerDraft{
		Name:  name,
		Email: strings.TrimSpace(c.Email),
		Phone: phone,
	}, nil
}

// MapPrice extracts the price update from a platform product. Unlike
// MapProduct it refuses synthetic SKUs: a price can only be applied to an
// item that is matchable by its real SKU.
func MapPrice(p salla.Product) (PriceDraft, error) {
	sku := strings.TrimSpace(p.SKU)
	if sku == "" {
		return PriceDraft{}, mappingErr("price", "sku", "missing")
	}
	if p.Price.Amount.IsNegative() {
		return PriceDraft{}, mappingErr("price", "amount", "negative")
	}
	return PriceDraft{
		SKU:      sku,
		Amount:   p.Price.Amount,
		Currency: normalizeCurrency(p.Price.Currency),
	}, nil
}
