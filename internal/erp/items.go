// Package erp holds the local record repositories for the entities the
// bridge reconciles: items, item prices, categories, customers, order
// statuses and sales orders.
package erp

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates a local record does not exist.
var ErrNotFound = errors.New("erp: record not found")

// Item is the ERP product record, keyed by SKU for matching purposes. The
// EN fields carry the English translation on bilingual stores and are empty
// otherwise.
type Item struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	NameEN        string          `json:"name_en"`
	Description   string          `json:"description"`
	DescriptionEN string          `json:"description_en"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Quantity      int             `json:"quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ItemRepository provides item persistence.
type ItemRepository interface {
	GetBySKU(ctx context.Context, sku string) (Item, error)
	ListSKUs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, id int64, item Item) error
	UpdatePriceBySKU(ctx context.Context, sku string, price decimal.Decimal, currency string) error
}

type itemRepository struct {
	db *pgxpool.Pool
}

// NewItemRepository constructs the Postgres item repository.
func NewItemRepository(db *pgxpool.Pool) ItemRepository {
	return &itemRepository{db: db}
}

const itemColumns = `id, sku, name, name_en, description, description_en, price, currency, quantity, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.NameEN, &it.Description, &it.DescriptionEN,
		&it.Price, &it.Currency, &it.Quantity, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *itemRepository) GetBySKU(ctx context.Context, sku string) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE sku = $1`, sku))
}

func (r *itemRepository) ListSKUs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT sku FROM items WHERE is_active ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

func (r *itemRepository) Create(ctx context.Context, item Item) (Item, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO items (sku, name, name_en, description, description_en, price, currency, quantity, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
		item.SKU, item.Name, item.NameEN, item.Description, item.DescriptionEN,
		item.Price, item.Currency, item.Quantity, item.IsActive, now,
	).Scan(&item.ID)
	if err != nil {
		return Item{}, err
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *itemRepository) Update(ctx context.Context, id int64, item Item) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE items SET name = $1, name_en = $2, description = $3, description_en = $4, price = $5,
		 currency = $6, quantity = $7, is_active = $8, updated_at = $9 WHERE id = $10`,
		item.Name, item.NameEN, item.Description, item.DescriptionEN,
		item.Price, item.Currency, item.Quantity, item.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepository) UpdatePriceBySKU(ctx context.Context, sku string, price decimal.Decimal, currency string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE items SET price = $1, currency = $2, updated_at = $3 WHERE sku = $4`,
		price, currency, time.Now(), sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
