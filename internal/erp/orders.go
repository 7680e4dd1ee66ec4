package erp

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OrderStatus is an ERP order status definition, keyed by code.
type OrderStatus struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderStatusRepository provides order status persistence.
type OrderStatusRepository interface {
	GetByCode(ctx context.Context, code string) (OrderStatus, error)
	Create(ctx context.Context, status OrderStatus) (OrderStatus, error)
	Update(ctx context.Context, id int64, status OrderStatus) error
}

type orderStatusRepository struct {
	db *pgxpool.Pool
}

// NewOrderStatusRepository constructs the Postgres order status repository.
func NewOrderStatusRepository(db *pgxpool.Pool) OrderStatusRepository {
	return &orderStatusRepository{db: db}
}

func (r *orderStatusRepository) GetByCode(ctx context.Context, code string) (OrderStatus, error) {
	var s OrderStatus
	err := r.db.QueryRow(ctx,
		`SELECT id, code, name, created_at, updated_at FROM order_statuses WHERE code = $1`, code,
	).Scan(&s.ID, &s.Code, &s.Name, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return OrderStatus{}, ErrNotFound
	}
	return s, err
}

func (r *orderStatusRepository) Create(ctx context.Context, status OrderStatus) (OrderStatus, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO order_statuses (code, name, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id`,
		status.Code, status.Name, now,
	).Scan(&status.ID)
	if err != nil {
		return OrderStatus{}, err
	}
	status.CreatedAt = now
	status.UpdatedAt = now
	return status, nil
}

func (r *orderStatusRepository) Update(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE order_statuses SET code = $1, name = $2, updated_at = $3 WHERE id = $4`,
		status.Code, status.Name, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SalesOrder is the ERP order record created from an imported platform order.
type SalesOrder struct {
	ID           int64           `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	PlacedAt     time.Time       `json:"placed_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SalesOrderLine is a single billable line on a sales order.
type SalesOrderLine struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// SalesOrderRepository provides sales order persistence.
type SalesOrderRepository interface {
	Get(ctx context.Context, id int64) (SalesOrder, error)
	Create(ctx context.Context, order SalesOrder) (SalesOrder, error)
	AddLines(ctx context.Context, orderID int64, lines []SalesOrderLine) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

type salesOrderRepository struct {
	db *pgxpool.Pool
}

// NewSalesOrderRepository constructs the Postgres sales order repository.
func NewSalesOrderRepository(db *pgxpool.Pool) SalesOrderRepository {
	return &salesOrderRepository{db: db}
}

func (r *salesOrderRepository) Get(ctx context.Context, id int64) (SalesOrder, error) {
	var o SalesOrder
	err := r.db.QueryRow(ctx,
		`SELECT id, order_number, customer_name, status, total, currency, placed_at, created_at, updated_at
		 FROM sales_orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.Status, &o.Total, &o.Currency,
		&o.PlacedAt, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return SalesOrder{}, ErrNotFound
	}
	return o, err
}

func (r *salesOrderRepository) Create(ctx context.Context, order SalesOrder) (SalesOrder, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO sales_orders (order_number, customer_name, status, total, currency, placed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		order.OrderNumber, order.CustomerName, order.Status, order.Total, order.Currency, order.PlacedAt, now,
	).Scan(&order.ID)
	if err != nil {
		return SalesOrder{}, err
	}
	order.CreatedAt = now
	order.UpdatedAt = now
	return order, nil
}

func (r *salesOrderRepository) AddLines(ctx context.Context, orderID int64, lines []SalesOrderLine) error {
	for _, line := range lines {
		_, err := r.db.Exec(ctx,
			`INSERT INTO sales_order_items (order_id, sku, name, quantity, total)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, line.SKU, line.Name, line.Quantity, line.Total)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *salesOrderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sales_orders SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
