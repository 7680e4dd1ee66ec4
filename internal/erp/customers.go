package erp

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Customer is the ERP customer record. Name is unique and doubles as the
// matching key for platform customers without a local link.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerRepository provides customer persistence.
type CustomerRepository interface {
	GetByName(ctx context.Context, name string) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, id int64, customer Customer) error
}

type customerRepository struct {
	db *pgxpool.Pool
}

// NewCustomerRepository constructs the Postgres customer repository.
func NewCustomerRepository(db *pgxpool.Pool) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) GetByName(ctx context.Context, name string) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx,
		`SELECT id, name, email, phone, created_at, updated_at FROM customers WHERE name = $1`, name,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *customerRepository) Create(ctx context.Context, customer Customer) (Customer, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO customers (name, email, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4) RETURNING id`,
		customer.Name, customer.Email, customer.Phone, now,
	).Scan(&customer.ID)
	if err != nil {
		return Customer{}, err
	}
	customer.CreatedAt = now
	customer.UpdatedAt = now
	return customer, nil
}

func (r *customerRepository) Update(ctx context.Context, id int64, customer Customer) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE customers SET name = $1, email = $2, phone = $3, updated_at = $4 WHERE id = $5`,
		customer.Name, customer.Email, customer.Phone, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
