package erp

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Category is the ERP category record, keyed by name for matching.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryRepository provides category persistence.
type CategoryRepository interface {
	Get(ctx context.Context, id int64) (Category, error)
	GetByName(ctx context.Context, name string) (Category, error)
	Create(ctx context.Context, category Category) (Category, error)
	Update(ctx context.Context, id int64, category Category) error
}

type categoryRepository struct {
	db *pgxpool.Pool
}

// NewCategoryRepository constructs the Postgres category repository.
func NewCategoryRepository(db *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{db: db}
}

const categoryColumns = `id, name, parent_id, is_active, created_at, updated_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Category{}, ErrNotFound
	}
	return c, err
}

func (r *categoryRepository) Get(ctx context.Context, id int64) (Category, error) {
	return scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
}

func (r *categoryRepository) GetByName(ctx context.Context, name string) (Category, error) {
	return scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = $1`, name))
}

func (r *categoryRepository) Create(ctx context.Context, category Category) (Category, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (name, parent_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4) RETURNING id`,
		category.Name, category.ParentID, category.IsActive, now,
	).Scan(&category.ID)
	if err != nil {
		return Category{}, err
	}
	category.CreatedAt = now
	category.UpdatedAt = now
	return category, nil
}

func (r *categoryRepository) Update(ctx context.Context, id int64, category Category) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE categories SET name = $1, parent_id = $2, is_active = $3, updated_at = $4 WHERE id = $5`,
		category.Name, category.ParentID, category.IsActive, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
