package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `p.id, p.category_id, c.name, p.name, p.description, p.price, p.image, p.is_featured, p.is_available, p.created_at`

type ProductSort string

const (
	SortByName      ProductSort = "name"
	SortByPriceLow  ProductSort = "price_low"
	SortByPriceHigh ProductSort = "price_high"
	SortByNewest    ProductSort = "newest"
)

// ProductFilter narrows the catalog listing. Zero values mean "no filter".
type ProductFilter struct {
	CategoryID         int64
	Search             string
	MinPrice           decimal.NullDecimal
	MaxPrice           decimal.NullDecimal
	Sort               ProductSort
	IncludeUnavailable bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Description, &p.Price, &p.Image, &p.IsFeatured, &p.IsAvailable, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p JOIN categories c ON c.id = p.category_id WHERE p.id = ?`
	p, err := scanProduct(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeUnavailable {
		where = append(where, "p.is_available = 1")
	}
	if f.CategoryID > 0 {
		where = append(where, "p.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		where = append(where, "(p.name LIKE ? OR p.description LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if f.MinPrice.Valid {
		where = append(where, "p.price >= ?")
		args = append(args, f.MinPrice.Decimal.InexactFloat64())
	}
	if f.MaxPrice.Valid {
		where = append(where, "p.price <= ?")
		args = append(args, f.MaxPrice.Decimal.InexactFloat64())
	}

	query := `SELECT ` + productColumns + ` FROM products p JOIN categories c ON c.id = p.category_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch f.Sort {
	case SortByPriceLow:
		query += " ORDER BY p.price ASC, p.name ASC"
	case SortByPriceHigh:
		query += " ORDER BY p.price DESC, p.name ASC"
	case SortByNewest:
		query += " ORDER BY p.created_at DESC, p.id DESC"
	default:
		query += " ORDER BY p.name ASC"
	}

	return s.queryProducts(ctx, query, args...)
}

func (s *Store) FeaturedProducts(ctx context.Context, limit int) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.is_featured = 1 AND p.is_available = 1
		ORDER BY p.name
		LIMIT ?`
	return s.queryProducts(ctx, query, limit)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	query := `
		INSERT INTO products (category_id, name, description, price, image, is_featured, is_available)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.DB.ExecContext(ctx, query, p.CategoryID, p.Name, p.Description, p.Price.String(), p.Image, p.IsFeatured, p.IsAvailable)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET category_id = ?, name = ?, description = ?, price = ?, is_featured = ?, is_available = ?
		WHERE id = ?
	`
	res, err := s.DB.ExecContext(ctx, query, p.CategoryID, p.Name, p.Description, p.Price.String(), p.IsFeatured, p.IsAvailable, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", p.ID, err)
	}
	return expectOneRow(res)
}

func (s *Store) UpdateProductImage(ctx context.Context, id int64, image string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE products SET image = ? WHERE id = ?`, image, id)
	if err != nil {
		return fmt.Errorf("failed to update product image %d: %w", id, err)
	}
	return expectOneRow(res)
}

// DeleteProduct refuses to delete a dish that has been ordered; order history
// keeps pointing at it. Such products are marked unavailable instead.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	var used int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items WHERE product_id = ?`, id).Scan(&used); err != nil {
		return fmt.Errorf("failed to check product usage: %w", err)
	}
	if used > 0 {
		return ErrProductInUse
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
