package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
)

// WithinTx runs fn inside a single transaction. Any error from fn rolls back
// every insert made through the writer.
func (s *Store) WithinTx(ctx context.Context, fn func(w checkout.OrderWriter) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type orderTx struct {
	tx *sql.Tx
}

func (o *orderTx) InsertOrder(ctx context.Context, order *models.Order) (int64, error) {
	query := `
		INSERT INTO orders (user_id, total_price, address, phone, status, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := o.tx.ExecContext(ctx, query, order.UserID, order.TotalPrice.String(), order.Address, order.Phone, string(order.Status), order.Notes)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (o *orderTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := o.tx.ExecContext(ctx, query, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price.String())
	return err
}

func (o *orderTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, payment_method, payment_status, transaction_id)
		VALUES (?, ?, ?, ?)
	`
	_, err := o.tx.ExecContext(ctx, query, p.OrderID, string(p.Method), string(p.Status), nullable(p.TransactionID))
	return err
}

const orderSelect = `
	SELECT o.id, o.user_id, o.total_price, o.address, o.phone, o.status, o.notes, o.created_at, o.updated_at,
		u.name, u.email,
		COALESCE(p.payment_method, ''), COALESCE(p.payment_status, ''), COALESCE(p.transaction_id, ''),
		(SELECT COALESCE(SUM(oi.quantity), 0) FROM order_items oi WHERE oi.order_id = o.id)
	FROM orders o
	JOIN users u ON u.id = o.user_id
	LEFT JOIN payments p ON p.order_id = o.id
`

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Address, &o.Phone, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
		&o.CustomerName, &o.CustomerEmail,
		&o.PaymentMethod, &o.PaymentStatus, &o.TransactionID,
		&o.ItemCount)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(s.DB.QueryRowContext(ctx, orderSelect+` WHERE o.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return o, nil
}

// GetOrderForUser returns ErrNotFound for orders belonging to someone else.
func (s *Store) GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error) {
	o, err := scanOrder(s.DB.QueryRowContext(ctx, orderSelect+` WHERE o.id = ? AND o.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return o, nil
}

func (s *Store) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	query := `SELECT id, order_id, product_id, product_name, quantity, price FROM order_items WHERE order_id = ? ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	query := `SELECT id, order_id, payment_method, payment_status, transaction_id, created_at FROM payments WHERE order_id = ?`
	var (
		p   models.Payment
		txn sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, query, orderID).Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &txn, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for order %d: %w", orderID, err)
	}
	if txn.Valid {
		p.TransactionID = &txn.String
	}
	return &p, nil
}

// OrderFilter selects orders for the admin and account listings. Date, From
// and To are YYYY-MM-DD days in the database clock; From and To are inclusive.
type OrderFilter struct {
	UserID int64
	Status models.OrderStatus
	Date   string
	From   string
	To     string
	Limit  int
	Offset int
}

func (f OrderFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.UserID > 0 {
		clauses = append(clauses, "o.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "o.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Date != "" {
		clauses = append(clauses, "DATE(o.created_at) = ?")
		args = append(args, f.Date)
	}
	if f.From != "" {
		clauses = append(clauses, "DATE(o.created_at) >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "DATE(o.created_at) <= ?")
		args = append(args, f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	where, args := f.where()
	query := orderSelect + where + ` ORDER BY o.created_at DESC, o.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *Store) ListOrdersForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.ListOrders(ctx, OrderFilter{UserID: userID})
}

func (s *Store) CountOrders(ctx context.Context, f OrderFilter) (int, error) {
	where, args := f.where()
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// UpdateOrderStatus moves an order along the fulfilment flow. Delivering a
// cash-on-delivery order also marks its payment as collected.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, next models.OrderStatus) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var current models.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read order status: %w", err)
		}

		if err := models.ValidateTransition(current, next); err != nil {
			return err
		}
		if current == next {
			return nil
		}

		now := time.Now().UTC().Format(time.DateTime)
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, string(next), now, id); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		if next == models.OrderStatusDelivered {
			_, err := tx.ExecContext(ctx,
				`UPDATE payments SET payment_status = ? WHERE order_id = ? AND payment_method = ?`,
				string(models.PaymentStatusCompleted), id, string(models.PaymentCashOnDelivery))
			if err != nil {
				return fmt.Errorf("failed to complete cash payment: %w", err)
			}
		}
		return nil
	})
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
