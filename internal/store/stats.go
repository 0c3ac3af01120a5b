package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	TotalProducts  int
	TotalCustomers int
	TotalOrders    int
	TodayOrders    int
	PendingOrders  int
	Revenue        decimal.Decimal // excludes cancelled orders
	OrdersByStatus map[models.OrderStatus]int
	RecentOrders   []models.Order
}

type DailySales struct {
	Day     string
	Orders  int
	Revenue decimal.Decimal
}

type ProductSales struct {
	ProductID int64
	Name      string
	Quantity  int
	Revenue   decimal.Decimal
}

type PaymentBreakdown struct {
	Method models.PaymentMethod
	Orders int
	Amount decimal.Decimal
}

// SalesReport covers orders created in [From, To] inclusive, by calendar day.
type SalesReport struct {
	From, To        time.Time
	TotalOrders     int
	TotalRevenue    decimal.Decimal
	AverageOrder    decimal.Decimal
	DeliveredOrders int
	CancelledOrders int
	Daily           []DailySales
	Popular         []ProductSales
	ByStatus        map[models.OrderStatus]int
	ByPayment       []PaymentBreakdown
}

type MonthlySpending struct {
	Month  string // YYYY-MM
	Orders int
	Total  decimal.Decimal
}

// CustomerReport is one customer's spending over [From, To] inclusive.
// Monthly and Favourites cover the whole history.
type CustomerReport struct {
	From, To     time.Time
	TotalOrders  int
	TotalSpent   decimal.Decimal // excludes cancelled orders
	AverageOrder decimal.Decimal
	Delivered    int
	Cancelled    int
	Monthly      []MonthlySpending // newest first, at most 12
	Favourites   []ProductSales
	Orders       []models.Order
}

type CustomerStats struct {
	TotalOrders int
	TotalSpent  decimal.Decimal
	Active      int
	Delivered   int
	Favourites  []ProductSales
}

// Money columns have NUMERIC affinity, so fractional prices are stored as
// REAL. Aggregates run over integer paisa and are scanned back with money.
func paisa(expr string) string {
	return "CAST(ROUND((" + expr + ") * 100) AS INTEGER)"
}

// lineRevenue is the paisa value of one order_items row.
var lineRevenue = "oi.quantity * " + paisa("oi.price")

type moneyScanner struct {
	dest *decimal.Decimal
}

// money scans an integer paisa aggregate into dest.
func money(dest *decimal.Decimal) *moneyScanner {
	return &moneyScanner{dest: dest}
}

func (m *moneyScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m.dest = decimal.Zero
	case int64:
		*m.dest = decimal.New(v, -2)
	case float64:
		*m.dest = decimal.New(int64(math.Round(v)), -2)
	default:
		return fmt.Errorf("unexpected money aggregate %T", src)
	}
	return nil
}

func averageOf(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n))).Round(2)
}

// topProducts ranks dishes by quantity over non-cancelled orders matching
// where, which may refer to o (orders) and oi (order_items).
func (s *Store) topProducts(ctx context.Context, where string, limit int, args ...any) ([]ProductSales, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT oi.product_id, oi.product_name, SUM(oi.quantity) AS qty, SUM(`+lineRevenue+`)
		FROM order_items oi JOIN orders o ON o.id = oi.order_id
		WHERE o.status != 'Cancelled' AND `+where+`
		GROUP BY oi.product_id, oi.product_name
		ORDER BY qty DESC, oi.product_name
		LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("top products failed: %w", err)
	}
	defer rows.Close()

	var out []ProductSales
	for rows.Next() {
		var p ProductSales
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity, money(&p.Revenue)); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AdminDashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{
		OrdersByStatus: make(map[models.OrderStatus]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM products`, &stats.TotalProducts},
		{`SELECT COUNT(*) FROM users WHERE role = 'customer'`, &stats.TotalCustomers},
		{`SELECT COUNT(*) FROM orders`, &stats.TotalOrders},
		{`SELECT COUNT(*) FROM orders WHERE DATE(created_at) = DATE('now')`, &stats.TodayOrders},
		{`SELECT COUNT(*) FROM orders WHERE status = 'Pending'`, &stats.PendingOrders},
	}
	for _, c := range counts {
		if err := s.DB.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("dashboard count failed: %w", err)
		}
	}

	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(`+paisa("total_price")+`), 0) FROM orders WHERE status != 'Cancelled'`).Scan(money(&stats.Revenue))
	if err != nil {
		return nil, fmt.Errorf("dashboard revenue failed: %w", err)
	}

	if err := s.statusCounts(ctx, stats.OrdersByStatus, `SELECT status, COUNT(*) FROM orders GROUP BY status`); err != nil {
		return nil, err
	}

	stats.RecentOrders, err = s.ListOrders(ctx, OrderFilter{Limit: 5})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) statusCounts(ctx context.Context, into map[models.OrderStatus]int, query string, args ...any) error {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to count orders by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status models.OrderStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		into[status] = count
	}
	return rows.Err()
}

func (s *Store) SalesReport(ctx context.Context, from, to time.Time) (*SalesReport, error) {
	r := &SalesReport{
		From:     from,
		To:       to,
		ByStatus: make(map[models.OrderStatus]int),
	}
	fromDay, toDay := from.Format(time.DateOnly), to.Format(time.DateOnly)
	const inRange = `DATE(o.created_at) BETWEEN ? AND ?`

	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN o.status != 'Cancelled' THEN `+paisa("o.total_price")+` ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN o.status = 'Delivered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN o.status = 'Cancelled' THEN 1 ELSE 0 END), 0)
		FROM orders o WHERE `+inRange, fromDay, toDay).
		Scan(&r.TotalOrders, money(&r.TotalRevenue), &r.DeliveredOrders, &r.CancelledOrders)
	if err != nil {
		return nil, fmt.Errorf("sales totals failed: %w", err)
	}
	r.AverageOrder = averageOf(r.TotalRevenue, r.TotalOrders-r.CancelledOrders)

	rows, err := s.DB.QueryContext(ctx, `
		SELECT DATE(o.created_at) AS day, COUNT(*),
			COALESCE(SUM(CASE WHEN o.status != 'Cancelled' THEN `+paisa("o.total_price")+` ELSE 0 END), 0)
		FROM orders o WHERE `+inRange+`
		GROUP BY day ORDER BY day`, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("daily sales failed: %w", err)
	}
	for rows.Next() {
		var d DailySales
		if err := rows.Scan(&d.Day, &d.Orders, money(&d.Revenue)); err != nil {
			rows.Close()
			return nil, err
		}
		r.Daily = append(r.Daily, d)
	}
	rows.Close()

	r.Popular, err = s.topProducts(ctx, inRange, 10, fromDay, toDay)
	if err != nil {
		return nil, err
	}

	if err := s.statusCounts(ctx, r.ByStatus,
		`SELECT o.status, COUNT(*) FROM orders o WHERE `+inRange+` GROUP BY o.status`, fromDay, toDay); err != nil {
		return nil, err
	}

	rows, err = s.DB.QueryContext(ctx, `
		SELECT p.payment_method, COUNT(*), COALESCE(SUM(`+paisa("o.total_price")+`), 0)
		FROM payments p JOIN orders o ON o.id = p.order_id
		WHERE o.status != 'Cancelled' AND `+inRange+`
		GROUP BY p.payment_method ORDER BY p.payment_method`, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("payment breakdown failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b PaymentBreakdown
		if err := rows.Scan(&b.Method, &b.Orders, money(&b.Amount)); err != nil {
			return nil, err
		}
		r.ByPayment = append(r.ByPayment, b)
	}
	return r, rows.Err()
}

func (s *Store) CustomerStats(ctx context.Context, userID int64) (*CustomerStats, error) {
	var cs CustomerStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status != 'Cancelled' THEN `+paisa("total_price")+` ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('Pending', 'Cooking', 'Out for Delivery') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'Delivered' THEN 1 ELSE 0 END), 0)
		FROM orders WHERE user_id = ?`, userID).
		Scan(&cs.TotalOrders, money(&cs.TotalSpent), &cs.Active, &cs.Delivered)
	if err != nil {
		return nil, fmt.Errorf("customer stats failed: %w", err)
	}

	cs.Favourites, err = s.topProducts(ctx, "o.user_id = ?", 3, userID)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *Store) CustomerReport(ctx context.Context, userID int64, from, to time.Time) (*CustomerReport, error) {
	r := &CustomerReport{From: from, To: to}
	fromDay, toDay := from.Format(time.DateOnly), to.Format(time.DateOnly)

	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status != 'Cancelled' THEN `+paisa("total_price")+` ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'Delivered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'Cancelled' THEN 1 ELSE 0 END), 0)
		FROM orders WHERE user_id = ? AND DATE(created_at) BETWEEN ? AND ?`, userID, fromDay, toDay).
		Scan(&r.TotalOrders, money(&r.TotalSpent), &r.Delivered, &r.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("customer report totals failed: %w", err)
	}
	r.AverageOrder = averageOf(r.TotalSpent, r.TotalOrders-r.Cancelled)

	rows, err := s.DB.QueryContext(ctx, `
		SELECT strftime('%Y-%m', created_at) AS month, COUNT(*), SUM(`+paisa("total_price")+`)
		FROM orders WHERE user_id = ? AND status != 'Cancelled'
		GROUP BY month ORDER BY month DESC
		LIMIT 12`, userID)
	if err != nil {
		return nil, fmt.Errorf("monthly spending failed: %w", err)
	}
	for rows.Next() {
		var m MonthlySpending
		if err := rows.Scan(&m.Month, &m.Orders, money(&m.Total)); err != nil {
			rows.Close()
			return nil, err
		}
		r.Monthly = append(r.Monthly, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	r.Favourites, err = s.topProducts(ctx, "o.user_id = ?", 5, userID)
	if err != nil {
		return nil, err
	}

	r.Orders, err = s.ListOrders(ctx, OrderFilter{UserID: userID, From: fromDay, To: toDay})
	if err != nil {
		return nil, err
	}
	return r, nil
}
