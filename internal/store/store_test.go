package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cart"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func createCustomer(t *testing.T, s *Store, email string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), &models.User{
		Name:     "Test Customer",
		Email:    email,
		Phone:    "9841000000",
		Password: "$2a$10$notarealhash",
	})
	require.NoError(t, err)
	return id
}

// readyState builds a session that has passed checkout and payment for
// qty x Chicken Sekuwa (seeded id 1, Rs 250).
func readyState(t *testing.T, qty int, method string) *checkout.State {
	t.Helper()
	st := checkout.NewState("sess-store")
	st.Cart.Add(cart.Line{ProductID: 1, Name: "Chicken Sekuwa", UnitPrice: decimal.NewFromInt(250)}, qty)

	info, err := checkout.Validate(checkout.DeliveryForm{Address: "Thamel, Kathmandu", Phone: "9841000000"}, st.Cart.Lines(), checkout.DefaultPricing())
	require.NoError(t, err)
	st.SetCheckout(info)

	sel, err := checkout.DefaultSelector().Select(context.Background(), info, method)
	require.NoError(t, err)
	st.SetPayment(sel)
	return st
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// failingPayments wraps the real transaction so the payment insert fails
// after the order and its items were written.
type failingPayments struct {
	store *Store
}

func (f failingPayments) WithinTx(ctx context.Context, fn func(w checkout.OrderWriter) error) error {
	return f.store.WithinTx(ctx, func(w checkout.OrderWriter) error {
		return fn(paymentFails{OrderWriter: w})
	})
}

type paymentFails struct {
	checkout.OrderWriter
}

func (paymentFails) InsertPayment(context.Context, *models.Payment) error {
	return errors.New("disk I/O error")
}

func TestMigrate_SeedsMenu(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(), "second run is a no-op")

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 4)

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Chicken Sekuwa", p.Name)
	assert.Equal(t, "Sekuwa", p.CategoryName)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(250)))
	assert.True(t, p.IsAvailable)

	_, err = s.GetProduct(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProducts_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	all, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 8)

	sekuwa, err := s.ListProducts(ctx, ProductFilter{CategoryID: 1, Sort: SortByPriceLow})
	require.NoError(t, err)
	require.Len(t, sekuwa, 3)
	assert.Equal(t, "Chicken Sekuwa", sekuwa[0].Name)
	assert.Equal(t, "Pork Sekuwa", sekuwa[2].Name)

	momo, err := s.ListProducts(ctx, ProductFilter{Search: "momo"})
	require.NoError(t, err)
	assert.Len(t, momo, 2)

	cheap, err := s.ListProducts(ctx, ProductFilter{MaxPrice: decimal.NewNullDecimal(decimal.NewFromInt(150))})
	require.NoError(t, err)
	assert.Len(t, cheap, 2)

	p, err := s.GetProduct(ctx, 8)
	require.NoError(t, err)
	p.IsAvailable = false
	require.NoError(t, s.UpdateProduct(ctx, p))

	visible, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, visible, 7)

	everything, err := s.ListProducts(ctx, ProductFilter{IncludeUnavailable: true})
	require.NoError(t, err)
	assert.Len(t, everything, 8)
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)

	id := createCustomer(t, s, "Ram@Example.com")

	_, err = s.CreateUser(ctx, &models.User{Name: "Dup", Email: "ram@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	u, err = s.GetUserByEmail(ctx, " RAM@example.com ")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, models.RoleCustomer, u.Role)

	exists, err := s.EmailExists(ctx, "ram@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCommit_PersistsOrderItemsAndPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "sita@example.com")

	st := readyState(t, 2, "Cash on Delivery")
	orderID, err := checkout.NewCommitter(s, checkout.DefaultPricing(), nil).Commit(ctx, userID, st)
	require.NoError(t, err)
	assert.True(t, st.Cart.IsEmpty())

	order, err := s.GetOrderForUser(ctx, orderID, userID)
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "Thamel, Kathmandu", order.Address)
	assert.Equal(t, models.PaymentCashOnDelivery, order.PaymentMethod)
	assert.Equal(t, 2, order.ItemCount)
	assert.False(t, order.CreatedAt.IsZero())

	items, err := s.ListOrderItems(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, items[0].Price.Equal(decimal.NewFromInt(250)))
	assert.True(t, items[0].LineTotal().Equal(order.TotalPrice))

	pay, err := s.GetPayment(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, pay.Status)
	assert.Nil(t, pay.TransactionID)

	_, err = s.GetOrderForUser(ctx, orderID, userID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommit_WalletStoresTransactionID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "hari@example.com")

	st := readyState(t, 1, "Khalti")
	orderID, err := checkout.NewCommitter(s, checkout.DefaultPricing(), nil).Commit(ctx, userID, st)
	require.NoError(t, err)

	pay, err := s.GetPayment(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, pay.Status)
	require.NotNil(t, pay.TransactionID)
	assert.Regexp(t, `^TXN\d+[0-9A-F]{8}$`, *pay.TransactionID)

	order, err := s.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(300)), "250 + 50 delivery")
}

func TestCommit_PaymentFailureLeavesNoRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "gita@example.com")

	st := readyState(t, 2, "Cash on Delivery")
	_, err := checkout.NewCommitter(failingPayments{store: s}, checkout.DefaultPricing(), nil).Commit(ctx, userID, st)

	var perr *checkout.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, countRows(t, s, "orders"))
	assert.Equal(t, 0, countRows(t, s, "order_items"))
	assert.Equal(t, 0, countRows(t, s, "payments"))

	assert.Equal(t, checkout.PhaseFailed, st.Phase)
	assert.Equal(t, 2, st.Cart.Count())
	assert.NotNil(t, st.Info)
	assert.NotNil(t, st.Payment)

	// The retained state commits cleanly once the store recovers.
	orderID, err := checkout.NewCommitter(s, checkout.DefaultPricing(), nil).Commit(ctx, userID, st)
	require.NoError(t, err)
	assert.Positive(t, orderID)
	assert.Equal(t, 1, countRows(t, s, "orders"))
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "maya@example.com")
	orderID, err := checkout.NewCommitter(s, checkout.DefaultPricing(), nil).Commit(ctx, userID, readyState(t, 2, "Cash on Delivery"))
	require.NoError(t, err)

	err = s.UpdateOrderStatus(ctx, orderID, models.OrderStatusDelivered)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	for _, next := range []models.OrderStatus{
		models.OrderStatusCooking,
		models.OrderStatusOutForDelivery,
		models.OrderStatusDelivered,
	} {
		require.NoError(t, s.UpdateOrderStatus(ctx, orderID, next), "to %s", next)
	}

	order, err := s.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus, "cash is collected on delivery")

	assert.NoError(t, s.UpdateOrderStatus(ctx, orderID, models.OrderStatusDelivered), "same status is a no-op")
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled), models.ErrInvalidTransition)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, 9999, models.OrderStatusCooking), ErrNotFound)
}

func TestListOrders_FilterAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "bina@example.com")
	c := checkout.NewCommitter(s, checkout.DefaultPricing(), nil)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := c.Commit(ctx, userID, readyState(t, 1, "eSewa"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.UpdateOrderStatus(ctx, ids[0], models.OrderStatusCancelled))

	pending, err := s.ListOrders(ctx, OrderFilter{Status: models.OrderStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	n, err := s.CountOrders(ctx, OrderFilter{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := s.ListOrders(ctx, OrderFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	today, err := s.ListOrders(ctx, OrderFilter{Date: time.Now().UTC().Format(time.DateOnly)})
	require.NoError(t, err)
	assert.Len(t, today, 3)

	mine, err := s.ListOrdersForUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	assert.Equal(t, "bina@example.com", mine[0].CustomerEmail)
}

func TestDeleteProduct_InUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "kiran@example.com")
	_, err := checkout.NewCommitter(s, checkout.DefaultPricing(), nil).Commit(ctx, userID, readyState(t, 1, "Cash on Delivery"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteProduct(ctx, 1), ErrProductInUse)
	assert.NoError(t, s.DeleteProduct(ctx, 7))
	assert.ErrorIs(t, s.DeleteProduct(ctx, 7), ErrNotFound)
}

func TestReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "asha@example.com")
	c := checkout.NewCommitter(s, checkout.DefaultPricing(), nil)

	first, err := c.Commit(ctx, userID, readyState(t, 2, "Cash on Delivery")) // 500
	require.NoError(t, err)
	_, err = c.Commit(ctx, userID, readyState(t, 1, "Khalti")) // 300
	require.NoError(t, err)
	cancelled, err := c.Commit(ctx, userID, readyState(t, 1, "eSewa")) // 300, cancelled
	require.NoError(t, err)
	require.NoError(t, s.UpdateOrderStatus(ctx, cancelled, models.OrderStatusCancelled))
	require.NoError(t, s.UpdateOrderStatus(ctx, first, models.OrderStatusCooking))

	now := time.Now().UTC()
	r, err := s.SalesReport(ctx, now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	assert.Equal(t, 3, r.TotalOrders)
	assert.Equal(t, 1, r.CancelledOrders)
	assert.True(t, r.TotalRevenue.Equal(decimal.NewFromInt(800)), r.TotalRevenue.String())
	assert.True(t, r.AverageOrder.Equal(decimal.NewFromInt(400)))
	require.Len(t, r.Daily, 1)
	require.Len(t, r.Popular, 1)
	assert.Equal(t, 3, r.Popular[0].Quantity)
	assert.Equal(t, 1, r.ByStatus[models.OrderStatusCooking])
	assert.Len(t, r.ByPayment, 2)

	dash, err := s.AdminDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dash.TotalOrders)
	assert.Equal(t, 1, dash.PendingOrders)
	assert.Equal(t, 1, dash.TotalCustomers)
	assert.Len(t, dash.RecentOrders, 3)

	cs, err := s.CustomerStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, cs.TotalOrders)
	assert.Equal(t, 2, cs.Active)
	assert.True(t, cs.TotalSpent.Equal(decimal.NewFromInt(800)))
	require.Len(t, cs.Favourites, 1)
	assert.Equal(t, "Chicken Sekuwa", cs.Favourites[0].Name)
}

func TestReports_FractionalPricesSumExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "tara@example.com")

	pid, err := s.CreateProduct(ctx, &models.Product{
		CategoryID:  1,
		Name:        "Sel Roti Bite",
		Price:       decimal.RequireFromString("0.1"),
		IsAvailable: true,
	})
	require.NoError(t, err)

	noFee := checkout.Pricing{DeliveryFee: decimal.Zero, FreeThreshold: decimal.Zero}
	c := checkout.NewCommitter(s, noFee, nil)
	for i := 0; i < 3; i++ {
		st := checkout.NewState("sess-fraction")
		st.Cart.Add(cart.Line{ProductID: pid, Name: "Sel Roti Bite", UnitPrice: decimal.RequireFromString("0.1")}, 1)
		info, err := checkout.Validate(checkout.DeliveryForm{Address: "Patan Durbar Square", Phone: "9841000000"}, st.Cart.Lines(), noFee)
		require.NoError(t, err)
		st.SetCheckout(info)
		sel, err := checkout.DefaultSelector().Select(ctx, info, "Cash on Delivery")
		require.NoError(t, err)
		st.SetPayment(sel)
		_, err = c.Commit(ctx, userID, st)
		require.NoError(t, err)
	}

	want := decimal.RequireFromString("0.3")
	now := time.Now().UTC()
	r, err := s.SalesReport(ctx, now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	assert.Equal(t, "0.3", r.TotalRevenue.String())
	assert.True(t, r.AverageOrder.Equal(decimal.RequireFromString("0.1")), r.AverageOrder.String())
	require.Len(t, r.Daily, 1)
	assert.True(t, r.Daily[0].Revenue.Equal(want), r.Daily[0].Revenue.String())
	require.Len(t, r.Popular, 1)
	assert.Equal(t, "0.3", r.Popular[0].Revenue.String())
	require.Len(t, r.ByPayment, 1)
	assert.True(t, r.ByPayment[0].Amount.Equal(want))

	dash, err := s.AdminDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.3", dash.Revenue.String())

	cs, err := s.CustomerStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "0.3", cs.TotalSpent.String())
	require.Len(t, cs.Favourites, 1)
	assert.Equal(t, "0.3", cs.Favourites[0].Revenue.String())
}

func TestCustomerReport_DateRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := createCustomer(t, s, "bishnu@example.com")
	otherID := createCustomer(t, s, "someone@example.com")
	c := checkout.NewCommitter(s, checkout.DefaultPricing(), nil)

	january, err := c.Commit(ctx, userID, readyState(t, 2, "Cash on Delivery")) // 500
	require.NoError(t, err)
	february, err := c.Commit(ctx, userID, readyState(t, 1, "eSewa")) // 300
	require.NoError(t, err)
	_, err = c.Commit(ctx, userID, readyState(t, 1, "Khalti")) // 300, today
	require.NoError(t, err)
	cancelled, err := c.Commit(ctx, userID, readyState(t, 1, "Cash on Delivery")) // 300
	require.NoError(t, err)
	_, err = c.Commit(ctx, otherID, readyState(t, 3, "Cash on Delivery"))
	require.NoError(t, err)

	setCreated := func(id int64, at string) {
		_, err := s.DB.Exec(`UPDATE orders SET created_at = ? WHERE id = ?`, at, id)
		require.NoError(t, err)
	}
	setCreated(january, "2024-01-15 12:30:00")
	setCreated(february, "2024-02-03 19:00:00")
	setCreated(cancelled, "2024-01-20 08:00:00")
	require.NoError(t, s.UpdateOrderStatus(ctx, cancelled, models.OrderStatusCancelled))

	day := func(v string) time.Time {
		t.Helper()
		d, err := time.Parse(time.DateOnly, v)
		require.NoError(t, err)
		return d
	}

	r, err := s.CustomerReport(ctx, userID, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalOrders)
	assert.Equal(t, 1, r.Cancelled)
	assert.True(t, r.TotalSpent.Equal(decimal.NewFromInt(500)), r.TotalSpent.String())
	assert.True(t, r.AverageOrder.Equal(decimal.NewFromInt(500)))
	require.Len(t, r.Orders, 2)
	for _, o := range r.Orders {
		assert.Equal(t, userID, o.UserID)
	}

	// Range boundaries are inclusive days
	r, err = s.CustomerReport(ctx, userID, day("2024-02-03"), day("2024-02-03"))
	require.NoError(t, err)
	require.Len(t, r.Orders, 1)
	assert.Equal(t, february, r.Orders[0].ID)

	r, err = s.CustomerReport(ctx, userID, day("2023-01-01"), day("2023-12-31"))
	require.NoError(t, err)
	assert.Zero(t, r.TotalOrders)
	assert.True(t, r.TotalSpent.IsZero())
	assert.Empty(t, r.Orders)

	// Monthly spending ignores the range and cancelled orders, newest first
	require.Len(t, r.Monthly, 3)
	assert.Equal(t, time.Now().UTC().Format("2006-01"), r.Monthly[0].Month)
	assert.Equal(t, "2024-02", r.Monthly[1].Month)
	assert.Equal(t, "2024-01", r.Monthly[2].Month)
	assert.Equal(t, 1, r.Monthly[2].Orders)
	assert.True(t, r.Monthly[2].Total.Equal(decimal.NewFromInt(500)))

	require.Len(t, r.Favourites, 1)
	assert.Equal(t, 4, r.Favourites[0].Quantity)
}
