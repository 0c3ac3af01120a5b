package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cache"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/Saurav-Nepal/sekuwa-kerner/web"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var thankYouPath = regexp.MustCompile(`^/orders/(\d+)/thank-you$`)

type testApp struct {
	server *httptest.Server
	store  *store.Store
}

// newTestApp serves the full router over a fresh database. A nil runner
// commits through the store itself.
func newTestApp(t *testing.T, runner checkout.TxRunner) *testApp {
	t.Helper()
	return newTestAppWithLimiter(t, runner, nil)
}

func newTestAppWithLimiter(t *testing.T, runner checkout.TxRunner, limiter *RateLimiter) *testApp {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	if runner == nil {
		runner = s
	}

	templates := NewTemplateCache()
	require.NoError(t, templates.Load(web.Templates, "templates"))

	cookies := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	cookies.Options = &sessions.Options{Path: "/", HttpOnly: true, MaxAge: 3600}

	base := &Base{
		Sessions:  cookies,
		States:    cache.NewMemoryCache(time.Hour),
		Templates: templates,
	}
	pricing := checkout.DefaultPricing()
	router := NewRouter(base, Options{
		Store:        s,
		Pricing:      pricing,
		Selector:     checkout.DefaultSelector(),
		Committer:    checkout.NewCommitter(runner, pricing, nil),
		OrderLimiter: limiter,
		UploadDir:    t.TempDir(),
		Static:       web.Static(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{server: srv, store: s}
}

// client keeps cookies between requests and reports redirects instead of
// following them.
func (a *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (a *testApp) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func assertRedirect(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, want, resp.Header.Get("Location"))
}

func (a *testApp) orderCount(t *testing.T) int {
	t.Helper()
	n, err := a.store.CountOrders(context.Background(), store.OrderFilter{})
	require.NoError(t, err)
	return n
}

func (a *testApp) register(t *testing.T, c *http.Client, email string) *http.Response {
	t.Helper()
	resp, _ := a.post(t, c, "/register", url.Values{
		"name":             {"Sita Sharma"},
		"email":            {email},
		"phone":            {"9841000000"},
		"password":         {"secret123"},
		"confirm_password": {"secret123"},
	})
	return resp
}

// checkedOut registers a customer, fills a cart with qty x Chicken Sekuwa
// and completes the delivery and payment steps.
func (a *testApp) checkedOut(t *testing.T, c *http.Client, email string, qty int) {
	t.Helper()
	a.register(t, c, email)
	resp, _ := a.post(t, c, "/products/1/cart", url.Values{"quantity": {strconv.Itoa(qty)}})
	assertRedirect(t, resp, "/cart")
	resp, _ = a.post(t, c, "/checkout", url.Values{"address": {"Thamel, Kathmandu"}, "phone": {"9841000000"}})
	assertRedirect(t, resp, "/payment")
	resp, _ = a.post(t, c, "/payment", url.Values{"payment_method": {"Cash on Delivery"}})
	assertRedirect(t, resp, "/payment")
}

func TestOrderFlow(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)

	resp, body := app.get(t, c, "/products/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Chicken Sekuwa")

	resp, _ = app.post(t, c, "/products/1/cart", url.Values{"quantity": {"2"}})
	assertRedirect(t, resp, "/cart")

	resp, body = app.get(t, c, "/cart")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Chicken Sekuwa added to your cart.")

	// Anonymous visitors are sent to log in, then back to checkout
	resp, _ = app.get(t, c, "/checkout")
	assertRedirect(t, resp, "/login")
	assertRedirect(t, app.register(t, c, "sita@example.com"), "/checkout")

	resp, body = app.post(t, c, "/checkout", url.Values{"address": {"Thamel"}, "phone": {"12345"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Thamel")
	assert.Zero(t, app.orderCount(t))

	resp, _ = app.post(t, c, "/checkout", url.Values{"address": {"Thamel, Kathmandu"}, "phone": {"9841000000"}})
	assertRedirect(t, resp, "/payment")

	resp, body = app.post(t, c, "/payment", url.Values{"payment_method": {"Bitcoin"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Cash on Delivery")

	resp, _ = app.post(t, c, "/payment", url.Values{"payment_method": {"Cash on Delivery"}})
	assertRedirect(t, resp, "/payment")

	resp, _ = app.post(t, c, "/orders", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	m := thankYouPath.FindStringSubmatch(resp.Header.Get("Location"))
	require.NotNil(t, m, "unexpected redirect %q", resp.Header.Get("Location"))

	resp, body = app.get(t, c, m[0])
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Order #"+m[1])
	assert.Contains(t, body, "500.00")
	assert.Equal(t, 1, app.orderCount(t))

	orderID, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	order, err := app.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentCashOnDelivery, order.PaymentMethod)
	assert.Equal(t, "Thamel, Kathmandu", order.Address)

	_, body = app.get(t, c, "/cart")
	assert.Contains(t, body, "Your cart is empty.")

	// Placing again with an empty cart writes nothing
	resp, _ = app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/cart")
	assert.Equal(t, 1, app.orderCount(t))
}

func TestCartChangeInvalidatesCheckout(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)
	app.checkedOut(t, c, "ram@example.com", 1)

	resp, _ := app.post(t, c, "/cart/update", url.Values{"product_id": {"1"}, "quantity": {"3"}})
	assertRedirect(t, resp, "/cart")

	resp, _ = app.get(t, c, "/payment")
	assertRedirect(t, resp, "/checkout")

	resp, _ = app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/checkout")
	assert.Zero(t, app.orderCount(t))
}

func TestCartQuantityIsClamped(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)

	resp, _ := app.post(t, c, "/products/1/cart", url.Values{"quantity": {"50"}})
	assertRedirect(t, resp, "/cart")
	app.register(t, c, "hari@example.com")
	resp, _ = app.post(t, c, "/checkout", url.Values{"address": {"Baneshwor, Kathmandu"}, "phone": {"9812345678"}})
	assertRedirect(t, resp, "/payment")
	app.post(t, c, "/payment", url.Values{"payment_method": {"eSewa"}})

	resp, _ = app.post(t, c, "/orders", nil)
	m := thankYouPath.FindStringSubmatch(resp.Header.Get("Location"))
	require.NotNil(t, m)
	id, _ := strconv.ParseInt(m[1], 10, 64)

	items, err := app.store.ListOrderItems(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 10, items[0].Quantity)

	payment, err := app.store.GetPayment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.TransactionID)
	assert.True(t, strings.HasPrefix(*payment.TransactionID, "TXN"))
}

// paymentFails lets the order and item inserts through and rejects the
// payment row.
type paymentFails struct {
	checkout.OrderWriter
}

func (paymentFails) InsertPayment(context.Context, *models.Payment) error {
	return errors.New("disk I/O error")
}

type failingRunner struct {
	store *store.Store
}

func (f *failingRunner) WithinTx(ctx context.Context, fn func(checkout.OrderWriter) error) error {
	return f.store.WithinTx(ctx, func(w checkout.OrderWriter) error {
		return fn(paymentFails{w})
	})
}

func TestPlaceOrder_PersistenceFailureKeepsCart(t *testing.T) {
	runner := &failingRunner{}
	app := newTestApp(t, runner)
	runner.store = app.store
	c := app.client(t)
	app.checkedOut(t, c, "gita@example.com", 2)

	resp, _ := app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/payment")
	assert.Zero(t, app.orderCount(t))

	resp, body := app.get(t, c, "/payment")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "We could not place your order.")
	assert.Contains(t, body, "Chicken Sekuwa")
	assert.Contains(t, body, "Thamel, Kathmandu")
}

func TestAccountOrder_OtherCustomerIsNotFound(t *testing.T) {
	app := newTestApp(t, nil)
	owner := app.client(t)
	app.checkedOut(t, owner, "owner@example.com", 1)
	resp, _ := app.post(t, owner, "/orders", nil)
	m := thankYouPath.FindStringSubmatch(resp.Header.Get("Location"))
	require.NotNil(t, m)

	resp, _ = app.get(t, owner, "/account/orders/"+m[1])
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	other := app.client(t)
	app.register(t, other, "other@example.com")
	resp, _ = app.get(t, other, "/account/orders/"+m[1])
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = app.get(t, other, m[0])
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func createAdmin(t *testing.T, s *store.Store) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), &models.User{
		Name:     "Kitchen Admin",
		Email:    "admin@sekuwa.test",
		Password: string(hash),
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)
}

func TestAdmin_OrderStatus(t *testing.T) {
	app := newTestApp(t, nil)
	customer := app.client(t)
	app.checkedOut(t, customer, "cust@example.com", 2)
	resp, _ := app.post(t, customer, "/orders", nil)
	m := thankYouPath.FindStringSubmatch(resp.Header.Get("Location"))
	require.NotNil(t, m)
	id, _ := strconv.ParseInt(m[1], 10, 64)

	// Customers cannot reach the admin area
	resp, _ = app.get(t, customer, "/admin")
	assertRedirect(t, resp, "/login")

	createAdmin(t, app.store)
	admin := app.client(t)
	resp, _ = app.post(t, admin, "/login", url.Values{"email": {"admin@sekuwa.test"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = app.post(t, admin, "/login", url.Values{"email": {"admin@sekuwa.test"}, "password": {"admin-pass"}})
	assertRedirect(t, resp, "/admin")

	resp, body := app.get(t, admin, "/admin")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "#"+m[1])

	back := "/admin/orders/" + m[1]
	resp, _ = app.post(t, admin, back+"/status", url.Values{"status": {"Delivered"}})
	assertRedirect(t, resp, back)
	order, err := app.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status, "pending cannot skip to delivered")

	for _, next := range []string{"Cooking", "Out for Delivery", "Delivered"} {
		resp, _ = app.post(t, admin, back+"/status", url.Values{"status": {next}})
		assertRedirect(t, resp, back)
	}
	order, err = app.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)

	resp, body = app.get(t, admin, back)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "can no longer change")

	resp, body = app.get(t, admin, "/admin/orders?status=Delivered")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "1 order(s)")

	resp, _ = app.get(t, admin, "/admin/reports")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutDestroysCart(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)
	app.register(t, c, "leave@example.com")
	app.post(t, c, "/products/1/cart", url.Values{"quantity": {"1"}})

	resp, _ := app.post(t, c, "/logout", nil)
	assertRedirect(t, resp, "/")
	_, body := app.get(t, c, "/cart")
	assert.Contains(t, body, "Your cart is empty.")
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, time.Minute)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	h := rl.Limit(limited)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.RemoteAddr = "10.0.0.3:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, isLocalPath("/checkout"))
	assert.True(t, isLocalPath("/account/orders?page=2"))
	assert.False(t, isLocalPath(""))
	assert.False(t, isLocalPath("//evil.example"))
	assert.False(t, isLocalPath("https://evil.example/"))
}

func TestPlaceOrder_DeletedDishIsDroppedFromCart(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)
	app.checkedOut(t, c, "maya@example.com", 2)

	require.NoError(t, app.store.DeleteProduct(context.Background(), 1))

	resp, _ := app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/cart")
	assert.Zero(t, app.orderCount(t))

	resp, body := app.get(t, c, "/cart")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Chicken Sekuwa is no longer available and was removed from your cart.")
	assert.Contains(t, body, "Your cart is empty.")

	// Nothing left to retry
	resp, _ = app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/cart")
	assert.Zero(t, app.orderCount(t))
}

func TestPayment_HiddenDishIsDroppedFromCart(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)
	app.checkedOut(t, c, "bikash@example.com", 1)

	ctx := context.Background()
	p, err := app.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	p.IsAvailable = false
	require.NoError(t, app.store.UpdateProduct(ctx, p))

	resp, _ := app.get(t, c, "/payment")
	assertRedirect(t, resp, "/cart")
	_, body := app.get(t, c, "/cart")
	assert.Contains(t, body, "Chicken Sekuwa is no longer available")

	resp, _ = app.get(t, c, "/checkout")
	assertRedirect(t, resp, "/cart")
}

func TestPlaceOrder_ThrottledRetryReturnsToPayment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &failingRunner{}
	app := newTestAppWithLimiter(t, runner, NewRateLimiter(ctx, time.Minute))
	runner.store = app.store
	c := app.client(t)
	app.checkedOut(t, c, "retry@example.com", 1)

	resp, _ := app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/payment")
	resp, _ = app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, "/payment")
	assert.Zero(t, app.orderCount(t))

	resp, body := app.get(t, c, "/payment")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Please wait a few seconds before placing your order again.")
	assert.Contains(t, body, "Chicken Sekuwa")
}

func TestPlaceOrder_DoubleSubmitShowsConfirmation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app := newTestAppWithLimiter(t, nil, NewRateLimiter(ctx, time.Minute))
	c := app.client(t)
	app.checkedOut(t, c, "twice@example.com", 1)

	resp, _ := app.post(t, c, "/orders", nil)
	first := resp.Header.Get("Location")
	require.Regexp(t, thankYouPath, first)

	resp, _ = app.post(t, c, "/orders", nil)
	assertRedirect(t, resp, first)
	assert.Equal(t, 1, app.orderCount(t))
}

func TestAccountReport(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.client(t)

	resp, _ := app.get(t, c, "/account/report")
	assertRedirect(t, resp, "/login")

	app.checkedOut(t, c, "report@example.com", 2)
	resp, _ = app.post(t, c, "/orders", nil)
	require.Regexp(t, thankYouPath, resp.Header.Get("Location"))

	resp, body := app.get(t, c, "/account/report")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Chicken Sekuwa")
	assert.Contains(t, body, "500.00")
	assert.Contains(t, body, time.Now().UTC().Format("2006-01"))

	resp, body = app.get(t, c, "/account/report?start_date=2020-01-01&end_date=2020-01-31")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "No orders in this period.")
}
