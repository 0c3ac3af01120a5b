package handlers

import (
	"io/fs"
	"net/http"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options wires the domain services into the router.
type Options struct {
	Store        *store.Store
	Pricing      checkout.Pricing
	Selector     *checkout.Selector
	Committer    *checkout.Committer
	OrderLimiter *RateLimiter // nil disables double-submit protection
	UploadDir    string
	Static       fs.FS
}

// NewRouter builds every route of the storefront. CSRF protection is added
// by the caller around the returned handler.
func NewRouter(base *Base, opts Options) http.Handler {
	shop := &ShopHandler{Base: base, Store: opts.Store, Pricing: opts.Pricing}
	co := &CheckoutHandler{
		Base:      base,
		Store:     opts.Store,
		Pricing:   opts.Pricing,
		Selector:  opts.Selector,
		Committer: opts.Committer,
	}
	auth := &AuthHandler{Base: base, Store: opts.Store}
	account := &AccountHandler{Base: base, Store: opts.Store}
	admin := &AdminHandler{Base: base, Store: opts.Store, UploadDir: opts.UploadDir}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware)

	// Static Files
	if opts.UploadDir != "" {
		r.Handle("/static/uploads/*", http.StripPrefix("/static/uploads", http.FileServer(http.Dir(opts.UploadDir))))
	}
	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.FS(opts.Static))))
	}

	// Public Routes
	r.Get("/", shop.Index)
	r.Get("/products", shop.Products)
	r.Get("/products/{id}", shop.Product)
	r.Post("/products/{id}/cart", shop.AddToCart)
	r.Get("/cart", shop.Cart)
	r.Post("/cart/update", shop.UpdateCart)
	r.Post("/cart/remove", shop.RemoveFromCart)
	r.Post("/cart/clear", shop.ClearCart)

	r.Get("/login", auth.LoginForm)
	r.Post("/login", auth.Login)
	r.Get("/register", auth.RegisterForm)
	r.Post("/register", auth.Register)
	r.Post("/logout", auth.Logout)

	// Customer Routes
	r.Group(func(r chi.Router) {
		r.Use(base.RequireLogin)

		r.Get("/checkout", co.CheckoutForm)
		r.Post("/checkout", co.SubmitCheckout)
		r.Get("/payment", co.PaymentForm)
		r.Post("/payment", co.SubmitPayment)
		if opts.OrderLimiter != nil {
			r.With(opts.OrderLimiter.Limit(http.HandlerFunc(co.OrderThrottled))).Post("/orders", co.PlaceOrder)
		} else {
			r.Post("/orders", co.PlaceOrder)
		}
		r.Get("/orders/{id}/thank-you", co.ThankYou)

		r.Get("/account", account.Dashboard)
		r.Get("/account/orders", account.Orders)
		r.Get("/account/orders/{id}", account.Order)
		r.Get("/account/report", account.Report)
	})

	// Admin Routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(base.RequireAdmin)

		r.Get("/", admin.Dashboard)
		r.Get("/products", admin.ListProducts)
		r.Get("/products/new", admin.NewProductForm)
		r.Post("/products", admin.CreateProduct)
		r.Get("/products/{id}/edit", admin.EditProductForm)
		r.Post("/products/{id}", admin.UpdateProduct)
		r.Post("/products/{id}/delete", admin.DeleteProduct)
		r.Get("/orders", admin.ListOrders)
		r.Get("/orders/{id}", admin.ViewOrder)
		r.Post("/orders/{id}/status", admin.UpdateOrderStatus)
		r.Get("/reports", admin.Reports)
	})

	return r
}
