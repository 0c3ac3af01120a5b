package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cart"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ShopHandler serves the public menu and the cart.
type ShopHandler struct {
	*Base
	Store   *store.Store
	Pricing checkout.Pricing
}

func (h *ShopHandler) Index(w http.ResponseWriter, r *http.Request) {
	featured, err := h.Store.FeaturedProducts(r.Context(), 6)
	if err != nil {
		h.serverError(w, "Error fetching featured products", err)
		return
	}
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, "Error fetching categories", err)
		return
	}
	h.render(w, r, http.StatusOK, "home.html", map[string]any{
		"Featured":   featured,
		"Categories": categories,
	})
}

func (h *ShopHandler) Products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProductFilter{
		Search:   q.Get("q"),
		MinPrice: parseNullDecimal(q.Get("min")),
		MaxPrice: parseNullDecimal(q.Get("max")),
		Sort:     store.ProductSort(q.Get("sort")),
	}
	if id, ok := parseID(q.Get("category")); ok {
		filter.CategoryID = id
	}

	products, err := h.Store.ListProducts(r.Context(), filter)
	if err != nil {
		h.serverError(w, "Error fetching products", err)
		return
	}
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, "Error fetching categories", err)
		return
	}
	h.render(w, r, http.StatusOK, "products.html", map[string]any{
		"Products":   products,
		"Categories": categories,
		"Filter":     filter,
		"Query":      q,
	})
}

func (h *ShopHandler) Product(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	product, err := h.Store.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching product", err)
		return
	}
	h.render(w, r, http.StatusOK, "product.html", map[string]any{
		"Product":    product,
		"Quantities": quantityOptions(),
	})
}

// AddToCart snapshots the dish's current name and price into the cart.
func (h *ShopHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	product, err := h.Store.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !product.IsAvailable) {
		h.redirect(w, r, "/products", "error", "Sorry, that dish is not available right now.")
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching product", err)
		return
	}

	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return
	}
	qty := formQuantity(r, 1)
	st.Cart.Add(cart.Line{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Image:     product.Image,
	}, qty)
	st.DiscardCheckout()
	if err := h.saveState(r, st); err != nil {
		h.serverError(w, "Failed to save cart", err)
		return
	}

	h.redirect(w, r, "/cart", "success", fmt.Sprintf("%s added to your cart.", product.Name))
}

func (h *ShopHandler) Cart(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return
	}
	quote := h.Pricing.Quote(st.Cart.Items)
	h.render(w, r, http.StatusOK, "cart.html", map[string]any{
		"Lines":          st.Cart.Lines(),
		"Quote":          quote,
		"ToFreeDelivery": h.Pricing.AmountToFreeDelivery(quote.Subtotal),
		"Quantities":     quantityOptions(),
	})
}

func (h *ShopHandler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, func(c *cart.Cart, productID int64) error {
		qty, err := strconv.Atoi(strings.TrimSpace(r.FormValue("quantity")))
		if err != nil {
			return errBadQuantity
		}
		return c.Update(productID, qty)
	}, "Cart updated.")
}

func (h *ShopHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, func(c *cart.Cart, productID int64) error {
		return c.Remove(productID)
	}, "Item removed from your cart.")
}

func (h *ShopHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return
	}
	st.Cart.Clear()
	st.DiscardCheckout()
	if err := h.saveState(r, st); err != nil {
		h.serverError(w, "Failed to save cart", err)
		return
	}
	h.redirect(w, r, "/cart", "success", "Your cart has been cleared.")
}

var errBadQuantity = errors.New("invalid quantity")

// mutateCart applies fn to the line named by the product_id form field. Any
// change invalidates previously accepted delivery details and totals.
func (h *ShopHandler) mutateCart(w http.ResponseWriter, r *http.Request, fn func(c *cart.Cart, productID int64) error, okMsg string) {
	productID, ok := parseID(r.FormValue("product_id"))
	if !ok {
		h.redirect(w, r, "/cart", "error", "Invalid product.")
		return
	}
	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return
	}

	switch err := fn(&st.Cart, productID); {
	case errors.Is(err, cart.ErrUnknownProduct):
		h.redirect(w, r, "/cart", "error", "That item is no longer in your cart.")
		return
	case errors.Is(err, errBadQuantity):
		h.redirect(w, r, "/cart", "error", "Please choose a quantity between 1 and 10.")
		return
	case err != nil:
		h.serverError(w, "Cart update failed", err)
		return
	}

	st.DiscardCheckout()
	if err := h.saveState(r, st); err != nil {
		h.serverError(w, "Failed to save cart", err)
		return
	}
	h.redirect(w, r, "/cart", "success", okMsg)
}

// formQuantity reads the quantity field clamped to the allowed range.
func formQuantity(r *http.Request, fallback int) int {
	qty, err := strconv.Atoi(strings.TrimSpace(r.FormValue("quantity")))
	if err != nil {
		qty = fallback
	}
	return cart.ClampQuantity(qty)
}

func quantityOptions() []int {
	opts := make([]int, 0, cart.MaxQuantity)
	for i := cart.MinQuantity; i <= cart.MaxQuantity; i++ {
		opts = append(opts, i)
	}
	return opts
}

func parseNullDecimal(raw string) decimal.NullDecimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
