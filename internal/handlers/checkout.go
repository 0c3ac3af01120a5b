package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/go-chi/chi/v5"
)

// CheckoutHandler walks a logged in customer from cart to placed order:
// delivery details, payment method, commit, confirmation.
type CheckoutHandler struct {
	*Base
	Store     *store.Store
	Pricing   checkout.Pricing
	Selector  *checkout.Selector
	Committer *checkout.Committer
}

func (h *CheckoutHandler) CheckoutForm(w http.ResponseWriter, r *http.Request) {
	st, ok := h.nonEmptyState(w, r)
	if !ok {
		return
	}

	values := map[string]string{}
	if st.Info != nil {
		values["address"] = st.Info.Address
		values["phone"] = st.Info.Phone
		values["notes"] = st.Info.Notes
	} else if u, err := h.Store.GetUserByID(r.Context(), h.currentUser(r).ID); err == nil {
		values["phone"] = u.Phone
	}

	h.render(w, r, http.StatusOK, "checkout.html", map[string]any{
		"Lines":  st.Cart.Lines(),
		"Quote":  h.Pricing.Quote(st.Cart.Items),
		"Values": values,
	})
}

func (h *CheckoutHandler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	st, ok := h.nonEmptyState(w, r)
	if !ok {
		return
	}

	form := checkout.DeliveryForm{
		Address: r.FormValue("address"),
		Phone:   r.FormValue("phone"),
		Notes:   r.FormValue("notes"),
	}
	info, err := checkout.Validate(form, st.Cart.Lines(), h.Pricing)

	var verr *checkout.ValidationError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		h.redirect(w, r, "/cart", "error", "Your cart is empty.")
		return
	case errors.As(err, &verr):
		h.render(w, r, http.StatusUnprocessableEntity, "checkout.html", map[string]any{
			"Lines":  st.Cart.Lines(),
			"Quote":  h.Pricing.Quote(st.Cart.Items),
			"Errors": verr.ByField(),
			"Values": map[string]string{"address": form.Address, "phone": form.Phone, "notes": form.Notes},
		})
		return
	case err != nil:
		h.serverError(w, "Checkout validation failed", err)
		return
	}

	st.SetCheckout(info)
	if err := h.saveState(r, st); err != nil {
		h.serverError(w, "Failed to save checkout", err)
		return
	}
	http.Redirect(w, r, "/payment", http.StatusSeeOther)
}

func (h *CheckoutHandler) PaymentForm(w http.ResponseWriter, r *http.Request) {
	st, ok := h.checkedOutState(w, r)
	if !ok {
		return
	}
	h.renderPayment(w, r, http.StatusOK, st, "")
}

func (h *CheckoutHandler) renderPayment(w http.ResponseWriter, r *http.Request, status int, st *checkout.State, methodErr string) {
	selected := ""
	if st.Payment != nil {
		selected = string(st.Payment.Method)
	}
	h.render(w, r, status, "payment.html", map[string]any{
		"Lines":       st.Cart.Lines(),
		"Info":        st.Info,
		"Payment":     st.Payment,
		"Methods":     models.PaymentMethods,
		"Selected":    selected,
		"MethodError": methodErr,
	})
}

func (h *CheckoutHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	st, ok := h.checkedOutState(w, r)
	if !ok {
		return
	}

	sel, err := h.Selector.Select(r.Context(), st.Info, r.FormValue("payment_method"))

	var (
		verr *checkout.ValidationError
		perr *checkout.PaymentError
	)
	switch {
	case errors.Is(err, checkout.ErrMissingCheckout):
		h.redirect(w, r, "/checkout", "error", "Please enter your delivery details first.")
		return
	case errors.As(err, &verr):
		h.renderPayment(w, r, http.StatusUnprocessableEntity, st, verr.ByField()["payment_method"])
		return
	case errors.As(err, &perr):
		slog.Warn("Payment processing failed", "method", perr.Method, "session_id", st.SessionID, "error", perr.Err)
		h.redirect(w, r, "/payment", "error", fmt.Sprintf("%s payment could not be completed. Please try again or choose another method.", perr.Method))
		return
	case err != nil:
		h.serverError(w, "Payment selection failed", err)
		return
	}

	st.SetPayment(sel)
	if err := h.saveState(r, st); err != nil {
		h.serverError(w, "Failed to save payment selection", err)
		return
	}
	http.Redirect(w, r, "/payment", http.StatusSeeOther)
}

// PlaceOrder commits the session's cart, delivery details and payment.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return
	}
	if !h.pruneUnavailable(w, r, st) {
		return
	}
	user := h.currentUser(r)
	var userID int64
	if user != nil {
		userID = user.ID
	}

	orderID, err := h.Committer.Commit(r.Context(), userID, st)

	var perr *checkout.PersistenceError
	switch {
	case err == nil:
	case errors.Is(err, checkout.ErrNotLoggedIn):
		h.redirect(w, r, "/login", "error", "Please log in to place your order.")
		return
	case errors.Is(err, checkout.ErrEmptyCart):
		h.redirect(w, r, "/cart", "error", "Your cart is empty.")
		return
	case errors.Is(err, checkout.ErrMissingCheckout):
		h.redirect(w, r, "/checkout", "error", "Please enter your delivery details first.")
		return
	case errors.Is(err, checkout.ErrStaleCheckout):
		st.DiscardCheckout()
		h.saveStateOrLog(r, st)
		h.redirect(w, r, "/checkout", "error", "Your cart changed. Please confirm your delivery details again.")
		return
	case errors.Is(err, checkout.ErrMissingPayment):
		h.redirect(w, r, "/payment", "error", "Please select a payment method.")
		return
	case errors.As(err, &perr):
		h.saveStateOrLog(r, st)
		h.redirect(w, r, "/payment", "error", "We could not place your order. Your cart and details are saved, please try again.")
		return
	default:
		h.serverError(w, "Order placement failed", err)
		return
	}

	if err := h.saveState(r, st); err != nil {
		// The order exists; only the emptied cart failed to persist.
		slog.Error("Failed to save state after order", "order_id", orderID, "error", err)
	}
	h.redirect(w, r, fmt.Sprintf("/orders/%d/thank-you", orderID), "success", "Thank you! Your order has been placed.")
}

// OrderThrottled answers a repeated order submission inside the rate limit
// window. A just-placed order goes to its confirmation, anything else back to
// the payment step.
func (h *CheckoutHandler) OrderThrottled(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return
	}
	if st.Phase == checkout.PhaseCommitted && st.LastOrderID > 0 {
		h.redirect(w, r, fmt.Sprintf("/orders/%d/thank-you", st.LastOrderID), "", "")
		return
	}
	h.redirect(w, r, "/payment", "error", "Please wait a few seconds before placing your order again.")
}

func (h *CheckoutHandler) ThankYou(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	order, items, payment, err := loadOrderForUser(r, h.Store, id, h.currentUser(r).ID)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching order", err)
		return
	}
	h.render(w, r, http.StatusOK, "thank_you.html", map[string]any{
		"Order":   order,
		"Items":   items,
		"Payment": payment,
	})
}

// nonEmptyState loads the state or sends an empty cart back to /cart.
func (h *CheckoutHandler) nonEmptyState(w http.ResponseWriter, r *http.Request) (*checkout.State, bool) {
	st, err := h.state(w, r)
	if err != nil {
		h.serverError(w, "Failed to load session state", err)
		return nil, false
	}
	if st.Cart.IsEmpty() {
		h.redirect(w, r, "/cart", "error", "Your cart is empty.")
		return nil, false
	}
	if !h.pruneUnavailable(w, r, st) {
		return nil, false
	}
	return st, true
}

// pruneUnavailable drops cart lines whose dish was deleted or taken off the
// menu after it was added. When anything was dropped the accepted checkout is
// discarded, the customer is sent to the cart and false is returned.
func (h *CheckoutHandler) pruneUnavailable(w http.ResponseWriter, r *http.Request, st *checkout.State) bool {
	var gone []string
	for _, l := range st.Cart.Lines() {
		p, err := h.Store.GetProduct(r.Context(), l.ProductID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.serverError(w, "Error checking cart against the menu", err)
			return false
		}
		if err == nil && p.IsAvailable {
			continue
		}
		if err := st.Cart.Remove(l.ProductID); err != nil {
			h.serverError(w, "Failed to drop unavailable dish", err)
			return false
		}
		gone = append(gone, l.Name)
	}
	if len(gone) == 0 {
		return true
	}

	st.DiscardCheckout()
	h.saveStateOrLog(r, st)
	slog.Info("Dropped unavailable dishes from cart", "session_id", st.SessionID, "dishes", gone)
	msg := fmt.Sprintf("%s is no longer available and was removed from your cart.", gone[0])
	if len(gone) > 1 {
		msg = fmt.Sprintf("%s are no longer available and were removed from your cart.", strings.Join(gone, ", "))
	}
	h.redirect(w, r, "/cart", "error", msg)
	return false
}

// checkedOutState also requires delivery details priced against the
// current cart.
func (h *CheckoutHandler) checkedOutState(w http.ResponseWriter, r *http.Request) (*checkout.State, bool) {
	st, ok := h.nonEmptyState(w, r)
	if !ok {
		return nil, false
	}
	if st.Info == nil {
		h.redirect(w, r, "/checkout", "error", "Please enter your delivery details first.")
		return nil, false
	}
	if !h.Pricing.Quote(st.Cart.Items).Total.Equal(st.Info.Total) {
		st.DiscardCheckout()
		h.saveStateOrLog(r, st)
		h.redirect(w, r, "/checkout", "error", "Your cart changed. Please confirm your delivery details again.")
		return nil, false
	}
	return st, true
}

func (h *CheckoutHandler) saveStateOrLog(r *http.Request, st *checkout.State) {
	if err := h.saveState(r, st); err != nil {
		slog.Error("Failed to save session state", "session_id", st.SessionID, "error", err)
	}
}

func loadOrderForUser(r *http.Request, s *store.Store, orderID, userID int64) (*models.Order, []models.OrderItem, *models.Payment, error) {
	order, err := s.GetOrderForUser(r.Context(), orderID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	items, err := s.ListOrderItems(r.Context(), orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	payment, err := s.GetPayment(r.Context(), orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	return order, items, payment, nil
}
