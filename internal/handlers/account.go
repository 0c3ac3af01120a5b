package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/go-chi/chi/v5"
)

// AccountHandler is the customer's own area: profile summary and order
// history. Orders of other customers are reported as not found.
type AccountHandler struct {
	*Base
	Store *store.Store
}

func (h *AccountHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID := h.currentUser(r).ID
	user, err := h.Store.GetUserByID(r.Context(), userID)
	if err != nil {
		h.serverError(w, "Error fetching user", err)
		return
	}
	stats, err := h.Store.CustomerStats(r.Context(), userID)
	if err != nil {
		h.serverError(w, "Error fetching customer stats", err)
		return
	}
	recent, err := h.Store.ListOrders(r.Context(), store.OrderFilter{UserID: userID, Limit: 5})
	if err != nil {
		h.serverError(w, "Error fetching orders", err)
		return
	}
	h.render(w, r, http.StatusOK, "account.html", map[string]any{
		"User":   user,
		"Stats":  stats,
		"Orders": recent,
	})
}

func (h *AccountHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.ListOrdersForUser(r.Context(), h.currentUser(r).ID)
	if err != nil {
		h.serverError(w, "Error fetching orders", err)
		return
	}
	h.render(w, r, http.StatusOK, "account_orders.html", map[string]any{
		"Orders": orders,
	})
}

func (h *AccountHandler) Order(w http.ResponseWriter, r *http.Request) {
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
	h.render(w, r, http.StatusOK, "account_order.html", map[string]any{
		"Order":   order,
		"Items":   items,
		"Payment": payment,
	})
}

// Report shows the customer's spending between start_date and end_date,
// which default to the current month so far.
func (h *AccountHandler) Report(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	if user.IsAdmin {
		http.Redirect(w, r, "/admin/reports", http.StatusSeeOther)
		return
	}

	to := time.Now().UTC()
	from := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	q := r.URL.Query()
	if t, err := time.Parse(time.DateOnly, q.Get("start_date")); err == nil {
		from = t
	}
	if t, err := time.Parse(time.DateOnly, q.Get("end_date")); err == nil {
		to = t
	}
	if to.Before(from) {
		from, to = to, from
	}

	report, err := h.Store.CustomerReport(r.Context(), user.ID, from, to)
	if err != nil {
		h.serverError(w, "Error building customer report", err)
		return
	}
	h.render(w, r, http.StatusOK, "account_report.html", map[string]any{
		"Report": report,
		"From":   from.Format(time.DateOnly),
		"To":     to.Format(time.DateOnly),
	})
}
