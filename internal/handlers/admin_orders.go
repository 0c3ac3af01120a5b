package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/go-chi/chi/v5"
)

const ordersPerPage = 10

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	filter := store.OrderFilter{Limit: ordersPerPage, Offset: (page - 1) * ordersPerPage}
	if raw := q.Get("status"); raw != "" {
		if status, err := models.ParseOrderStatus(raw); err == nil {
			filter.Status = status
		}
	}
	if raw := q.Get("date"); raw != "" {
		if _, err := time.Parse(time.DateOnly, raw); err == nil {
			filter.Date = raw
		}
	}

	orders, err := h.Store.ListOrders(r.Context(), filter)
	if err != nil {
		h.serverError(w, "Error fetching orders", err)
		return
	}
	total, err := h.Store.CountOrders(r.Context(), filter)
	if err != nil {
		h.serverError(w, "Error fetching total order count", err)
		return
	}

	totalPages := (total + ordersPerPage - 1) / ordersPerPage
	if totalPages == 0 {
		totalPages = 1
	}

	h.render(w, r, http.StatusOK, "admin_orders.html", map[string]any{
		"Orders":      orders,
		"Statuses":    models.OrderStatuses,
		"Filter":      filter,
		"Total":       total,
		"CurrentPage": page,
		"TotalPages":  totalPages,
	})
}

func (h *AdminHandler) ViewOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	order, err := h.Store.GetOrder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching order", err)
		return
	}
	items, err := h.Store.ListOrderItems(r.Context(), id)
	if err != nil {
		h.serverError(w, "Error fetching order items", err)
		return
	}
	payment, err := h.Store.GetPayment(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.serverError(w, "Error fetching payment", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_order.html", map[string]any{
		"Order":        order,
		"Items":        items,
		"Payment":      payment,
		"NextStatuses": order.Status.NextStatuses(),
	})
}

// UpdateOrderStatus applies one step of the fulfilment flow; steps outside
// the allowed transitions are refused with a message.
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	back := fmt.Sprintf("/admin/orders/%d", id)

	next, err := models.ParseOrderStatus(r.FormValue("status"))
	if err != nil {
		h.redirect(w, r, back, "error", "Invalid order status.")
		return
	}

	err = h.Store.UpdateOrderStatus(r.Context(), id, next)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, models.ErrInvalidTransition):
		h.redirect(w, r, back, "error", "That status change is not allowed: "+err.Error())
	case err != nil:
		h.serverError(w, "Error updating status", err)
	default:
		slog.Info("Order status updated", "order_id", id, "status", next, "admin_id", h.currentUser(r).ID)
		h.redirect(w, r, back, "success", fmt.Sprintf("Order #%d is now %s.", id, next))
	}
}

func (h *AdminHandler) Reports(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -29)
	if t, err := time.Parse(time.DateOnly, r.URL.Query().Get("from")); err == nil {
		from = t
	}
	if t, err := time.Parse(time.DateOnly, r.URL.Query().Get("to")); err == nil {
		to = t
	}
	if to.Before(from) {
		from, to = to, from
	}

	report, err := h.Store.SalesReport(r.Context(), from, to)
	if err != nil {
		h.serverError(w, "Error building sales report", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_reports.html", map[string]any{
		"Report": report,
		"From":   from.Format(time.DateOnly),
		"To":     to.Format(time.DateOnly),
	})
}
