package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
)

var ErrNotLoggedIn = errors.New("a logged in customer is required to place an order")

// OrderWriter is the set of inserts making up one order.
type OrderWriter interface {
	InsertOrder(ctx context.Context, order *models.Order) (int64, error)
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	InsertPayment(ctx context.Context, payment *models.Payment) error
}

// TxRunner runs fn in one database transaction: commit when fn returns nil,
// rollback otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(w OrderWriter) error) error
}

type Committer struct {
	tx      TxRunner
	pricing Pricing
	logger  *slog.Logger
}

func NewCommitter(tx TxRunner, pricing Pricing, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{tx: tx, pricing: pricing, logger: logger}
}

// Commit persists the order, its items and its payment as one unit.
//
// On success the cart and transient checkout state are cleared and the new
// order id is returned. On a persistence failure nothing is written, st keeps
// its cart and delivery details, st.Phase is PhaseFailed and the error is a
// *PersistenceError. Precondition failures leave st untouched apart from the
// phase, which returns to PhaseIdle.
func (c *Committer) Commit(ctx context.Context, userID int64, st *State) (int64, error) {
	if err := st.advance(PhaseValidating); err != nil {
		return 0, err
	}
	if err := c.precheck(userID, st); err != nil {
		st.Phase = PhaseIdle
		return 0, err
	}
	if err := st.advance(PhaseCommitting); err != nil {
		return 0, err
	}

	lines := st.Cart.Lines()
	info := st.Info
	pay := st.Payment

	var orderID int64
	err := c.tx.WithinTx(ctx, func(w OrderWriter) error {
		id, err := w.InsertOrder(ctx, &models.Order{
			UserID:     userID,
			TotalPrice: info.Total,
			Address:    info.Address,
			Phone:      info.Phone,
			Status:     models.OrderStatusPending,
			Notes:      info.Notes,
		})
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, l := range lines {
			if err := w.InsertOrderItem(ctx, &models.OrderItem{
				OrderID:     id,
				ProductID:   l.ProductID,
				ProductName: l.Name,
				Quantity:    l.Quantity,
				Price:       l.UnitPrice,
			}); err != nil {
				return fmt.Errorf("insert order item for product %d: %w", l.ProductID, err)
			}
		}

		if err := w.InsertPayment(ctx, &models.Payment{
			OrderID:       id,
			Method:        pay.Method,
			Status:        pay.Status,
			TransactionID: pay.TransactionID,
		}); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		orderID = id
		return nil
	})
	if err != nil {
		st.Phase = PhaseFailed
		st.LastError = err.Error()
		c.logger.Error("Order placement failed", "user_id", userID, "session_id", st.SessionID, "error", err)
		return 0, &PersistenceError{Err: err}
	}

	st.Phase = PhaseCommitted
	st.Cart.Clear()
	st.DiscardCheckout()
	st.LastOrderID = orderID
	st.LastError = ""

	c.logger.Info("Order placed", "order_id", orderID, "user_id", userID, "total", info.Total.StringFixed(2), "payment_method", pay.Method)
	return orderID, nil
}

func (c *Committer) precheck(userID int64, st *State) error {
	if userID <= 0 {
		return ErrNotLoggedIn
	}
	if st.Cart.IsEmpty() {
		return ErrEmptyCart
	}
	if st.Info == nil {
		return ErrMissingCheckout
	}
	if st.Payment == nil {
		return ErrMissingPayment
	}
	if !c.pricing.Quote(st.Cart.Items).Total.Equal(st.Info.Total) {
		return ErrStaleCheckout
	}
	return nil
}
