package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt is what a payment processor reports for a charge.
type Receipt struct {
	Status        models.PaymentStatus
	TransactionID *string
}

// Processor settles (or defers) payment for an amount. A real gateway
// integration only needs a new implementation of this interface.
type Processor interface {
	Process(ctx context.Context, amount decimal.Decimal) (Receipt, error)
}

// PaymentError is a processor refusal or failure for the chosen method.
type PaymentError struct {
	Method models.PaymentMethod
	Err    error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s payment failed: %v", e.Method, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// CashProcessor collects nothing up front; the rider collects on delivery.
type CashProcessor struct{}

func (CashProcessor) Process(_ context.Context, _ decimal.Decimal) (Receipt, error) {
	return Receipt{Status: models.PaymentStatusPending}, nil
}

// SimulatedWallet always succeeds and makes up a transaction id. It stands in
// for the eSewa/Khalti handshake and callback, which are not integrated.
type SimulatedWallet struct {
	Now func() time.Time
}

func (w SimulatedWallet) Process(ctx context.Context, amount decimal.Decimal) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if !amount.IsPositive() {
		return Receipt{}, fmt.Errorf("invalid amount %s", amount)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	txn := fmt.Sprintf("TXN%d%s", now().Unix(), suffix)
	return Receipt{Status: models.PaymentStatusCompleted, TransactionID: &txn}, nil
}

// Selection is the payment choice held in the session until commit.
type Selection struct {
	Method        models.PaymentMethod `json:"method"`
	Status        models.PaymentStatus `json:"status"`
	TransactionID *string              `json:"transaction_id,omitempty"`
}

type Selector struct {
	processors map[models.PaymentMethod]Processor
}

func NewSelector(processors map[models.PaymentMethod]Processor) *Selector {
	return &Selector{processors: processors}
}

// DefaultSelector wires cash on delivery and the two simulated wallets.
func DefaultSelector() *Selector {
	return NewSelector(map[models.PaymentMethod]Processor{
		models.PaymentCashOnDelivery: CashProcessor{},
		models.PaymentESewa:          SimulatedWallet{},
		models.PaymentKhalti:         SimulatedWallet{},
	})
}

// Select validates the chosen method and runs its processor for info.Total.
func (s *Selector) Select(ctx context.Context, info *Info, rawMethod string) (*Selection, error) {
	if info == nil {
		return nil, ErrMissingCheckout
	}

	rawMethod = strings.TrimSpace(rawMethod)
	if rawMethod == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "payment_method", Message: "Please select a payment method."}}}
	}
	method, err := models.ParsePaymentMethod(rawMethod)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "payment_method", Message: "Invalid payment method."}}}
	}
	proc, ok := s.processors[method]
	if !ok {
		return nil, &ValidationError{Fields: []FieldError{{Field: "payment_method", Message: "This payment method is currently unavailable."}}}
	}

	receipt, err := proc.Process(ctx, info.Total)
	if err != nil {
		return nil, &PaymentError{Method: method, Err: err}
	}
	return &Selection{
		Method:        method,
		Status:        receipt.Status,
		TransactionID: receipt.TransactionID,
	}, nil
}
