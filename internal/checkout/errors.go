package checkout

import (
	"errors"
	"strings"
)

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrMissingCheckout = errors.New("delivery information has not been provided")
	ErrMissingPayment  = errors.New("no payment method has been selected")
	ErrStaleCheckout   = errors.New("cart changed after checkout, totals must be recalculated")
	ErrIllegalPhase    = errors.New("illegal transition of checkout phase")
)

// FieldError is one failed check on a submitted form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError carries every failed field of a submission. It is
// recoverable: the form is shown again and no state is changed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ByField maps each field to its first message, for inline form errors.
func (e *ValidationError) ByField() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Message
		}
	}
	return out
}

// PersistenceError means the order transaction was rolled back. Cart and
// delivery details are kept so the customer can retry from the payment step.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to place order: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
