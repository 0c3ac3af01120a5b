package models

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "Pending"
	OrderStatusCooking        OrderStatus = "Cooking"
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	OrderStatusDelivered      OrderStatus = "Delivered"
	OrderStatusCancelled      OrderStatus = "Cancelled"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// OrderStatuses lists every status in kitchen order, for filters and admin forms.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusCooking,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusCooking, OrderStatusCancelled},
	OrderStatusCooking:        {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if _, ok := allowedTransitions[st]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether an admin may move an order from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStatuses is what the admin order board offers for s.
func (s OrderStatus) NextStatuses() []OrderStatus {
	return allowedTransitions[s]
}

// ValidateTransition returns ErrInvalidTransition wrapped with both states.
// Moving to the current status is accepted as a no-op.
func ValidateTransition(current, next OrderStatus) error {
	if current == next {
		return nil
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return nil
}

// CSSClass is used by templates to color status badges.
func (s OrderStatus) CSSClass() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusCooking:
		return "cooking"
	case OrderStatusOutForDelivery:
		return "delivery"
	case OrderStatusDelivered:
		return "delivered"
	case OrderStatusCancelled:
		return "cancelled"
	}
	return ""
}

func (s OrderStatus) String() string {
	return string(s)
}
