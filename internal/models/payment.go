package models

import "fmt"

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
	PaymentESewa          PaymentMethod = "eSewa"
	PaymentKhalti         PaymentMethod = "Khalti"
)

var PaymentMethods = []PaymentMethod{PaymentCashOnDelivery, PaymentESewa, PaymentKhalti}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for _, m := range PaymentMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// IsWallet is true for the digital wallets, which settle up front.
func (m PaymentMethod) IsWallet() bool {
	return m == PaymentESewa || m == PaymentKhalti
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
)
