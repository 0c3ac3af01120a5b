package checkout

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cart"
)

const MinAddressLength = 10

var phoneRegex = regexp.MustCompile(`^[0-9]{10}$`)

// DeliveryForm is the raw checkout submission.
type DeliveryForm struct {
	Address string
	Phone   string
	Notes   string
}

// Info is validated delivery details plus the quote they were accepted
// against. It lives in the session between checkout and payment.
type Info struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes"`
	Quote
}

func ValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// Validate checks the form against the cart lines and prices them. It has no
// side effects; every failed field is reported in a single *ValidationError.
func Validate(form DeliveryForm, lines []cart.Line, pricing Pricing) (*Info, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	address := strings.TrimSpace(form.Address)
	phone := strings.TrimSpace(form.Phone)

	verr := &ValidationError{}
	if address == "" {
		verr.add("address", "Delivery address is required.")
	} else if utf8.RuneCountInString(address) < MinAddressLength {
		verr.add("address", "Delivery address must be at least 10 characters.")
	}
	if phone == "" {
		verr.add("phone", "Phone number is required.")
	} else if !ValidPhone(phone) {
		verr.add("phone", "Please enter a valid 10-digit phone number.")
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return &Info{
		Address: address,
		Phone:   phone,
		Notes:   strings.TrimSpace(form.Notes),
		Quote:   pricing.Quote(lines),
	}, nil
}
