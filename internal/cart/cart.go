// Package cart holds the pending line items of a single shopping session.
//
// A Cart is a plain value owned by the session state; it does no I/O and is
// not safe for concurrent use. Prices are snapshotted when a line is added
// so later catalog edits never change what the customer was quoted.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

var ErrUnknownProduct = errors.New("product is not in the cart")

type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	Items []Line `json:"items"`
}

// ClampQuantity forces q into [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

// Add merges qty into an existing line for the same product, or appends
// line with qty. The resulting quantity is clamped to the allowed range.
// An existing line keeps its original price snapshot.
func (c *Cart) Add(line Line, qty int) {
	if i := c.index(line.ProductID); i >= 0 {
		c.Items[i].Quantity = ClampQuantity(c.Items[i].Quantity + qty)
		return
	}
	line.Quantity = ClampQuantity(qty)
	c.Items = append(c.Items, line)
}

// Update sets the quantity of a line; qty <= 0 removes it.
func (c *Cart) Update(productID int64, qty int) error {
	i := c.index(productID)
	if i < 0 {
		return ErrUnknownProduct
	}
	if qty <= 0 {
		c.removeAt(i)
		return nil
	}
	c.Items[i].Quantity = ClampQuantity(qty)
	return nil
}

func (c *Cart) Remove(productID int64) error {
	i := c.index(productID)
	if i < 0 {
		return ErrUnknownProduct
	}
	c.removeAt(i)
	return nil
}

func (c *Cart) Clear() {
	c.Items = nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Line(productID int64) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Items[i], true
	}
	return Line{}, false
}

// Lines returns a copy so callers cannot mutate the cart behind its back.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.Items))
	copy(out, c.Items)
	return out
}

// Count is the number of units in the cart (the header badge).
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Subtotal() decimal.Decimal {
	return Subtotal(c.Items)
}

func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func (c *Cart) index(productID int64) int {
	for i, l := range c.Items {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	if len(c.Items) == 0 {
		c.Items = nil
	}
}
