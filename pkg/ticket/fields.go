package ticket

import (
	"github.com/shopspring/decimal"
)

// Field identifies one of the three mutually derived ticket amounts.
type Field string

const (
	FieldPrice    Field = "price"
	FieldQuantity Field = "quantity"
	FieldNotional Field = "notional"
)

// Fields holds the ticket amounts as the decimal strings the user typed or
// the reconciler derived. A field may transiently hold invalid input; it is
// validated again at submit time.
type Fields struct {
	Price    string
	Quantity string
	Notional string
}

func (f Fields) get(field Field) string {
	switch field {
	case FieldPrice:
		return f.Price
	case FieldQuantity:
		return f.Quantity
	case FieldNotional:
		return f.Notional
	}
	return ""
}

// ParseAmount reports whether s is a finite decimal strictly greater than
// zero, returning the parsed value when it is. Empty strings, non-numeric
// text, zero and negative amounts all fail.
func ParseAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// FormatPrice renders a price or notional amount at display precision.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatQuantity renders a quantity at display precision.
func FormatQuantity(d decimal.Decimal) string {
	return d.StringFixed(8)
}

// Reconcile applies one edit to the field set and derives the dependent
// field under the directed rule set:
//
//	price edited    -> notional = quantity * price (2 dp), given a valid quantity
//	quantity edited -> notional = quantity * price (2 dp), given a valid price
//	notional edited -> quantity = notional / price (8 dp), given a valid price
//
// The edited value is always stored, valid or not. Clearing a field stores
// the empty string and leaves the derived field at its last value. When the
// edited value or its companion does not parse as a positive amount, no
// derivation runs. Companions are read from the currently stored strings:
// the last confirmed edit wins.
func Reconcile(f Fields, edited Field, value string) Fields {
	switch edited {
	case FieldPrice:
		f.Price = value
		price, ok := ParseAmount(value)
		if !ok {
			return f
		}
		if qty, ok := ParseAmount(f.Quantity); ok {
			f.Notional = FormatPrice(qty.Mul(price))
		}
	case FieldQuantity:
		f.Quantity = value
		qty, ok := ParseAmount(value)
		if !ok {
			return f
		}
		if price, ok := ParseAmount(f.Price); ok {
			f.Notional = FormatPrice(qty.Mul(price))
		}
	case FieldNotional:
		f.Notional = value
		notional, ok := ParseAmount(value)
		if !ok {
			return f
		}
		if price, ok := ParseAmount(f.Price); ok {
			f.Quantity = FormatQuantity(notional.Div(price))
		}
	}
	return f
}

func fieldMessage(f Field) string {
	switch f {
	case FieldPrice:
		return "Price must be greater than 0"
	case FieldQuantity:
		return "Quantity must be greater than 0"
	case FieldNotional:
		return "Total must be greater than 0"
	}
	return "Invalid value"
}
