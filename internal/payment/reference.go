// Package payment builds structured payment orders for VAT liabilities.
package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidBase indicates the reference base is not purely numeric.
var ErrInvalidBase = errors.New("payment: reference base must be numeric")

// ErrNonPositiveAmount indicates a payment order for a non-positive amount.
var ErrNonPositiveAmount = errors.New("payment: amount must be positive")

// Order is a structured payment order for a filed period's liability.
type Order struct {
	Amount    decimal.Decimal
	Model     string
	Reference string
}

// OrderInput describes the liability being paid.
type OrderInput struct {
	PIB    string
	Year   int
	Month  int
	Amount decimal.Decimal
}

// NewOrder builds a model-97 payment order: the reference is the taxpayer PIB
// plus the period, prefixed with ISO 7064 MOD 97-10 control digits.
func NewOrder(in OrderInput) (Order, error) {
	if in.Amount.Sign() <= 0 {
		return Order{}, ErrNonPositiveAmount
	}
	base := fmt.Sprintf("%s%04d%02d", strings.TrimSpace(in.PIB), in.Year, in.Month)
	control, err := mod97Control(base)
	if err != nil {
		return Order{}, err
	}
	return Order{
		Amount:    in.Amount.Round(2),
		Model:     "97",
		Reference: fmt.Sprintf("%02d-%s", control, base),
	}, nil
}

// mod97Control computes the ISO 7064 MOD 97-10 control number for a numeric
// string: 98 minus (base*100 mod 97).
func mod97Control(base string) (int, error) {
	if base == "" {
		return 0, ErrInvalidBase
	}
	rem := 0
	for _, r := range base {
		if r < '0' || r > '9' {
			return 0, ErrInvalidBase
		}
		rem = (rem*10 + int(r-'0')) % 97
	}
	rem = rem * 100 % 97
	return 98 - rem, nil
}
