package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	order, err := NewOrder(OrderInput{
		PIB:    "101134702",
		Year:   2025,
		Month:  3,
		Amount: decimal.RequireFromString("2000"),
	})
	require.NoError(t, err)

	assert.Equal(t, "97", order.Model)
	assert.Equal(t, "71-101134702202503", order.Reference)
	assert.Equal(t, "2000.00", order.Amount.StringFixed(2))
}

func TestNewOrderControlDigits(t *testing.T) {
	order, err := NewOrder(OrderInput{
		PIB:    "123456789",
		Year:   2024,
		Month:  12,
		Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "27-123456789202412", order.Reference)
}

func TestNewOrderRoundsAmount(t *testing.T) {
	order, err := NewOrder(OrderInput{
		PIB:    "101134702",
		Year:   2025,
		Month:  1,
		Amount: decimal.RequireFromString("1234.567"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1234.57", order.Amount.StringFixed(2))
}

func TestNewOrderRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []string{"0", "-100"} {
		_, err := NewOrder(OrderInput{
			PIB:    "101134702",
			Year:   2025,
			Month:  3,
			Amount: decimal.RequireFromString(amount),
		})
		require.ErrorIs(t, err, ErrNonPositiveAmount, "amount %s", amount)
	}
}

func TestNewOrderRejectsNonNumericPIB(t *testing.T) {
	_, err := NewOrder(OrderInput{
		PIB:    "10113470X",
		Year:   2025,
		Month:  3,
		Amount: decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, ErrInvalidBase)
}

func TestMod97Control(t *testing.T) {
	// ISO 7064 MOD 97-10: base*100 + control is congruent to 1 mod 97
	bases := []string{"101134702202503", "123456789202412", "1", "970"}
	for _, base := range bases {
		control, err := mod97Control(base)
		require.NoError(t, err)
		require.GreaterOrEqual(t, control, 1)
		require.LessOrEqual(t, control, 98)

		rem := 0
		for _, r := range base {
			rem = (rem*10 + int(r-'0')) % 97
		}
		rem = (rem*100 + control) % 97
		assert.Equal(t, 1, rem, "base %s control %d", base, control)
	}
}

func TestMod97ControlEmpty(t *testing.T) {
	_, err := mod97Control("")
	require.ErrorIs(t, err, ErrInvalidBase)
}
