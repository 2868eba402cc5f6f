package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	d, err := ParseMoney("40.00")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(40)))

	d, err = ParseMoney("0.5")
	require.NoError(t, err)
	assert.Equal(t, "0.50", FormatMoney(d))

	_, err = ParseMoney("1.005")
	assert.Error(t, err)

	_, err = ParseMoney("abc")
	assert.Error(t, err)
}

func TestCentsRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "0.01", "19.99", "100", "123456.78"} {
		d := decimal.RequireFromString(s)
		cents, err := ToCents(d)
		require.NoError(t, err, s)
		assert.True(t, FromCents(cents).Equal(d), s)
	}

	_, err := ToCents(decimal.RequireFromString("0.001"))
	assert.Error(t, err)
}

func TestToCents_Range(t *testing.T) {
	cents, err := ToCents(decimal.RequireFromString("92233720368547758.07"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), cents)

	cents, err = ToCents(decimal.RequireFromString("-92233720368547758.08"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), cents)

	for _, s := range []string{"92233720368547758.08", "184467440737095566.16", "-92233720368547758.09"} {
		_, err := ToCents(decimal.RequireFromString(s))
		require.Error(t, err, s)
		assert.Contains(t, err.Error(), "out of range", s)
	}
}

func TestExceedsMaxAmount(t *testing.T) {
	assert.Equal(t, "1000000.00", FormatMoney(MaxAmount))
	assert.False(t, ExceedsMaxAmount(MaxAmount))
	assert.False(t, ExceedsMaxAmount(decimal.RequireFromString("40.00")))
	assert.True(t, ExceedsMaxAmount(decimal.RequireFromString("1000000.01")))
}

func TestTotalOf(t *testing.T) {
	lines := []LineItem{
		{MenuItemID: "a", UnitPrice: decimal.RequireFromString("40.00"), Quantity: 2},
		{MenuItemID: "b", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 3},
	}
	assert.Equal(t, "117.50", FormatMoney(TotalOf(lines)))

	r := Reservation{LineItems: lines, Total: decimal.RequireFromString("117.5")}
	assert.True(t, r.TotalConsistent())

	r.Total = decimal.RequireFromString("117.49")
	assert.False(t, r.TotalConsistent())
}
