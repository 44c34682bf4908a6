package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.NewFromFloat(123.456), "usd")
	require.NoError(t, err)
	assert.Equal(t, "123.46", m.StringFixed())
	assert.Equal(t, "USD", m.Currency())
}

func TestNewMoneyInvalidCurrency(t *testing.T) {
	tests := []string{"", "US", "USDX", "U$D", "123"}
	for _, currency := range tests {
		t.Run(currency, func(t *testing.T) {
			_, err := NewMoney(decimal.NewFromInt(1), currency)
			assert.Error(t, err)
		})
	}
}

func TestNewMoneyFromString(t *testing.T) {
	m, err := NewMoneyFromString("45.50", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "45.50 EUR", m.String())

	_, err = NewMoneyFromString("not-a-number", "EUR")
	assert.Error(t, err)
}

func TestMoneyComparisons(t *testing.T) {
	ten := MustNewMoneyFromFloat(10, "USD")
	twenty := MustNewMoneyFromFloat(20, "USD")

	assert.True(t, twenty.GreaterThan(ten))
	assert.False(t, ten.GreaterThan(twenty))
	assert.False(t, ten.GreaterThan(ten))

	cmp, err := ten.Compare(twenty)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	_, err = ten.Compare(MustNewMoneyFromFloat(10, "EUR"))
	assert.Error(t, err)
}

func TestMoneyGreaterThanIgnoresCurrency(t *testing.T) {
	// Listings always price in their own currency; the guard compares raw
	// amounts so a momentarily empty cached currency cannot block it.
	usd := MustNewMoneyFromFloat(15, "USD")
	eur := MustNewMoneyFromFloat(10, "EUR")
	assert.True(t, usd.GreaterThan(eur))
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustNewMoneyFromFloat(10.25, "USD")
	b := MustNewMoneyFromFloat(4.75, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "15.00", sum.StringFixed())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "5.50", diff.StringFixed())

	_, err = a.Add(MustNewMoneyFromFloat(1, "GBP"))
	assert.Error(t, err)
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	m := MustNewMoneyFromFloat(99.99, "GBP")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"99.99","currency":"GBP"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, m.Equal(decoded))
}

func TestZero(t *testing.T) {
	z := Zero("USD")
	assert.True(t, z.IsZero())
	assert.False(t, z.IsPositive())
}
