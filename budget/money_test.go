package budget

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0.00", false},
		{"1000", "1000.00", false},
		{"0.1", "0.10", false},
		{"12.34", "12.34", false},
		{"12.340", "12.34", false}, // trailing zero is not a third digit
		{"12.345", "", true},
		{"-0.01", "", true},
		{"9999999999999.99", "9999999999999.99", false},
		{"10000000000000.00", "", true},
		{"184467440737095517.16", "", true}, // 2^64 cents + 1.00
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := NewMoney(decimal.RequireFromString(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}
}

func TestParseMoney_NotANumber(t *testing.T) {
	_, err := ParseMoney("ten")

	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "amount", invalid.Field)
}

func TestMoney_Arithmetic(t *testing.T) {
	// 0.1 + 0.2 is exact in decimal
	sum := MustMoney("0.10").Add(MustMoney("0.20"))
	assert.True(t, sum.Equal(MustMoney("0.30")))

	assert.True(t, MustMoney("1.00").LessThan(MustMoney("1.01")))
	assert.True(t, MustMoney("1.01").GreaterThan(MustMoney("1")))
	assert.Equal(t, 0, MustMoney("5").Cmp(MustMoney("5.00")))
	assert.Equal(t, "-0.50", MustMoney("1").Sub(MustMoney("1.50")).String())
	assert.True(t, Zero.IsZero())
}

func TestMoney_Cents(t *testing.T) {
	m := MustMoney("1234.56")

	cents, err := m.Cents()
	require.NoError(t, err)
	assert.Equal(t, int64(123456), cents)
	assert.True(t, MoneyFromCents(123456).Equal(m))
	assert.Equal(t, "0.07", MoneyFromCents(7).String())
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{MustMoney("1000")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1000.00}`, string(data))
	assert.Contains(t, string(data), "1000.00")

	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12.5, "b": "7.25", "c": null}`), &v))
	assert.Equal(t, "12.50", v.A.String())
	assert.Equal(t, "7.25", v.B.String())
	assert.True(t, v.C.IsZero())

	err = json.Unmarshal([]byte(`{"a": 1.001}`), &v)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestMoney_SQL(t *testing.T) {
	v, err := MustMoney("99.99").Value()
	require.NoError(t, err)
	assert.Equal(t, int64(9999), v)

	var m Money
	require.NoError(t, m.Scan(int64(9999)))
	assert.Equal(t, "99.99", m.String())

	require.NoError(t, m.Scan(nil))
	assert.True(t, m.IsZero())

	assert.Error(t, m.Scan("99.99"))
}

func TestMoney_ValueRefusesToTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"beyond int64 cents", "184467440737095517.16"},
		{"just past int64 cents", "92233720368547758.08"},
		{"sub-cent digits", "1.005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Built directly: NewMoney would already refuse these.
			m := Money{value: decimal.RequireFromString(tt.in)}

			_, err := m.Value()

			assert.Error(t, err)
		})
	}

	v, err := MaxAmount.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(999999999999999), v)
}
