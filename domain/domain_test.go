package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Manager ")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, r)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}

func TestParsePaymentMethod(t *testing.T) {
	for _, v := range []string{"cash", "CARD", "upi", "insurance"} {
		_, err := ParsePaymentMethod(v)
		assert.NoError(t, err, v)
	}
	_, err := ParsePaymentMethod("bitcoin")
	assert.Error(t, err)
}

func TestDateJSONRoundTrip(t *testing.T) {
	var m struct {
		Expiry *Date `json:"expiry_date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"expiry_date":"2026-11-30"}`), &m))
	require.NotNil(t, m.Expiry)
	assert.Equal(t, "2026-11-30", m.Expiry.String())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expiry_date":"2026-11-30"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"expiry_date":"30/11/2026"}`), &m))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-04", d.String())

	require.NoError(t, d.Scan("2026-05-06 00:00:00+00:00"))
	assert.Equal(t, "2026-05-06", d.String())

	require.NoError(t, d.Scan([]byte("2026-07-08")))
	assert.Equal(t, "2026-07-08", d.String())

	assert.Error(t, d.Scan(42))
}

func TestDateAddDays(t *testing.T) {
	d, err := ParseDate("2026-12-25")
	require.NoError(t, err)
	assert.Equal(t, "2027-01-08", d.AddDays(14).String())
}

func TestMedicineLowStock(t *testing.T) {
	assert.True(t, Medicine{StockQuantity: 10, ReorderLevel: 10}.IsLowStock())
	assert.False(t, Medicine{StockQuantity: 11, ReorderLevel: 10}.IsLowStock())
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	out, err := json.Marshal(SaleReceipt{ID: 1, InvoiceNumber: "INV-1", TotalAmount: decimal.RequireFromString("226.00")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"invoice_number":"INV-1","total_amount":226}`, string(out))
}
