package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID             int64           `db:"id" json:"id"`
	InvoiceNumber  string          `db:"invoice_number" json:"invoice_number"`
	CustomerName   *string         `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone  *string         `db:"customer_phone" json:"customer_phone,omitempty"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentMethod  PaymentMethod   `db:"payment_method" json:"payment_method"`
	UserID         int64           `db:"user_id" json:"user_id"`
	SoldBy         *string         `db:"sold_by" json:"sold_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []SaleItem      `db:"-" json:"items,omitempty"`
}

type SaleItem struct {
	ID           int64           `db:"id" json:"id"`
	SaleID       int64           `db:"sale_id" json:"sale_id"`
	MedicineID   int64           `db:"medicine_id" json:"medicine_id"`
	MedicineName string          `db:"medicine_name" json:"medicine_name"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// SaleReceipt is what a completed checkout returns to the caller.
type SaleReceipt struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}
