package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Medicine struct {
	ID                   int64           `db:"id" json:"id"`
	Name                 string          `db:"name" json:"name"`
	GenericName          *string         `db:"generic_name" json:"generic_name,omitempty"`
	Category             *string         `db:"category" json:"category,omitempty"`
	Manufacturer         *string         `db:"manufacturer" json:"manufacturer,omitempty"`
	Description          *string         `db:"description" json:"description,omitempty"`
	UnitPrice            decimal.Decimal `db:"unit_price" json:"unit_price"`
	StockQuantity        int64           `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel         int64           `db:"reorder_level" json:"reorder_level"`
	ExpiryDate           *Date           `db:"expiry_date" json:"expiry_date,omitempty"`
	BatchNumber          *string         `db:"batch_number" json:"batch_number,omitempty"`
	Barcode              *string         `db:"barcode" json:"barcode,omitempty"`
	StorageLocation      *string         `db:"storage_location" json:"storage_location,omitempty"`
	RequiresPrescription bool            `db:"requires_prescription" json:"requires_prescription"`
	SupplierID           *int64          `db:"supplier_id" json:"supplier_id,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports stock at or below the reorder threshold.
func (m Medicine) IsLowStock() bool {
	return m.StockQuantity <= m.ReorderLevel
}

type Supplier struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	ContactPerson *string   `db:"contact_person" json:"contact_person,omitempty"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	Address       *string   `db:"address" json:"address,omitempty"`
	City          *string   `db:"city" json:"city,omitempty"`
	GSTNumber     *string   `db:"gst_number" json:"gst_number,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
