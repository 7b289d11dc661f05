package domain

import "time"

// InventoryLog is an append-only record of one stock change.
type InventoryLog struct {
	ID             int64           `db:"id" json:"id"`
	MedicineID     int64           `db:"medicine_id" json:"medicine_id"`
	ActionType     InventoryAction `db:"action_type" json:"action_type"`
	QuantityChange int64           `db:"quantity_change" json:"quantity_change"`
	QuantityAfter  int64           `db:"quantity_after" json:"quantity_after"`
	UserID         *int64          `db:"user_id" json:"user_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
