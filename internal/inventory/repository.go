// Package inventory owns the medicine catalogue and its stock audit trail.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/query"
)

const medicineColumns = `id, name, generic_name, category, manufacturer, description, unit_price, stock_quantity,
	reorder_level, expiry_date, batch_number, barcode, storage_location, requires_prescription, supplier_id,
	created_at, updated_at`

const (
	defaultReorderLevel = 10
	maxExpiryWindowDays = 365
)

var medicineSort = query.NewSort("name", map[string]string{
	"name":           "name",
	"stock_quantity": "stock_quantity",
	"expiry_date":    "expiry_date",
	"unit_price":     "unit_price",
	"created_at":     "created_at",
})

type Repository struct {
	db *database.DB
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

type ListFilter struct {
	Category   string
	Search     string
	LowStock   bool
	SupplierID *int64
	Sort       string
	Order      string
}

type CreateInput struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	GenericName          *string         `json:"generic_name,omitempty" validate:"omitempty,max=200"`
	Category             *string         `json:"category,omitempty" validate:"omitempty,max=100"`
	Manufacturer         *string         `json:"manufacturer,omitempty" validate:"omitempty,max=200"`
	Description          *string         `json:"description,omitempty"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	StockQuantity        int64           `json:"stock_quantity" validate:"gte=0"`
	ReorderLevel         *int64          `json:"reorder_level,omitempty" validate:"omitempty,gte=0"`
	ExpiryDate           *domain.Date    `json:"expiry_date,omitempty"`
	BatchNumber          *string         `json:"batch_number,omitempty" validate:"omitempty,max=100"`
	Barcode              *string         `json:"barcode,omitempty" validate:"omitempty,max=100"`
	StorageLocation      *string         `json:"storage_location,omitempty" validate:"omitempty,max=100"`
	RequiresPrescription bool            `json:"requires_prescription"`
	SupplierID           *int64          `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
}

// UpdateInput is the allow-list of columns an update may change. Nil means untouched.
type UpdateInput struct {
	Name                 *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	GenericName          *string          `json:"generic_name,omitempty" validate:"omitempty,max=200"`
	Category             *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Manufacturer         *string          `json:"manufacturer,omitempty" validate:"omitempty,max=200"`
	Description          *string          `json:"description,omitempty"`
	UnitPrice            *decimal.Decimal `json:"unit_price,omitempty"`
	StockQuantity        *int64           `json:"stock_quantity,omitempty" validate:"omitempty,gte=0"`
	ReorderLevel         *int64           `json:"reorder_level,omitempty" validate:"omitempty,gte=0"`
	ExpiryDate           *domain.Date     `json:"expiry_date,omitempty"`
	BatchNumber          *string          `json:"batch_number,omitempty" validate:"omitempty,max=100"`
	Barcode              *string          `json:"barcode,omitempty" validate:"omitempty,max=100"`
	StorageLocation      *string          `json:"storage_location,omitempty" validate:"omitempty,max=100"`
	RequiresPrescription *bool            `json:"requires_prescription,omitempty"`
	SupplierID           *int64           `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]domain.Medicine, error) {
	order, err := medicineSort.Resolve(f.Sort, f.Order)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, err.Error())
	}

	b := query.New().Search(f.Search, "name", "generic_name")
	if c := strings.TrimSpace(f.Category); c != "" {
		b.Eq("category", c)
	}
	if f.LowStock {
		b.Where("stock_quantity <= reorder_level")
	}
	if f.SupplierID != nil {
		b.Eq("supplier_id", *f.SupplierID)
	}
	q, args := b.OrderBy(order + ", id ASC").Build(`SELECT ` + medicineColumns + ` FROM medicines`)

	out := []domain.Medicine{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, database.Classify(err, "medicine")
	}
	return out, nil
}

func (r *Repository) LowStock(ctx context.Context) ([]domain.Medicine, error) {
	out := []domain.Medicine{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+medicineColumns+` FROM medicines
		WHERE stock_quantity <= reorder_level ORDER BY stock_quantity ASC, name ASC`)
	if err != nil {
		return nil, database.Classify(err, "medicine")
	}
	return out, nil
}

// ClampExpiryWindow bounds a look-ahead window to 1..365 days, using fallback for non-positive input.
func ClampExpiryWindow(days, fallback int) int {
	if days <= 0 {
		days = fallback
	}
	if days < 1 {
		days = 1
	}
	if days > maxExpiryWindowDays {
		days = maxExpiryWindowDays
	}
	return days
}

// ExpiringSoon lists medicines whose expiry falls between today and today+days, inclusive.
// Already expired stock is excluded.
func (r *Repository) ExpiringSoon(ctx context.Context, days int) ([]domain.Medicine, error) {
	today := domain.NewDate(database.Now())
	out := []domain.Medicine{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT `+medicineColumns+` FROM medicines
		WHERE expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date <= ?
		ORDER BY expiry_date ASC, name ASC`), today, today.AddDays(days))
	if err != nil {
		return nil, database.Classify(err, "medicine")
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Medicine, error) {
	return getMedicine(ctx, r.db, id, "")
}

// Logs returns the audit trail for a medicine, newest first. Logs survive medicine deletion.
func (r *Repository) Logs(ctx context.Context, medicineID int64) ([]domain.InventoryLog, error) {
	out := []domain.InventoryLog{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT id, medicine_id, action_type, quantity_change, quantity_after, user_id, created_at
		FROM inventory_logs WHERE medicine_id = ? ORDER BY created_at DESC, id DESC`), medicineID)
	if err != nil {
		return nil, database.Classify(err, "inventory log")
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, in CreateInput, userID int64) (*domain.Medicine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "name is required")
	}
	if in.UnitPrice.IsNegative() {
		return nil, apperr.New(apperr.CodeValidation, "unit_price must not be negative")
	}
	if in.StockQuantity < 0 {
		return nil, apperr.New(apperr.CodeValidation, "stock_quantity must not be negative")
	}
	reorder := int64(defaultReorderLevel)
	if in.ReorderLevel != nil {
		reorder = *in.ReorderLevel
	}

	var id int64
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}
		now := database.Now()
		err := tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO medicines (name, generic_name, category, manufacturer, description, unit_price, stock_quantity,
				reorder_level, expiry_date, batch_number, barcode, storage_location, requires_prescription, supplier_id,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			name, trimPtr(in.GenericName), trimPtr(in.Category), trimPtr(in.Manufacturer), trimPtr(in.Description),
			in.UnitPrice.Round(2), in.StockQuantity, reorder, in.ExpiryDate, trimPtr(in.BatchNumber),
			trimPtr(in.Barcode), trimPtr(in.StorageLocation), in.RequiresPrescription, in.SupplierID,
			now, now).Scan(&id)
		if err != nil {
			return database.Classify(err, "medicine")
		}
		if in.StockQuantity > 0 {
			return WriteLog(ctx, tx, id, domain.ActionAdd, in.StockQuantity, in.StockQuantity, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Update applies the allow-listed fields. A stock change is logged as an adjustment
// against the stock read under the row lock.
func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput, userID int64) (*domain.Medicine, error) {
	sets, args, err := updateColumns(in)
	if err != nil {
		return nil, err
	}

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getMedicine(ctx, tx, id, r.db.ForUpdate())
		if err != nil {
			return err
		}
		if err := requireSupplier(ctx, tx, in.SupplierID); err != nil {
			return err
		}

		args := append(args, database.Now(), id)
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE medicines SET `+strings.Join(sets, ", ")+`, updated_at = ? WHERE id = ?`), args...)
		if err != nil {
			return database.Classify(err, "medicine")
		}

		if in.StockQuantity != nil && *in.StockQuantity != current.StockQuantity {
			delta := *in.StockQuantity - current.StockQuantity
			return WriteLog(ctx, tx, id, domain.ActionAdjust, delta, *in.StockQuantity, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Restock adds quantity units and logs the addition.
func (r *Repository) Restock(ctx context.Context, id, quantity, userID int64) (*domain.Medicine, error) {
	if quantity <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be greater than 0")
	}
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var after int64
		err := tx.GetContext(ctx, &after, tx.Rebind(`
			UPDATE medicines SET stock_quantity = stock_quantity + ?, updated_at = ?
			WHERE id = ? RETURNING stock_quantity`), quantity, database.Now(), id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound(fmt.Sprintf("medicine %d", id))
		}
		if err != nil {
			return database.Classify(err, "medicine")
		}
		return WriteLog(ctx, tx, id, domain.ActionAdd, quantity, after, userID)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM medicines WHERE id = ?`), id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.Wrap(apperr.CodeConflict, err, "medicine is referenced by existing sales")
		}
		return database.Classify(err, "medicine")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound(fmt.Sprintf("medicine %d", id))
	}
	return nil
}

// WriteLog appends one audit row. It must run in the transaction that changed the stock.
func WriteLog(ctx context.Context, q database.Queryer, medicineID int64, action domain.InventoryAction, change, after, userID int64) error {
	var uid *int64
	if userID > 0 {
		uid = &userID
	}
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO inventory_logs (medicine_id, action_type, quantity_change, quantity_after, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`), medicineID, action, change, after, uid, database.Now())
	if err != nil {
		return database.Classify(err, "inventory log")
	}
	return nil
}

func getMedicine(ctx context.Context, q database.Queryer, id int64, lock string) (*domain.Medicine, error) {
	var m domain.Medicine
	err := q.GetContext(ctx, &m, q.Rebind(`SELECT `+medicineColumns+` FROM medicines WHERE id = ?`+lock), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("medicine %d", id))
	}
	if err != nil {
		return nil, database.Classify(err, "medicine")
	}
	return &m, nil
}

func requireSupplier(ctx context.Context, q database.Queryer, id *int64) error {
	if id == nil {
		return nil
	}
	var n int
	if err := q.GetContext(ctx, &n, q.Rebind(`SELECT COUNT(*) FROM suppliers WHERE id = ?`), *id); err != nil {
		return database.Classify(err, "supplier")
	}
	if n == 0 {
		return apperr.Newf(apperr.CodeValidation, "supplier %d does not exist", *id)
	}
	return nil
}

func updateColumns(in UpdateInput) ([]string, []any, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, nil, apperr.New(apperr.CodeValidation, "name must not be empty")
		}
		set("name", name)
	}
	if in.GenericName != nil {
		set("generic_name", trimPtr(in.GenericName))
	}
	if in.Category != nil {
		set("category", trimPtr(in.Category))
	}
	if in.Manufacturer != nil {
		set("manufacturer", trimPtr(in.Manufacturer))
	}
	if in.Description != nil {
		set("description", trimPtr(in.Description))
	}
	if in.UnitPrice != nil {
		if in.UnitPrice.IsNegative() {
			return nil, nil, apperr.New(apperr.CodeValidation, "unit_price must not be negative")
		}
		set("unit_price", in.UnitPrice.Round(2))
	}
	if in.StockQuantity != nil {
		if *in.StockQuantity < 0 {
			return nil, nil, apperr.New(apperr.CodeValidation, "stock_quantity must not be negative")
		}
		set("stock_quantity", *in.StockQuantity)
	}
	if in.ReorderLevel != nil {
		if *in.ReorderLevel < 0 {
			return nil, nil, apperr.New(apperr.CodeValidation, "reorder_level must not be negative")
		}
		set("reorder_level", *in.ReorderLevel)
	}
	if in.ExpiryDate != nil {
		set("expiry_date", *in.ExpiryDate)
	}
	if in.BatchNumber != nil {
		set("batch_number", trimPtr(in.BatchNumber))
	}
	if in.Barcode != nil {
		set("barcode", trimPtr(in.Barcode))
	}
	if in.StorageLocation != nil {
		set("storage_location", trimPtr(in.StorageLocation))
	}
	if in.RequiresPrescription != nil {
		set("requires_prescription", *in.RequiresPrescription)
	}
	if in.SupplierID != nil {
		set("supplier_id", *in.SupplierID)
	}

	if len(sets) == 0 {
		return nil, nil, apperr.New(apperr.CodeValidation, "no fields to update")
	}
	return sets, args, nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
