package suppliers

import (
	"context"
	"fmt"
	"strings"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/query"
)

const supplierColumns = `id, name, contact_person, email, phone, address, city, gst_number, created_at, updated_at`

type Repository struct {
	db *database.DB
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

type Input struct {
	Name          string  `json:"name" validate:"required,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=120"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Address       *string `json:"address,omitempty"`
	City          *string `json:"city,omitempty" validate:"omitempty,max=100"`
	GSTNumber     *string `json:"gst_number,omitempty" validate:"omitempty,max=20"`
}

type UpdateInput struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=120"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Address       *string `json:"address,omitempty"`
	City          *string `json:"city,omitempty" validate:"omitempty,max=100"`
	GSTNumber     *string `json:"gst_number,omitempty" validate:"omitempty,max=20"`
}

func (r *Repository) List(ctx context.Context, search string) ([]domain.Supplier, error) {
	q, args := query.New().
		Search(search, "name", "contact_person", "email").
		OrderBy("name ASC").
		Build(`SELECT ` + supplierColumns + ` FROM suppliers`)

	out := []domain.Supplier{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, database.Classify(err, "supplier")
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Supplier, error) {
	var s domain.Supplier
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`), id)
	if err != nil {
		return nil, database.Classify(err, fmt.Sprintf("supplier %d", id))
	}
	return &s, nil
}

func (r *Repository) Create(ctx context.Context, in Input) (*domain.Supplier, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "name is required")
	}
	now := database.Now()
	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO suppliers (name, contact_person, email, phone, address, city, gst_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		name, trimPtr(in.ContactPerson), trimPtr(in.Email), trimPtr(in.Phone), trimPtr(in.Address),
		trimPtr(in.City), trimPtr(in.GSTNumber), now, now).Scan(&id)
	if err != nil {
		return nil, database.Classify(err, "supplier")
	}
	return r.Get(ctx, id)
}

func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) (*domain.Supplier, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.New(apperr.CodeValidation, "name must not be empty")
		}
		set("name", name)
	}
	if in.ContactPerson != nil {
		set("contact_person", trimPtr(in.ContactPerson))
	}
	if in.Email != nil {
		set("email", trimPtr(in.Email))
	}
	if in.Phone != nil {
		set("phone", trimPtr(in.Phone))
	}
	if in.Address != nil {
		set("address", trimPtr(in.Address))
	}
	if in.City != nil {
		set("city", trimPtr(in.City))
	}
	if in.GSTNumber != nil {
		set("gst_number", trimPtr(in.GSTNumber))
	}
	if len(sets) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "no fields to update")
	}
	args = append(args, database.Now(), id)

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE suppliers SET `+strings.Join(sets, ", ")+`, updated_at = ? WHERE id = ?`), args...)
	if err != nil {
		return nil, database.Classify(err, "supplier")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("supplier %d", id))
	}
	return r.Get(ctx, id)
}

// Delete refuses to remove a supplier that medicines still point to.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM suppliers WHERE id = ?`), id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.Wrap(apperr.CodeConflict, err, "supplier is referenced by medicines")
		}
		return database.Classify(err, "supplier")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(fmt.Sprintf("supplier %d", id))
	}
	return nil
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
