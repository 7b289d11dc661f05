package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/query"
)

const userColumns = `id, username, email, password_hash, full_name, phone, role, is_active, created_at, updated_at`

// Repository persists users and administers their credentials.
type Repository struct {
	db         *database.DB
	bcryptCost int
	minLength  int
}

func NewRepository(db *database.DB, bcryptCost, minPasswordLength int) *Repository {
	if minPasswordLength <= 0 {
		minPasswordLength = 6
	}
	return &Repository{db: db, bcryptCost: bcryptCost, minLength: minPasswordLength}
}

type CreateInput struct {
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Role     string  `json:"role,omitempty" validate:"omitempty,oneof=admin manager pharmacist"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UpdateInput lists the only columns an update may touch.
type UpdateInput struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin manager pharmacist"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (in UpdateInput) Empty() bool {
	return in.FullName == nil && in.Phone == nil && in.Role == nil && in.IsActive == nil
}

type ListFilter struct {
	Role   string
	Active *bool
	Search string
}

func (r *Repository) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	role := domain.RolePharmacist
	if in.Role != "" {
		parsed, err := domain.ParseRole(in.Role)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, err, err.Error())
		}
		role = parsed
	}
	if len(in.Password) < r.minLength {
		return nil, apperr.Newf(apperr.CodeValidation, "password must be at least %d characters", r.minLength)
	}
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	var exists int
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ? OR username = ?`), email, username)
	if err != nil {
		return nil, database.Classify(err, "user")
	}
	if exists > 0 {
		return nil, apperr.New(apperr.CodeConflict, "user with this email or username already exists")
	}

	hash, err := HashPassword(in.Password, r.bcryptCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "hash password")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := database.Now()
	var id int64
	err = r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO users (username, email, password_hash, full_name, phone, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		username, email, hash, trimPtr(in.FullName), trimPtr(in.Phone), role, active, now, now).Scan(&id)
	if err != nil {
		return nil, database.Classify(err, "user")
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, database.Classify(err, "user")
	}
	return &u, nil
}

// GetByEmail returns sql.ErrNoRows wrapped as not found when no account matches.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), normalizeEmail(email))
	if err != nil {
		return nil, database.Classify(err, "user")
	}
	return &u, nil
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]domain.User, error) {
	b := query.New()
	if f.Role != "" {
		b.Eq("role", f.Role)
	}
	if f.Active != nil {
		b.Eq("is_active", *f.Active)
	}
	b.Search(f.Search, "username", "email", "full_name")
	q, args := b.OrderBy("created_at DESC, id DESC").Build(`SELECT ` + userColumns + ` FROM users`)

	out := []domain.User{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, database.Classify(err, "user")
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) (*domain.User, error) {
	if in.Empty() {
		return nil, apperr.New(apperr.CodeValidation, "no fields to update")
	}
	sets := []string{}
	args := []any{}
	demotes := in.IsActive != nil && !*in.IsActive
	if in.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, trimPtr(in.FullName))
	}
	if in.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, trimPtr(in.Phone))
	}
	if in.Role != nil {
		role, err := domain.ParseRole(*in.Role)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, err, err.Error())
		}
		sets = append(sets, "role = ?")
		args = append(args, role)
		demotes = demotes || role != domain.RoleAdmin
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *in.IsActive)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, database.Now(), id)

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if demotes {
			if err := guardLastAdmin(ctx, tx, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
		if err != nil {
			return database.Classify(err, "user")
		}
		return requireAffected(res, id)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ToggleStatus flips is_active. Deactivation also revokes the user's sessions.
func (r *Repository) ToggleStatus(ctx context.Context, id int64) (*domain.User, error) {
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := guardLastAdmin(ctx, tx, id); err != nil {
			return err
		}
		now := database.Now()
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET is_active = NOT is_active, updated_at = ? WHERE id = ?`), now, id)
		if err != nil {
			return database.Classify(err, "user")
		}
		if err := requireAffected(res, id); err != nil {
			return err
		}
		var active bool
		if err := tx.GetContext(ctx, &active, tx.Rebind(`SELECT is_active FROM users WHERE id = ?`), id); err != nil {
			return database.Classify(err, "user")
		}
		if !active {
			return revokeSessions(ctx, tx, id, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ResetPassword stores a new hash and revokes every open session of the user.
func (r *Repository) ResetPassword(ctx context.Context, id int64, password string) error {
	if len(password) < r.minLength {
		return apperr.Newf(apperr.CodeValidation, "password must be at least %d characters", r.minLength)
	}
	hash, err := HashPassword(password, r.bcryptCost)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "hash password")
	}
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := database.Now()
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`), hash, now, id)
		if err != nil {
			return database.Classify(err, "user")
		}
		if err := requireAffected(res, id); err != nil {
			return err
		}
		return revokeSessions(ctx, tx, id, now)
	})
}

// CountByRole returns how many active users hold role.
func (r *Repository) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE role = ? AND is_active = ?`), role, true)
	if err != nil {
		return 0, database.Classify(err, "user")
	}
	return n, nil
}

// guardLastAdmin refuses to take away the only active admin account. Users that are not active
// admins pass through.
func guardLastAdmin(ctx context.Context, tx *sqlx.Tx, id int64) error {
	var n int
	err := tx.GetContext(ctx, &n, tx.Rebind(`
		SELECT COUNT(*) FROM users
		WHERE role = ? AND is_active = ?
		AND EXISTS (SELECT 1 FROM users t WHERE t.id = ? AND t.role = ? AND t.is_active = ?)`),
		domain.RoleAdmin, true, id, domain.RoleAdmin, true)
	if err != nil {
		return database.Classify(err, "user")
	}
	if n == 1 {
		return apperr.New(apperr.CodeConflict, "cannot demote or deactivate the last active admin")
	}
	return nil
}

func revokeSessions(ctx context.Context, tx *sqlx.Tx, userID int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`), now, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound(fmt.Sprintf("user %d", id))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
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

// IsNotFound reports whether err is the repository's not-found error.
func IsNotFound(err error) bool {
	return apperr.CodeOf(err) == apperr.CodeNotFound || errors.Is(err, sql.ErrNoRows)
}
