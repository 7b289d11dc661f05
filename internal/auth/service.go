package auth

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
	"spis/m/internal/config"
	"spis/m/internal/database"
	"spis/m/internal/users"
)

// Identity is the verified caller attached to authenticated requests.
type Identity struct {
	UserID  int64
	Role    domain.Role
	TokenID string
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, in users.CreateInput) (*domain.User, error)
}

// Client describes where a login came from; both fields are optional.
type Client struct {
	UserAgent string
	IP        string
}

type TokenPair struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *domain.User `json:"user"`
}

type RegisterInput struct {
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	// Role is accepted and ignored.
	Role string `json:"role,omitempty"`
}

var errInvalidCredentials = apperr.New(apperr.CodeUnauthorized, "invalid credentials")

type Service struct {
	db    *database.DB
	users UserStore
	cfg   config.JWTConfig
	now   func() time.Time
}

func NewService(db *database.DB, userStore UserStore, cfg config.JWTConfig) (*Service, error) {
	if db == nil || userStore == nil {
		return nil, errors.New("auth service requires a database and user store")
	}
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("refresh ttl (%s) must exceed access ttl (%s)", cfg.RefreshTTL, cfg.AccessTTL)
	}
	return &Service{db: db, users: userStore, cfg: cfg, now: database.Now}, nil
}

// Register creates a pharmacist account. Elevated roles are granted by admins only.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.users.Create(ctx, users.CreateInput{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		FullName: in.FullName,
		Phone:    in.Phone,
		Role:     string(domain.RolePharmacist),
	})
}

func (s *Service) Login(ctx context.Context, email, password string, client Client) (*TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if users.IsNotFound(err) {
			users.BurnPasswordCheck(password)
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !users.CheckPassword(user.PasswordHash, password) || !user.IsActive {
		return nil, errInvalidCredentials
	}

	var pair *TokenPair
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		pair, err = s.issue(ctx, tx, user, client)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh rotates a refresh token: the presented session is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client Client) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apperr.New(apperr.CodeValidation, "refresh_token is required")
	}
	invalid := apperr.New(apperr.CodeUnauthorized, "invalid refresh token")

	var pair *TokenPair
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		var sess domain.Session
		err := tx.GetContext(ctx, &sess, tx.Rebind(`
			SELECT id, user_id, token_id, refresh_token_hash, expires_at, refresh_expires_at, revoked_at, created_at
			FROM sessions WHERE refresh_token_hash = ?`+s.db.ForUpdate()), hashRefreshToken(refreshToken))
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		if err != nil {
			return database.Classify(err, "session")
		}
		if sess.RevokedAt != nil || !now.Before(sess.RefreshExpiresAt) {
			return invalid
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`), now, sess.ID)
		if err != nil {
			return database.Classify(err, "session")
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return invalid
		}

		var user domain.User
		err = tx.GetContext(ctx, &user, tx.Rebind(`SELECT id, username, email, password_hash, full_name, phone, role, is_active, created_at, updated_at FROM users WHERE id = ?`), sess.UserID)
		if err != nil {
			return database.Classify(err, "user")
		}
		if !user.IsActive {
			return invalid
		}

		pair, err = s.issue(ctx, tx, &user, client)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the session behind the access token id.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE sessions SET revoked_at = ? WHERE token_id = ? AND revoked_at IS NULL`), s.now(), tokenID)
	if err != nil {
		return database.Classify(err, "session")
	}
	return nil
}

// Authenticate verifies a bearer token against its session row and the user's current state.
// The role comes from the users table, so role changes apply to existing tokens.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := ParseAccessToken(s.cfg, token)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token")
	}

	var row struct {
		UserID   int64       `db:"user_id"`
		Role     domain.Role `db:"role"`
		IsActive bool        `db:"is_active"`
	}
	err = s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT u.id AS user_id, u.role, u.is_active
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token_id = ? AND s.revoked_at IS NULL AND s.expires_at > ?`), claims.ID, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.CodeUnauthorized, "session expired or revoked")
	}
	if err != nil {
		return nil, database.Classify(err, "session")
	}
	if !row.IsActive || row.UserID != claims.UserID {
		return nil, apperr.New(apperr.CodeUnauthorized, "session expired or revoked")
	}
	return &Identity{UserID: row.UserID, Role: row.Role, TokenID: claims.ID}, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) issue(ctx context.Context, tx *sqlx.Tx, user *domain.User, client Client) (*TokenPair, error) {
	now := s.now()
	token, jti, expiresAt, err := MintAccessToken(s.cfg, now, user.ID, user.Role)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "mint access token")
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "mint refresh token")
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sessions (user_id, token_id, refresh_token_hash, user_agent, ip_address, expires_at, refresh_expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, jti, hashRefreshToken(refresh), nullable(client.UserAgent), nullable(client.IP),
		expiresAt, now.Add(s.cfg.RefreshTTL), now)
	if err != nil {
		return nil, database.Classify(err, "session")
	}
	return &TokenPair{Token: token, RefreshToken: refresh, ExpiresAt: expiresAt, User: user}, nil
}

func nullable(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
