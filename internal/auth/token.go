package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"spis/m/domain"
	"spis/m/internal/config"
)

const refreshTokenBytes = 32

var signingMethod = jwt.SigningMethodHS256

type Claims struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// MintAccessToken signs an access token for the user. The jti doubles as the session key.
func MintAccessToken(cfg config.JWTConfig, now time.Time, userID int64, role domain.Role) (token, jti string, expiresAt time.Time, err error) {
	if cfg.Secret == "" {
		return "", "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return "", "", time.Time{}, fmt.Errorf("access token ttl must be positive")
	}
	if !role.IsValid() {
		return "", "", time.Time{}, fmt.Errorf("invalid role %q", role)
	}

	jti = uuid.NewString()
	expiresAt = now.Add(cfg.AccessTTL)
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}
	token, err = jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signing jwt: %w", err)
	}
	return token, jti, expiresAt, nil
}

// ParseAccessToken validates signature, method, issuer and expiry.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.UserID <= 0 {
		return nil, fmt.Errorf("token is missing identity claims")
	}
	return claims, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashRefreshToken is what the sessions table stores instead of the token itself.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
