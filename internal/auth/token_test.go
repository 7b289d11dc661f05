package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spis/m/domain"
	"spis/m/internal/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "spis", AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	token, jti, exp, err := MintAccessToken(cfg, now, 7, domain.RoleManager)
	require.NoError(t, err)
	assert.NotEmpty(t, jti)
	assert.WithinDuration(t, now.Add(15*time.Minute), exp, time.Second)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, domain.RoleManager, claims.Role)
	assert.Equal(t, jti, claims.ID)
}

func TestParseRejectsBadTokens(t *testing.T) {
	cfg := testJWTConfig()

	expired, _, _, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), 1, domain.RoleAdmin)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	good, _, _, err := MintAccessToken(cfg, time.Now(), 1, domain.RoleAdmin)
	require.NoError(t, err)

	other := cfg
	other.Secret = "another-secret"
	_, err = ParseAccessToken(other, good)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	wrongIssuer := cfg
	wrongIssuer.Issuer = "someone-else"
	_, err = ParseAccessToken(wrongIssuer, good)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: domain.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, unsigned)
	assert.Error(t, err)
}

func TestMintRejectsInvalidInput(t *testing.T) {
	cfg := testJWTConfig()
	_, _, _, err := MintAccessToken(cfg, time.Now(), 1, domain.Role("owner"))
	assert.Error(t, err)

	cfg.Secret = ""
	_, _, _, err = MintAccessToken(cfg, time.Now(), 1, domain.RoleAdmin)
	assert.Error(t, err)
}

func TestRefreshTokensAreRandomAndHashed(t *testing.T) {
	a, err := newRefreshToken()
	require.NoError(t, err)
	b, err := newRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, hashRefreshToken(a), 64)
	assert.Equal(t, hashRefreshToken(a), hashRefreshToken(a))
	assert.NotEqual(t, a, hashRefreshToken(a))
}
