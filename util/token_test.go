package util

import (
	"testing"
	"time"

	"github.com/ariebrainware/educe-api/model"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testUser() model.User {
	return model.User{Model: gorm.Model{ID: 42}, Email: "parent@example.com", Role: model.RoleCustomer}
}

func TestGenerateAndParseToken(t *testing.T) {
	SetJWTSecret("test-secret-123")

	signed, claims, err := GenerateToken(testUser(), time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := ParseToken(signed)
	require.NoError(t, err)
	assert.Equal(t, uint(42), parsed.UserID)
	assert.Equal(t, model.RoleCustomer, parsed.Role)
	assert.Equal(t, "parent@example.com", parsed.Email)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestParseToken_Rejects(t *testing.T) {
	SetJWTSecret("test-secret-123")
	expired, _, err := GenerateToken(testUser(), -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	SetJWTSecret("other-secret")
	valid, _, err := GenerateToken(testUser(), time.Hour)
	require.NoError(t, err)
	SetJWTSecret("test-secret-123")
	_, err = ParseToken(valid)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Unsigned tokens are never accepted.
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Role: model.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_UnknownRole(t *testing.T) {
	SetJWTSecret("test-secret-123")
	user := testUser()
	user.Role = "superuser"
	signed, _, err := GenerateToken(user, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateToken_NoSecret(t *testing.T) {
	SetJWTSecret("")
	t.Cleanup(func() { SetJWTSecret("test-secret-123") })
	_, _, err := GenerateToken(testUser(), time.Hour)
	assert.Error(t, err)
}
