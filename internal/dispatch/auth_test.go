package dispatch

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims DeviceClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenValidatorAcceptsValidToken(t *testing.T) {
	v := NewTokenValidator("secret", "marketplace", "devices")
	claims := DeviceClaims{
		ProviderUserID: "provider-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "marketplace",
			Audience:  jwt.ClaimStrings{"devices"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed := signToken(t, "secret", claims)

	got, err := v.Validate(signed)
	require.NoError(t, err)
	require.Equal(t, "provider-1", got.ProviderUserID)
}

func TestTokenValidatorRejectsWrongSecret(t *testing.T) {
	v := NewTokenValidator("secret", "", "")
	signed := signToken(t, "other-secret", DeviceClaims{ProviderUserID: "provider-1"})

	_, err := v.Validate(signed)
	require.Error(t, err)
}

func TestTokenValidatorRejectsMissingProviderID(t *testing.T) {
	v := NewTokenValidator("secret", "", "")
	signed := signToken(t, "secret", DeviceClaims{})

	_, err := v.Validate(signed)
	require.Error(t, err)
}

func TestTokenValidatorRejectsWrongIssuer(t *testing.T) {
	v := NewTokenValidator("secret", "expected-issuer", "")
	signed := signToken(t, "secret", DeviceClaims{
		ProviderUserID:    "provider-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "wrong-issuer"},
	})

	_, err := v.Validate(signed)
	require.Error(t, err)
}

func TestTokenValidatorRejectsWrongAudience(t *testing.T) {
	v := NewTokenValidator("secret", "", "expected-audience")
	signed := signToken(t, "secret", DeviceClaims{
		ProviderUserID:    "provider-1",
		RegisteredClaims: jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"wrong-audience"}},
	})

	_, err := v.Validate(signed)
	require.Error(t, err)
}
