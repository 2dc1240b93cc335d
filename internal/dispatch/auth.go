package dispatch

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims are the JWT claims a provider device presents at handshake.
type DeviceClaims struct {
	ProviderUserID string `json:"provider_user_id"`
	jwt.RegisteredClaims
}

// TokenValidator verifies the bearer token presented at connection open.
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenValidator builds a validator for the given HMAC secret, issuer,
// and audience (per config.DispatchConfig).
func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Validate parses and verifies tokenString, returning the claims on success.
func (v *TokenValidator) Validate(tokenString string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid dispatch token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid dispatch token")
	}
	if claims.ProviderUserID == "" {
		return nil, fmt.Errorf("dispatch token missing provider_user_id claim")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("invalid dispatch token issuer")
	}
	if v.audience != "" {
		matched := false
		for _, aud := range claims.Audience {
			if aud == v.audience {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("invalid dispatch token audience")
		}
	}
	return claims, nil
}
