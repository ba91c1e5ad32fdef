package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when an autohost token fails validation.
var ErrInvalidToken = errors.New("invalid token")

// AutohostClaims are carried by the bearer token an autohost process
// presents when it registers with the fleet.
type AutohostClaims struct {
	Host string `json:"host"`
	jwt.RegisteredClaims
}

// TokenConfig holds the shared-secret token settings for the autohost fleet.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// GenerateAutohostToken mints an HMAC token an autohost can register with.
func GenerateAutohostToken(cfg *TokenConfig, host string) (string, error) {
	now := time.Now()
	claims := AutohostClaims{
		Host: host,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign autohost token: %w", err)
	}
	return signed, nil
}

// ValidateAutohostToken parses and validates an autohost bearer token.
func ValidateAutohostToken(cfg *TokenConfig, tokenString string) (*AutohostClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AutohostClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*AutohostClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
