package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	require.NotEqual(t, "secret", hash)

	require.NoError(t, ComparePassword(hash, "secret"))
	require.Error(t, ComparePassword(hash, "wrong"))
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("secret")
	require.NoError(t, err)
	h2, err := HashPassword("secret")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestAutohostTokenRoundTrip(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("fleet-secret"), Issuer: "lobby-server", TTL: time.Hour}

	token, err := GenerateAutohostToken(cfg, "10.0.0.5")
	require.NoError(t, err)

	claims, err := ValidateAutohostToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", claims.Host)
	require.Equal(t, "lobby-server", claims.Issuer)
}

func TestAutohostTokenWrongSecret(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("fleet-secret"), Issuer: "lobby-server", TTL: time.Hour}
	token, err := GenerateAutohostToken(cfg, "10.0.0.5")
	require.NoError(t, err)

	other := &TokenConfig{Secret: []byte("not-the-secret"), Issuer: "lobby-server", TTL: time.Hour}
	_, err = ValidateAutohostToken(other, token)
	require.Error(t, err)
}

func TestAutohostTokenExpired(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("fleet-secret"), Issuer: "lobby-server", TTL: -time.Minute}
	token, err := GenerateAutohostToken(cfg, "10.0.0.5")
	require.NoError(t, err)

	_, err = ValidateAutohostToken(cfg, token)
	require.Error(t, err)
}

func TestAutohostTokenGarbage(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("fleet-secret"), Issuer: "lobby-server", TTL: time.Hour}
	_, err := ValidateAutohostToken(cfg, "not.a.token")
	require.Error(t, err)
}
