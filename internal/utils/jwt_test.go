package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "u-1", RoleAdmin, 15*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 2*time.Second)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "u-1", claims["sub"])
	assert.Equal(t, RoleAdmin, claims["role"])
	assert.Equal(t, jwt.SigningMethodHS256.Alg(), parsed.Method.Alg())
}

func TestNewAccessTokenRejectsEmptyInputs(t *testing.T) {
	_, err := NewAccessToken("", "u-1", RoleCustomer, time.Minute)
	assert.Error(t, err)
	_, err = NewAccessToken("s3cret", "", RoleCustomer, time.Minute)
	assert.Error(t, err)
}
