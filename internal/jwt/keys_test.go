package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLifetimeDays(t *testing.T) {
	for in, want := range map[int]int{-1: 3, 0: 3, 2: 3, 3: 3, 5: 5, 7: 7, 8: 7, 365: 7} {
		assert.Equal(t, want, ClampLifetimeDays(in), "days=%d", in)
	}
}

func TestGenerateKeyModel(t *testing.T) {
	km, err := GenerateKeyModel("alpha", 10, t0)
	require.NoError(t, err)

	assert.NotEmpty(t, km.KeyID())
	assert.Equal(t, "alpha", km.ProductID())
	assert.Equal(t, t0.Add(7*24*time.Hour).Unix(), km.ExpiresAt())
	assert.False(t, km.Expired(t0))
	assert.True(t, km.Expired(t0.Add(7*24*time.Hour)))

	other, err := GenerateKeyModel("alpha", 3, t0)
	require.NoError(t, err)
	assert.NotEqual(t, km.KeyID(), other.KeyID())
}

func TestNewKeyModel_Errors(t *testing.T) {
	_, err := NewKeyModel("kid", nil, "p", 1)
	assert.ErrorIs(t, err, ErrNilPrivateKey)
	_, err = NewKeyModel("", testRSAKey(t, 0), "p", 1)
	assert.ErrorIs(t, err, ErrEmptyKeyID)
}

func TestPublicMaterialRoundTrip(t *testing.T) {
	exp := t0.Add(72 * time.Hour)
	km := testKeyModel(t, 0, "kid-1", "alpha", exp)

	pm, err := ParsePublicMaterial(km.PublicMaterial())
	require.NoError(t, err)
	assert.Equal(t, "kid-1", pm.KeyID)
	assert.Equal(t, "alpha", pm.ProductID)
	assert.Equal(t, exp.Unix(), pm.ExpiresAt)
	assert.True(t, km.PublicKey().Equal(pm.Key))
}

func TestPublicMaterial_NeverCarriesPrivateParts(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", t0.Add(time.Hour))
	raw := string(km.PublicMaterial())
	for _, field := range []string{`"d"`, `"p"`, `"q"`, `"dp"`, `"dq"`, `"qi"`} {
		assert.NotContains(t, raw, field+":")
	}
	assert.Contains(t, raw, `"kty":"RSA"`)
	assert.Contains(t, raw, `"use":"sig"`)
}

func TestParsePublicMaterial_Errors(t *testing.T) {
	_, err := ParsePublicMaterial(nil)
	assert.ErrorIs(t, err, ErrMaterialEmpty)

	_, err = ParsePublicMaterial([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParsePublicMaterial([]byte(`{"kty":"oct","k":"c2VjcmV0"}`))
	assert.ErrorIs(t, err, ErrMaterialNotRSA)
}
