package jwt

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(now time.Time, km *KeyModel) *Issuer {
	iss := NewIssuer()
	iss.now = func() time.Time { return now }
	if km != nil {
		iss.SetActive(km)
	}
	return iss
}

func TestClampValidity(t *testing.T) {
	for in, want := range map[int]int{0: 7200, -1: 60, -5: 60, -100000: 60, 1: 60, 59: 60, 60: 60, 900: 900, 7200: 7200, 7201: 7200} {
		assert.Equal(t, want, ClampValidity(in), "seconds=%d", in)
	}
}

func TestIssue_NoActiveKey(t *testing.T) {
	iss := newTestIssuer(t0, nil)
	_, err := iss.Issue("p-1", nil, 60)
	assert.ErrorIs(t, err, ErrNoActiveKey)
	_, err = iss.ActiveKID()
	assert.ErrorIs(t, err, ErrNoActiveKey)
}

func TestIssue_ActiveKeyExpired(t *testing.T) {
	km := testKeyModel(t, 0, "kid-old", "alpha", t0.Add(-time.Second))
	_, err := newTestIssuer(t0, km).Issue("p-1", nil, 60)
	assert.ErrorIs(t, err, ErrActiveKeyExpired)
}

func TestIssue_ForcedClaimsWinAndHeaderCarriesKID(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", t0.Add(72*time.Hour))
	iss := newTestIssuer(t0, km)

	out, err := iss.Issue("p-1", map[string]any{
		"processId": "spoofed",
		"iat":       1,
		"exp":       2,
		"role":      "runner",
	}, 30)
	require.NoError(t, err)
	assert.True(t, out.ExpiresAt.Equal(t0.Add(60*time.Second)))
	assert.Equal(t, "kid-1", out.KeyID)

	parsed, err := jwtv5.Parse(out.Token, func(*jwtv5.Token) (any, error) { return km.PublicKey(), nil },
		jwtv5.WithTimeFunc(func() time.Time { return t0.Add(time.Second) }))
	require.NoError(t, err)
	assert.Equal(t, "kid-1", parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])

	claims := parsed.Claims.(jwtv5.MapClaims)
	assert.Equal(t, "p-1", claims["processId"])
	assert.Equal(t, "runner", claims["role"])
	assert.EqualValues(t, t0.Unix(), claims["iat"])
	assert.EqualValues(t, t0.Add(60*time.Second).Unix(), claims["exp"])
}

func TestIssue_DefaultValidity(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", t0.Add(72*time.Hour))
	out, err := newTestIssuer(t0, km).Issue("p-1", nil, 0)
	require.NoError(t, err)
	assert.True(t, out.ExpiresAt.Equal(t0.Add(2*time.Hour)))
}

func TestSetActiveSwapsKey(t *testing.T) {
	a := testKeyModel(t, 0, "kid-a", "alpha", t0.Add(72*time.Hour))
	b := testKeyModel(t, 1, "kid-b", "alpha", t0.Add(96*time.Hour))
	iss := newTestIssuer(t0, a)
	kid, _ := iss.ActiveKID()
	assert.Equal(t, "kid-a", kid)
	iss.SetActive(b)
	kid, _ = iss.ActiveKID()
	assert.Equal(t, "kid-b", kid)
	assert.Same(t, b, iss.Active())
}

func TestIssue_NegativeValidityIsMinimum(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", t0.Add(72*time.Hour))
	out, err := newTestIssuer(t0, km).Issue("p-1", nil, -30)
	require.NoError(t, err)
	assert.True(t, out.ExpiresAt.Equal(t0.Add(60*time.Second)))
}

func TestIssue_KeyIDMatchesSigningKeyAcrossRotation(t *testing.T) {
	a := testKeyModel(t, 0, "kid-a", "alpha", t0.Add(72*time.Hour))
	b := testKeyModel(t, 1, "kid-b", "alpha", t0.Add(96*time.Hour))
	iss := newTestIssuer(t0, a)

	out, err := iss.Issue("p-1", nil, 60)
	require.NoError(t, err)
	iss.SetActive(b)

	tok, _, err := jwtv5.NewParser().ParseUnverified(out.Token, jwtv5.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "kid-a", out.KeyID)
	assert.Equal(t, tok.Header["kid"], out.KeyID)
}
