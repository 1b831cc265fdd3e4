package jwt

import (
	"errors"
	"sync/atomic"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	MinTokenValiditySeconds     = 60
	MaxTokenValiditySeconds     = 7200
	DefaultTokenValiditySeconds = MaxTokenValiditySeconds

	// ClaimProcessID identifica el proceso al que queda atado el token.
	ClaimProcessID = "processId"
)

var (
	ErrNoActiveKey      = errors.New("no_active_signing_key")
	ErrActiveKeyExpired = errors.New("active_signing_key_expired")
)

// Issuer firma tokens con el KeyModel activo.
// El KeyModel se lee sin locks; solo el worker de rotación llama SetActive.
type Issuer struct {
	active atomic.Pointer[KeyModel]
	now    func() time.Time
}

func NewIssuer() *Issuer {
	return &Issuer{now: time.Now}
}

// SetActive reemplaza atómicamente la clave de firma.
func (i *Issuer) SetActive(k *KeyModel) {
	i.active.Store(k)
}

// Active devuelve la clave activa o nil.
func (i *Issuer) Active() *KeyModel {
	return i.active.Load()
}

// ActiveKID devuelve el KID activo actual.
func (i *Issuer) ActiveKID() (string, error) {
	k := i.active.Load()
	if k == nil {
		return "", ErrNoActiveKey
	}
	return k.KeyID(), nil
}

// ClampValidity acota el TTL pedido a [60, 7200]. 0 significa "sin especificar" => 7200.
func ClampValidity(seconds int) int {
	if seconds == 0 {
		return DefaultTokenValiditySeconds
	}
	if seconds < MinTokenValiditySeconds {
		return MinTokenValiditySeconds
	}
	if seconds > MaxTokenValiditySeconds {
		return MaxTokenValiditySeconds
	}
	return seconds
}

// IssuedToken es el resultado de Issue. KeyID es el kid con el que se firmó realmente.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	KeyID     string
}

// Issue emite un token para processID. Las claims del caller se copian primero;
// processId, iat y exp siempre pisan duplicados.
func (i *Issuer) Issue(processID string, claims map[string]any, validitySeconds int) (IssuedToken, error) {
	key := i.active.Load()
	if key == nil {
		return IssuedToken{}, ErrNoActiveKey
	}
	now := i.now()
	if key.Expired(now) {
		return IssuedToken{}, ErrActiveKeyExpired
	}

	exp := now.Add(time.Duration(ClampValidity(validitySeconds)) * time.Second)

	mc := jwtv5.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc[ClaimProcessID] = processID
	mc["iat"] = now.Unix()
	mc["exp"] = exp.Unix()

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, mc)
	tk.Header["kid"] = key.KeyID()
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(key.PrivateKey())
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Token:     signed,
		ExpiresAt: time.Unix(exp.Unix(), 0).UTC(),
		KeyID:     key.KeyID(),
	}, nil
}
