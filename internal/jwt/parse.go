package jwt

import (
	"crypto/rsa"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var errMissingTimeClaim = errors.New("missing_time_claim")

// parseUnverified decodifica header y payload sin verificar firma.
func parseUnverified(token string) (*jwtv5.Token, jwtv5.MapClaims, error) {
	claims := jwtv5.MapClaims{}
	tok, _, err := jwtv5.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, nil, err
	}
	return tok, claims, nil
}

// checkTimeClaims exige iat estrictamente en el pasado y exp estrictamente en el futuro.
func checkTimeClaims(claims jwtv5.MapClaims, now time.Time) error {
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return err
	}
	if iat == nil || exp == nil {
		return errMissingTimeClaim
	}
	if !iat.Time.Before(now) {
		return jwtv5.ErrTokenUsedBeforeIssued
	}
	if !exp.Time.After(now) {
		return jwtv5.ErrTokenExpired
	}
	return nil
}

// headerKID devuelve el kid del header si es un string no vacío.
func headerKID(tok *jwtv5.Token) (string, bool) {
	kid, ok := tok.Header["kid"].(string)
	return kid, ok && kid != ""
}

// verifySignature verifica RS256 contra pub. Los claims temporales ya se chequearon antes.
func verifySignature(token string, pub *rsa.PublicKey) error {
	_, err := jwtv5.Parse(token,
		func(*jwtv5.Token) (any, error) { return pub, nil },
		jwtv5.WithValidMethods([]string{SigningAlg}),
		jwtv5.WithoutClaimsValidation(),
	)
	return err
}
