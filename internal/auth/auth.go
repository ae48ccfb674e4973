// Package auth decodes the opaque bearer tokens issued by the account
// service. The server never verifies passwords; it only needs to turn a
// token into an account identity or reject it.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the decoded payload of a bearer token.
type Identity struct {
	AccountID string
	Email     string
}

// ErrInvalidToken covers every decode failure: bad signature, expiry,
// missing claims. Callers close the session with the auth close code and do
// not distinguish further.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenDecoder is the port the gateway consumes.
type TokenDecoder interface {
	Decode(token string) (Identity, error)
}

// HMACDecoder decodes HS256 tokens signed with a shared secret.
type HMACDecoder struct {
	secret []byte
}

func NewHMACDecoder(secret string) *HMACDecoder {
	return &HMACDecoder{secret: []byte(secret)}
}

func (d *HMACDecoder) Decode(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	accountID, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if accountID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{AccountID: accountID, Email: email}, nil
}

// Sign mints a token for the given identity. The account service is the
// production issuer; this helper exists for tests and local tooling.
func Sign(secret, accountID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   accountID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
