package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lvdashuaibi/livevote/internal/model"
)

// TokenIssuer signs and verifies the time-bounded credentials handed
// out at login. Possession of a valid token is the only proof of
// identity; there are no passwords.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

type claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Issue signs a credential binding the identity, valid for the
// configured TTL (2 hours in the reference deployment).
func (i *TokenIssuer) Issue(identity model.Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: identity.UserID,
		Name:   identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a credential and returns the identity it binds.
// Expired, malformed or foreign-signed tokens all surface as
// model.ErrInvalidToken; an expired credential rejects new votes but
// never retracts ones already cast.
func (i *TokenIssuer) Verify(tokenString string) (model.Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return model.Identity{}, model.ErrInvalidToken
	}

	return model.Identity{UserID: c.UserID, Name: c.Name}, nil
}
