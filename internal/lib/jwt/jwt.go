package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired means the token was well-formed and signed but is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalidSignature means the token was tampered with or signed by another key.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMalformed means the token is structurally not a JWT.
	ErrMalformed = errors.New("malformed token")
)

// NewToken creates a signed access JWT for the given user ID.
func NewToken(userID string, secret []byte, duration time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		})

	return token.SignedString(secret)
}

// ParseToken validates a JWT and returns the subject (user ID).
// Verification is purely cryptographic: no store lookup is involved,
// so a token stays valid until its embedded expiry.
func ParseToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrInvalidSignature
		default:
			return "", ErrMalformed
		}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrMalformed
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrMalformed
	}

	return sub, nil
}
