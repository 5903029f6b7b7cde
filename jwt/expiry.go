package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the token cannot be decoded.
	ErrMalformed = errors.New("jwt: malformed token")
	// ErrNoExpiry is returned when the token carries no exp claim.
	ErrNoExpiry = errors.New("jwt: token has no exp claim")
)

// MaxLeeway caps the early-refresh window accepted by Expired.
const MaxLeeway = 10 * time.Minute

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// Expiry returns the exp claim of token without verifying its signature.
func Expiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, ErrMalformed
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether token expires within leeway of now. Tokens without
// an exp claim never expire; malformed tokens return an error.
func Expired(token string, leeway time.Duration, now time.Time) (bool, error) {
	if leeway < 0 || leeway > MaxLeeway {
		return false, fmt.Errorf("jwt: leeway %s out of range", leeway)
	}
	exp, err := Expiry(token)
	if errors.Is(err, ErrNoExpiry) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !now.Add(leeway).Before(exp), nil
}
