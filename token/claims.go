package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ParseClaims decodes a JWT payload without verifying its signature; the provider
// remains the authority on whether the token is valid.
func ParseClaims(rawToken string) (map[string]any, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("empty token")
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}
	return map[string]any(claims), nil
}

// ExpiryFromClaims returns the exp claim as a time, zero when absent.
func ExpiryFromClaims(claims map[string]any) time.Time {
	exp, err := jwtlib.MapClaims(claims).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
