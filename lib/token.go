package lib

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
)

var tokenFormat = regexp.MustCompile(`^[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*$`)

// TokenDetails is what the client can learn from a token without the signing key.
type TokenDetails struct {
	UserID    string
	ExpiresAt *time.Time
}

// InspectToken checks the token shape and expiry. The signature is not verified;
// only the backend holds the secret.
func InspectToken(token string, now time.Time) (*TokenDetails, error) {
	if !tokenFormat.MatchString(token) {
		return nil, ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !claims.VerifyExpiresAt(now.Unix(), false) {
		return nil, ErrTokenExpired
	}

	td := &TokenDetails{}
	switch v := claims["user_id"].(type) {
	case string:
		td.UserID = v
	case float64:
		td.UserID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if exp, ok := claims["exp"].(float64); ok {
		t := time.Unix(int64(exp), 0)
		td.ExpiresAt = &t
	}
	return td, nil
}
