// Package security provides JWT token utilities
package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("jwt secret not configured")
)

// UserClaims identifies an account inside a token.
type UserClaims struct {
	Staff bool `json:"staff"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the user.
func IssueToken(userID int64, staff bool, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := UserClaims{
		Staff: staff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, secret string) (*UserClaims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserFromToken resolves a token into an Authenticated user. Anything
// unparseable yields Anonymous.
func UserFromToken(tokenString, secret string) splittest.User {
	if tokenString == "" {
		return splittest.Anonymous{}
	}
	claims, err := ValidateJWT(tokenString, secret)
	if err != nil {
		return splittest.Anonymous{}
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return splittest.Anonymous{}
	}
	return splittest.Authenticated{ID: id, Staff: claims.Staff}
}
