package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	// RoleTransport is held by the chat transport that forwards user messages.
	RoleTransport Role = "transport"
	// RoleAdmin may act as the privileged account and reach /admin.
	RoleAdmin Role = "admin"
)

const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrUnknownAPIKey = errors.New("unknown api key")
)

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.Role != RoleTransport && claims.Role != RoleAdmin {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Issuer trades a static API key for a signed token.
type Issuer struct {
	secret       string
	transportKey string
	adminKey     string
	ttl          time.Duration
}

func NewIssuer(secret, transportKey, adminKey string) *Issuer {
	return &Issuer{secret: secret, transportKey: transportKey, adminKey: adminKey, ttl: DefaultTokenTTL}
}

func keyMatches(configured, presented string) bool {
	return configured != "" && subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// Exchange returns a token for the role bound to apiKey.
func (i *Issuer) Exchange(apiKey string) (string, Role, error) {
	var role Role
	switch {
	case keyMatches(i.adminKey, apiKey):
		role = RoleAdmin
	case keyMatches(i.transportKey, apiKey):
		role = RoleTransport
	default:
		return "", "", ErrUnknownAPIKey
	}

	token, err := GenerateToken(string(role), role, i.secret, i.ttl)
	if err != nil {
		return "", "", err
	}
	return token, role, nil
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
