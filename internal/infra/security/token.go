package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
)

// SessionClaims is the bearer token body. Subject carries the user id.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager mints and parses HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *TokenManager) Issue(userID string, role model.Role) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := SessionClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse validates tok and returns its subject. Any failure is domain.ErrUnauthorized.
func (m *TokenManager) Parse(tok string) (string, error) {
	if tok == "" {
		return "", domain.ErrUnauthorized
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", domain.ErrUnauthorized
	}
	return claims.Subject, nil
}
