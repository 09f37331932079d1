package httpapi

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RoleAdmin и PermissionOrdersAdmin дают доступ к административным операциям.
const (
	RoleAdmin             = "admin"
	PermissionOrdersAdmin = "orders:admin"
)

var (
	// ErrMissingToken — запрос без Bearer-токена.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken — подпись, срок или claims токена не прошли проверку.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims — claims access-токена витрины.
type Claims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// TokenVerifier проверяет HS256-токены и превращает их в domain.Actor.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenVerifier создаёт проверку токенов. Пустые issuer и audience не проверяются.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify проверяет токен и возвращает актёра.
func (v *TokenVerifier) Verify(raw string) (domain.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}
	return domain.Actor{
		UserID: subject,
		Admin:  claims.Role == RoleAdmin || slices.Contains(claims.Permissions, PermissionOrdersAdmin),
	}, nil
}

// Issue подписывает токен для пользователя; используется локально и в тестах.
func (v *TokenVerifier) Issue(userID string, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	if admin {
		claims.Role = RoleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
