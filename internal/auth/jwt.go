package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/config"
)

var (
	ErrSecretRequired = errors.New("AUTH_JWT_SECRET is required")
	ErrInvalidClaims  = errors.New("invalid token claims")
)

// Manager выпускает и проверяет HS256 access-токены операторов.
type Manager struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrSecretRequired
	}
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
	}, nil
}

// Issue подписывает токен для пользователя с ролью role.
func (m *Manager) Issue(now time.Time, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: userID.String(),
		Role:   role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) Verify(raw string, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(m.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return Claims{}, ErrInvalidClaims
	}
	if claims.Role != RoleAdmin && claims.Role != RoleSubcontractor {
		return Claims{}, ErrInvalidClaims
	}
	return claims, nil
}
