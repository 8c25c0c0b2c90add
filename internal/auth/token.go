package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL - время жизни токена сессии.
const DefaultTokenTTL = 24 * time.Hour

// Identity - личность, извлечённая из проверенного токена.
type Identity struct {
	UserID string
	Role   domain.Role
}

// IsAdmin сообщает, обладает ли личность правами администратора.
func (i Identity) IsAdmin() bool { return i.Role == domain.RoleAdmin }

// Claims - полезная нагрузка токена. Subject содержит id пользователя.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService выпускает и проверяет подписанные токены.
// Секрет задаётся один раз при старте и дальше только читается.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption настраивает TokenService.
type TokenOption func(*TokenService)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithTTL задаёт время жизни токена.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) { s.ttl = ttl }
}

// NewTokenService создаёт сервис токенов с указанным секретом.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", s.ttl)
	}
	return s, nil
}

// Issue выпускает токен для пользователя и роли.
func (s *TokenService) Issue(userID string, role domain.Role) (string, error) {
	issuedAt := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись, структуру и срок действия токена.
func (s *TokenService) Verify(token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, domain.ErrTokenExpired
		}
		return Identity{}, domain.ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, domain.ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}
