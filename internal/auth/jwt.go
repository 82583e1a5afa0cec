package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidJWTToken = errors.New("JWT token is invalid")
	ErrExpiredJWTToken = errors.New("JWT token is expired")
	ErrNotOperator     = errors.New("JWT token does not grant operator access")
)

const (
	RoleOperator = "operator"

	DefaultOperatorTokenDuration = 8 * time.Hour
)

type OperatorClaims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// JWTManager signs and verifies HS256 operator tokens. The token subject is
// the actor recorded on issued download links.
type JWTManager struct {
	secret []byte
}

func NewJWTManager(secret string) (*JWTManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	return &JWTManager{secret: []byte(secret)}, nil
}

func (j *JWTManager) GenerateAccessJWT(actor string, duration time.Duration) (string, error) {
	if actor == "" {
		return "", fmt.Errorf("actor is required")
	}
	now := time.Now()
	claims := &OperatorClaims{
		Role: RoleOperator,
		StandardClaims: jwt.StandardClaims{
			Subject:   actor,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(duration).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateAccessToken returns the actor of a valid operator token.
func (j *JWTManager) ValidateAccessToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrExpiredJWTToken
		}
		return "", ErrInvalidJWTToken
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidJWTToken
	}
	if claims.Role != RoleOperator {
		return "", ErrNotOperator
	}
	return claims.Subject, nil
}
