// Package auth выдаёт и проверяет токены подключения к игровому серверу.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "iso-game"

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrWeakSecret   = errors.New("auth: secret key must be at least 32 bytes")
)

// Claims represents JWT claims
type Claims struct {
	Player  string `json:"player"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenIssuer подписывает и проверяет токены одним секретом (HS256)
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer создаёт издателя по секрету в base64
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: secret: %w", err)
	}
	if len(decoded) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: decoded, ttl: ttl}, nil
}

// Generate creates a signed token for the player
func (ti *TokenIssuer) Generate(player string, isAdmin bool) (string, error) {
	if player == "" {
		return "", errors.New("auth: empty player name")
	}
	now := time.Now()
	claims := &Claims{
		Player:  player,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   player,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// Validate checks token validity and returns its claims
func (ti *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Player == "" {
		return nil, fmt.Errorf("%w: no player", ErrInvalidToken)
	}
	return claims, nil
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}
