package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bazaar/api/internal/core/domain"
)

const tokenIssuer = "bazaar-api"

// Claims is the JWT payload issued to publishers and merchants. Subject
// holds the stable account id; Actor fixes which surface the token may
// call.
type Claims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// AuthService is the caller-identity resolver: it exchanges account
// credentials for a signed token and verifies tokens back into callers.
type AuthService struct {
	accounts domain.AccountRepository
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(accounts domain.AccountRepository, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		accounts: accounts,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Login verifies the account secret and issues an access token. The
// error is deliberately identical for unknown accounts and wrong
// secrets.
func (s *AuthService) Login(ctx context.Context, actor domain.ActorType, email, secret string) (string, error) {
	account, err := s.accounts.GetByEmail(ctx, actor, email)
	if err != nil {
		return "", domain.Forbidden("invalid credentials")
	}

	// Constant-time check.
	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		return "", domain.Forbidden("invalid credentials")
	}
	if !account.IsActive {
		return "", domain.Forbidden("account suspended")
	}

	now := time.Now()
	claims := Claims{
		Actor: string(account.Actor),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an access token and returns the
// caller it identifies.
func (s *AuthService) ValidateToken(tokenString string) (*domain.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	actor := domain.ActorType(claims.Actor)
	if actor != domain.ActorPublisher && actor != domain.ActorMerchant {
		return nil, errors.New("invalid actor claim")
	}

	return &domain.Caller{Subject: claims.Subject, Actor: actor}, nil
}
