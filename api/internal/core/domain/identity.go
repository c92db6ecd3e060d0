package domain

import (
	"context"
	"time"
)

type contextKey string

// CallerContextKey carries the authenticated caller's claims through the
// request context.
const CallerContextKey contextKey = "bazaar_caller"

// ActorType distinguishes the two caller populations.
type ActorType string

const (
	ActorPublisher ActorType = "publisher"
	ActorMerchant  ActorType = "merchant"
)

// Caller is the verified identity attached to a request after the JWT
// middleware has run.
type Caller struct {
	Subject string
	Actor   ActorType
}

// CallerFrom extracts the caller injected by the auth middleware.
func CallerFrom(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(CallerContextKey).(*Caller)
	return c, ok
}

// Account is a publisher or merchant credential row. Secrets are stored
// bcrypt-hashed; the plaintext never persists.
type Account struct {
	ID         string    `json:"id" db:"id"`
	Actor      ActorType `json:"actor" db:"actor"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	SecretHash string    `json:"-" db:"secret_hash"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AccountRepository resolves caller credentials.
type AccountRepository interface {
	GetByEmail(ctx context.Context, actor ActorType, email string) (*Account, error)
}
