package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/api/internal/core/domain"
)

// AccountRepository resolves publisher and merchant credentials.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) GetByEmail(ctx context.Context, actor domain.ActorType, email string) (*domain.Account, error) {
	query := `
		SELECT id, actor, email, name, secret_hash, is_active, created_at
		FROM accounts
		WHERE actor = $1 AND email = $2
	`
	var account domain.Account
	err := r.pool.QueryRow(ctx, query, actor, email).Scan(
		&account.ID, &account.Actor, &account.Email, &account.Name,
		&account.SecretHash, &account.IsActive, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("account not found")
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &account, nil
}
