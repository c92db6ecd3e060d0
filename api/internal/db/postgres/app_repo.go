package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/api/internal/core/domain"
)

const appColumns = `id, app_id, publisher_id, name, description, category, tags,
	icon_url, website_url, support_email, is_published, is_active,
	published_at, created_at, updated_at`

// AppRepository implements domain.AppRepository for PostgreSQL.
type AppRepository struct {
	pool *pgxpool.Pool
}

func NewAppRepository(pool *pgxpool.Pool) *AppRepository {
	return &AppRepository{pool: pool}
}

func (r *AppRepository) GetByAppID(ctx context.Context, appID string) (*domain.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE app_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, appID))
}

func (r *AppRepository) GetForPublisher(ctx context.Context, appID, publisherID string) (*domain.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE app_id = $1 AND publisher_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, appID, publisherID))
}

func (r *AppRepository) Create(ctx context.Context, tx domain.Tx, app *domain.App) error {
	pgtx, err := txFrom(tx)
	if err != nil {
		return err
	}

	tagsJSON, err := json.Marshal(app.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO apps (app_id, publisher_id, name, description, category, tags,
			icon_url, website_url, support_email, is_published, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err = pgtx.QueryRow(ctx, query,
		app.AppID,
		app.PublisherID,
		app.Name,
		app.Description,
		app.Category,
		tagsJSON,
		app.IconURL,
		app.WebsiteURL,
		app.SupportEmail,
		app.IsPublished,
		app.IsActive,
	).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("app id is already registered")
		}
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

func (r *AppRepository) UpdatePublishState(ctx context.Context, tx domain.Tx, app *domain.App) error {
	pgtx, err := txFrom(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE apps
		SET is_published = $2, published_at = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = pgtx.QueryRow(ctx, query, app.ID, app.IsPublished, app.PublishedAt).Scan(&app.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("app not found")
		}
		return fmt.Errorf("failed to update publish state: %w", err)
	}
	return nil
}

func (r *AppRepository) scanOne(row pgx.Row) (*domain.App, error) {
	var app domain.App
	var tagsJSON []byte

	err := row.Scan(
		&app.ID, &app.AppID, &app.PublisherID, &app.Name, &app.Description,
		&app.Category, &tagsJSON, &app.IconURL, &app.WebsiteURL,
		&app.SupportEmail, &app.IsPublished, &app.IsActive,
		&app.PublishedAt, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("app not found")
		}
		return nil, fmt.Errorf("failed to query app: %w", err)
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &app.Tags); err != nil {
			return nil, err
		}
	}
	return &app, nil
}
