package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bazaar/api/internal/core/domain"
)

// CatalogRepository serves the public store browsing queries over sqlx.
// Strictly read-only; it never touches the latest pointer or the ledger.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListPublished builds the listing query from the caller's filters, the
// same way for the count and the page so the two always agree.
func (r *CatalogRepository) ListPublished(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogApp, int, error) {
	base := `
		FROM apps a
		LEFT JOIN accounts p ON p.id = a.publisher_id AND p.actor = 'publisher'
		LEFT JOIN app_versions v ON v.app_id = a.app_id AND v.is_latest = TRUE AND v.upload_status = 'completed'
		WHERE a.is_published = TRUE AND a.is_active = TRUE
	`
	var args []any
	argCount := 1

	if filter.Category != "" {
		base += fmt.Sprintf(" AND a.category = $%d", argCount)
		args = append(args, filter.Category)
		argCount++
	}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (a.name ILIKE $%d OR a.description ILIKE $%d)", argCount, argCount)
		args = append(args, "%"+filter.Search+"%")
		argCount++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count catalog apps: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := `
		SELECT a.app_id, a.name, a.description, a.category, a.icon_url,
			a.publisher_id, COALESCE(p.name, '') AS publisher_name,
			v.version AS latest_version
	` + base + fmt.Sprintf(" ORDER BY a.updated_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, (page-1)*limit)

	var apps []domain.CatalogApp
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list catalog apps: %w", err)
	}
	return apps, total, nil
}

func (r *CatalogRepository) AppDetails(ctx context.Context, appID string) (*domain.CatalogAppDetails, error) {
	query := `
		SELECT id, app_id, publisher_id, name, description, category, tags,
			icon_url, website_url, support_email, is_published, is_active,
			published_at, created_at, updated_at
		FROM apps
		WHERE app_id = $1 AND is_published = TRUE AND is_active = TRUE
	`
	var app domain.App
	var tagsJSON []byte
	err := r.db.QueryRowxContext(ctx, query, appID).Scan(
		&app.ID, &app.AppID, &app.PublisherID, &app.Name, &app.Description,
		&app.Category, &tagsJSON, &app.IconURL, &app.WebsiteURL,
		&app.SupportEmail, &app.IsPublished, &app.IsActive,
		&app.PublishedAt, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("app not found or not available")
		}
		return nil, fmt.Errorf("failed to query catalog app: %w", err)
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &app.Tags); err != nil {
			return nil, err
		}
	}

	var versions []domain.AppVersion
	versionQuery := `
		SELECT id, app_id, publisher_id, version, storage_key, storage_url,
			file_name, file_size_bytes, changelog, is_latest,
			min_platform_version, upload_status, uploaded_at
		FROM app_versions
		WHERE app_id = $1
		ORDER BY uploaded_at DESC
	`
	if err := r.db.SelectContext(ctx, &versions, versionQuery, appID); err != nil {
		return nil, fmt.Errorf("failed to list catalog versions: %w", err)
	}

	return &domain.CatalogAppDetails{App: &app, Versions: versions}, nil
}

func (r *CatalogRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	query := `
		SELECT DISTINCT category
		FROM apps
		WHERE is_published = TRUE AND is_active = TRUE AND category <> ''
		ORDER BY category
	`
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
