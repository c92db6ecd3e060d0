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

const versionColumns = `id, app_id, publisher_id, version, storage_key, storage_url,
	file_name, file_size_bytes, changelog, is_latest, min_platform_version,
	supported_platforms, upload_status, uploaded_at`

// VersionRepository implements domain.VersionRepository for PostgreSQL.
// The latest pointer is only ever written through ClearLatest + Create on
// one transaction.
type VersionRepository struct {
	pool *pgxpool.Pool
}

func NewVersionRepository(pool *pgxpool.Pool) *VersionRepository {
	return &VersionRepository{pool: pool}
}

func (r *VersionRepository) GetExact(ctx context.Context, appID, version string) (*domain.AppVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM app_versions
		WHERE app_id = $1 AND version = $2 AND upload_status = $3`
	v, err := r.scanOne(r.pool.QueryRow(ctx, query, appID, version, domain.UploadCompleted))
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NotFound(fmt.Sprintf("version %s not found for this app", version))
		}
		return nil, err
	}
	return v, nil
}

func (r *VersionRepository) GetLatest(ctx context.Context, appID string) (*domain.AppVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM app_versions
		WHERE app_id = $1 AND is_latest = TRUE AND upload_status = $2`
	v, err := r.scanOne(r.pool.QueryRow(ctx, query, appID, domain.UploadCompleted))
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NotFound("no completed versions available for this app")
		}
		return nil, err
	}
	return v, nil
}

func (r *VersionRepository) Exists(ctx context.Context, appID, version string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM app_versions WHERE app_id = $1 AND version = $2)`
	if err := r.pool.QueryRow(ctx, query, appID, version).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check version existence: %w", err)
	}
	return exists, nil
}

func (r *VersionRepository) CountForApp(ctx context.Context, appID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM app_versions WHERE app_id = $1 AND upload_status = $2`
	if err := r.pool.QueryRow(ctx, query, appID, domain.UploadCompleted).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return count, nil
}

func (r *VersionRepository) ClearLatest(ctx context.Context, tx domain.Tx, appID string) error {
	pgtx, err := txFrom(tx)
	if err != nil {
		return err
	}
	_, err = pgtx.Exec(ctx, `UPDATE app_versions SET is_latest = FALSE WHERE app_id = $1 AND is_latest = TRUE`, appID)
	if err != nil {
		return fmt.Errorf("failed to clear latest flag: %w", err)
	}
	return nil
}

func (r *VersionRepository) Create(ctx context.Context, tx domain.Tx, v *domain.AppVersion) error {
	pgtx, err := txFrom(tx)
	if err != nil {
		return err
	}

	platformsJSON, err := json.Marshal(v.SupportedPlatforms)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO app_versions (app_id, publisher_id, version, storage_key, storage_url,
			file_name, file_size_bytes, changelog, is_latest, min_platform_version,
			supported_platforms, upload_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, uploaded_at
	`
	err = pgtx.QueryRow(ctx, query,
		v.AppID,
		v.PublisherID,
		v.Version,
		v.StorageKey,
		v.StorageURL,
		v.FileName,
		v.FileSizeBytes,
		v.Changelog,
		v.IsLatest,
		v.MinPlatformVersion,
		platformsJSON,
		v.UploadStatus,
	).Scan(&v.ID, &v.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("version already exists for this app")
		}
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

func (r *VersionRepository) scanOne(row pgx.Row) (*domain.AppVersion, error) {
	var v domain.AppVersion
	var platformsJSON []byte

	err := row.Scan(
		&v.ID, &v.AppID, &v.PublisherID, &v.Version, &v.StorageKey,
		&v.StorageURL, &v.FileName, &v.FileSizeBytes, &v.Changelog,
		&v.IsLatest, &v.MinPlatformVersion, &platformsJSON,
		&v.UploadStatus, &v.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("version not found")
		}
		return nil, fmt.Errorf("failed to query version: %w", err)
	}

	if len(platformsJSON) > 0 {
		if err := json.Unmarshal(platformsJSON, &v.SupportedPlatforms); err != nil {
			return nil, err
		}
	}
	return &v, nil
}
