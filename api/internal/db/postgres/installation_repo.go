package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/api/internal/core/domain"
)

const installationColumns = `id, merchant_id, app_id, version, status,
	signed_url_generated_at, signed_url_expires_at,
	installed_at, updated_at, uninstalled_at`

// InstallationRepository implements domain.InstallationRepository for
// PostgreSQL. The unique (merchant_id, app_id) index enforces the
// one-row-per-pair invariant; GetForUpdate takes the row lock that
// serialises writers of the same pair.
type InstallationRepository struct {
	pool *pgxpool.Pool
}

func NewInstallationRepository(pool *pgxpool.Pool) *InstallationRepository {
	return &InstallationRepository{pool: pool}
}

func (r *InstallationRepository) Get(ctx context.Context, merchantID, appID string) (*domain.Installation, error) {
	query := `SELECT ` + installationColumns + `
		FROM installations WHERE merchant_id = $1 AND app_id = $2`
	return scanInstallation(r.pool.QueryRow(ctx, query, merchantID, appID))
}

func (r *InstallationRepository) GetByID(ctx context.Context, id int64, merchantID string) (*domain.Installation, error) {
	query := `SELECT ` + installationColumns + `
		FROM installations WHERE id = $1 AND merchant_id = $2`
	return scanInstallation(r.pool.QueryRow(ctx, query, id, merchantID))
}

func (r *InstallationRepository) GetForUpdate(ctx context.Context, tx domain.Tx, merchantID, appID string) (*domain.Installation, error) {
	pgtx, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + installationColumns + `
		FROM installations WHERE merchant_id = $1 AND app_id = $2
		FOR UPDATE`
	return scanInstallation(pgtx.QueryRow(ctx, query, merchantID, appID))
}

func (r *InstallationRepository) Create(ctx context.Context, tx domain.Tx, inst *domain.Installation) error {
	pgtx, err := txFrom(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO installations (merchant_id, app_id, version, status,
			signed_url_generated_at, signed_url_expires_at, installed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, installed_at, updated_at
	`
	err = pgtx.QueryRow(ctx, query,
		inst.MerchantID,
		inst.AppID,
		inst.Version,
		inst.Status,
		inst.SignedURLGeneratedAt,
		inst.SignedURLExpiresAt,
		inst.InstalledAt,
	).Scan(&inst.ID, &inst.InstalledAt, &inst.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("app is already installed; use the update endpoint to change versions")
		}
		return fmt.Errorf("failed to create installation: %w", err)
	}
	return nil
}

func (r *InstallationRepository) Update(ctx context.Context, tx domain.Tx, inst *domain.Installation) error {
	pgtx, err := txFrom(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE installations
		SET version = $2, status = $3,
			signed_url_generated_at = $4, signed_url_expires_at = $5,
			installed_at = $6, updated_at = NOW(), uninstalled_at = $7
		WHERE id = $1
		RETURNING updated_at
	`
	err = pgtx.QueryRow(ctx, query,
		inst.ID,
		inst.Version,
		inst.Status,
		inst.SignedURLGeneratedAt,
		inst.SignedURLExpiresAt,
		inst.InstalledAt,
		inst.UninstalledAt,
	).Scan(&inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("installation not found")
		}
		return fmt.Errorf("failed to update installation: %w", err)
	}
	return nil
}

func (r *InstallationRepository) TouchSignedURL(ctx context.Context, id int64, generatedAt, expiresAt time.Time) error {
	query := `
		UPDATE installations
		SET signed_url_generated_at = $2, signed_url_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, generatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to refresh signed url timestamps: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("installation not found")
	}
	return nil
}

func (r *InstallationRepository) ListByMerchant(ctx context.Context, merchantID string, statuses []domain.InstallationStatus) ([]domain.InstalledApp, error) {
	query := `
		SELECT i.id, i.merchant_id, i.app_id, i.version, i.status,
			i.signed_url_generated_at, i.signed_url_expires_at,
			i.installed_at, i.updated_at, i.uninstalled_at,
			a.name AS app_name, a.category
		FROM installations i
		JOIN apps a ON a.app_id = i.app_id
		WHERE i.merchant_id = $1
	`
	args := []any{merchantID}
	if len(statuses) > 0 {
		states := make([]string, len(statuses))
		for i, s := range statuses {
			states[i] = string(s)
		}
		query += ` AND i.status = ANY($2)`
		args = append(args, states)
	}
	query += ` ORDER BY i.installed_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	defer rows.Close()

	var result []domain.InstalledApp
	for rows.Next() {
		var item domain.InstalledApp
		err := rows.Scan(
			&item.ID, &item.MerchantID, &item.AppID, &item.Version, &item.Status,
			&item.SignedURLGeneratedAt, &item.SignedURLExpiresAt,
			&item.InstalledAt, &item.UpdatedAt, &item.UninstalledAt,
			&item.AppName, &item.Category,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installation row: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanInstallation(row pgx.Row) (*domain.Installation, error) {
	var inst domain.Installation
	err := row.Scan(
		&inst.ID, &inst.MerchantID, &inst.AppID, &inst.Version, &inst.Status,
		&inst.SignedURLGeneratedAt, &inst.SignedURLExpiresAt,
		&inst.InstalledAt, &inst.UpdatedAt, &inst.UninstalledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("installation not found")
		}
		return nil, fmt.Errorf("failed to query installation: %w", err)
	}
	return &inst, nil
}
