package services

import (
	"context"
	"log/slog"
	"time"

	"bazaar/api/internal/core/domain"
)

const (
	// signedURLValidity is the fixed download window issued with every
	// install/update grant.
	signedURLValidity = 10 * time.Minute

	// issuerTimeout bounds the signing call; on expiry the issuer
	// degrades rather than failing the installation.
	issuerTimeout = 5 * time.Second
)

// InstallationsService is the installation orchestrator: it coordinates
// the app registry, the version store, the access issuer and the
// installation ledger, and is the only component that moves ledger rows
// through their lifecycle.
type InstallationsService struct {
	apps     domain.AppRepository
	versions domain.VersionRepository
	ledger   domain.InstallationRepository
	issuer   domain.AccessIssuer
	uow      domain.UnitOfWork
	logger   *slog.Logger
}

func NewInstallationsService(
	apps domain.AppRepository,
	versions domain.VersionRepository,
	ledger domain.InstallationRepository,
	issuer domain.AccessIssuer,
	uow domain.UnitOfWork,
	logger *slog.Logger,
) *InstallationsService {
	return &InstallationsService{
		apps:     apps,
		versions: versions,
		ledger:   ledger,
		issuer:   issuer,
		uow:      uow,
		logger:   logger,
	}
}

// InstallResult is returned to the merchant after an install is accepted.
type InstallResult struct {
	InstallationID int64                     `json:"installation_id"`
	AppID          string                    `json:"app_id"`
	AppName        string                    `json:"app_name"`
	Version        string                    `json:"version"`
	Status         domain.InstallationStatus `json:"installation_status"`
	Grant          domain.SignedGrant        `json:"grant"`
	Reinstall      bool                      `json:"reinstall"`
}

// UpdateResult reports a version move from PreviousVersion to NewVersion.
type UpdateResult struct {
	InstallationID  int64                     `json:"installation_id"`
	AppID           string                    `json:"app_id"`
	AppName         string                    `json:"app_name"`
	PreviousVersion string                    `json:"previous_version"`
	NewVersion      string                    `json:"new_version"`
	Status          domain.InstallationStatus `json:"installation_status"`
	Grant           domain.SignedGrant        `json:"grant"`
}

// UninstallResult records the uninstall for audit purposes.
type UninstallResult struct {
	InstallationID int64                     `json:"installation_id"`
	AppID          string                    `json:"app_id"`
	PreviousStatus domain.InstallationStatus `json:"previous_status"`
	UninstalledAt  time.Time                 `json:"uninstalled_at"`
}

// InstallationDetails is a ledger row plus a freshly issued download URL.
type InstallationDetails struct {
	Installation *domain.Installation `json:"installation"`
	Grant        *domain.SignedGrant  `json:"grant,omitempty"`
}

// Install resolves the requested (or latest) completed version of a
// published, active app and opens a ledger row in state installing. A
// prior uninstalled row for the same pair is reused, never duplicated.
// All failures before the transactional write leave no persisted change.
func (s *InstallationsService) Install(ctx context.Context, merchantID, appID, requestedVersion string) (*InstallResult, error) {
	app, err := s.apps.GetByAppID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !app.IsPublished || !app.IsActive {
		return nil, domain.NotFound("app not found or not available for installation")
	}

	existing, err := s.ledger.Get(ctx, merchantID, appID)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != domain.StatusUninstalled {
		return nil, domain.Conflict("app is already installed; use the update endpoint to change versions")
	}

	target, err := s.resolve(ctx, appID, requestedVersion)
	if err != nil {
		return nil, err
	}

	grant := s.issue(ctx, target.StorageKey)

	now := time.Now().UTC()
	var inst *domain.Installation
	reinstall := existing != nil

	err = domain.RunInTx(ctx, s.uow, func(tx domain.Tx) error {
		if existing == nil {
			inst = &domain.Installation{
				MerchantID:           merchantID,
				AppID:                appID,
				Version:              target.Version,
				Status:               domain.StatusInstalling,
				SignedURLGeneratedAt: &grant.IssuedAt,
				SignedURLExpiresAt:   &grant.ExpiresAt,
				InstalledAt:          now,
			}
			// A concurrent install of the same pair loses here on the
			// unique (merchant_id, app_id) constraint.
			return s.ledger.Create(ctx, tx, inst)
		}

		// Reinstall path: lock and reuse the historical row so the
		// one-row-per-pair invariant holds.
		row, err := s.ledger.GetForUpdate(ctx, tx, merchantID, appID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(row.Status, domain.StatusInstalling) {
			return domain.Conflict("app is already installed; use the update endpoint to change versions")
		}
		row.Version = target.Version
		row.Status = domain.StatusInstalling
		row.InstalledAt = now
		row.UninstalledAt = nil
		row.SignedURLGeneratedAt = &grant.IssuedAt
		row.SignedURLExpiresAt = &grant.ExpiresAt
		if err := s.ledger.Update(ctx, tx, row); err != nil {
			return err
		}
		inst = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("installation initiated",
		slog.String("merchant_id", merchantID),
		slog.String("app_id", appID),
		slog.String("version", target.Version),
		slog.Bool("reinstall", reinstall),
		slog.Bool("degraded_grant", grant.Degraded))

	return &InstallResult{
		InstallationID: inst.ID,
		AppID:          appID,
		AppName:        app.Name,
		Version:        target.Version,
		Status:         inst.Status,
		Grant:          grant,
		Reinstall:      reinstall,
	}, nil
}

// Update moves an installed app to its latest completed version. A no-op
// update (already on latest) is rejected with Conflict so stale callers
// notice, rather than silently succeeding.
func (s *InstallationsService) Update(ctx context.Context, merchantID, appID string) (*UpdateResult, error) {
	app, err := s.apps.GetByAppID(ctx, appID)
	if err != nil {
		return nil, err
	}

	existing, err := s.ledger.Get(ctx, merchantID, appID)
	if err != nil {
		return nil, err
	}
	if existing.Status != domain.StatusInstalled {
		return nil, domain.NotFound("no installed app to update")
	}

	latest, err := s.versions.GetLatest(ctx, appID)
	if err != nil {
		return nil, err
	}
	if latest.Version == existing.Version {
		return nil, domain.Conflict("app is already on the latest version")
	}

	grant := s.issue(ctx, latest.StorageKey)

	now := time.Now().UTC()
	var result *UpdateResult
	err = domain.RunInTx(ctx, s.uow, func(tx domain.Tx) error {
		row, err := s.ledger.GetForUpdate(ctx, tx, merchantID, appID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(row.Status, domain.StatusUpdating) {
			return domain.Conflict("installation is not in an updatable state")
		}
		previous := row.Version
		row.Version = latest.Version
		row.Status = domain.StatusUpdating
		row.UpdatedAt = now
		row.SignedURLGeneratedAt = &grant.IssuedAt
		row.SignedURLExpiresAt = &grant.ExpiresAt
		if err := s.ledger.Update(ctx, tx, row); err != nil {
			return err
		}
		result = &UpdateResult{
			InstallationID:  row.ID,
			AppID:           appID,
			AppName:         app.Name,
			PreviousVersion: previous,
			NewVersion:      latest.Version,
			Status:          row.Status,
			Grant:           grant,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("update initiated",
		slog.String("merchant_id", merchantID),
		slog.String("app_id", appID),
		slog.String("previous_version", result.PreviousVersion),
		slog.String("new_version", result.NewVersion))

	return result, nil
}

// MarkComplete settles an in-flight install or update into installed.
// Idempotent: completing an already-installed row is a no-op success.
// Only uninstalled rows refuse completion.
func (s *InstallationsService) MarkComplete(ctx context.Context, merchantID string, installationID int64) (*domain.Installation, error) {
	row, err := s.ledger.GetByID(ctx, installationID, merchantID)
	if err != nil {
		return nil, err
	}
	if row.Status == domain.StatusInstalled {
		return row, nil
	}
	if row.Status.Terminal() {
		return nil, domain.Conflict("installation has been uninstalled")
	}

	now := time.Now().UTC()
	err = domain.RunInTx(ctx, s.uow, func(tx domain.Tx) error {
		locked, err := s.ledger.GetForUpdate(ctx, tx, row.MerchantID, row.AppID)
		if err != nil {
			return err
		}
		if locked.Status == domain.StatusInstalled {
			row = locked
			return nil
		}
		if locked.Status.Terminal() {
			return domain.Conflict("installation has been uninstalled")
		}
		locked.Status = domain.StatusInstalled
		locked.UpdatedAt = now
		if err := s.ledger.Update(ctx, tx, locked); err != nil {
			return err
		}
		row = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Uninstall soft-deletes the installation: state flips to uninstalled,
// the version and history stay behind for audit and reinstall.
func (s *InstallationsService) Uninstall(ctx context.Context, merchantID, appID string) (*UninstallResult, error) {
	existing, err := s.ledger.Get(ctx, merchantID, appID)
	if err != nil {
		return nil, err
	}
	if existing.Status != domain.StatusInstalled {
		return nil, domain.Conflict("app is not in an installed state")
	}

	now := time.Now().UTC()
	var result *UninstallResult
	err = domain.RunInTx(ctx, s.uow, func(tx domain.Tx) error {
		row, err := s.ledger.GetForUpdate(ctx, tx, merchantID, appID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(row.Status, domain.StatusUninstalled) {
			return domain.Conflict("app is not in an installed state")
		}
		previous := row.Status
		row.Status = domain.StatusUninstalled
		row.UninstalledAt = &now
		row.UpdatedAt = now
		if err := s.ledger.Update(ctx, tx, row); err != nil {
			return err
		}
		result = &UninstallResult{
			InstallationID: row.ID,
			AppID:          appID,
			PreviousStatus: previous,
			UninstalledAt:  now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("app uninstalled",
		slog.String("merchant_id", merchantID),
		slog.String("app_id", appID))

	return result, nil
}

// UpdateAvailable reports whether the app's latest completed version is
// strictly newer than the installed one under release precedence.
func (s *InstallationsService) UpdateAvailable(ctx context.Context, merchantID, appID string) (bool, error) {
	row, err := s.ledger.Get(ctx, merchantID, appID)
	if err != nil {
		return false, err
	}
	latest, err := s.versions.GetLatest(ctx, appID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return versionNewer(latest.Version, row.Version), nil
}

// ListInstalled returns the merchant's currently installed apps, each
// annotated with whether an update is available.
func (s *InstallationsService) ListInstalled(ctx context.Context, merchantID string) ([]domain.InstalledApp, error) {
	rows, err := s.ledger.ListByMerchant(ctx, merchantID, []domain.InstallationStatus{domain.StatusInstalled})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		latest, err := s.versions.GetLatest(ctx, rows[i].AppID)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				continue
			}
			return nil, err
		}
		rows[i].LatestVersion = latest.Version
		rows[i].UpdateAvailable = versionNewer(latest.Version, rows[i].Version)
	}
	return rows, nil
}

// ListAll returns every ledger row of the merchant, uninstalled and
// failed included, for audit.
func (s *InstallationsService) ListAll(ctx context.Context, merchantID string) ([]domain.InstalledApp, error) {
	return s.ledger.ListByMerchant(ctx, merchantID, nil)
}

// Details fetches one installation and re-issues a fresh download URL for
// its installed version, persisting the new issuance timestamps.
func (s *InstallationsService) Details(ctx context.Context, merchantID string, installationID int64) (*InstallationDetails, error) {
	row, err := s.ledger.GetByID(ctx, installationID, merchantID)
	if err != nil {
		return nil, err
	}

	details := &InstallationDetails{Installation: row}
	v, err := s.versions.GetExact(ctx, row.AppID, row.Version)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return details, nil
		}
		return nil, err
	}

	grant := s.issue(ctx, v.StorageKey)
	if err := s.ledger.TouchSignedURL(ctx, row.ID, grant.IssuedAt, grant.ExpiresAt); err != nil {
		return nil, err
	}
	row.SignedURLGeneratedAt = &grant.IssuedAt
	row.SignedURLExpiresAt = &grant.ExpiresAt
	details.Grant = &grant
	return details, nil
}

// resolve picks the install target: the exact requested version when one
// is named, the latest completed version otherwise.
func (s *InstallationsService) resolve(ctx context.Context, appID, requestedVersion string) (*domain.AppVersion, error) {
	if requestedVersion != "" {
		return s.versions.GetExact(ctx, appID, requestedVersion)
	}
	return s.versions.GetLatest(ctx, appID)
}

// issue calls the access issuer under its own deadline. The issuer
// degrades internally on failure or timeout, so this never errors.
func (s *InstallationsService) issue(ctx context.Context, storageKey string) domain.SignedGrant {
	ctx, cancel := context.WithTimeout(ctx, issuerTimeout)
	defer cancel()
	return s.issuer.Issue(ctx, storageKey, signedURLValidity)
}
